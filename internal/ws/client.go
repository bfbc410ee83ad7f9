package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"chat-realtime/internal/apperrors"
	"chat-realtime/internal/models"
	"chat-realtime/internal/realtime"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var (
	ErrClientClosed   = errors.New("client closed")
	ErrSendBufferFull = errors.New("send buffer full")
)

var _ realtime.Conn = (*Client)(nil)

// ClientConfig tunes one websocket client.
type ClientConfig struct {
	SendBuffer     int
	MaxMessageSize int64
	RateBurst      int
	RateInterval   time.Duration
}

// Client adapts a websocket into a realtime.Conn. Outbound frames go through
// a buffered channel drained by writePump, so Send never blocks.
type Client struct {
	id        string
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	limiter   *rateLimiter
	maxSize   int64
}

func NewClient(id string, conn *websocket.Conn, cfg ClientConfig) *Client {
	if cfg.SendBuffer < 1 {
		cfg.SendBuffer = 64
	}
	if conn != nil && cfg.MaxMessageSize > 0 {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}
	return &Client{
		id:      id,
		conn:    conn,
		send:    make(chan []byte, cfg.SendBuffer),
		done:    make(chan struct{}),
		limiter: newRateLimiter(cfg.RateBurst, cfg.RateInterval),
		maxSize: cfg.MaxMessageSize,
	}
}

func (c *Client) ID() string {
	return c.id
}

// Send queues event for delivery. A closed or saturated client returns an error.
func (c *Client) Send(event models.Event) error {
	return c.enqueue(event)
}

func (c *Client) enqueue(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return ErrClientClosed
	default:
	}
	select {
	case c.send <- payload:
		return nil
	case <-c.done:
		return ErrClientClosed
	default:
		return ErrSendBufferFull
	}
}

// Close stops the write pump, which flushes queued frames and closes the socket.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
	})
	return nil
}

func (c *Client) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// readPump feeds inbound frames to session one at a time until the socket
// fails. It returns the close reason and whether the close was abnormal.
func (c *Client) readPump(ctx context.Context, session *realtime.Session) (string, bool) {
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return c.readError(err)
		}
		if c.closed() {
			return "closed by server", false
		}
		if !c.limiter.allow() {
			log.Printf("ws rate limit exceeded: conn_id=%s", c.id)
			_ = c.enqueue(models.Ack{Event: models.EventAck, Success: false,
				Code: string(apperrors.CodeValidation), Message: "Rate limit exceeded"})
			continue
		}

		var in models.Inbound
		if err := json.Unmarshal(raw, &in); err != nil || in.Event == "" {
			_ = c.enqueue(models.Ack{Event: models.EventAck, Success: false,
				Code: string(apperrors.CodeValidation), Message: "Invalid payload"})
			continue
		}

		ack, terminate := session.Handle(ctx, in)
		if ack != nil {
			if err := c.enqueue(ack); err != nil {
				log.Printf("ws ack dropped: conn_id=%s event=%s err=%v", c.id, in.Event, err)
			}
		}
		if terminate {
			_ = c.Close()
			return "join failed", false
		}
	}
}

func (c *Client) readError(err error) (string, bool) {
	if c.closed() {
		return "closed by server", false
	}
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		log.Printf("ws message exceeded %d bytes: conn_id=%s", c.maxSize, c.id)
		return err.Error(), true
	case websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
		log.Printf("ws unexpected close: conn_id=%s err=%v", c.id, err)
		return err.Error(), true
	}
	return err.Error(), false
}

// writePump owns all writes to the socket.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case payload := <-c.send:
			if !c.write(websocket.TextMessage, payload) {
				return
			}
		case <-ticker.C:
			if !c.write(websocket.PingMessage, nil) {
				return
			}
		case <-c.done:
			c.flush()
			_ = c.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (c *Client) flush() {
	for {
		select {
		case payload := <-c.send:
			if !c.write(websocket.TextMessage, payload) {
				return
			}
		default:
			return
		}
	}
}

func (c *Client) write(messageType int, payload []byte) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return false
	}
	if err := c.conn.WriteMessage(messageType, payload); err != nil {
		log.Printf("ws write failed: conn_id=%s err=%v", c.id, err)
		return false
	}
	return true
}
