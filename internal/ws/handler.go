package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"chat-realtime/internal/observability"
	"chat-realtime/internal/realtime"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Handler upgrades HTTP requests to websocket sessions of the realtime gateway.
type Handler struct {
	gateway *realtime.Gateway
	cfg     ClientConfig
}

func NewHandler(gateway *realtime.Gateway, cfg ClientConfig) *Handler {
	return &Handler{gateway: gateway, cfg: cfg}
}

// Handle serves GET /ws. Identity is established by the join event.
func (h *Handler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("chat-realtime/ws").Start(c.Request.Context(), "ws.handshake")
	c.Request = c.Request.WithContext(ctx)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		span.End()
		return
	}

	info := ConnInfo{
		ConnID:      uuid.NewString(),
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	span.End()

	client := NewClient(info.ConnID, conn, h.cfg)
	session := h.gateway.Open(client)

	observability.IncWSActive("group")
	publishLifecycle(ctx, info, "ws_connect", "", "")

	// handler spans are children of the handshake, not of the finished HTTP request
	sessionCtx := trace.ContextWithSpanContext(context.Background(), span.SpanContext())
	go client.writePump()
	go h.serve(sessionCtx, client, session, info)
}

func (h *Handler) serve(ctx context.Context, client *Client, session *realtime.Session, info ConnInfo) {
	reason, failed := client.readPump(ctx, session)

	userID := session.UserID()
	session.Close(ctx)
	_ = client.Close()

	observability.DecWSActive("group")
	if failed {
		publishLifecycle(ctx, info, "ws_error", userID, reason)
	}
	publishLifecycle(ctx, info, "ws_disconnect", userID, reason)
}
