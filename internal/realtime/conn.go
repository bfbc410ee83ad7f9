// Package realtime is the coordination core of the chat service: it binds
// identities to live connections, routes events to group rooms, tracks typing
// state and applies group and message mutations before fanning them out.
package realtime

import "chat-realtime/internal/models"

// Conn is a live client connection. Send must not block; a connection that
// cannot accept an event returns an error and the event is dropped for it.
type Conn interface {
	ID() string
	Send(event models.Event) error
	Close() error
}

// Publisher is the topic fan-out primitive the core depends on. Topics are group ids.
type Publisher interface {
	Publish(topic string, event models.Event, exclude ...string) int
	Subscribe(conn Conn, topic string) bool
	Unsubscribe(conn Conn, topic string) bool
}

func connID(conn Conn) string {
	if conn == nil {
		return ""
	}
	return conn.ID()
}
