package ws

import "time"

// ConnInfo describes a websocket connection for lifecycle events.
type ConnInfo struct {
	ConnID      string
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}
