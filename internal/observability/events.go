package observability

// EventEnvelope wraps a connection lifecycle event for the event bus.
type EventEnvelope struct {
	EventType string      `json:"event_type"`
	EventName string      `json:"event_name"`
	RequestID string      `json:"request_id,omitempty"`
	TraceID   string      `json:"trace_id,omitempty"`
	Payload   interface{} `json:"payload"`
}

// WSPayload is the payload of ws_connect, ws_disconnect and ws_error events.
type WSPayload struct {
	ConnID     string `json:"conn_id"`
	Event      string `json:"event"`
	UserID     string `json:"user_id,omitempty"`
	DeviceID   string `json:"device_id,omitempty"`
	IP         string `json:"ip,omitempty"`
	DurationMS int64  `json:"duration_ms"`
	Reason     string `json:"reason,omitempty"`
}
