package ws

import (
	"context"
	"time"

	"chat-realtime/internal/observability"
)

const wsRoutingKey = "ws_events.groups"

// publishLifecycle reports ws_connect, ws_disconnect and ws_error to the event bus.
func publishLifecycle(ctx context.Context, info ConnInfo, event, userID, reason string) {
	observability.IncWSEvent("group", event)

	duration := int64(0)
	if event != "ws_connect" {
		duration = time.Since(info.ConnectedAt).Milliseconds()
	}
	_ = observability.PublishEvent(ctx, wsRoutingKey, observability.EventEnvelope{
		EventType: "ws_events",
		EventName: event,
		RequestID: info.RequestID,
		TraceID:   info.TraceID,
		Payload: observability.WSPayload{
			ConnID:     info.ConnID,
			Event:      event,
			UserID:     userID,
			DeviceID:   info.DeviceID,
			IP:         info.IP,
			DurationMS: duration,
			Reason:     reason,
		},
	})
}
