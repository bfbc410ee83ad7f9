package observability

import (
	"context"
)

// EventPublisher is the transport ws lifecycle events are published on.
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
}

var defaultPublisher EventPublisher

func SetPublisher(publisher EventPublisher) {
	defaultPublisher = publisher
}

// PublishEvent sends event with the process-wide publisher. Without one it is a no-op.
func PublishEvent(ctx context.Context, routingKey string, event EventEnvelope) error {
	if defaultPublisher == nil {
		return nil
	}

	err := defaultPublisher.Publish(ctx, routingKey, event)
	if err != nil {
		IncAMQPPublishError()
	}
	return err
}
