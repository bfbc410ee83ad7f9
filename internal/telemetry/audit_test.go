package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"chat-realtime/internal/mocks"
)

func TestAuditEmitterPublishesEnvelope(t *testing.T) {
	publisher := new(mocks.PublisherMock)
	emitter := NewAuditEmitter(publisher, "audit.chat-realtime", "chat-realtime", "test")
	emitter.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }
	userID := "11111111-1111-4111-8111-111111111111"

	publisher.On("Publish", mock.Anything, "audit.chat-realtime", mock.MatchedBy(func(env AuditEnvelope) bool {
		return env.EventType == "audit_log" &&
			env.SchemaVersion == 1 &&
			env.Service == "chat-realtime" &&
			env.Environment == "test" &&
			env.RequestID == "req-1" &&
			env.UserID != nil && *env.UserID == userID &&
			env.OccurredAt == "2024-01-02T03:04:05Z" &&
			env.Payload == AuditPayload{Level: "INFO", Text: "Group created"}
	})).Return(nil).Once()

	emitter.Emit(context.Background(), "INFO", "Group created", "req-1", &userID)

	publisher.AssertExpectations(t)
}

func TestAuditEmitterSwallowsPublishErrors(t *testing.T) {
	publisher := new(mocks.PublisherMock)
	publisher.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("channel closed")).Once()
	emitter := NewAuditEmitter(publisher, "audit", "svc", "test")

	assert.NotPanics(t, func() {
		emitter.Emit(context.Background(), "ERROR", "boom", "req-2", nil)
	})
	publisher.AssertExpectations(t)
}

func TestNilAuditEmitterIsNoop(t *testing.T) {
	var emitter *AuditEmitter
	assert.NotPanics(t, func() {
		emitter.Emit(context.Background(), "INFO", "ignored", "req-3", nil)
	})
}
