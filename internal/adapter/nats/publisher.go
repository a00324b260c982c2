package nats

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/Strob0t/AgentDeck/internal/port/messagequeue"
)

// Publisher is a broadcast.Broadcaster that mirrors dashboard events onto the
// broker, one subject per event type. Payloads that fail schema validation
// are logged and dropped.
type Publisher struct {
	q messagequeue.Queue
}

// NewPublisher wraps a queue as an event broadcaster.
func NewPublisher(q messagequeue.Queue) *Publisher {
	return &Publisher{q: q}
}

// BroadcastEvent publishes payload as JSON on the subject for eventType.
func (p *Publisher) BroadcastEvent(ctx context.Context, eventType string, payload any) {
	if !p.q.IsConnected() {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		slog.ErrorContext(ctx, "marshal event", "type", eventType, "error", err)
		return
	}
	subject := messagequeue.SubjectFor(eventType)
	if err := messagequeue.Validate(subject, data); err != nil {
		slog.WarnContext(ctx, "event rejected", "subject", subject, "error", err)
		return
	}
	if err := p.q.Publish(ctx, subject, data); err != nil {
		slog.WarnContext(ctx, "event publish failed", "subject", subject, "error", err)
	}
}
