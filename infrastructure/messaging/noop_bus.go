package messaging

import (
	"context"

	"eventgraph/application/ports"
	"eventgraph/domain/events"

	"go.uber.org/zap"
)

// NoopBus is an EventBus that logs and discards events. It stands in for
// EventBridge when the service runs against the in-memory store, where the
// change stream already carries all graph activity.
type NoopBus struct {
	logger *zap.Logger
}

var _ ports.EventBus = (*NoopBus)(nil)

// NewNoopBus creates a discard-only event bus.
func NewNoopBus(logger *zap.Logger) *NoopBus {
	return &NoopBus{logger: logger}
}

// Publish logs the event and drops it.
func (b *NoopBus) Publish(ctx context.Context, event events.DomainEvent) error {
	b.logger.Debug("Discarding event (no-op bus)",
		zap.String("eventType", event.GetEventType()),
		zap.String("aggregateID", event.GetAggregateID()),
	)
	return nil
}

// PublishBatch logs and drops each event.
func (b *NoopBus) PublishBatch(ctx context.Context, batch []events.DomainEvent) error {
	for _, event := range batch {
		if err := b.Publish(ctx, event); err != nil {
			return err
		}
	}
	return nil
}
