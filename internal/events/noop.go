package events

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// NoopPublisher drops every event. serve uses it when BUDGETS_NATS_URL is
// unset; the SSE hub still sees events because it wraps the publisher.
type NoopPublisher struct {
	// Logger, when set, records each dropped topic at debug level.
	Logger *slog.Logger

	dropped atomic.Int64
}

func (n *NoopPublisher) Publish(_ context.Context, topic string, _ any) error {
	n.dropped.Add(1)
	if n.Logger != nil {
		n.Logger.Debug("event not published, no broker configured", "topic", topic)
	}
	return nil
}

// Dropped reports how many events Publish has discarded.
func (n *NoopPublisher) Dropped() int64 {
	return n.dropped.Load()
}

func (n *NoopPublisher) Close() error {
	return nil
}
