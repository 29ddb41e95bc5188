// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/habituate/progression-engine/internal/domain/shared"
)

// Clock returns the current time. Handlers take it at construction so tests
// can pin "today".
type Clock func() time.Time

// SystemClock is the wall clock in UTC.
func SystemClock() time.Time { return time.Now().UTC() }

func clockOrDefault(c Clock) Clock {
	if c == nil {
		return SystemClock
	}
	return c
}

func loggerOrDefault(l *slog.Logger, handler string) *slog.Logger {
	if l == nil {
		l = slog.Default()
	}
	return l.With("handler", handler)
}

func publisherOrDefault(p shared.EventPublisher) shared.EventPublisher {
	if p == nil {
		return shared.NopPublisher{}
	}
	return p
}

// publishAll sends events in order. Failures are logged and never surface:
// the mutation that produced the events has already been persisted.
func publishAll(logger *slog.Logger, publisher shared.EventPublisher, events ...shared.Event) {
	for _, e := range events {
		if err := publisher.Publish(e); err != nil {
			logger.Warn("failed to publish event",
				"event_type", e.EventType(),
				"aggregate_id", e.AggregateID(),
				"error", err,
			)
		}
	}
}

// withLock runs fn while key is held.
func withLock(ctx context.Context, locker shared.Locker, key string, fn func() error) error {
	unlock, err := locker.Lock(ctx, key)
	if err != nil {
		return fmt.Errorf("acquire %s: %w", key, err)
	}
	defer unlock()
	return fn()
}

func required(op, field, value string) error {
	if value == "" {
		return fmt.Errorf("%s: %s is required: %w", op, field, shared.ErrValidation)
	}
	return nil
}
