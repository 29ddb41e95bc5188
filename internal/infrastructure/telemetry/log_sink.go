package telemetry

import (
	"context"
	"log/slog"

	"github.com/habituate/progression-engine/internal/domain/shared"
)

// LogSink writes every event as one structured log record.
type LogSink struct {
	logger *slog.Logger
	level  slog.Level
}

var _ shared.EventPublisher = (*LogSink)(nil)

// NewLogSink creates a sink writing at level.
func NewLogSink(logger *slog.Logger, level slog.Level) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger.With("component", "telemetry"), level: level}
}

// Publish logs event. It never returns an error.
func (s *LogSink) Publish(event shared.Event) error {
	ctx := context.Background()
	if !s.logger.Enabled(ctx, s.level) {
		return nil
	}

	attrs := make([]slog.Attr, 0, 3)
	attrs = append(attrs,
		slog.String("event", string(event.EventType())),
		slog.String("aggregate_id", event.AggregateID()),
	)
	payload := make([]any, 0, len(event.Payload()))
	for _, kv := range PayloadAttributes(event.Payload()) {
		payload = append(payload, slog.Any(string(kv.Key), kv.Value.AsInterface()))
	}
	attrs = append(attrs, slog.Group("payload", payload...))

	s.logger.LogAttrs(ctx, s.level, "progression event", attrs...)
	return nil
}
