package telemetry

import (
	"context"
	"fmt"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/habituate/progression-engine/internal/domain/shared"
)

// InstrumentationName names the tracer used by SpanSink.
const InstrumentationName = "github.com/habituate/progression-engine/telemetry"

// SpanSink records every event as a short span named after the event type,
// carrying the payload as attributes.
type SpanSink struct {
	tracer trace.Tracer
}

var _ shared.EventPublisher = (*SpanSink)(nil)

// NewSpanSink creates a sink on tp. A nil tp uses the global provider.
func NewSpanSink(tp trace.TracerProvider) *SpanSink {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &SpanSink{tracer: tp.Tracer(InstrumentationName)}
}

// Publish records event. It never returns an error.
func (s *SpanSink) Publish(event shared.Event) error {
	attrs := append([]attribute.KeyValue{
		attribute.String("event.type", string(event.EventType())),
		attribute.String("aggregate.id", event.AggregateID()),
	}, PayloadAttributes(event.Payload())...)

	opts := []trace.SpanStartOption{
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	}
	at := event.OccurredAt()
	if !at.IsZero() {
		opts = append(opts, trace.WithTimestamp(at))
	}

	_, span := s.tracer.Start(context.Background(), string(event.EventType()), opts...)
	if at.IsZero() {
		span.End()
	} else {
		span.End(trace.WithTimestamp(at))
	}
	return nil
}

// PayloadAttributes converts a payload to attributes sorted by key.
func PayloadAttributes(payload map[string]interface{}) []attribute.KeyValue {
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]attribute.KeyValue, 0, len(keys))
	for _, k := range keys {
		out = append(out, toAttribute(k, payload[k]))
	}
	return out
}

func toAttribute(key string, v interface{}) attribute.KeyValue {
	switch val := v.(type) {
	case string:
		return attribute.String(key, val)
	case bool:
		return attribute.Bool(key, val)
	case int:
		return attribute.Int(key, val)
	case int64:
		return attribute.Int64(key, val)
	case float64:
		return attribute.Float64(key, val)
	case []int:
		return attribute.IntSlice(key, val)
	case []string:
		return attribute.StringSlice(key, val)
	case fmt.Stringer:
		return attribute.String(key, val.String())
	default:
		return attribute.String(key, fmt.Sprint(val))
	}
}
