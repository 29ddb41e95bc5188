package telemetry

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/habituate/progression-engine/internal/domain/shared"
)

func TestSpanSink_RecordsEventAsSpan(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	at := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	sink := NewSpanSink(tp)
	require.NoError(t, sink.Publish(shared.NewXPAwardedEvent("u1", 50, "habit_completed", 250, 1, 2, at)))

	spans := rec.Ended()
	require.Len(t, spans, 1)
	s := spans[0]
	assert.Equal(t, string(shared.EventXPAwarded), s.Name())
	assert.Equal(t, at, s.StartTime())

	attrs := map[attribute.Key]attribute.Value{}
	for _, kv := range s.Attributes() {
		attrs[kv.Key] = kv.Value
	}
	assert.Equal(t, "u1", attrs["aggregate.id"].AsString())
	assert.Equal(t, int64(250), attrs["new_xp"].AsInt64())
	assert.Equal(t, "habit_completed", attrs["reason"].AsString())
}

func TestPayloadAttributes_SortedAndTyped(t *testing.T) {
	attrs := PayloadAttributes(map[string]interface{}{
		"z":      true,
		"levels": []int{2, 3},
		"a":      1.5,
		"date":   shared.NewDate(2026, time.March, 10),
	})
	require.Len(t, attrs, 4)
	assert.Equal(t, attribute.Key("a"), attrs[0].Key)
	assert.Equal(t, "2026-03-10", attrs[1].Value.AsString())
	assert.Equal(t, []int64{2, 3}, attrs[2].Value.AsInt64Slice())
	assert.True(t, attrs[3].Value.AsBool())
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	sink := NewLogSink(logger, slog.LevelInfo)
	require.NoError(t, sink.Publish(shared.NewLevelUpEvent("u1", 5, "", time.Now())))
	assert.Contains(t, buf.String(), `"event":"progress.level_up"`)
	assert.Contains(t, buf.String(), `"component":"telemetry"`)

	buf.Reset()
	quiet := NewLogSink(logger, slog.LevelDebug)
	require.NoError(t, quiet.Publish(shared.NewLevelUpEvent("u1", 5, "", time.Now())))
	assert.Empty(t, buf.String())
}

func TestSetup_NoopWhenDisabled(t *testing.T) {
	shutdown, err := Setup(context.Background(), ProviderConfig{Endpoint: "http://192.0.2.1:4318"})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))

	shutdown, err = Setup(context.Background(), ProviderConfig{Enabled: true})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}
