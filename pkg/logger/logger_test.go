package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &m))
	return m
}

func TestParse(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel(" WARNING "))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))

	assert.Equal(t, FormatText, ParseFormat("TEXT"))
	assert.Equal(t, FormatJSON, ParseFormat(""))
}

func TestNew_JSONWithDomainAttrs(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Output: &buf, Level: slog.LevelInfo, Service: "progression-worker"})

	log.Debug("hidden")
	assert.Zero(t, buf.Len())

	log.Info("xp awarded", UserID("u1"), XPAmount(15), Reason("habit_completion"), Err(errors.New("boom")))
	m := decode(t, &buf)
	assert.Equal(t, "xp awarded", m["msg"])
	assert.Equal(t, "progression-worker", m["service"])
	assert.Equal(t, "u1", m["user_id"])
	assert.Equal(t, float64(15), m["xp_amount"])
	assert.Equal(t, "habit_completion", m["reason"])
	assert.Equal(t, "boom", m["error"])
	assert.NotContains(t, m, "trace_id")
}

func TestTraceHandler_StampsSpanContext(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	ctx, span := tp.Tracer("test").Start(context.Background(), "complete_habit")
	defer span.End()

	var buf bytes.Buffer
	log := New(Options{Output: &buf}).With(Component("engine"))
	log.InfoContext(ctx, "habit completed", HabitID("h1"))

	m := decode(t, &buf)
	assert.Equal(t, span.SpanContext().TraceID().String(), m["trace_id"])
	assert.Equal(t, span.SpanContext().SpanID().String(), m["span_id"])
	assert.Equal(t, "engine", m["component"])
	assert.Equal(t, "h1", m["habit_id"])
}

func TestContext(t *testing.T) {
	log := New(Options{Output: &bytes.Buffer{}})
	ctx := WithContext(context.Background(), log)
	assert.Same(t, log, FromContext(ctx))
	assert.Same(t, slog.Default(), FromContext(context.Background()))
}
