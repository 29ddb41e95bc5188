// Package logger builds the process-wide *slog.Logger for the progression
// engine. It parses level and format settings, stamps OpenTelemetry trace
// ids onto records logged under an active span, and provides attribute
// helpers for the engine's domain keys.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"go.opentelemetry.io/otel/trace"
)

// Format selects the handler encoding.
type Format string

const (
	// FormatJSON is one JSON object per line, for log aggregators.
	FormatJSON Format = "json"
	// FormatText is slog's key=value text, for local development.
	FormatText Format = "text"
)

// ParseLevel parses a level name. Unknown names map to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ParseFormat parses a format name. Anything but "text" is JSON.
func ParseFormat(s string) Format {
	if strings.EqualFold(strings.TrimSpace(s), string(FormatText)) {
		return FormatText
	}
	return FormatJSON
}

// Options configures the logger.
type Options struct {
	Output    io.Writer
	Level     slog.Level
	Format    Format
	AddSource bool

	// Service is attached to every record when set.
	Service string
}

// DefaultOptions returns sensible defaults for the logger.
func DefaultOptions() Options {
	return Options{
		Output: os.Stdout,
		Level:  slog.LevelInfo,
		Format: FormatJSON,
	}
}

// New creates a logger with the given options.
func New(opts Options) *slog.Logger {
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	hopts := &slog.HandlerOptions{Level: opts.Level, AddSource: opts.AddSource}

	var h slog.Handler
	if opts.Format == FormatText {
		h = slog.NewTextHandler(opts.Output, hopts)
	} else {
		h = slog.NewJSONHandler(opts.Output, hopts)
	}

	l := slog.New(NewTraceHandler(h))
	if opts.Service != "" {
		l = l.With(slog.String("service", opts.Service))
	}
	return l
}

// ══════════════════════════════════════════════════════════════════════════════
// TRACE CORRELATION
// ══════════════════════════════════════════════════════════════════════════════

// TraceHandler adds trace_id and span_id to records whose context carries
// a valid span.
type TraceHandler struct {
	slog.Handler
}

// NewTraceHandler wraps h.
func NewTraceHandler(h slog.Handler) *TraceHandler {
	return &TraceHandler{Handler: h}
}

// Handle implements slog.Handler.
func (h *TraceHandler) Handle(ctx context.Context, r slog.Record) error {
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		r.AddAttrs(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return h.Handler.Handle(ctx, r)
}

// WithAttrs implements slog.Handler.
func (h *TraceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &TraceHandler{Handler: h.Handler.WithAttrs(attrs)}
}

// WithGroup implements slog.Handler.
func (h *TraceHandler) WithGroup(name string) slog.Handler {
	return &TraceHandler{Handler: h.Handler.WithGroup(name)}
}

// ══════════════════════════════════════════════════════════════════════════════
// CONTEXT
// ══════════════════════════════════════════════════════════════════════════════

type ctxKey struct{}

// WithContext returns a new context with the logger attached.
func WithContext(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext retrieves the logger from context, or slog.Default().
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}

// Domain attribute helpers.
func UserID(id string) slog.Attr      { return slog.String("user_id", id) }
func HabitID(id string) slog.Attr     { return slog.String("habit_id", id) }
func ClanID(id string) slog.Attr      { return slog.String("clan_id", id) }
func XPAmount(xp int64) slog.Attr     { return slog.Int64("xp_amount", xp) }
func Reason(r string) slog.Attr       { return slog.String("reason", r) }
func Component(name string) slog.Attr { return slog.String("component", name) }

// Err returns an "error" attribute; a nil error logs as an empty string.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "")
	}
	return slog.String("error", err.Error())
}
