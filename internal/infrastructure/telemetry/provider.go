// Package telemetry implements the telemetry sinks of the progression
// engine: an OpenTelemetry span sink and a structured log sink. Both accept
// every domain event and never fail the mutation that produced it.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// ProviderConfig selects the trace exporter.
type ProviderConfig struct {
	// Enabled turns tracing on. Endpoint must also be set.
	Enabled bool

	// Endpoint is the OTLP/HTTP collector URL, e.g. http://localhost:4318.
	Endpoint string

	// ServiceName is reported as service.name.
	ServiceName string
}

// Setup initialises OpenTelemetry tracing.
//
// Tracing is opt-in: when Enabled is false or Endpoint is empty, Setup
// returns a no-op shutdown function and no global provider is registered.
//
// The returned shutdown function flushes pending spans and should be deferred
// by the caller.
func Setup(ctx context.Context, cfg ProviderConfig) (shutdown func(context.Context) error, err error) {
	noop := func(context.Context) error { return nil }

	if !cfg.Enabled || cfg.Endpoint == "" {
		return noop, nil
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpointURL(cfg.Endpoint),
	)
	if err != nil {
		return noop, err
	}

	name := cfg.ServiceName
	if name == "" {
		name = "progression-engine"
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(name),
		),
	)
	if err != nil {
		return noop, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return tp.Shutdown, nil
}
