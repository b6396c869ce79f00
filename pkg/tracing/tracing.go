package tracing

import (
	"context"
	"fmt"
	"log/slog"

	"antalyabus/pkg/otel"

	otelapi "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/trace"
)

// InitTracing installs the global tracer provider when OTEL_TRACING_ENABLED
// is set. The returned function flushes and stops it.
func InitTracing() (func(), error) {
	if !otel.IsTracingEnabled() {
		slog.Debug("OpenTelemetry tracing is disabled")
		return func() {}, nil
	}

	cfg := otel.GetExporterConfig(otel.SignalTraces)
	exporter, err := otel.NewTraceExporter(context.Background(), cfg)
	if err != nil {
		slog.Warn("Failed to create trace exporter, tracing disabled", "endpoint", cfg.Endpoint, "error", err)
		return func() {}, nil
	}

	res, err := otel.NewResource()
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := trace.NewTracerProvider(
		trace.WithBatcher(exporter),
		trace.WithResource(res),
	)

	otelapi.SetTracerProvider(tp)
	otelapi.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	slog.Info("OpenTelemetry tracing enabled", "endpoint", cfg.Endpoint, "protocol", cfg.Protocol)

	return func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			slog.Error("Error shutting down tracer provider", "error", err)
		}
	}, nil
}
