package telemetry

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

const serviceName = "mnemo"

// NewTracerProvider creates a TracerProvider that exports spans to logger.
//
// It uses a SimpleSpanProcessor so spans appear in the log the moment they
// complete; with a log-backed exporter there is nothing to gain from
// batching.
func NewTracerProvider(logger *slog.Logger) *sdktrace.TracerProvider {
	exporter := NewSlogSpanExporter(logger)
	processor := sdktrace.NewSimpleSpanProcessor(exporter)

	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
		),
	)
	if err != nil {
		if logger == nil {
			logger = slog.Default()
		}
		logger.Warn("failed to create resource, using default", "error", err)
		res = resource.Default()
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(processor),
		sdktrace.WithResource(res),
	)
}

// Tracer returns the service tracer from a provider.
func Tracer(tp *sdktrace.TracerProvider) trace.Tracer {
	return tp.Tracer(serviceName)
}
