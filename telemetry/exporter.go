package telemetry

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// SlogSpanExporter implements the OpenTelemetry SpanExporter interface and
// writes completed spans to a slog.Logger.
//
// The exporter is fire-and-forget: export errors cannot happen, and a span
// that fails to serialize only costs a log line. It never blocks the trace
// pipeline.
type SlogSpanExporter struct {
	logger *slog.Logger
}

// NewSlogSpanExporter creates an exporter writing to logger.
func NewSlogSpanExporter(logger *slog.Logger) *SlogSpanExporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogSpanExporter{logger: logger}
}

// ExportSpans logs a batch of completed spans. Error-status spans log at
// warn level, everything else at debug.
func (e *SlogSpanExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	for _, span := range spans {
		sc := span.SpanContext()
		attrs := []any{
			"trace_id", sc.TraceID().String(),
			"span_id", sc.SpanID().String(),
			"duration", span.EndTime().Sub(span.StartTime()).Round(time.Microsecond),
		}
		if span.Parent().IsValid() {
			attrs = append(attrs, "parent_span_id", span.Parent().SpanID().String())
		}
		for _, attr := range span.Attributes() {
			attrs = append(attrs, string(attr.Key), attr.Value.Emit())
		}

		status := span.Status()
		if status.Code == codes.Error {
			attrs = append(attrs, "status", status.Description)
			e.logger.Warn("span "+span.Name(), attrs...)
			continue
		}
		e.logger.Debug("span "+span.Name(), attrs...)
	}
	return nil
}

// Shutdown is a no-op; the logger outlives the exporter.
func (e *SlogSpanExporter) Shutdown(ctx context.Context) error {
	return nil
}
