// Package telemetry wires OpenTelemetry tracing to structured logging.
// Spans are exported straight into slog with a fire-and-forget exporter, so
// a demo deployment gets trace visibility without running a collector.
package telemetry
