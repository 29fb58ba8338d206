package telemetry_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/mnemo-ai/mnemo/telemetry"
)

func TestSpansReachTheLog(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	tp := telemetry.NewTracerProvider(logger)
	tracer := telemetry.Tracer(tp)

	_, span := tracer.Start(context.Background(), "memory.working.search")
	span.SetAttributes(attribute.Int("memory.hits", 2))
	span.End()

	require.NoError(t, tp.Shutdown(context.Background()))

	out := buf.String()
	assert.Contains(t, out, "memory.working.search")
	assert.Contains(t, out, "memory.hits")
	assert.Contains(t, out, "trace_id")
}

func TestErrorSpansLogAtWarn(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	tp := telemetry.NewTracerProvider(logger)
	tracer := telemetry.Tracer(tp)

	_, span := tracer.Start(context.Background(), "chat.process_message")
	span.SetStatus(codes.Error, "store unavailable")
	span.End()

	require.NoError(t, tp.Shutdown(context.Background()))

	out := buf.String()
	assert.Contains(t, out, "WARN")
	assert.Contains(t, out, "store unavailable")
}
