package otelhelper_test

import (
	"errors"
	"testing"

	"github.com/cflux/flow/pkg/otelhelper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestStartSpanAndSetError(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tracer := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)).Tracer("test")

	_, span := otelhelper.StartSpan(t.Context(), tracer, "engine.approve",
		attribute.String(otelhelper.StepIDKey, "step-1"))
	otelhelper.SetError(span, errors.New("step is not pending"))
	span.End()

	_, ok := otelhelper.StartSpan(t.Context(), tracer, "engine.start")
	otelhelper.SetError(ok, nil)
	ok.End()

	spans := recorder.Ended()
	require.Len(t, spans, 2)

	assert.Equal(t, "engine.approve", spans[0].Name())
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Contains(t, spans[0].Attributes(), attribute.String(otelhelper.StepIDKey, "step-1"))

	assert.Equal(t, codes.Unset, spans[1].Status().Code)
}

func TestNoopTracer(t *testing.T) {
	_, span := otelhelper.StartSpan(t.Context(), otelhelper.NoopTracer(), "noop")
	defer span.End()

	assert.False(t, span.SpanContext().IsValid())
}
