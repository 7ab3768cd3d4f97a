package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestSpans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	tracer := Tracer(tp)

	ctx, parent := StartSpan(context.Background(), tracer, "assembly.start", PhaseKey.String("start"))
	_, child := StartSpan(ctx, tracer, "assembly.callback", BeanKey.String("Db"))
	EndSpan(child, errors.New("refused"))
	EndSpan(parent, nil)

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)
	assert.Equal(t, "assembly.callback", spans[0].Name)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
	assert.Equal(t, "refused", spans[0].Status.Description)
	assert.Equal(t, spans[1].SpanContext.SpanID(), spans[0].Parent.SpanID())
	assert.Contains(t, spans[0].Attributes, BeanKey.String("Db"))
	assert.Equal(t, codes.Unset, spans[1].Status.Code)
}

func TestTracerDefaultsToGlobalProvider(t *testing.T) {
	assert.NotNil(t, Tracer(nil))
}
