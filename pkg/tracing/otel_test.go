package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestNoopTracer(t *testing.T) {
	tr, err := NewTracer(Config{Enabled: false})
	require.NoError(t, err)

	ctx, span := tr.StartCycleSpan(context.Background(), 1, "id")
	span.End()
	require.Empty(t, GetTraceID(ctx))
	require.NoError(t, tr.Shutdown(context.Background()))
}

func TestCycleSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	tr := NewTracerWithProvider(tp, "adaptation-test")

	ctx, cycle := tr.StartCycleSpan(context.Background(), 7, "cycle-7")
	require.NotEmpty(t, GetTraceID(ctx))

	_, phase := tr.StartPhaseSpan(ctx, "fetching_metrics")
	RecordSpanError(phase, errors.New("unreachable"))
	phase.End()

	RecordSpanUtility(cycle, 0.2, 0.3)
	RecordSpanSpace(cycle, 2, 6)
	RecordSpanSuccess(cycle)
	cycle.End()

	ended := recorder.Ended()
	require.Len(t, ended, 2)
	require.Equal(t, "adaptation.fetching_metrics", ended[0].Name())
	require.Equal(t, codes.Error, ended[0].Status().Code)
	require.Equal(t, "adaptation.cycle", ended[1].Name())
	require.Equal(t, ended[1].SpanContext().SpanID(), ended[0].Parent().SpanID())

	require.NoError(t, tr.Shutdown(context.Background()))
}
