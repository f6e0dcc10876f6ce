package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/ReOpsIL/KAIX/internal/ids"
)

func TestNewTracer_DisabledReturnsNoop(t *testing.T) {
	tr, err := NewTracer(TracingConfig{Enabled: false})
	require.NoError(t, err)
	require.NotNil(t, tr)

	ctx, span := tr.StartSpan(context.Background(), "coordinator.idle")
	require.NotNil(t, ctx)
	span.End()
}

func TestTracer_StartSpan_AttachesContextIDs(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	tr := &Tracer{provider: tp, tracer: tp.Tracer("test")}

	ctx := ids.WithPlanID(context.Background(), "plan-1")
	ctx = ids.WithTaskID(ctx, "task-1")
	ctx = ids.WithCorrelationID(ctx, "corr-1")

	_, span := tr.StartSpan(ctx, "executor.execute")
	span.End()

	ended := rec.Ended()
	require.Len(t, ended, 1)
	attrs := map[string]string{}
	for _, kv := range ended[0].Attributes() {
		attrs[string(kv.Key)] = kv.Value.AsString()
	}
	assert.Equal(t, "plan-1", attrs["plan_id"])
	assert.Equal(t, "task-1", attrs["task_id"])
	assert.Equal(t, "corr-1", attrs["correlation_id"])
}

func TestTracer_Shutdown_NoopWhenDisabled(t *testing.T) {
	tr, err := NewTracer(TracingConfig{Enabled: false})
	require.NoError(t, err)
	assert.NoError(t, tr.Shutdown(context.Background()))
}
