package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/ReOpsIL/KAIX/internal/ids"
)

// TracingConfig configures the coordinator's span emission. The
// coordinator opens spans around plan generation and each task's execute
// phase; refinement, analysis, summarization, queue waits and the health
// check are not spanned.
type TracingConfig struct {
	Enabled      bool
	OTLPEndpoint string
	SampleRate   float64
	ServiceName  string
}

// Tracer wraps an OpenTelemetry tracer, attaching plan/task/correlation IDs
// from internal/ids onto every span automatically.
type Tracer struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// NewTracer builds a Tracer. Grounded on
// cklxx-elephant.ai/internal/observability/tracing.go's NewTracerProvider,
// trimmed to a single OTLP exporter — the teacher also wires a Zipkin
// exporter behind the same config switch, which SPEC_FULL.md's tracing
// section never calls for (one concrete backend per SPEC_FULL component is
// enough to exercise the OpenTelemetry dependency; a second exporter
// backend for a config value nothing else in this module reads would just
// be unreachable code).
func NewTracer(cfg TracingConfig) (*Tracer, error) {
	if !cfg.Enabled {
		return &Tracer{tracer: noop.NewTracerProvider().Tracer("kaix")}, nil
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "kaix-coordinator"
	}
	if cfg.SampleRate <= 0 || cfg.SampleRate > 1.0 {
		cfg.SampleRate = 1.0
	}
	endpoint := cfg.OTLPEndpoint
	if endpoint == "" {
		endpoint = "localhost:4318"
	}

	exporter, err := otlptracehttp.New(context.Background(),
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("observability: creating otlp exporter: %w", err)
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("observability: building resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(cfg.SampleRate)),
	)
	otel.SetTracerProvider(provider)

	return &Tracer{provider: provider, tracer: provider.Tracer("kaix-coordinator")}, nil
}

// Shutdown flushes and stops the underlying span processor, if any.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t.provider != nil {
		return t.provider.Shutdown(ctx)
	}
	return nil
}

// StartSpan opens a span named for the suspension point being entered
// (e.g. "provider.refine", "executor.execute", "contextstore.summarize"),
// tagging it with whatever plan/task/correlation IDs are already on ctx.
func (t *Tracer) StartSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	var attrs []attribute.KeyValue
	if planID := ids.PlanIDFromContext(ctx); planID != "" {
		attrs = append(attrs, attribute.String("plan_id", planID))
	}
	if taskID := ids.TaskIDFromContext(ctx); taskID != "" {
		attrs = append(attrs, attribute.String("task_id", taskID))
	}
	if corrID := ids.CorrelationIDFromContext(ctx); corrID != "" {
		attrs = append(attrs, attribute.String("correlation_id", corrID))
	}
	return t.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}
