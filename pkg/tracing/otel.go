package tracing

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const instrumentation = "adaptation"

// Tracer opens the spans of adaptation cycles, their phases and the
// remote calls made by each phase.
type Tracer struct {
	tracer   trace.Tracer
	provider *sdktrace.TracerProvider
}

// Config enables Jaeger export. A disabled config yields a no-op tracer.
type Config struct {
	Enabled        bool   `yaml:"enabled"`
	ServiceName    string `yaml:"service_name"`
	ServiceVersion string `yaml:"service_version"`
	JaegerEndpoint string `yaml:"jaeger_endpoint" validate:"required_if=Enabled true"`
	Environment    string `yaml:"environment"`
}

func (c Config) resource() *resource.Resource {
	return resource.NewWithAttributes(semconv.SchemaURL,
		semconv.ServiceName(c.ServiceName),
		semconv.ServiceVersion(c.ServiceVersion),
		semconv.DeploymentEnvironment(c.Environment),
	)
}

// NewTracer installs a batching Jaeger pipeline as the global provider.
func NewTracer(config Config) (*Tracer, error) {
	if !config.Enabled {
		return NewNoopTracer(), nil
	}

	collector := jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(config.JaegerEndpoint))
	exp, err := jaeger.New(collector)
	if err != nil {
		return nil, fmt.Errorf("jaeger exporter for %s: %w", config.JaegerEndpoint, err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithResource(config.resource()),
		sdktrace.WithBatcher(exp),
	)
	return NewTracerWithProvider(provider, config.ServiceName), nil
}

// NewTracerWithProvider builds a tracer on an existing SDK provider and
// makes it global together with the W3C propagators.
func NewTracerWithProvider(tp *sdktrace.TracerProvider, name string) *Tracer {
	if name == "" {
		name = instrumentation
	}
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return &Tracer{tracer: tp.Tracer(name), provider: tp}
}

// NewNoopTracer returns a tracer that records nothing.
func NewNoopTracer() *Tracer {
	return &Tracer{tracer: noop.NewTracerProvider().Tracer(instrumentation)}
}

// StartCycleSpan starts the root span of one adaptation cycle
func (t *Tracer) StartCycleSpan(ctx context.Context, cycle uint64, cycleID string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, instrumentation+".cycle", trace.WithAttributes(
		attribute.Int64("adaptation.cycle", int64(cycle)),
		attribute.String("adaptation.cycle_id", cycleID),
	))
}

// StartPhaseSpan starts a span for one controller state
func (t *Tracer) StartPhaseSpan(ctx context.Context, phase string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, instrumentation+"."+phase, trace.WithAttributes(
		attribute.String("adaptation.phase", phase),
	))
}

// StartServiceSpan starts a client span for a call to the managed system
func (t *Tracer) StartServiceSpan(ctx context.Context, service string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "service."+service,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("service.name", service)),
	)
}

// Shutdown flushes pending spans. No-op tracers have nothing to flush.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}

func RecordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func RecordSpanSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

// RecordSpanDuration stores elapsed milliseconds on span
func RecordSpanDuration(span trace.Span, elapsed time.Duration) {
	span.SetAttributes(attribute.Float64("elapsed_ms", float64(elapsed.Microseconds())/1e3))
}

// RecordSpanUtility stores this cycle's utility and the running average
func RecordSpanUtility(span trace.Span, cycleUtility, average float64) {
	span.SetAttributes(
		attribute.Float64("utility.cycle", cycleUtility),
		attribute.Float64("utility.average", average),
	)
}

// RecordSpanSpace stores the knob count and the number of configurations
func RecordSpanSpace(span trace.Span, knobs, configurations int) {
	span.SetAttributes(
		attribute.Int("space.knobs", knobs),
		attribute.Int("space.configurations", configurations),
	)
}

// GetTraceID returns the hex trace id active in ctx, or "" outside a trace
func GetTraceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}
