// Package observability wires OpenTelemetry tracing at the tracer-provider
// and span level. There is no OTLP collector in scope for this build (the
// teacher's internal/observability/tracing.go exports via otlptracegrpc to
// Jaeger/Tempo; this one just mints a TracerProvider and spans so the agent
// loop and task orchestrator carry real trace/span ids through logs), so
// NewTracer never dials an exporter endpoint.
package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// Tracer wraps a trace.Tracer with vpsagent's span-naming conventions. A nil
// *Tracer is valid and turns every method into a no-op, so components can
// take a *Tracer dependency without every call site needing a nil check of
// its own.
type Tracer struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// NewTracer builds a process-wide TracerProvider tagged with serviceName and
// registers it as the global provider. The returned shutdown func should run
// at process exit; it is always safe to call even if no spans were ever
// exported anywhere.
func NewTracer(serviceName string) (*Tracer, func(context.Context) error) {
	res, err := resource.New(context.Background(), resource.WithAttributes(
		semconv.ServiceName(serviceName),
	))
	if err != nil {
		res = resource.Default()
	}
	provider := sdktrace.NewTracerProvider(sdktrace.WithResource(res))
	otel.SetTracerProvider(provider)

	return &Tracer{provider: provider, tracer: provider.Tracer(serviceName)}, provider.Shutdown
}

// Start begins a span named name under ctx. Safe to call on a nil *Tracer.
func (t *Tracer) Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if t == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	opts := make([]trace.SpanStartOption, 0, 1)
	if len(attrs) > 0 {
		opts = append(opts, trace.WithAttributes(attrs...))
	}
	return t.tracer.Start(ctx, name, opts...)
}

// RecordError records err on span and marks it errored, if err is non-nil.
func (t *Tracer) RecordError(span trace.Span, err error) {
	if err == nil || span == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
