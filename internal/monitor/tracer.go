package monitor

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const tracerName = "code-playground"

// Tracer wraps OpenTelemetry tracing for the playground.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a new Tracer using the global TracerProvider.
func NewTracer() *Tracer {
	return &Tracer{
		tracer: otel.Tracer(tracerName),
	}
}

// NewNoopTracer returns a Tracer whose spans are discarded.
func NewNoopTracer() *Tracer {
	return &Tracer{
		tracer: noop.NewTracerProvider().Tracer(tracerName),
	}
}

// StartSpan creates a new span and returns the updated context.
func (t *Tracer) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, fmt.Sprintf("playground.%s", name),
		trace.WithAttributes(attrs...),
	)
	return ctx, span
}

// SpanFromContext returns the current span from the context.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// Common attribute keys for playground tracing.
var (
	AttrExecID     = attribute.Key("playground.execution.id")
	AttrBackend    = attribute.Key("playground.backend")
	AttrCodeHash   = attribute.Key("playground.code_hash")
	AttrStatus     = attribute.Key("playground.status")
	AttrCategory   = attribute.Key("playground.category")
	AttrExitCode   = attribute.Key("playground.exit_code")
	AttrDurationMS = attribute.Key("playground.duration_ms")
)
