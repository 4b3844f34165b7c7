package increquery

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// defaultTracerName is the tracer name TracingEventSink resolves from the
// global OpenTelemetry tracer provider when none is given.
const defaultTracerName = "increquery"

// TracingConfig configures the OpenTelemetry event sink.
type TracingConfig struct {
	// TracerName is the name of the tracer (default: "increquery").
	TracerName string
}

// TracingOption configures a TracingConfig.
type TracingOption func(*TracingConfig)

// WithTracerName sets the tracer name.
func WithTracerName(name string) TracingOption {
	return func(c *TracingConfig) { c.TracerName = name }
}

// spanKey identifies one in-flight query execution: a runtime may have
// several nested executions open at once, but never two of the same key, so
// the pair is unique for the lifetime of the span.
type spanKey struct {
	runtime RuntimeID
	key     DatabaseKey
}

// TracingEventSink adapts EventSink to go.opentelemetry.io/otel, opening one
// span per query execution (EventWillExecute through EventDidExecute) and
// recording a detected cycle as an error status on whatever span is open
// for the calling runtime's current key.
//
// Configure the global tracer provider before constructing this sink, the
// same way an application wires up a TracerProvider before calling
// otel.Tracer:
//
//	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
//	otel.SetTracerProvider(tp)
//	sink := increquery.NewTracingEventSink()
//	db := increquery.NewDatabase().WithEventSink(sink)
type TracingEventSink struct {
	tracer trace.Tracer

	mu    sync.Mutex
	spans map[spanKey]trace.Span
}

// NewTracingEventSink builds a TracingEventSink using the tracer resolved
// from the global OpenTelemetry tracer provider.
func NewTracingEventSink(opts ...TracingOption) *TracingEventSink {
	config := TracingConfig{TracerName: defaultTracerName}
	for _, opt := range opts {
		opt(&config)
	}
	return &TracingEventSink{
		tracer: otel.Tracer(config.TracerName),
		spans:  make(map[spanKey]trace.Span),
	}
}

// SalsaEvent implements EventSink.
func (t *TracingEventSink) SalsaEvent(evt Event) {
	k := spanKey{runtime: evt.RuntimeID, key: evt.DatabaseKey}
	switch evt.Kind {
	case EventWillExecute:
		_, span := t.tracer.Start(context.Background(), evt.DatabaseKey.Query,
			trace.WithSpanKind(trace.SpanKindInternal),
			trace.WithAttributes(
				attribute.String("increquery.query", evt.DatabaseKey.Query),
				attribute.String("increquery.key", fmt.Sprint(evt.DatabaseKey.Key)),
			),
		)
		t.mu.Lock()
		t.spans[k] = span
		t.mu.Unlock()
	case EventDidExecute:
		t.mu.Lock()
		span, ok := t.spans[k]
		delete(t.spans, k)
		t.mu.Unlock()
		if ok {
			span.End()
		}
	case EventDidDetectCycle:
		t.mu.Lock()
		span, ok := t.spans[k]
		t.mu.Unlock()
		if ok {
			span.SetStatus(codes.Error, "cycle detected")
		}
	}
}
