// Package telemetry implements the TelemetrySink port on top of
// OpenTelemetry tracing: each Record call opens and immediately ends a span
// named after the event, with the event's attrs attached as span attributes.
// Uses the same otel.Tracer/tracer.Start wiring (no span events) a dag
// executor's telemetry package would, narrowed down to a single
// Record(ctx, name, attrs) shape and a stdout-only exporter, since
// nothing else here reaches for metrics or OTLP.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/microfactory-run/microfactory/internal/ports"
)

const tracerName = "microfactory"

// Sink adapts an OTel tracer to ports.TelemetrySink. The zero value is not
// usable; construct with New.
type Sink struct {
	tracer trace.Tracer
}

var _ ports.TelemetrySink = (*Sink)(nil)

// New wraps an already-configured otel.Tracer in a Sink. Most callers want
// Init, which also sets up the TracerProvider.
func New(tracer trace.Tracer) *Sink {
	return &Sink{tracer: tracer}
}

// Record implements ports.TelemetrySink by opening a span named after the
// event, attaching attrs as span attributes, and ending it immediately: the
// sink is a recorder, not a profiler, so spans carry no duration beyond the
// call itself. Values are coerced to attribute.KeyValue via fmt.Sprint for
// anything that isn't already a string, bool, int, int64, or float64, mirroring
// the loose any-typed attrs map the runner passes in.
func (s *Sink) Record(ctx context.Context, name string, attrs map[string]any) {
	if s == nil || s.tracer == nil {
		return
	}
	kvs := make([]attribute.KeyValue, 0, len(attrs))
	for k, v := range attrs {
		kvs = append(kvs, toAttribute(k, v))
	}
	_, span := s.tracer.Start(ctx, name, trace.WithAttributes(kvs...))
	span.End()
}

func toAttribute(key string, v any) attribute.KeyValue {
	switch val := v.(type) {
	case string:
		return attribute.String(key, val)
	case bool:
		return attribute.Bool(key, val)
	case int:
		return attribute.Int(key, val)
	case int64:
		return attribute.Int64(key, val)
	case float64:
		return attribute.Float64(key, val)
	default:
		return attribute.String(key, fmt.Sprint(val))
	}
}

// Config controls how Init wires the TracerProvider.
type Config struct {
	// ServiceName identifies this process in emitted spans.
	ServiceName string
	// Exporter selects the span exporter: "stdout" or "none". "none"
	// disables tracing entirely, leaving Sink.Record a no-op — useful for
	// --log-json runs that don't want interleaved span dumps on stdout.
	Exporter string
	// PrettyPrint formats stdout spans as indented JSON instead of a
	// single line per span.
	PrettyPrint bool
}

// DefaultConfig returns the CLI's default telemetry configuration: stdout
// export, compact (non-pretty) formatting.
func DefaultConfig() Config {
	return Config{ServiceName: "microfactory", Exporter: "stdout"}
}

// Init builds a TracerProvider per cfg, registers it as the global provider,
// and returns a Sink plus a shutdown function the caller must invoke on exit
// to flush any buffered spans.
func Init(ctx context.Context, cfg Config) (*Sink, func(context.Context) error, error) {
	if cfg.Exporter == "none" || cfg.Exporter == "" {
		return &Sink{}, func(context.Context) error { return nil }, nil
	}

	var exporter sdktrace.SpanExporter
	var err error
	switch cfg.Exporter {
	case "stdout":
		opts := []stdouttrace.Option{}
		if cfg.PrettyPrint {
			opts = append(opts, stdouttrace.WithPrettyPrint())
		}
		exporter, err = stdouttrace.New(opts...)
	default:
		return nil, nil, fmt.Errorf("telemetry: unknown exporter %q", cfg.Exporter)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("telemetry: create exporter: %w", err)
	}

	res := resource.NewWithAttributes("",
		attribute.String("service.name", cfg.ServiceName),
	)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)

	return New(tp.Tracer(tracerName)), tp.Shutdown, nil
}
