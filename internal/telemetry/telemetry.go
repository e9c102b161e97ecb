// Package telemetry wires OpenTelemetry tracing: an OTLP/HTTP tracer
// provider for the process and a turn middleware that opens one span per
// turn.
package telemetry

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentationName is the OTel instrumentation scope name.
const InstrumentationName = "github.com/vivars7/skillrelay"

// DefaultServiceName is reported when Options.ServiceName is empty.
const DefaultServiceName = "skillrelay"

// Options configures Setup.
type Options struct {
	ServiceName string
	// Endpoint is either a full URL ("https://collector:4318/v1/traces") or
	// a host:port pair.
	Endpoint string
	// Insecure selects plain HTTP for a host:port endpoint.
	Insecure bool
	Version  string
}

// ShutdownFunc flushes and stops the tracer provider.
type ShutdownFunc func(ctx context.Context) error

// Tracer returns the relay's tracer from tp. A nil tp uses the global
// provider, which is a no-op until Setup installs one.
func Tracer(tp trace.TracerProvider) trace.Tracer {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return tp.Tracer(InstrumentationName)
}

// NewTracerProvider creates a TracerProvider that batches spans to an
// OTLP/HTTP collector. The caller must Shutdown it.
func NewTracerProvider(ctx context.Context, opts Options) (*sdktrace.TracerProvider, error) {
	exporter, err := otlptracehttp.New(ctx, exporterOptions(opts)...)
	if err != nil {
		return nil, fmt.Errorf("creating OTLP exporter: %w", err)
	}

	name := opts.ServiceName
	if name == "" {
		name = DefaultServiceName
	}
	attrs := []attribute.KeyValue{attribute.String("service.name", name)}
	if opts.Version != "" {
		attrs = append(attrs, attribute.String("service.version", opts.Version))
	}
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(attrs...))
	if err != nil {
		return nil, fmt.Errorf("building resource: %w", err)
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	), nil
}

func exporterOptions(opts Options) []otlptracehttp.Option {
	if opts.Endpoint == "" {
		return nil
	}
	if strings.Contains(opts.Endpoint, "://") {
		return []otlptracehttp.Option{otlptracehttp.WithEndpointURL(opts.Endpoint)}
	}
	out := []otlptracehttp.Option{otlptracehttp.WithEndpoint(opts.Endpoint)}
	if opts.Insecure {
		out = append(out, otlptracehttp.WithInsecure())
	}
	return out
}

// Setup installs a global tracer provider and the W3C propagators. The
// returned function flushes pending spans.
func Setup(ctx context.Context, opts Options) (ShutdownFunc, error) {
	tp, err := NewTracerProvider(ctx, opts)
	if err != nil {
		return nil, err
	}
	otel.SetTracerProvider(tp)
	SetupPropagation()
	return tp.Shutdown, nil
}

// SetupPropagation configures the global text-map propagator for W3C
// TraceContext and Baggage, so inbound traceparent headers from channels
// and skills continue their traces.
func SetupPropagation() {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
}
