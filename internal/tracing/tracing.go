// Package tracing wraps OpenTelemetry span creation for the container
// lifecycle actors: one span per initializeAndRun attempt and one per
// pool scheduling decision for an incoming run, mirroring how every invocation gets a
// span wrapped around it elsewhere in the ecosystem.
package tracing

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// Config controls whether and where spans are exported.
type Config struct {
	Enabled     bool
	Exporter    string // otlp-http, stdout
	Endpoint    string // e.g. localhost:4318
	ServiceName string
	SampleRate  float64 // 0.0 to 1.0
}

var global = &state{tracer: trace.NewNoopTracerProvider().Tracer("")}

type state struct {
	tp      *sdktrace.TracerProvider
	tracer  trace.Tracer
	enabled bool
}

// Init wires the global tracer provider. Called once at daemon startup;
// a disabled Config leaves every StartSpan call a no-op.
func Init(ctx context.Context, cfg Config) error {
	if !cfg.Enabled {
		global = &state{tracer: trace.NewNoopTracerProvider().Tracer("")}
		return nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion("1.0.0"),
		),
	)
	if err != nil {
		return fmt.Errorf("create resource: %w", err)
	}

	var exporter sdktrace.SpanExporter
	switch cfg.Exporter {
	case "otlp-http", "otlp", "":
		exp, err := otlptracehttp.New(ctx,
			otlptracehttp.WithEndpoint(cfg.Endpoint),
			otlptracehttp.WithInsecure(),
		)
		if err != nil {
			return fmt.Errorf("create OTLP exporter: %w", err)
		}
		exporter = exp
	case "stdout":
		exporter = &noopExporter{}
	default:
		return fmt.Errorf("unknown exporter: %s", cfg.Exporter)
	}

	sampler := sdktrace.AlwaysSample()
	if cfg.SampleRate < 1.0 && cfg.SampleRate >= 0 {
		sampler = sdktrace.TraceIDRatioBased(cfg.SampleRate)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	global = &state{tp: tp, tracer: tp.Tracer(cfg.ServiceName), enabled: true}
	return nil
}

// Shutdown flushes any buffered spans. Safe to call even when Init was
// never called or tracing was disabled.
func Shutdown(ctx context.Context) error {
	if global.tp == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return global.tp.Shutdown(ctx)
}

// Enabled reports whether a real exporter is wired.
func Enabled() bool { return global.enabled }

// StartSpan opens an internal-kind span. Callers must end it; wrapping
// the invocation in a defer is the usual shape.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return global.tracer.Start(ctx, name,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// SetSpanError records err on span and marks its status Error.
func SetSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// SetSpanOK marks span's status Ok.
func SetSpanOK(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

// Span attribute keys shared by the container proxy and pool.
var (
	AttrProxyID      = attribute.Key("zygote.proxy.id")
	AttrActionName   = attribute.Key("zygote.action.name")
	AttrNamespace    = attribute.Key("zygote.namespace")
	AttrActivationID = attribute.Key("zygote.activation.id")
	AttrColdStart    = attribute.Key("zygote.cold_start")
	AttrFromBuffer   = attribute.Key("zygote.from_buffer")
)

// noopExporter discards spans; used for the "stdout" exporter choice
// until a real stdout exporter dependency is warranted.
type noopExporter struct{}

func (e *noopExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	return nil
}

func (e *noopExporter) Shutdown(ctx context.Context) error { return nil }
