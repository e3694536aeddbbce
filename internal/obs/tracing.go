// Copyright 2025 James Ross
package obs

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/osmo-project/control-plane/internal/job"
)

// TracingConfig controls the optional OTLP/HTTP exporter.
type TracingConfig struct {
	Enabled          bool
	Endpoint         string
	Environment      string
	SamplingStrategy string // always|never|probabilistic
	SamplingRate     float64
}

// MaybeInitTracing initializes a global tracer provider when tracing is
// enabled and an endpoint is configured; otherwise it is a no-op so the
// control plane runs fine with tracing off by default.
func MaybeInitTracing(cfg TracingConfig) (*sdktrace.TracerProvider, error) {
	if !cfg.Enabled || cfg.Endpoint == "" {
		return nil, nil
	}

	exporter, err := otlptrace.New(context.Background(), otlptracehttp.NewClient(
		otlptracehttp.WithEndpoint(cfg.Endpoint),
		otlptracehttp.WithInsecure(),
	))
	if err != nil {
		return nil, err
	}

	res := resource.NewWithAttributes(
		"",
		attribute.String("service.name", "osmo-control-plane"),
		attribute.String("environment", cfg.Environment),
	)

	var sampler sdktrace.Sampler
	switch cfg.SamplingStrategy {
	case "always":
		sampler = sdktrace.AlwaysSample()
	case "never":
		sampler = sdktrace.NeverSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(cfg.SamplingRate)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))
	return tp, nil
}

// ContextWithJobSpan starts a span for dispatching a FrontendWorker job,
// tagged with the envelope's routing fields so a trace backend can group
// every handler invocation for one job instance.
func ContextWithJobSpan(ctx context.Context, j job.Job) (context.Context, trace.Span) {
	tracer := otel.Tracer("frontendworker")
	return tracer.Start(ctx, "job.process",
		trace.WithAttributes(
			attribute.String("job.id", j.JobID),
			attribute.String("job.uuid", j.JobUUID),
			attribute.String("job.type", string(j.JobType)),
			attribute.String("job.super_type", string(j.SuperType)),
		),
	)
}

// StartDequeueSpan/StartEnqueueSpan bracket broker I/O. The FrontendWorker
// pool wraps its dequeue call in StartDequeueSpan; StartEnqueueSpan has no
// caller in this repository.
func StartDequeueSpan(ctx context.Context, queueName string) (context.Context, trace.Span) {
	tracer := otel.Tracer("broker")
	return tracer.Start(ctx, "queue.dequeue", trace.WithAttributes(
		attribute.String("queue.name", queueName),
		attribute.String("queue.operation", "dequeue"),
	))
}

func StartEnqueueSpan(ctx context.Context, queueName string) (context.Context, trace.Span) {
	tracer := otel.Tracer("broker")
	return tracer.Start(ctx, "queue.enqueue", trace.WithAttributes(
		attribute.String("queue.name", queueName),
		attribute.String("queue.operation", "enqueue"),
	))
}

func RecordError(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	if span.IsRecording() && err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

func SetSpanSuccess(ctx context.Context) {
	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.SetStatus(codes.Ok, "success")
	}
}

func AddEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.AddEvent(name, trace.WithAttributes(attrs...))
	}
}

func AddSpanAttributes(ctx context.Context, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.SetAttributes(attrs...)
	}
}

// KeyValue builds a span/event attribute from a Go value, used at call
// sites that don't want to pick the right attribute.TypeXxx constructor.
func KeyValue(key string, value interface{}) attribute.KeyValue {
	switch v := value.(type) {
	case string:
		return attribute.String(key, v)
	case int:
		return attribute.Int(key, v)
	case int64:
		return attribute.Int64(key, v)
	case bool:
		return attribute.Bool(key, v)
	default:
		return attribute.String(key, fmt.Sprintf("%v", v))
	}
}
