package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope of every span created by the service.
const TracerName = "langcard-insight"

// tracer is the global tracer instance for the insight service.
var tracer = otel.Tracer(TracerName)

// GetTracer returns the global tracer for creating spans.
//
//	ctx, span := tracing.GetTracer().Start(ctx, "insight.MakeRequest")
//	defer span.End()
func GetTracer() trace.Tracer {
	return tracer
}

// Setup installs a sampling tracer provider and the W3C trace-context propagator
// as the process-wide defaults. Spans are sampled at ratio unless the caller's
// trace is already sampled. The returned function flushes and stops the provider.
func Setup(ratio float64) func(context.Context) error {
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	tracer = otel.Tracer(TracerName)
	return tp.Shutdown
}
