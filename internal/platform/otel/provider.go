// Package otel wires the OpenTelemetry trace provider for the services.
package otel

import (
	"context"
	"os"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Setup initialises tracing for the given service and returns the shutdown
// function that flushes pending spans; callers defer it.
//
// Tracing is opt-in. Without an exporter endpoint no global provider is
// registered and the returned shutdown is a no-op.
func Setup(ctx context.Context, serviceName string) (func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }

	endpoint, ok := exporterEndpoint()
	if !ok {
		return noop, nil
	}

	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(endpoint))
	if err != nil {
		return noop, err
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(serviceName)))
	if err != nil {
		return noop, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	return tp.Shutdown, nil
}

// exporterEndpoint reports the configured OTLP endpoint. Tracing stays off
// when MPG_OTEL_ENDPOINT is empty or MPG_OTEL_ENABLED is "false".
func exporterEndpoint() (string, bool) {
	if strings.EqualFold(os.Getenv("MPG_OTEL_ENABLED"), "false") {
		return "", false
	}
	endpoint := os.Getenv("MPG_OTEL_ENDPOINT")
	return endpoint, endpoint != ""
}
