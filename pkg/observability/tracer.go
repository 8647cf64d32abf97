// Package observability sets up optional OTLP tracing. When no exporter
// endpoint is configured every span is a no-op.
package observability

import (
	"context"
	"fmt"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const (
	AttrAgentName = "agent.name"
	AttrToolName  = "tool.name"
	AttrLLMModel  = "llm.model"

	SpanTurn          = "chatbot.turn"
	SpanAgentCall     = "agent.call"
	SpanLLMRequest    = "agent.llm_request"
	SpanToolExecution = "agent.tool_execution"

	DefaultServiceName = "ensemble"
)

// endpointEnvVar follows the OTel SDK convention; tracing is enabled only
// when it is set.
const endpointEnvVar = "OTEL_EXPORTER_OTLP_ENDPOINT"

// Setup installs a global OTLP gRPC tracer provider when an exporter
// endpoint is configured, and a no-op provider otherwise. The returned
// shutdown function flushes pending spans.
func Setup(ctx context.Context, serviceName string) (func(context.Context) error, error) {
	endpoint := os.Getenv(endpointEnvVar)
	if endpoint == "" {
		otel.SetTracerProvider(noop.NewTracerProvider())
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	if serviceName == "" {
		serviceName = DefaultServiceName
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}

// GetTracer returns a tracer from the global provider.
func GetTracer(name string) trace.Tracer {
	return otel.Tracer(name)
}
