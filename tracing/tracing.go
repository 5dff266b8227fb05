// Package tracing wires OpenTelemetry spans around runs, dispatch steps,
// agent runs and tool calls. Without Init the global no-op provider is used.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/hupe1980/crewmesh"

// Config configures the OTLP/HTTP exporter.
type Config struct {
	ServiceName    string
	ExportEndpoint string
	Insecure       bool
}

// Init installs a tracer provider exporting to cfg.ExportEndpoint and returns
// it so the caller can Shutdown on exit.
func Init(ctx context.Context, cfg Config) (*sdktrace.TracerProvider, error) {
	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(cfg.ExportEndpoint),
	}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}

	exporter, err := otlptrace.New(ctx, otlptracehttp.NewClient(opts...))
	if err != nil {
		return nil, err
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "crewmesh"
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(attribute.String("service.name", serviceName)),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp, nil
}

// Tracer returns the crewmesh tracer from the global provider.
func Tracer() trace.Tracer { return otel.Tracer(instrumentationName) }

// StartRunSpan starts the root span of a supervisor run.
func StartRunSpan(ctx context.Context, runID, mode string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "supervisor.run",
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.String("run.mode", mode),
		),
	)
}

// StartDispatchSpan starts a span for one dispatch step.
func StartDispatchSpan(ctx context.Context, step int, kind, target string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "supervisor.dispatch",
		trace.WithAttributes(
			attribute.Int("dispatch.step", step),
			attribute.String("dispatch.kind", kind),
			attribute.String("dispatch.target", target),
		),
	)
}

// StartAgentSpan starts a span for an agent's reasoning loop.
func StartAgentSpan(ctx context.Context, agent string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "agent.run",
		trace.WithAttributes(attribute.String("agent.name", agent)),
	)
}

// StartToolSpan starts a span for one tool call.
func StartToolSpan(ctx context.Context, toolName, callID string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "tool.call",
		trace.WithAttributes(
			attribute.String("tool.name", toolName),
			attribute.String("tool.call_id", callID),
		),
	)
}

// End records err on span (if any) and ends it.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
