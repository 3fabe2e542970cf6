package tracing

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Options configures OTLP span export.
type Options struct {
	Enabled     bool
	Endpoint    string
	Protocol    string // "grpc" (default) or "http"
	Insecure    bool
	ServiceName string
}

// Setup registers a batching OTLP tracer provider as the global one and
// returns its shutdown. When export is disabled the global no-op provider
// stays in place and the returned shutdown does nothing.
func Setup(ctx context.Context, opts Options) (func(context.Context) error, error) {
	if !opts.Enabled || opts.Endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	var exporter *otlptrace.Exporter
	var err error
	switch opts.Protocol {
	case "", "grpc":
		gopts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(opts.Endpoint)}
		if opts.Insecure {
			gopts = append(gopts, otlptracegrpc.WithInsecure())
		}
		exporter, err = otlptracegrpc.New(ctx, gopts...)
	case "http":
		hopts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(opts.Endpoint)}
		if opts.Insecure {
			hopts = append(hopts, otlptracehttp.WithInsecure())
		}
		exporter, err = otlptracehttp.New(ctx, hopts...)
	default:
		return nil, fmt.Errorf("unknown tracing protocol %q", opts.Protocol)
	}
	if err != nil {
		return nil, fmt.Errorf("create otlp exporter: %w", err)
	}

	name := opts.ServiceName
	if name == "" {
		name = "estudai"
	}
	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(attribute.String("service.name", name)),
	)
	if err != nil {
		return nil, fmt.Errorf("build otel resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)

	slog.Info("otlp tracing enabled",
		"endpoint", opts.Endpoint,
		"protocol", protocolName(opts.Protocol),
		"service", name)
	return provider.Shutdown, nil
}

func protocolName(p string) string {
	if p == "" {
		return "grpc"
	}
	return p
}
