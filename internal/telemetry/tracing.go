// Package telemetry sets up tracing and the Prometheus collectors of the order portal.
package telemetry

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/cg-order-portal/internal/domain"
)

// TracerName names the tracer of the submission pipeline.
const TracerName = "github.com/cg-order-portal"

// InitTracerProvider installs a global tracer provider exporting over OTLP
// gRPC. When tracing is disabled a no-op provider is installed. The returned
// func flushes and stops the exporter.
func InitTracerProvider(ctx context.Context, config domain.TelemetryConfig, logger *logrus.Logger) (func(context.Context) error, error) {
	if !config.Enabled {
		otel.SetTracerProvider(noop.NewTracerProvider())
		return func(context.Context) error { return nil }, nil
	}

	serviceName := config.ServiceName
	if serviceName == "" {
		serviceName = "cgadmin"
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.DeploymentEnvironmentNameKey.String(config.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("creating trace resource: %w", err)
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithInsecure(),
		otlptracegrpc.WithEndpoint(config.Endpoint),
	)
	if err != nil {
		return nil, fmt.Errorf("creating trace exporter: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	logger.WithFields(logrus.Fields{
		"endpoint": config.Endpoint,
		"service":  serviceName,
	}).Info("Tracing initialized")

	return provider.Shutdown, nil
}

// Tracer returns the pipeline tracer of the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}
