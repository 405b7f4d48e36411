// Package otel initializes OpenTelemetry tracing for redix binaries.
package otel

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Config describes the tracing setup.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	// SampleRate in [0, 1]. Zero disables sampling entirely.
	SampleRate float64
}

var (
	mu       sync.Mutex
	provider *sdktrace.TracerProvider
)

// Initialize installs a global tracer provider writing spans to stdout.
// Calling it twice replaces the previous provider.
func Initialize(ctx context.Context, cfg Config) error {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return fmt.Errorf("otel: creating exporter: %w", err)
	}

	// Schemaless so merging with the SDK default resource cannot hit a
	// schema URL conflict across otel releases.
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
		attribute.String("environment", cfg.Environment),
	))
	if err != nil {
		return fmt.Errorf("otel: building resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(cfg.SampleRate)),
	)

	mu.Lock()
	old := provider
	provider = tp
	mu.Unlock()

	otel.SetTracerProvider(tp)
	if old != nil {
		_ = old.Shutdown(ctx)
	}
	return nil
}

// Shutdown flushes and stops the installed provider.
func Shutdown(ctx context.Context) error {
	mu.Lock()
	tp := provider
	provider = nil
	mu.Unlock()
	if tp == nil {
		return nil
	}
	return tp.Shutdown(ctx)
}

// Tracer returns a named tracer from the global provider.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}
