// internal/app/system/tracing/tracing.go
package tracing

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Exporter names accepted by Setup.
const (
	ExporterOff    = "off"
	ExporterStdout = "stdout"
)

// Config captures the tracing setup parameters.
type Config struct {
	ServiceName string
	Exporter    string    // "off" or "stdout"
	Writer      io.Writer // stdout exporter destination; nil means os.Stdout
}

// ValidExporter reports whether name is a supported exporter.
func ValidExporter(name string) bool {
	return name == "" || name == ExporterOff || name == ExporterStdout
}

// Setup installs the global TracerProvider. With the "off" exporter it does
// nothing and returns a nil provider, leaving spans as no-ops.
func Setup(ctx context.Context, cfg Config) (*sdktrace.TracerProvider, error) {
	switch cfg.Exporter {
	case "", ExporterOff:
		return nil, nil
	case ExporterStdout:
	default:
		return nil, fmt.Errorf("unknown trace exporter %q", cfg.Exporter)
	}

	w := cfg.Writer
	if w == nil {
		w = os.Stdout
	}
	exp, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, fmt.Errorf("stdout trace exporter: %w", err)
	}

	if cfg.ServiceName == "" {
		cfg.ServiceName = "unknown-service"
	}
	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(attribute.String("service.name", cfg.ServiceName)),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp, nil
}

// Shutdown flushes and stops tp. A nil provider is a no-op.
func Shutdown(ctx context.Context, tp *sdktrace.TracerProvider) error {
	if tp == nil {
		return nil
	}
	return tp.Shutdown(ctx)
}
