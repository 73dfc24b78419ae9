package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func telemetryResource() *resource.Resource {
	return resource.NewSchemaless(
		attribute.String("service.name", "foundry"),
		attribute.String("service.version", appVersion),
	)
}

// openTelemetryFile returns the writer for path ("-" is stderr) and the
// file to close afterwards, if any.
func openTelemetryFile(cmd *cobra.Command, path string) (io.Writer, *os.File, error) {
	if path == "-" {
		return stderr(cmd), nil, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return f, f, nil
}

// shutdownFunc shuts a provider down with a deadline and then closes f.
func shutdownFunc(shutdown func(context.Context) error, f *os.File) func() error {
	return func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := shutdown(ctx)
		if f != nil {
			if cerr := f.Close(); err == nil {
				err = cerr
			}
		}
		return err
	}
}

// setupTracing installs a tracer provider exporting spans as JSON to path
// ("-" for stderr). With an empty path it does nothing. The returned
// function flushes and shuts the provider down.
func setupTracing(cmd *cobra.Command, path string) (func() error, error) {
	if path == "" {
		return func() error { return nil }, nil
	}
	w, f, err := openTelemetryFile(cmd, path)
	if err != nil {
		return nil, fmt.Errorf("creating trace file: %w", err)
	}
	exp, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
	if err != nil {
		if f != nil {
			f.Close() //nolint:errcheck
		}
		return nil, fmt.Errorf("creating trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(telemetryResource()),
	)
	otel.SetTracerProvider(tp)
	return shutdownFunc(tp.Shutdown, f), nil
}

// setupMetrics installs a meter provider that writes the pipeline's stage
// and run metrics as JSON to path ("-" for stderr) when it shuts down.
// With an empty path it does nothing.
func setupMetrics(cmd *cobra.Command, path string) (func() error, error) {
	if path == "" {
		return func() error { return nil }, nil
	}
	w, f, err := openTelemetryFile(cmd, path)
	if err != nil {
		return nil, fmt.Errorf("creating metrics file: %w", err)
	}
	exp, err := stdoutmetric.New(stdoutmetric.WithWriter(w), stdoutmetric.WithPrettyPrint())
	if err != nil {
		if f != nil {
			f.Close() //nolint:errcheck
		}
		return nil, fmt.Errorf("creating metrics exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp)),
		sdkmetric.WithResource(telemetryResource()),
	)
	otel.SetMeterProvider(mp)
	return shutdownFunc(mp.Shutdown, f), nil
}
