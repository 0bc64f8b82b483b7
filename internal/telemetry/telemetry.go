// Package telemetry wires structured logging and OpenTelemetry for the
// client. Logs, traces, and metrics all land in rotating files under
// ./logs so a long-running chat never fills the disk.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

const (
	serviceName    = "campuschat"
	serviceVersion = "1.0.0"
	logDir         = "logs"
)

// Providers bundles the initialized observability handles.
type Providers struct {
	Logger *slog.Logger
	Tracer trace.Tracer
	Meter  metric.Meter

	shutdown []func()
}

// Shutdown flushes the providers and then closes their files. Safe on
// a zero value.
func (p *Providers) Shutdown() {
	for _, fn := range p.shutdown {
		fn()
	}
}

// rotatingFile builds a size-capped log writer under the logs directory.
func rotatingFile(name string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   filepath.Join(logDir, name),
		MaxSize:    10, // MB
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
	}
}

// Init sets up slog, tracing, and metrics. The returned providers must
// be shut down on exit.
func Init(ctx context.Context, debug bool) (*Providers, error) {
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create logs directory: %w", err)
	}

	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}

	logFile := rotatingFile("campuschat.log")
	logger := slog.New(slog.NewJSONHandler(logFile, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	traceFile := rotatingFile("campuschat_traces.log")
	traceExporter, err := stdouttrace.New(
		stdouttrace.WithWriter(traceFile),
		stdouttrace.WithPrettyPrint(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	metricsFile := rotatingFile("campuschat_metrics.log")
	metricExporter, err := stdoutmetric.New(
		stdoutmetric.WithWriter(metricsFile),
		stdoutmetric.WithPrettyPrint(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create metric exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(
				metricExporter,
				sdkmetric.WithInterval(10*time.Second),
			),
		),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	p := &Providers{
		Logger: logger,
		Tracer: tp.Tracer(serviceName),
		Meter:  mp.Meter(serviceName),
	}
	p.shutdown = append(p.shutdown,
		func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(ctx); err != nil {
				logger.Error("failed to shutdown tracer provider", "error", err)
			}
			if err := mp.Shutdown(ctx); err != nil {
				logger.Error("failed to shutdown meter provider", "error", err)
			}
		},
		func() {
			if err := traceFile.Close(); err != nil {
				logger.Error("failed to close trace file", "error", err)
			}
			if err := metricsFile.Close(); err != nil {
				logger.Error("failed to close metrics file", "error", err)
			}
			if err := logFile.Close(); err != nil {
				slog.New(slog.NewTextHandler(os.Stderr, nil)).Error("failed to close log file", "error", err)
			}
		},
	)
	return p, nil
}
