package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"

	"chatrelay/internal/config"
)

const (
	defaultTraceFile  = "logs/chatrelay_traces.log"
	defaultMetricFile = "logs/chatrelay_metrics.log"
	shutdownTimeout   = 5 * time.Second
)

// ParseLevel maps a config level name onto slog; unknown names mean info
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// InitLogger installs a JSON slog handler as the process default. With a
// log file configured output goes to a rotating file, otherwise to stdout.
// The returned cleanup closes the file.
func InitLogger(cfg *config.LoggingConfig) (*slog.Logger, func(), error) {
	return initLogger(cfg, os.Stdout)
}

func initLogger(cfg *config.LoggingConfig, stdout io.Writer) (*slog.Logger, func(), error) {
	if cfg == nil {
		cfg = config.DefaultConfig().Logging
	}

	var (
		out     = stdout
		cleanup = func() {}
	)
	if cfg.File != "" {
		file, err := rotatingFile(cfg.File, cfg)
		if err != nil {
			return nil, nil, err
		}
		out = file
		cleanup = func() { _ = file.Close() }
	}

	logger := slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: ParseLevel(cfg.Level),
	}))
	slog.SetDefault(logger)
	return logger, cleanup, nil
}

// InitTelemetry sets up OpenTelemetry tracing and metrics.
// Traces and metrics are exported as JSON into rotating files; when telemetry
// is disabled no-op providers are returned and nothing is written.
func InitTelemetry(ctx context.Context, cfg *config.TelemetryConfig, logging *config.LoggingConfig) (trace.Tracer, metric.Meter, func(), error) {
	if cfg == nil || !cfg.Enabled {
		name := "chatrelay"
		if cfg != nil && cfg.ServiceName != "" {
			name = cfg.ServiceName
		}
		return tracenoop.NewTracerProvider().Tracer(name), metricnoop.NewMeterProvider().Meter(name), func() {}, nil
	}
	if logging == nil {
		logging = config.DefaultConfig().Logging
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			attribute.String("service.name", cfg.ServiceName),
			attribute.String("service.version", "1.0.0"),
		),
	)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create resource: %w", err)
	}

	traceFile, err := rotatingFile(orDefault(cfg.TraceFile, defaultTraceFile), logging)
	if err != nil {
		return nil, nil, nil, err
	}
	traceExporter, err := stdouttrace.New(stdouttrace.WithWriter(traceFile))
	if err != nil {
		_ = traceFile.Close()
		return nil, nil, nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	metricFile, err := rotatingFile(orDefault(cfg.MetricFile, defaultMetricFile), logging)
	if err != nil {
		_ = tp.Shutdown(ctx)
		_ = traceFile.Close()
		return nil, nil, nil, err
	}
	metricExporter, err := stdoutmetric.New(stdoutmetric.WithWriter(metricFile))
	if err != nil {
		_ = tp.Shutdown(ctx)
		_ = traceFile.Close()
		_ = metricFile.Close()
		return nil, nil, nil, fmt.Errorf("failed to create metric exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(metricExporter, sdkmetric.WithInterval(cfg.MetricInterval)),
		),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	cleanup := func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := errors.Join(
			tp.Shutdown(ctx),
			mp.Shutdown(ctx),
			traceFile.Close(),
			metricFile.Close(),
		)
		if err != nil {
			slog.Error("failed to shut down telemetry", slog.Any("error", err))
		}
	}

	return tp.Tracer(cfg.ServiceName), mp.Meter(cfg.ServiceName), cleanup, nil
}

// rotatingFile opens a lumberjack writer using the logging rotation limits
func rotatingFile(path string, cfg *config.LoggingConfig) (*lumberjack.Logger, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
	}
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}, nil
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
