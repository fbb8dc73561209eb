package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chatrelay/internal/app"
	"chatrelay/internal/config"
	"chatrelay/internal/telemetry"
)

// shutdownTimeout bounds graceful shutdown after a signal
const shutdownTimeout = 30 * time.Second

// FUNCTIONAL DISCOVERY: Graceful shutdown on SIGINT/SIGTERM ensures proper resource cleanup
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("chatrelay exited", slog.Any("error", err))
		os.Exit(1)
	}
}

// ARCHITECTURAL DISCOVERY: Separate run function enables testing and error handling
// run blocks until ctx is cancelled, then shuts the application down
func run(ctx context.Context) error {
	// Precedence: file > env > defaults
	cfg, err := config.LoadConfigWithPrecedence(os.Getenv("CHATRELAY_CONFIG_FILE"))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, closeLog, err := telemetry.InitLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer closeLog()

	tracer, meter, closeTelemetry, err := telemetry.InitTelemetry(ctx, cfg.Telemetry, cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer closeTelemetry()

	application, err := app.NewApplication(ctx, cfg, app.Observability{Logger: logger, Tracer: tracer, Meter: meter})
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	if err := application.Start(ctx); err != nil {
		_ = application.Stop(context.Background())
		return fmt.Errorf("application error: %w", err)
	}

	<-ctx.Done()
	logger.Info("shutdown requested", slog.Any("reason", context.Cause(ctx)))

	// TECHNICAL DISCOVERY: Timeout context prevents hanging shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := application.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	return nil
}
