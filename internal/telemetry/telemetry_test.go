package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatrelay/internal/config"
)

// keepDefaultLogger restores the process logger replaced by InitLogger
func keepDefaultLogger(t *testing.T) {
	previous := slog.Default()
	t.Cleanup(func() { slog.SetDefault(previous) })
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel(" error "))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
}

func TestInitLogger_StdoutJSON(t *testing.T) {
	keepDefaultLogger(t)
	var buf bytes.Buffer

	logger, cleanup, err := initLogger(&config.LoggingConfig{Level: "warn"}, &buf)
	require.NoError(t, err)
	defer cleanup()

	logger.Info("dropped")
	slog.Warn("kept", slog.String("session_id", "s1"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1, "info is below the configured level")
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "kept", entry["msg"])
	assert.Equal(t, "s1", entry["session_id"])
}

func TestInitLogger_RotatingFile(t *testing.T) {
	keepDefaultLogger(t)
	path := filepath.Join(t.TempDir(), "nested", "chatrelay.log")
	cfg := config.DefaultConfig().Logging
	cfg.File = path

	logger, cleanup, err := InitLogger(cfg)
	require.NoError(t, err)
	logger.Info("hello file")
	cleanup()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello file"`)
}

func TestInitTelemetry_DisabledIsNoop(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.TelemetryConfig{ServiceName: "test", TraceFile: filepath.Join(dir, "traces.log")}

	tracer, meter, cleanup, err := InitTelemetry(context.Background(), cfg, nil)
	require.NoError(t, err)
	require.NotNil(t, tracer)
	require.NotNil(t, meter)

	_, span := tracer.Start(context.Background(), "noop")
	span.End()
	cleanup()

	_, err = os.Stat(cfg.TraceFile)
	assert.True(t, os.IsNotExist(err), "disabled telemetry writes nothing")
}

func TestInitTelemetry_ExportsToFiles(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.TelemetryConfig{
		Enabled:        true,
		ServiceName:    "chatrelay-test",
		TraceFile:      filepath.Join(dir, "traces.log"),
		MetricFile:     filepath.Join(dir, "metrics.log"),
		MetricInterval: time.Hour,
	}

	tracer, meter, cleanup, err := InitTelemetry(context.Background(), cfg, config.DefaultConfig().Logging)
	require.NoError(t, err)

	_, span := tracer.Start(context.Background(), "ai.mock.generate")
	span.End()
	counter, err := meter.Int64Counter("ai.tokens.used")
	require.NoError(t, err)
	counter.Add(context.Background(), 7)

	// Shutdown flushes the batcher and the periodic reader
	cleanup()

	traces, err := os.ReadFile(cfg.TraceFile)
	require.NoError(t, err)
	assert.Contains(t, string(traces), "ai.mock.generate")

	metrics, err := os.ReadFile(cfg.MetricFile)
	require.NoError(t, err)
	assert.Contains(t, string(metrics), "ai.tokens.used")
}
