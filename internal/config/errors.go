package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

var (
	ErrMissingSection     = errors.New("configuration section is missing")
	ErrInvalidConfig      = errors.New("invalid configuration")
	ErrInvalidEnvironment = errors.New("invalid environment configuration")
	ErrInvalidLogLevel    = errors.New("invalid log level")
)

// ParseLevel maps a config level name onto slog
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("%w: %q", ErrInvalidLogLevel, level)
	}
}
