// Package logger builds the process-wide slog logger.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"loyalgate/internal/platform/config"
)

// New returns a JSON logger in production and a text logger elsewhere, writing to stdout.
func New(cfg config.LogConfig, server config.ServerConfig) *slog.Logger {
	return NewWithWriter(os.Stdout, cfg, server)
}

func NewWithWriter(w io.Writer, cfg config.LogConfig, server config.ServerConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}

	format := strings.ToLower(cfg.Format)
	if format == "" && server.IsProduction() {
		format = "json"
	}
	var h slog.Handler
	if format == "json" || server.IsProduction() {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h).With("service", "loyalgate", "environment", server.Environment)
}

// ParseLevel maps debug/info/warn/error to slog levels, defaulting to info.
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

// Discard returns a logger that drops everything. Services fall back to it when no logger is supplied.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
