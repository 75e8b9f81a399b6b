// Package logging builds structured loggers.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/oklog/ulid/v2"

	"github.com/emersion/go-mailwire/config"
)

// New creates a logger writing to w.
func New(cfg config.LoggingConfig, w io.Writer) (*slog.Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "json":
		h = slog.NewJSONHandler(w, opts)
	case "", "text":
		h = slog.NewTextHandler(w, opts)
	default:
		return nil, fmt.Errorf("logging: unknown format %q", cfg.Format)
	}
	return slog.New(h), nil
}

// ParseLevel parses a level name. An empty name means info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("logging: unknown level %q", s)
	}
}

// ForConn returns a logger annotated with a new connection ID and the
// protocol name. A nil logger means slog.Default.
func ForConn(logger *slog.Logger, protocol string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With("conn_id", ulid.Make().String(), "protocol", protocol)
}
