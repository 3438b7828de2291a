// Package logutil provides logger construction and nil-safe helpers.
package logutil

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// LevelTrace sits below debug; slog has no trace level of its own.
const LevelTrace = slog.LevelDebug - 4

var noop = slog.New(slog.DiscardHandler)

// Noop returns a logger that discards all output.
func Noop() *slog.Logger { return noop }

// NoopIfNil returns l when non-nil, otherwise a discard logger.
// Intended as the first line in constructors that accept *slog.Logger.
func NoopIfNil(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return noop
}

// ParseLevel maps a config level name to a slog level.
// Accepted: trace, debug, info, warn, error.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return LevelTrace, nil
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level %q: must be one of trace, debug, info, warn, error", s)
	}
}

// New returns a JSON logger writing to w at the named level.
// Unknown levels fall back to info.
func New(w io.Writer, level string) *slog.Logger {
	lvl, err := ParseLevel(level)
	if err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
}

// Secret renders a sensitive value for logs. Unless allow is set, only its
// presence is reported.
func Secret(v string, allow bool) string {
	if allow {
		return v
	}
	if v == "" {
		return ""
	}
	return "[REDACTED]"
}
