package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// New builds the process logger from the configured level and format and
// installs it as the slog default.
func New(level, format string, verbose bool) *slog.Logger {
	return NewWithWriter(os.Stderr, level, format, verbose)
}

func NewWithWriter(w io.Writer, level, format string, verbose bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	if verbose {
		opts.Level = slog.LevelDebug
	}

	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	l := slog.New(handler)
	slog.SetDefault(l)
	return l
}

// ParseLevel maps a config string to a slog level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

// Discard returns a logger for tests and dry runs.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
