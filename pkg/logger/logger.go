// Package logger configures the process-wide structured logger.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
)

// ParseLevel converts a level name into a slog.Level.
func ParseLevel(name string) (slog.Level, error) {
	switch name {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid log level %q (use debug, info, warn, or error)", name)
	}
}

// New builds a logger writing to output in the named format, either
// "text" or "json".
func New(level slog.Level, format string, output io.Writer) (*slog.Logger, error) {
	opts := &slog.HandlerOptions{Level: level}
	switch format {
	case "json":
		return slog.New(slog.NewJSONHandler(output, opts)), nil
	case "text":
		return slog.New(slog.NewTextHandler(output, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q (use text or json)", format)
	}
}

// Setup builds the logger from CLI-style string flags, installs it as the
// slog default, and returns it. An empty file means stderr; otherwise the
// returned cleanup closes the log file.
func Setup(levelName, format, file string) (*slog.Logger, func(), error) {
	level, err := ParseLevel(levelName)
	if err != nil {
		return nil, nil, err
	}

	output := io.Writer(os.Stderr)
	cleanup := func() {}
	if file != "" {
		f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		output = f
		cleanup = func() { f.Close() }
	}

	log, err := New(level, format, output)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	slog.SetDefault(log)
	return log, cleanup, nil
}
