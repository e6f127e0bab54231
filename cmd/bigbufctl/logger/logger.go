package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// L is the global logger instance. It discards all output until Init is
// called.
var L *slog.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))

// Options configures the logger initialization.
type Options struct {
	Level  string    // debug, info, warn, error. Default: warn
	Format string    // text, json or console. Default: text
	File   string    // Append to this file instead of Output
	Output io.Writer // Default: os.Stderr
	Color  bool      // Colorize console output
}

// Init configures L. The returned close function releases the log file,
// if one was opened.
func Init(opts Options) (func() error, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	closer := func() error { return nil }
	if opts.File != "" {
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, err
		}
		out, closer = f, f.Close
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(opts.Format) {
	case "", "text":
		L = slog.New(slog.NewTextHandler(out, handlerOpts))
	case "json":
		L = slog.New(slog.NewJSONHandler(out, handlerOpts))
	case "console":
		L = slog.New(slog.NewJSONHandler(consoleWriter(out, opts.Color), handlerOpts))
	default:
		_ = closer()
		return nil, fmt.Errorf("unknown log format %q", opts.Format)
	}
	return closer, nil
}

// consoleWriter renders JSON records as aligned, human readable lines.
func consoleWriter(out io.Writer, color bool) io.Writer {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	parts := []string{slog.TimeKey, slog.LevelKey, slog.MessageKey}
	return zerolog.ConsoleWriter{
		Out:           out,
		NoColor:       !color,
		TimeFormat:    "15:04:05.000",
		PartsOrder:    parts,
		FieldsExclude: parts,
	}
}

// ParseLevel converts a level name. An empty name is warn.
func ParseLevel(s string) (slog.Level, error) {
	if s == "" {
		return slog.LevelWarn, nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("unknown log level %q", s)
	}
	return level, nil
}

// Debug logs a debug message with optional key-value pairs.
func Debug(msg string, args ...any) { L.Debug(msg, args...) }

// Info logs an info message with optional key-value pairs.
func Info(msg string, args ...any) { L.Info(msg, args...) }

// Warn logs a warning message with optional key-value pairs.
func Warn(msg string, args ...any) { L.Warn(msg, args...) }

// Error logs an error message with optional key-value pairs.
func Error(msg string, args ...any) { L.Error(msg, args...) }
