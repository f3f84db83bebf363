// Package logging wires log/slog for the service: text output on the
// console, JSON output to weekly rotating files, and package-level helpers
// that fall back to stderr before initialisation.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Options configures InitLogger
type Options struct {
	// Dir is the log directory; empty disables file output
	Dir            string
	Level          string
	RetentionWeeks int
	MaxFileSize    int64
}

type LoggingService struct {
	Logger *slog.Logger
	closer io.Closer
}

var DefaultLoggingService *LoggingService

// InitLogger initializes the global logger instance
func InitLogger(opts Options) {
	logger, closer := SetupLogger(opts)
	DefaultLoggingService = &LoggingService{Logger: logger, closer: closer}
	slog.SetDefault(logger)
}

// Close releases the log file, if any
func Close() error {
	if DefaultLoggingService == nil || DefaultLoggingService.closer == nil {
		return nil
	}
	return DefaultLoggingService.closer.Close()
}

// SetupLogger builds a logger writing text to stdout and, when opts.Dir is
// set, JSON to a WeeklyWriter in that directory
func SetupLogger(opts Options) (*slog.Logger, io.Closer) {
	level := parseLogLevel(opts.Level)
	console := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	if opts.Dir == "" {
		return slog.New(console), nil
	}

	if err := os.MkdirAll(opts.Dir, 0755); err != nil {
		logger := slog.New(console)
		logger.Error("Failed to create logs directory, logging to console only", "error", err)
		return logger, nil
	}

	writer := NewWeeklyWriter(opts.Dir, opts.RetentionWeeks, opts.MaxFileSize)
	file := slog.NewJSONHandler(writer, &slog.HandlerOptions{Level: level})
	return slog.New(&multiHandler{handlers: []slog.Handler{console, file}}), writer
}

func parseLogLevel(level string) slog.Level {
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

// multiHandler fans records out to several handlers
type multiHandler struct {
	handlers []slog.Handler
}

func (m *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, h := range m.handlers {
		if h.Enabled(ctx, r.Level) {
			if err := h.Handle(ctx, r.Clone()); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		handlers[i] = h.WithAttrs(attrs)
	}
	return &multiHandler{handlers: handlers}
}

func (m *multiHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		handlers[i] = h.WithGroup(name)
	}
	return &multiHandler{handlers: handlers}
}

// Package-level functions for direct access

func logger() *slog.Logger {
	if DefaultLoggingService == nil || DefaultLoggingService.Logger == nil {
		// Fallback to stderr if not initialized
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return DefaultLoggingService.Logger
}

func Info(msg string, args ...any) {
	logger().Info(msg, args...)
}

func Error(msg string, args ...any) {
	logger().Error(msg, args...)
}

func Warn(msg string, args ...any) {
	logger().Warn(msg, args...)
}

func Debug(msg string, args ...any) {
	logger().Debug(msg, args...)
}
