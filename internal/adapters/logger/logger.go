// Package logger implements a logging adapter using log/slog.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"go.trai.ch/cellar/internal/core/ports"
	"go.trai.ch/zerr"
)

var _ ports.Logger = (*Logger)(nil)

// Logger implements ports.Logger using log/slog.
type Logger struct {
	mu     sync.RWMutex
	logger *slog.Logger
	level  *slog.LevelVar
}

// New creates a Logger writing human-readable text to stderr at the given level.
func New(level string) *Logger {
	return NewWithWriter(os.Stderr, level)
}

// NewWithWriter creates a Logger writing to w.
func NewWithWriter(w io.Writer, level string) *Logger {
	l := &Logger{level: new(slog.LevelVar)}
	l.level.Set(ParseLevel(level))
	l.logger = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: l.level}))
	return l
}

// ParseLevel maps debug, info, warn and error to slog levels. Anything else is info.
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

// SetOutput updates the logger's output destination.
func (l *Logger) SetOutput(w io.Writer) {
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: l.level})
	l.mu.Lock()
	defer l.mu.Unlock()
	l.logger = slog.New(handler)
}

// SetLevel changes the minimum level at runtime.
func (l *Logger) SetLevel(level string) {
	l.level.Set(ParseLevel(level))
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, args ...any) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	l.logger.Debug(msg, args...)
}

// Info logs an informational message.
func (l *Logger) Info(msg string, args ...any) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	l.logger.Info(msg, args...)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string, args ...any) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	l.logger.Warn(msg, args...)
}

// Error logs err together with the metadata attached along its chain.
func (l *Logger) Error(err error) {
	if err == nil {
		return
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	zerr.Log(context.Background(), l.logger, err)
}
