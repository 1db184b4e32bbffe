// Copyright (C) 2026 Aegis Contributors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package logging provides structured, component-scoped logging for the
// agent. Components obtain a logger via WithComponent and log key/value
// pairs; output goes to stderr and, when configured, to a remote syslog
// collector.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Logger wraps slog with the key/value convenience API used across the
// agent.
type Logger struct {
	s *slog.Logger
}

var (
	mu    sync.RWMutex
	level = new(slog.LevelVar)
	root  = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
)

// Init reconfigures the root logger. Level is one of debug, info, warn,
// error; extra writers (e.g. a syslog writer) receive a copy of every
// line.
func Init(levelName string, extra ...io.Writer) {
	mu.Lock()
	defer mu.Unlock()

	level.Set(parseLevel(levelName))

	out := io.Writer(os.Stderr)
	if len(extra) > 0 {
		out = io.MultiWriter(append([]io.Writer{os.Stderr}, extra...)...)
	}
	root = slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
}

func parseLevel(name string) slog.Level {
	switch strings.ToLower(name) {
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

// WithComponent returns a logger tagged with the given component name.
func WithComponent(name string) *Logger {
	mu.RLock()
	defer mu.RUnlock()
	return &Logger{s: root.With("component", name)}
}

// With returns a logger with additional persistent key/value context.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{s: l.s.With(args...)}
}

// Debug logs at debug level.
func (l *Logger) Debug(msg string, args ...any) { l.s.Debug(msg, args...) }

// Info logs at info level.
func (l *Logger) Info(msg string, args ...any) { l.s.Info(msg, args...) }

// Warn logs at warn level.
func (l *Logger) Warn(msg string, args ...any) { l.s.Warn(msg, args...) }

// Error logs at error level.
func (l *Logger) Error(msg string, args ...any) { l.s.Error(msg, args...) }
