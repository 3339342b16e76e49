// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package logging builds the structured loggers used by the pregel CLI and
// engine.
//
// Every logger is an slog.Logger underneath. Console output goes to stderr
// (or Config.Output) as text or JSON, and when Config.LogDir is set every
// record is also appended as JSON to a per-day file so that long runs can
// be inspected after the terminal has scrolled away:
//
//	logger, err := logging.New(logging.Config{
//	    Level:   logging.LevelInfo,
//	    LogDir:  "~/.pregel/logs",
//	    Service: "pregel",
//	})
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	engine, err := pregel.New(g, cfg, program, pregel.WithLogger(logger.Slog()))
//
// The engine itself only depends on *slog.Logger, never on this package.
package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// DefaultService is the service attribute used when Config.Service is empty.
const DefaultService = "pregel"

// ErrUnknownLevel is returned by ParseLevel for unrecognised names.
var ErrUnknownLevel = errors.New("unknown log level")

// Level is the minimum severity a logger emits.
type Level int

const (
	// LevelDebug includes per-superstep detail and checkpoint writes.
	LevelDebug Level = iota

	// LevelInfo is run start, run end and throttled progress.
	LevelInfo

	// LevelWarn covers recoverable problems such as a failed checkpoint.
	LevelWarn

	// LevelError is for failed runs.
	LevelError
)

// String returns "DEBUG", "INFO", "WARN", "ERROR", or "UNKNOWN".
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a case-insensitive level name into a Level.
// "warning" is accepted as an alias of "warn".
func ParseLevel(name string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("%w: %q", ErrUnknownLevel, name)
	}
}

// toSlogLevel maps unknown levels to Info.
func (l Level) toSlogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Config controls where and how records are written.
type Config struct {
	// Level sets the minimum level for every destination.
	Level Level

	// LogDir enables file logging. Records are appended as JSON to
	// "{Service}_{YYYY-MM-DD}.log" inside the directory, which is created
	// with 0750 permissions when missing. A leading ~ is expanded.
	LogDir string

	// Service is attached to every record as the "service" attribute.
	// Default: DefaultService.
	Service string

	// JSON switches console output from text to JSON. File output is
	// always JSON.
	JSON bool

	// Quiet disables console output. With Quiet set and no LogDir the
	// logger discards everything.
	Quiet bool

	// Output replaces stderr as the console destination.
	Output io.Writer
}

// Logger wraps an slog.Logger together with the file it may own.
//
// Loggers derived with With share the parent's file; only the root logger
// should be closed.
type Logger struct {
	slog *slog.Logger
	file *os.File
	path string

	mu     *sync.Mutex
	closed *bool
}

// New builds a Logger from config.
//
// # Outputs
//
//   - console: text (or JSON) on Config.Output, default os.Stderr
//   - file: JSON, only when Config.LogDir is set
//
// # Errors
//
// Unlike a bare slog setup, a log directory that cannot be created or a
// file that cannot be opened is reported rather than silently ignored.
func New(config Config) (*Logger, error) {
	opts := &slog.HandlerOptions{Level: config.Level.toSlogLevel()}
	service := config.Service
	if service == "" {
		service = DefaultService
	}

	var handlers []slog.Handler
	if !config.Quiet {
		out := config.Output
		if out == nil {
			out = os.Stderr
		}
		if config.JSON {
			handlers = append(handlers, slog.NewJSONHandler(out, opts))
		} else {
			handlers = append(handlers, slog.NewTextHandler(out, opts))
		}
	}

	closed := false
	logger := &Logger{mu: &sync.Mutex{}, closed: &closed}

	if config.LogDir != "" {
		dir := expandPath(config.LogDir)
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("create log dir %s: %w", dir, err)
		}
		path := filepath.Join(dir, fmt.Sprintf("%s_%s.log", service, time.Now().Format("2006-01-02")))
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
		if err != nil {
			return nil, fmt.Errorf("open log file %s: %w", path, err)
		}
		logger.file = file
		logger.path = path
		handlers = append(handlers, slog.NewJSONHandler(file, opts))
	}

	var handler slog.Handler
	switch len(handlers) {
	case 0:
		handler = slog.NewTextHandler(io.Discard, opts)
	case 1:
		handler = handlers[0]
	default:
		handler = &multiHandler{handlers: handlers}
	}
	handler = handler.WithAttrs([]slog.Attr{slog.String("service", service)})

	logger.slog = slog.New(handler)
	return logger, nil
}

// Default returns an Info-level text logger on stderr.
func Default() *Logger {
	logger, _ := New(Config{Level: LevelInfo})
	return logger
}

// Discard returns a logger that drops every record. Useful in tests.
func Discard() *Logger {
	logger, _ := New(Config{Quiet: true})
	return logger
}

func (l *Logger) Debug(msg string, args ...any) { l.slog.Debug(msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.slog.Info(msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.slog.Warn(msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.slog.Error(msg, args...) }

// With returns a child logger carrying extra attributes, for example the
// run ID of a single engine invocation.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		slog:   l.slog.With(args...),
		file:   l.file,
		path:   l.path,
		mu:     l.mu,
		closed: l.closed,
	}
}

// Slog returns the underlying logger for packages that accept *slog.Logger.
func (l *Logger) Slog() *slog.Logger {
	return l.slog
}

// FilePath returns the log file in use, or "" when file logging is off.
func (l *Logger) FilePath() string {
	return l.path
}

// Close syncs and closes the log file. It is safe to call more than once.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if *l.closed || l.file == nil {
		*l.closed = true
		return nil
	}
	*l.closed = true

	var errs []error
	if err := l.file.Sync(); err != nil {
		errs = append(errs, fmt.Errorf("sync log file: %w", err))
	}
	if err := l.file.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close log file: %w", err))
	}
	return errors.Join(errs...)
}

// multiHandler fans records out to several handlers. A failing handler
// does not stop the others.
type multiHandler struct {
	handlers []slog.Handler
}

func (h *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, handler := range h.handlers {
		if !handler.Enabled(ctx, r.Level) {
			continue
		}
		if err := handler.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (h *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithAttrs(attrs)
	}
	return &multiHandler{handlers: handlers}
}

func (h *multiHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithGroup(name)
	}
	return &multiHandler{handlers: handlers}
}

// expandPath replaces a leading ~ with the user's home directory.
func expandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return path
}
