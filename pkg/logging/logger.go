// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package logging builds the developer log for ballast.
//
// Records go through log/slog to the console and, when a log directory is
// configured, to a dated JSON file:
//
//	logger := logging.New(logging.Config{
//	    Level:   logging.LevelInfo,
//	    LogDir:  "~/.ballast/logs",
//	    Service: "ballast",
//	})
//	defer logger.Close()
//
//	logger.Info("manifest uploaded", "session_id", id, "containers", n)
//
// Records logged with a context that carries an OpenTelemetry span
// get trace_id and span_id attributes, so a slow search in the log can be
// found in the trace backend.
//
// Services take a plain *slog.Logger; use Slog() to hand one over.
//
// This is the developer log. The operator-facing audit trail required by
// the port lives in services/balance/journal and is a separate file.
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

	"go.opentelemetry.io/otel/trace"
)

// Level is a log severity, ordered Debug < Info < Warn < Error. The zero
// value is LevelInfo.
type Level int

const (
	// LevelDebug is for search internals and per-request detail.
	LevelDebug Level = -4
	// LevelInfo is for uploads, plans and steps.
	LevelInfo Level = 0
	// LevelWarn is for recoverable problems such as a failed archive write.
	LevelWarn Level = 4
	// LevelError is for failed operations.
	LevelError Level = 8
)

var levelNames = map[Level]string{
	LevelDebug: "DEBUG",
	LevelInfo:  "INFO",
	LevelWarn:  "WARN",
	LevelError: "ERROR",
}

func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return "UNKNOWN"
}

// ParseLevel reads a level name from config or a flag. Case and
// surrounding space are ignored, "warning" is an alias for "warn" and the
// empty string means info.
func ParseLevel(s string) (Level, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	switch name {
	case "":
		return LevelInfo, nil
	case "warning":
		return LevelWarn, nil
	}
	for level, n := range levelNames {
		if strings.ToLower(n) == name {
			return level, nil
		}
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", s)
}

func (l Level) toSlogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Config configures a Logger. The zero value writes Info and above to
// stderr as text.
type Config struct {
	Level Level

	// LogDir turns on a JSON log file "{Service}_{YYYY-MM-DD}.log" in this
	// directory. A leading ~ is expanded.
	LogDir string

	// Service is attached to every record.
	Service string

	// JSON makes the console output JSON. The file is always JSON.
	JSON bool

	// Quiet turns off console output. Used while a terminal UI owns the
	// screen. With no LogDir the console is kept anyway.
	Quiet bool

	// Output replaces os.Stderr as the console.
	Output io.Writer
}

// Logger is a slog.Logger plus the log file it may own. It is safe for
// concurrent use.
type Logger struct {
	slog *slog.Logger
	sink *fileSink
}

// New creates a Logger. If the log file cannot be opened the logger keeps
// the console and logs a warning saying so.
func New(cfg Config) *Logger {
	opts := &slog.HandlerOptions{Level: cfg.Level.toSlogLevel()}
	console := cfg.Output
	if console == nil {
		console = os.Stderr
	}

	var (
		out     fanout
		sink    *fileSink
		fileErr error
	)
	if cfg.LogDir != "" {
		sink, fileErr = openFileSink(cfg.LogDir, cfg.Service)
		if fileErr == nil {
			out = append(out, slog.NewJSONHandler(sink.file, opts))
		}
	}
	if !cfg.Quiet || len(out) == 0 {
		if cfg.JSON {
			out = append(out, slog.NewJSONHandler(console, opts))
		} else {
			out = append(out, slog.NewTextHandler(console, opts))
		}
	}

	var handler slog.Handler = out
	if len(out) == 1 {
		handler = out[0]
	}
	handler = traceHandler{next: handler}
	if cfg.Service != "" {
		handler = handler.WithAttrs([]slog.Attr{slog.String("service", cfg.Service)})
	}

	l := &Logger{slog: slog.New(handler), sink: sink}
	if fileErr != nil {
		l.Warn("file logging disabled", "log_dir", cfg.LogDir, "error", fileErr)
	}
	return l
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	return &Logger{slog: slog.New(slog.DiscardHandler)}
}

func (l *Logger) Debug(msg string, args ...any) { l.slog.Debug(msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.slog.Info(msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.slog.Warn(msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.slog.Error(msg, args...) }

// With returns a child carrying extra attributes. Children share the
// parent's file; close only the parent.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{slog: l.slog.With(args...), sink: l.sink}
}

// Slog returns the underlying slog.Logger.
func (l *Logger) Slog() *slog.Logger {
	return l.slog
}

// Path is the log file, or "" without one.
func (l *Logger) Path() string {
	if l.sink == nil {
		return ""
	}
	return l.sink.file.Name()
}

// Close syncs and closes the log file. Calling it again is a no-op.
func (l *Logger) Close() error {
	if l.sink == nil {
		return nil
	}
	return l.sink.close()
}

type fileSink struct {
	file *os.File
	once sync.Once
	err  error
}

func openFileSink(dir, service string) (*fileSink, error) {
	dir = expandPath(dir)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	if service == "" {
		service = "ballast"
	}
	name := service + "_" + time.Now().Format("2006-01-02") + ".log"
	file, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return &fileSink{file: file}, nil
}

func (s *fileSink) close() error {
	s.once.Do(func() {
		s.err = errors.Join(s.file.Sync(), s.file.Close())
	})
	return s.err
}

// fanout sends each record to every handler that accepts its level.
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f {
		if h.Enabled(ctx, r.Level) {
			errs = append(errs, h.Handle(ctx, r.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	return f.each(func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) })
}

func (f fanout) WithGroup(name string) slog.Handler {
	return f.each(func(h slog.Handler) slog.Handler { return h.WithGroup(name) })
}

func (f fanout) each(fn func(slog.Handler) slog.Handler) fanout {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = fn(h)
	}
	return out
}

// traceHandler adds the active span's IDs to records logged with a context.
type traceHandler struct {
	next slog.Handler
}

func (h traceHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h traceHandler) Handle(ctx context.Context, r slog.Record) error {
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		r.AddAttrs(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return h.next.Handle(ctx, r)
}

func (h traceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return traceHandler{next: h.next.WithAttrs(attrs)}
}

func (h traceHandler) WithGroup(name string) slog.Handler {
	return traceHandler{next: h.next.WithGroup(name)}
}

func expandPath(path string) string {
	if rest, ok := strings.CutPrefix(path, "~"); ok {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, rest)
		}
	}
	return path
}
