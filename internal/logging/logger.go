// Package logging builds the process slog logger from the [log] config section.
package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"zac/internal/config"

	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	ansiReset  = "\x1b[0m"
	ansiBlue   = "\x1b[34m"
	ansiYellow = "\x1b[33m"
	ansiRed    = "\x1b[31m"
	ansiGray   = "\x1b[90m"

	defaultMaxSizeMB = 10
)

var levelTones = []struct {
	marker string
	tone   string
}{
	{"level=ERROR", ansiRed},
	{"level=WARN", ansiYellow},
	{"level=INFO", ansiBlue},
	{"level=DEBUG", ansiGray},
}

// New builds a logger for configured sinks and returns a cleanup function.
// Params: cfg contains console/file sink settings.
// Returns: slog logger, cleanup callback, and setup error.
func New(cfg config.LogConfig) (*slog.Logger, func(), error) {
	return newWithConsole(cfg, os.Stdout)
}

// newWithConsole is New with an injectable terminal writer.
func newWithConsole(cfg config.LogConfig, console io.Writer) (*slog.Logger, func(), error) {
	var (
		handlers []slog.Handler
		closers  []io.Closer
	)
	if cfg.Console.Enabled {
		// Console records carry no timestamp.
		handler, err := sinkHandler(cfg.Console, console, true)
		if err != nil {
			return nil, nil, fmt.Errorf("console sink: %w", err)
		}
		handlers = append(handlers, handler)
	}
	if cfg.File.Enabled {
		if strings.TrimSpace(cfg.File.Path) == "" {
			return nil, nil, errors.New("file sink: path is empty")
		}
		rotator := &lumberjack.Logger{
			Filename:   cfg.File.Path,
			MaxSize:    max(cfg.File.MaxSizeMB, 0),
			MaxBackups: cfg.File.MaxBackups,
		}
		if rotator.MaxSize == 0 {
			rotator.MaxSize = defaultMaxSizeMB
		}
		handler, err := sinkHandler(cfg.File, rotator, false)
		if err != nil {
			return nil, nil, fmt.Errorf("file sink: %w", err)
		}
		handlers = append(handlers, handler)
		closers = append(closers, rotator)
	}

	switch len(handlers) {
	case 0:
		return nil, nil, errors.New("no log sinks enabled")
	case 1:
		return slog.New(handlers[0]), closeAll(closers), nil
	default:
		return slog.New(fanout(handlers)), closeAll(closers), nil
	}
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// sinkHandler builds one handler for the sink format.
// Params: sink level/format, destination, and whether this is the terminal.
// Returns: slog handler or level/format error.
func sinkHandler(sink config.LogSinkConfig, dst io.Writer, terminal bool) (slog.Handler, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(sink.Level))); err != nil {
		return nil, fmt.Errorf("level %q: %w", sink.Level, err)
	}
	opts := &slog.HandlerOptions{Level: level}
	if terminal {
		opts.ReplaceAttr = dropTime
	}

	switch sink.Format {
	case "line":
		if terminal {
			dst = colorWriter{dst: dst}
		}
		return slog.NewTextHandler(dst, opts), nil
	case "json":
		return slog.NewJSONHandler(dst, opts), nil
	default:
		return nil, fmt.Errorf("unsupported format %q", sink.Format)
	}
}

func dropTime(groups []string, attr slog.Attr) slog.Attr {
	if len(groups) == 0 && attr.Key == slog.TimeKey {
		return slog.Attr{}
	}
	return attr
}

func closeAll(closers []io.Closer) func() {
	return func() {
		for _, closer := range closers {
			_ = closer.Close()
		}
	}
}

// fanout sends every record to each handler that accepts its level.
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range f {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle writes to all sinks even when one fails.
func (f fanout) Handle(ctx context.Context, record slog.Record) error {
	var errs []error
	for _, handler := range f {
		if handler.Enabled(ctx, record.Level) {
			errs = append(errs, handler.Handle(ctx, record.Clone()))
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

func (f fanout) each(derive func(slog.Handler) slog.Handler) fanout {
	next := make(fanout, len(f))
	for idx, handler := range f {
		next[idx] = derive(handler)
	}
	return next
}

// colorWriter wraps each rendered text line in the color of its level.
type colorWriter struct {
	dst io.Writer
}

func (w colorWriter) Write(payload []byte) (int, error) {
	line := string(payload)
	for _, lt := range levelTones {
		if !strings.Contains(line, lt.marker) {
			continue
		}
		if _, err := io.WriteString(w.dst, lt.tone+strings.TrimSuffix(line, "\n")+ansiReset+"\n"); err != nil {
			return 0, err
		}
		return len(payload), nil
	}
	return w.dst.Write(payload)
}
