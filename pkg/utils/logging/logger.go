package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"

	"github.com/m-mizutani/clog"
	"github.com/m-mizutani/goerr/v2"
)

const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

var levels = map[string]slog.Level{
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

var fallback atomic.Pointer[slog.Logger]

func init() {
	fallback.Store(newConsole(os.Stderr, slog.LevelInfo))
}

// ParseLevel maps a case-insensitive level name to slog.Level
func ParseLevel(name string) (slog.Level, error) {
	lv, ok := levels[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return slog.LevelInfo, goerr.New("unknown log level", goerr.V("level", name))
	}
	return lv, nil
}

// New builds a logger writing to w. Format is "console" for colored terminal output or
// "json" for log collectors. Unknown level or format names are rejected.
func New(level, format string, w io.Writer) (*slog.Logger, error) {
	lv, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	if w == nil {
		w = os.Stderr
	}

	switch strings.ToLower(format) {
	case FormatConsole, "":
		return newConsole(w, lv), nil
	case FormatJSON:
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lv})), nil
	default:
		return nil, goerr.New("unknown log format", goerr.V("format", format))
	}
}

func newConsole(w io.Writer, lv slog.Level) *slog.Logger {
	return slog.New(clog.New(
		clog.WithWriter(w),
		clog.WithLevel(lv),
		clog.WithTimeFmt("15:04:05"),
		clog.WithSource(false),
		clog.WithAttrHook(clog.GoerrHook),
	))
}

// Default returns the logger used when a context carries none
func Default() *slog.Logger { return fallback.Load() }

func SetDefault(logger *slog.Logger) {
	if logger != nil {
		fallback.Store(logger)
	}
}

type ctxKey struct{}

// With returns a copy of ctx carrying logger
func With(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// From returns the logger stored in ctx, or Default
func From(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok && logger != nil {
		return logger
	}
	return Default()
}

// WithAttrs attaches a child logger carrying args to ctx
func WithAttrs(ctx context.Context, args ...any) context.Context {
	return With(ctx, From(ctx).With(args...))
}
