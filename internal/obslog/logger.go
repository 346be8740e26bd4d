// Package obslog provides package-level structured logging used by the
// CLI and both orchestrators. It is a trimmed version of dittofs's
// internal/logger: a log/slog wrapper with a level and text/json format
// switch, but without that package's OpenTelemetry trace-id injection,
// since this tool has no distributed call chain to annotate.
package obslog

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
)

// Level mirrors slog.Level with string parsing convenient for config.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) slog() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ParseLevel parses a case-insensitive level name, defaulting to Info.
func ParseLevel(s string) Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return LevelDebug
	case "WARN", "WARNING":
		return LevelWarn
	case "ERROR":
		return LevelError
	default:
		return LevelInfo
	}
}

// Config configures the package-level logger.
type Config struct {
	Level  string // debug, info, warn, error
	Format string // text, json
	Output io.Writer
}

var (
	mu     sync.RWMutex
	logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	level  atomic.Int32
)

// Init (re)configures the package-level logger. Safe to call before any
// other package in the process has logged anything; later calls replace
// the handler atomically.
func Init(cfg Config) {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	lvl := ParseLevel(cfg.Level)
	level.Store(int32(lvl))

	levelVar := new(slog.LevelVar)
	levelVar.Set(lvl.slog())
	opts := &slog.HandlerOptions{Level: levelVar}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	mu.Lock()
	logger = slog.New(handler)
	mu.Unlock()
}

func get() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

func Debug(msg string, args ...any) { get().Debug(msg, args...) }
func Info(msg string, args ...any)  { get().Info(msg, args...) }
func Warn(msg string, args ...any)  { get().Warn(msg, args...) }
func Error(msg string, args ...any) { get().Error(msg, args...) }

// With returns a logger scoped with the given key/value pairs, for
// call sites that want to avoid repeating fields (e.g. a snapshot id)
// across several log lines.
func With(args ...any) *slog.Logger {
	return get().With(args...)
}
