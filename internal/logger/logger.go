package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

// Log levels
const (
	LevelDebug = iota
	LevelInfo
	LevelWarn
	LevelError
)

var (
	slogLevels = map[int]slog.Level{
		LevelDebug: slog.LevelDebug,
		LevelInfo:  slog.LevelInfo,
		LevelWarn:  slog.LevelWarn,
		LevelError: slog.LevelError,
	}

	level   = new(slog.LevelVar)
	handler atomic.Pointer[slog.Logger]
)

// Logger tags every entry with the component that produced it
type Logger struct {
	component string
}

func init() {
	// Default to INFO in production, DEBUG in development
	if IsDevelopment() {
		level.Set(slog.LevelDebug)
	}
	Init(os.Stdout, "", "text")
}

// Init configures the process-wide handler. levelName accepts debug, info,
// warn and error; an empty value keeps the current level. format is "json"
// or "text".
func Init(w io.Writer, levelName, format string) *slog.Logger {
	if levelName != "" {
		level.Set(ParseLevel(levelName))
	}
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if strings.EqualFold(format, "json") {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	l := slog.New(h)
	handler.Store(l)
	slog.SetDefault(l)
	return l
}

// ParseLevel maps a level name to a slog level. Unknown names mean info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
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

// New creates a new logger for a specific component
func New(component string) *Logger {
	return &Logger{component: component}
}

// SetMinLevel allows changing the minimum log level at runtime
func SetMinLevel(l int) {
	if sl, ok := slogLevels[l]; ok {
		level.Set(sl)
	}
}

func (l *Logger) logf(lvl int, format string, args ...interface{}) {
	sl := slogLevels[lvl]
	base := handler.Load()
	if !base.Enabled(context.Background(), sl) {
		return
	}
	base.Log(context.Background(), sl, fmt.Sprintf(format, args...), "component", l.component)
}

// Debug logs debug information
func (l *Logger) Debug(format string, args ...interface{}) {
	l.logf(LevelDebug, format, args...)
}

// Info logs information messages
func (l *Logger) Info(format string, args ...interface{}) {
	l.logf(LevelInfo, format, args...)
}

// Warn logs warning messages
func (l *Logger) Warn(format string, args ...interface{}) {
	l.logf(LevelWarn, format, args...)
}

// Error logs error messages
func (l *Logger) Error(format string, args ...interface{}) {
	l.logf(LevelError, format, args...)
}

// Preview shortens secrets before they are logged.
func Preview(secret string) string {
	if len(secret) > 10 {
		return secret[:10] + "..."
	}
	return secret
}

// GetAppEnv returns the current application environment
func GetAppEnv() string {
	env := os.Getenv("ENV")
	if env == "" {
		return "development" // Default to development
	}
	return env
}

// IsDevelopment returns true if the current environment is development
func IsDevelopment() bool {
	return GetAppEnv() == "development"
}
