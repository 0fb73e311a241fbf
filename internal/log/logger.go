// Package log is the process-wide structured logger.
// It wraps zerolog so packages log through one configured sink and level.
package log

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	logger     zerolog.Logger
	loggerLock sync.RWMutex
)

func init() {
	logger = zerolog.New(os.Stderr).
		Level(zerolog.InfoLevel).
		With().
		Timestamp().
		Logger()
}

// SetOutput replaces the sink. When console is true the output is rendered
// for humans instead of one JSON object per line.
func SetOutput(w io.Writer, console bool) {
	if console {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	loggerLock.Lock()
	logger = logger.Output(w)
	loggerLock.Unlock()
}

// SetLevel sets the global log level at runtime.
// The zerolog global level is raised too, so component loggers created
// earlier stop emitting below it.
func SetLevel(levelStr string) {
	level := ParseLevel(levelStr)
	loggerLock.Lock()
	logger = logger.Level(level)
	loggerLock.Unlock()
	zerolog.SetGlobalLevel(level)
}

// ParseLevel converts a string log level to zerolog.Level.
// Unknown values fall back to info.
func ParseLevel(levelStr string) zerolog.Level {
	switch strings.ToLower(levelStr) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

func current() zerolog.Logger {
	loggerLock.RLock()
	defer loggerLock.RUnlock()
	return logger
}

// Debug logs a debug message
func Debug() *zerolog.Event {
	l := current()
	return l.Debug()
}

// Info logs an info message
func Info() *zerolog.Event {
	l := current()
	return l.Info()
}

// Warn logs a warning message
func Warn() *zerolog.Event {
	l := current()
	return l.Warn()
}

// Error logs an error message
func Error() *zerolog.Event {
	l := current()
	return l.Error()
}

// Component returns a child logger tagged with the subsystem name.
// The child captures the sink and level at call time.
func Component(name string) zerolog.Logger {
	return current().With().Str("component", name).Logger()
}

// Logger returns the underlying zerolog.Logger for integrations
func Logger() zerolog.Logger {
	return current()
}
