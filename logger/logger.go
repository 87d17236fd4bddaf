// Package logger provides a thread-safe, levelled logger backed by the
// standard library's log package.
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
)

// Level represents a logging verbosity level.
type Level int

const (
	// LevelDebug emits all messages.
	LevelDebug Level = iota
	// LevelInfo emits INFO, WARN and ERROR messages.
	LevelInfo
	// LevelWarn emits WARN and ERROR messages.
	LevelWarn
	// LevelError emits only ERROR messages.
	LevelError
)

// String returns the lower-case name accepted by ParseLevel.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	}
	return fmt.Sprintf("level(%d)", int(l))
}

// ParseLevel maps a configuration string ("debug", "info", "warn", "error")
// to a Level.  Matching is case-insensitive.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	}
	return LevelInfo, fmt.Errorf("logger: unknown level %q", s)
}

// Logger is a structured, levelled logger.
//
// Thread-safety: log.Logger (from the standard library) serialises writes to
// the underlying io.Writer with its own mutex.  The Logger wrapper adds a
// second mutex only for the level field so that SetLevel may be called
// concurrently with logging methods.
//
// A nil *Logger discards everything, so components can hold an optional
// logger without guarding every call site.
type Logger struct {
	infoLog  *log.Logger
	warnLog  *log.Logger
	errorLog *log.Logger
	debugLog *log.Logger
	mu       sync.RWMutex
	level    Level
}

// New creates a Logger that writes to stderr at the given minimum level.
func New(level Level) *Logger {
	return NewWithWriter(os.Stderr, level)
}

// NewWithWriter creates a Logger that writes to w.  Tests pass a
// bytes.Buffer to assert on output.
func NewWithWriter(w io.Writer, level Level) *Logger {
	flags := log.Ldate | log.Ltime | log.Lmicroseconds
	return &Logger{
		infoLog:  log.New(w, "INFO  ", flags),
		warnLog:  log.New(w, "WARN  ", flags),
		errorLog: log.New(w, "ERROR ", flags),
		debugLog: log.New(w, "DEBUG ", flags),
		level:    level,
	}
}

// SetLevel changes the minimum log level at runtime.  Safe for concurrent use.
func (l *Logger) SetLevel(level Level) {
	if l == nil {
		return
	}
	l.mu.Lock()
	l.level = level
	l.mu.Unlock()
}

func (l *Logger) enabled(level Level) bool {
	if l == nil {
		return false
	}
	l.mu.RLock()
	lvl := l.level
	l.mu.RUnlock()
	return lvl <= level
}

// Info logs a message at INFO level.
func (l *Logger) Info(msg string) {
	if l.enabled(LevelInfo) {
		l.infoLog.Output(2, msg) //nolint:errcheck
	}
}

// Infof logs a formatted message at INFO level.
func (l *Logger) Infof(format string, args ...interface{}) {
	if l.enabled(LevelInfo) {
		l.infoLog.Output(2, fmt.Sprintf(format, args...)) //nolint:errcheck
	}
}

// Warn logs a message at WARN level.
func (l *Logger) Warn(msg string) {
	if l.enabled(LevelWarn) {
		l.warnLog.Output(2, msg) //nolint:errcheck
	}
}

// Warnf logs a formatted message at WARN level.
func (l *Logger) Warnf(format string, args ...interface{}) {
	if l.enabled(LevelWarn) {
		l.warnLog.Output(2, fmt.Sprintf(format, args...)) //nolint:errcheck
	}
}

// Error logs a message at ERROR level.
func (l *Logger) Error(msg string) {
	if l.enabled(LevelError) {
		l.errorLog.Output(2, msg) //nolint:errcheck
	}
}

// Errorf logs a formatted message at ERROR level.
func (l *Logger) Errorf(format string, args ...interface{}) {
	if l.enabled(LevelError) {
		l.errorLog.Output(2, fmt.Sprintf(format, args...)) //nolint:errcheck
	}
}

// Debug logs a message at DEBUG level.
func (l *Logger) Debug(msg string) {
	if l.enabled(LevelDebug) {
		l.debugLog.Output(2, msg) //nolint:errcheck
	}
}

// Debugf logs a formatted message at DEBUG level.  Arguments are not
// formatted when DEBUG is disabled.
func (l *Logger) Debugf(format string, args ...interface{}) {
	if l.enabled(LevelDebug) {
		l.debugLog.Output(2, fmt.Sprintf(format, args...)) //nolint:errcheck
	}
}
