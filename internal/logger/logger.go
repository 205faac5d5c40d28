// Package logger provides the leveled logging interface used across the
// service. It wraps the standard library logger so components are not coupled
// to a specific implementation and tests can capture or discard output.
package logger

import (
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
)

// Level orders log severities.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// ParseLevel maps the LOG_LEVEL values (debug, info, warn, error) to a Level.
// Unknown values fall back to info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Logger defines the logging operations. All methods take a format string and
// arguments, similar to fmt.Printf.
type Logger interface {
	Debug(format string, args ...interface{})
	Info(format string, args ...interface{})
	Warn(format string, args ...interface{})
	Error(format string, args ...interface{})
}

type stdLogger struct {
	base  *log.Logger
	level Level
}

// New creates a Logger writing to out with the standard log flags.
func New(out io.Writer, level string) Logger {
	return Wrap(log.New(out, "", log.LstdFlags), level)
}

// Wrap adapts an existing *log.Logger.
func Wrap(base *log.Logger, level string) Logger {
	if base == nil {
		base = log.Default()
	}
	return &stdLogger{base: base, level: ParseLevel(level)}
}

func (l *stdLogger) Debug(format string, args ...interface{}) {
	l.emit(LevelDebug, "DEBUG: ", format, args...)
}

func (l *stdLogger) Info(format string, args ...interface{}) {
	l.emit(LevelInfo, "", format, args...)
}

func (l *stdLogger) Warn(format string, args ...interface{}) {
	l.emit(LevelWarn, "WARN: ", format, args...)
}

func (l *stdLogger) Error(format string, args ...interface{}) {
	l.emit(LevelError, "ERROR: ", format, args...)
}

func (l *stdLogger) emit(level Level, prefix, format string, args ...interface{}) {
	if level < l.level {
		return
	}
	l.base.Printf(prefix+format, args...)
}

type noopLogger struct{}

// Noop returns a logger that discards all messages.
func Noop() Logger {
	return noopLogger{}
}

func (noopLogger) Debug(format string, args ...interface{}) {}
func (noopLogger) Info(format string, args ...interface{})  {}
func (noopLogger) Warn(format string, args ...interface{})  {}
func (noopLogger) Error(format string, args ...interface{}) {}

// LogMessage represents a captured log message.
type LogMessage struct {
	Level   string
	Message string
}

// BufferLogger captures log messages for test assertions. It is safe for
// concurrent use.
type BufferLogger struct {
	mu       sync.Mutex
	messages []LogMessage
}

// NewBufferLogger creates an empty BufferLogger.
func NewBufferLogger() *BufferLogger {
	return &BufferLogger{}
}

func (b *BufferLogger) Debug(format string, args ...interface{}) { b.add("DEBUG", format, args...) }
func (b *BufferLogger) Info(format string, args ...interface{})  { b.add("INFO", format, args...) }
func (b *BufferLogger) Warn(format string, args ...interface{})  { b.add("WARN", format, args...) }
func (b *BufferLogger) Error(format string, args ...interface{}) { b.add("ERROR", format, args...) }

func (b *BufferLogger) add(level, format string, args ...interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = append(b.messages, LogMessage{Level: level, Message: fmt.Sprintf(format, args...)})
}

// Messages returns a copy of the captured messages.
func (b *BufferLogger) Messages() []LogMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]LogMessage, len(b.messages))
	copy(out, b.messages)
	return out
}

// Contains reports whether any message at level contains substr.
func (b *BufferLogger) Contains(level, substr string) bool {
	for _, m := range b.Messages() {
		if m.Level == level && strings.Contains(m.Message, substr) {
			return true
		}
	}
	return false
}
