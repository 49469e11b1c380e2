package logging

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// Level represents the severity of a log message.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func levelToString(level Level) string {
	switch level {
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

// WriterLogger writes timestamped, level-tagged lines to an io.Writer.
// Writes are serialized, so one logger can be shared across goroutines.
type WriterLogger struct {
	mu        sync.Mutex
	out       io.Writer
	level     Level
	component string
}

// New returns a leveled logger scoped to a component. Messages below the
// given level are dropped.
func New(out io.Writer, level Level, component string) *WriterLogger {
	return &WriterLogger{out: out, level: level, component: component}
}

// SetLevel sets the minimum log level.
func (l *WriterLogger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

func (l *WriterLogger) log(level Level, format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if level < l.level || l.out == nil {
		return
	}
	timestamp := time.Now().Format("2006-01-02 15:04:05")
	message := fmt.Sprintf(format, args...)
	fmt.Fprintf(l.out, "%s [%s] [%s] %s\n", timestamp, levelToString(level), l.component, message)
}

func (l *WriterLogger) Debug(format string, args ...any) {
	l.log(LevelDebug, format, args...)
}

func (l *WriterLogger) Info(format string, args ...any) {
	l.log(LevelInfo, format, args...)
}

func (l *WriterLogger) Warn(format string, args ...any) {
	l.log(LevelWarn, format, args...)
}

func (l *WriterLogger) Error(format string, args ...any) {
	l.log(LevelError, format, args...)
}
