// Package logging provides the small leveled, structured logger used across
// beatdetector. Components accept a Logger and default to NoOpLogger so the
// detection path never writes unless the host asks for it.
package logging

import (
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strings"
	"sync"
	"time"
)

// Level represents log levels
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Fields represents structured logging fields
type Fields map[string]any

// Logger is the logging interface components depend on.
type Logger interface {
	Debug(msg string, fields ...Fields)
	Info(msg string, fields ...Fields)
	Warn(msg string, fields ...Fields)
	Error(err error, msg string, fields ...Fields)

	// WithFields returns a logger with preset fields
	WithFields(fields Fields) Logger

	// SetLevel sets the minimum log level
	SetLevel(level Level)
}

// DefaultLogger writes one line per entry: timestamp, level, message and
// the merged fields sorted by key.
type DefaultLogger struct {
	mu     *sync.Mutex
	out    io.Writer
	level  *Level
	fields Fields
	now    func() time.Time
}

// NewDefaultLogger returns a logger writing to stderr at InfoLevel.
func NewDefaultLogger() *DefaultLogger {
	return NewWriterLogger(os.Stderr, InfoLevel)
}

// NewWriterLogger returns a logger writing to w at the given level.
func NewWriterLogger(w io.Writer, level Level) *DefaultLogger {
	return &DefaultLogger{
		mu:     &sync.Mutex{},
		out:    w,
		level:  &level,
		fields: Fields{},
		now:    time.Now,
	}
}

func (l *DefaultLogger) Debug(msg string, fields ...Fields) {
	l.log(DebugLevel, nil, msg, fields)
}

func (l *DefaultLogger) Info(msg string, fields ...Fields) {
	l.log(InfoLevel, nil, msg, fields)
}

func (l *DefaultLogger) Warn(msg string, fields ...Fields) {
	l.log(WarnLevel, nil, msg, fields)
}

func (l *DefaultLogger) Error(err error, msg string, fields ...Fields) {
	l.log(ErrorLevel, err, msg, fields)
}

// WithFields returns a child logger sharing output and level.
func (l *DefaultLogger) WithFields(fields Fields) Logger {
	merged := maps.Clone(l.fields)
	maps.Copy(merged, fields)
	return &DefaultLogger{
		mu:     l.mu,
		out:    l.out,
		level:  l.level,
		fields: merged,
		now:    l.now,
	}
}

// SetLevel sets the minimum level; it applies to every child logger too.
func (l *DefaultLogger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	*l.level = level
}

func (l *DefaultLogger) log(level Level, err error, msg string, fields []Fields) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if level < *l.level {
		return
	}

	all := maps.Clone(l.fields)
	for _, f := range fields {
		maps.Copy(all, f)
	}
	if err != nil {
		all["error"] = err.Error()
	}

	var b strings.Builder
	b.WriteString(l.now().Format("15:04:05.000"))
	b.WriteByte(' ')
	b.WriteString(fmt.Sprintf("%-5s", level))
	b.WriteByte(' ')
	b.WriteString(msg)
	for _, k := range slices.Sorted(maps.Keys(all)) {
		fmt.Fprintf(&b, " %s=%v", k, all[k])
	}
	b.WriteByte('\n')

	_, _ = io.WriteString(l.out, b.String())
}

// NoOpLogger discards everything.
type NoOpLogger struct{}

func (NoOpLogger) Debug(string, ...Fields)        {}
func (NoOpLogger) Info(string, ...Fields)         {}
func (NoOpLogger) Warn(string, ...Fields)         {}
func (NoOpLogger) Error(error, string, ...Fields) {}
func (n NoOpLogger) WithFields(Fields) Logger     { return n }
func (NoOpLogger) SetLevel(Level)                 {}
