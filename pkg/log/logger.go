package log

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Level represents the severity level of a log message.
type Level int32

// Log levels
const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

// String returns the string representation of the log level.
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
	case FatalLevel:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a case-insensitive level name to a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DebugLevel, nil
	case "", "info":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	case "fatal":
		return FatalLevel, nil
	}
	return InfoLevel, fmt.Errorf("log: unknown level %q", s)
}

// Fields is a map of field names to values.
type Fields map[string]interface{}

// Entry represents a single formatted log entry.
type Entry struct {
	Level     Level
	Message   string
	Fields    Fields
	Timestamp time.Time
}

// Logger is the logging interface handed to every component.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	// Fatal logs and exits the process with status 1.
	Fatal(msg string, fields ...Field)

	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})

	With(fields ...Field) Logger
	WithError(err error) Logger
	WithComponent(component string) Logger

	SetLevel(level Level)
	GetLevel() Level

	// Slog exposes the underlying slog.Logger for libraries that accept one.
	Slog() *slog.Logger
}

// Formatter renders an entry to bytes.
type Formatter interface {
	Format(entry *Entry) ([]byte, error)
}

// Output receives formatted entries.
type Output interface {
	Write(entry *Entry, formatted []byte) error
	Close() error
}

// LoggerOption configures a logger.
type LoggerOption func(*sink)

// sink is shared by a logger and every child derived from it with With.
type sink struct {
	level     atomic.Int32
	mu        sync.Mutex
	formatter Formatter
	outputs   []Output
}

// BaseLogger implements Logger on top of slog.
type BaseLogger struct {
	sink *sink
	sl   *slog.Logger
}

// NewLogger creates a logger with the given options. The default is INFO level
// JSON to stderr.
func NewLogger(options ...LoggerOption) Logger {
	s := &sink{formatter: &JSONFormatter{}}
	s.level.Store(int32(InfoLevel))
	for _, opt := range options {
		opt(s)
	}
	if len(s.outputs) == 0 {
		s.outputs = append(s.outputs, NewConsoleOutput())
	}
	return &BaseLogger{sink: s, sl: slog.New(&bridgeHandler{sink: s})}
}

// WithLevel sets the minimum log level.
func WithLevel(level Level) LoggerOption {
	return func(s *sink) { s.level.Store(int32(level)) }
}

// WithFormatter sets the log formatter.
func WithFormatter(formatter Formatter) LoggerOption {
	return func(s *sink) { s.formatter = formatter }
}

// WithOutput adds an output to the logger.
func WithOutput(output Output) LoggerOption {
	return func(s *sink) { s.outputs = append(s.outputs, output) }
}

func (l *BaseLogger) log(level Level, msg string, fields []Field) {
	sl := toSlogLevel(level)
	if !l.sl.Enabled(context.Background(), sl) {
		return
	}
	l.sl.LogAttrs(context.Background(), sl, msg, attrsFromFields(fields)...)
}

func (l *BaseLogger) Debug(msg string, fields ...Field) { l.log(DebugLevel, msg, fields) }
func (l *BaseLogger) Info(msg string, fields ...Field)  { l.log(InfoLevel, msg, fields) }
func (l *BaseLogger) Warn(msg string, fields ...Field)  { l.log(WarnLevel, msg, fields) }
func (l *BaseLogger) Error(msg string, fields ...Field) { l.log(ErrorLevel, msg, fields) }

func (l *BaseLogger) Fatal(msg string, fields ...Field) {
	l.log(FatalLevel, msg, fields)
	os.Exit(1)
}

func (l *BaseLogger) Infof(format string, args ...interface{}) {
	l.log(InfoLevel, fmt.Sprintf(format, args...), nil)
}

func (l *BaseLogger) Errorf(format string, args ...interface{}) {
	l.log(ErrorLevel, fmt.Sprintf(format, args...), nil)
}

func (l *BaseLogger) With(fields ...Field) Logger {
	if len(fields) == 0 {
		return l
	}
	return &BaseLogger{sink: l.sink, sl: l.sl.With(attrsToAny(attrsFromFields(fields))...)}
}

func (l *BaseLogger) WithError(err error) Logger { return l.With(Err(err)) }

func (l *BaseLogger) WithComponent(component string) Logger { return l.With(Component(component)) }

// SetLevel changes the level for this logger and every logger sharing its sink.
func (l *BaseLogger) SetLevel(level Level) { l.sink.level.Store(int32(level)) }

func (l *BaseLogger) GetLevel() Level { return Level(l.sink.level.Load()) }

func (l *BaseLogger) Slog() *slog.Logger { return l.sl }

// NewNopLogger discards everything. Tests use it to keep output quiet.
func NewNopLogger() Logger {
	return NewLogger(WithLevel(FatalLevel+1), WithOutput(NullOutput{}))
}
