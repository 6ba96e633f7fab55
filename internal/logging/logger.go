// Package logging provides structured logging with correlation ID propagation.
//
// Loggers are thin wrappers over a zap core. Fields are passed as maps so call
// sites read the same whether they log one attribute or ten.
package logging

import (
	"io"
	"os"
	"sort"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level represents the severity of a log message.
type Level int

const (
	// LevelDebug is for detailed debugging information.
	LevelDebug Level = iota
	// LevelInfo is for general information messages.
	LevelInfo
	// LevelWarn is for warning messages.
	LevelWarn
	// LevelError is for error messages.
	LevelError
)

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
	default:
		return "unknown"
	}
}

func (l Level) zapLevel() zapcore.Level {
	switch l {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func levelFromZap(l zapcore.Level) Level {
	switch l {
	case zapcore.DebugLevel:
		return LevelDebug
	case zapcore.WarnLevel:
		return LevelWarn
	case zapcore.ErrorLevel:
		return LevelError
	default:
		return LevelInfo
	}
}

// ParseLevel converts a string to a Level. Unknown values map to LevelInfo.
func ParseLevel(s string) Level {
	switch s {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Format represents the output format for log messages.
type Format int

const (
	// FormatJSON outputs logs as JSON objects.
	FormatJSON Format = iota
	// FormatText outputs logs as human-readable console lines.
	FormatText
)

// ParseFormat converts a string to a Format. Unknown values map to FormatJSON.
func ParseFormat(s string) Format {
	switch s {
	case "json":
		return FormatJSON
	case "text":
		return FormatText
	default:
		return FormatJSON
	}
}

// Entry is the JSON shape of a single log line.
type Entry struct {
	Timestamp     time.Time      `json:"timestamp"`
	Level         string         `json:"level"`
	Message       string         `json:"message"`
	CorrelationID string         `json:"correlationId,omitempty"`
	File          string         `json:"file,omitempty"`
	Fields        map[string]any `json:"fields,omitempty"`
}

// Config holds configuration for a Logger.
type Config struct {
	Level     Level
	Format    Format
	Output    io.Writer
	AddCaller bool
}

// Logger provides structured logging with configurable levels and formats.
// Loggers derived with With or WithCorrelationID share the level of their
// parent.
type Logger struct {
	zl            *zap.Logger
	level         zap.AtomicLevel
	fields        map[string]any
	correlationID string
}

// New creates a new Logger with the given configuration.
func New(cfg Config) *Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	level := zap.NewAtomicLevelAt(cfg.Level.zapLevel())
	core := zapcore.NewCore(newEncoder(cfg), zapcore.Lock(zapcore.AddSync(out)), level)

	var opts []zap.Option
	if cfg.AddCaller {
		// Skip log() and the exported level method.
		opts = append(opts, zap.AddCaller(), zap.AddCallerSkip(2))
	}

	return &Logger{
		zl:     zap.New(core, opts...),
		level:  level,
		fields: make(map[string]any),
	}
}

func newEncoder(cfg Config) zapcore.Encoder {
	encCfg := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		MessageKey:     "message",
		CallerKey:      "file",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.RFC3339NanoTimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	if !cfg.AddCaller {
		encCfg.CallerKey = zapcore.OmitKey
	}
	if cfg.Format == FormatText {
		encCfg.EncodeTime = zapcore.RFC3339TimeEncoder
		return zapcore.NewConsoleEncoder(encCfg)
	}
	return zapcore.NewJSONEncoder(encCfg)
}

// DefaultLogger returns a logger with default settings.
func DefaultLogger() *Logger {
	return New(Config{
		Level:  LevelInfo,
		Format: FormatJSON,
		Output: os.Stderr,
	})
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{
		zl:     zap.NewNop(),
		level:  zap.NewAtomicLevelAt(zapcore.FatalLevel),
		fields: make(map[string]any),
	}
}

// SetLevel updates the minimum logging level.
func (l *Logger) SetLevel(level Level) {
	l.level.SetLevel(level.zapLevel())
}

// GetLevel returns the current logging level.
func (l *Logger) GetLevel() Level {
	return levelFromZap(l.level.Level())
}

// Zap exposes the underlying zap logger for libraries that take one.
func (l *Logger) Zap() *zap.Logger {
	return l.zl
}

// Sync flushes buffered log entries.
func (l *Logger) Sync() error {
	return l.zl.Sync()
}

// With returns a new Logger with the given fields added.
func (l *Logger) With(fields map[string]any) *Logger {
	newFields := make(map[string]any, len(l.fields)+len(fields))
	for k, v := range l.fields {
		newFields[k] = v
	}
	for k, v := range fields {
		newFields[k] = v
	}

	return &Logger{
		zl:            l.zl,
		level:         l.level,
		fields:        newFields,
		correlationID: l.correlationID,
	}
}

// WithCorrelationID returns a new Logger with the correlation ID set.
func (l *Logger) WithCorrelationID(id string) *Logger {
	return &Logger{
		zl:            l.zl,
		level:         l.level,
		fields:        l.fields,
		correlationID: id,
	}
}

// CorrelationID returns the correlation ID attached to l, if any.
func (l *Logger) CorrelationID() string {
	return l.correlationID
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string) {
	l.log(zapcore.DebugLevel, msg, nil)
}

// Debugf logs a debug message with fields.
func (l *Logger) Debugf(msg string, fields map[string]any) {
	l.log(zapcore.DebugLevel, msg, fields)
}

// Info logs an info message.
func (l *Logger) Info(msg string) {
	l.log(zapcore.InfoLevel, msg, nil)
}

// Infof logs an info message with fields.
func (l *Logger) Infof(msg string, fields map[string]any) {
	l.log(zapcore.InfoLevel, msg, fields)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string) {
	l.log(zapcore.WarnLevel, msg, nil)
}

// Warnf logs a warning message with fields.
func (l *Logger) Warnf(msg string, fields map[string]any) {
	l.log(zapcore.WarnLevel, msg, fields)
}

// Error logs an error message.
func (l *Logger) Error(msg string) {
	l.log(zapcore.ErrorLevel, msg, nil)
}

// Errorf logs an error message with fields.
func (l *Logger) Errorf(msg string, fields map[string]any) {
	l.log(zapcore.ErrorLevel, msg, fields)
}

func (l *Logger) log(level zapcore.Level, msg string, extra map[string]any) {
	ce := l.zl.Check(level, msg)
	if ce == nil {
		return
	}
	ce.Write(l.zapFields(extra)...)
}

// zapFields flattens the correlation ID and the merged field map. Field keys
// are sorted so output is stable across runs.
func (l *Logger) zapFields(extra map[string]any) []zap.Field {
	out := make([]zap.Field, 0, len(l.fields)+len(extra)+2)
	if l.correlationID != "" {
		out = append(out, zap.String("correlationId", l.correlationID))
	}
	if len(l.fields) == 0 && len(extra) == 0 {
		return out
	}

	merged := make(map[string]any, len(l.fields)+len(extra))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}
	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out = append(out, zap.Namespace("fields"))
	for _, k := range keys {
		out = append(out, zap.Any(k, merged[k]))
	}
	return out
}
