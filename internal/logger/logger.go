// Package logger provides structured logging for the blockwatch service,
// backed by zap.
package logger

import (
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Field is a type alias for zapcore.Field, a key-value pair attached to a
// log entry.
type Field = zapcore.Field

// Logger defines the interface for structured logging.
type Logger interface {
	// Debug logs a message at debug level.
	Debug(msg string, fields ...Field)

	// Info logs a message at info level.
	Info(msg string, fields ...Field)

	// Warn logs a message at warning level.
	Warn(msg string, fields ...Field)

	// Error logs a message at error level.
	Error(msg string, fields ...Field)

	// With returns a new logger with the given fields attached to all
	// subsequent entries.
	With(fields ...Field) Logger

	// Sync flushes any buffered log entries. Call before exiting.
	Sync() error
}

type zapLogger struct {
	logger *zap.Logger
}

func (l *zapLogger) Debug(msg string, fields ...Field) { l.logger.Debug(msg, fields...) }
func (l *zapLogger) Info(msg string, fields ...Field)  { l.logger.Info(msg, fields...) }
func (l *zapLogger) Warn(msg string, fields ...Field)  { l.logger.Warn(msg, fields...) }
func (l *zapLogger) Error(msg string, fields ...Field) { l.logger.Error(msg, fields...) }

func (l *zapLogger) With(fields ...Field) Logger {
	return &zapLogger{logger: l.logger.With(fields...)}
}

func (l *zapLogger) Sync() error {
	return l.logger.Sync()
}

// NewLogger creates a new Logger instance.
//
// When debug is true it uses a development configuration: colorized console
// output, ISO8601 timestamps, stack traces from warn level up, no sampling.
// Otherwise it uses zap.NewProduction (JSON output, sampled).
func NewLogger(debug bool) (Logger, error) {
	var z *zap.Logger
	var err error

	if debug {
		cfg := zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		cfg.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
		cfg.Encoding = "console"
		cfg.Development = true
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		cfg.Sampling = nil

		z, err = cfg.Build(zap.AddStacktrace(zapcore.WarnLevel))
	} else {
		z, err = zap.NewProduction()
	}

	if err != nil {
		return nil, err
	}

	return &zapLogger{logger: z}, nil
}

// NewNopLogger returns a no-op logger that discards all entries. Useful for
// tests.
func NewNopLogger() Logger {
	return &zapLogger{logger: zap.NewNop()}
}

// Field constructors. Thin wrappers over zap so callers never import zap
// directly.

// String creates a field with a string value.
func String(key, val string) Field { return zap.String(key, val) }

// Int creates a field with an int value.
func Int(key string, val int) Field { return zap.Int(key, val) }

// Int64 creates a field with an int64 value.
func Int64(key string, val int64) Field { return zap.Int64(key, val) }

// Bool creates a field with a boolean value.
func Bool(key string, val bool) Field { return zap.Bool(key, val) }

// Duration creates a field with a time.Duration value.
func Duration(key string, val time.Duration) Field { return zap.Duration(key, val) }

// Time creates a field with a time.Time value.
func Time(key string, val time.Time) Field { return zap.Time(key, val) }

// Error creates a field for an error value under the key "error".
func Error(err error) Field { return zap.Error(err) }

// Strings creates a field with a slice of strings.
func Strings(key string, val []string) Field { return zap.Strings(key, val) }

// Any creates a field with an arbitrary value, serialized via reflection.
// Prefer typed constructors when possible.
func Any(key string, val any) Field { return zap.Any(key, val) }
