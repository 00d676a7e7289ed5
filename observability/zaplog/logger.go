// Package zaplog adapts go.uber.org/zap to the core.Logger interface.
package zaplog

import (
	"fmt"

	"github.com/Swind/go-forkjoin/core"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger forwards core.Logger calls to a *zap.Logger.
type Logger struct {
	z *zap.Logger
}

var _ core.Logger = (*Logger)(nil)

// New wraps z. A nil z yields a logger that discards everything.
func New(z *zap.Logger) *Logger {
	if z == nil {
		z = zap.NewNop()
	}
	return &Logger{z: z}
}

// NewProduction builds a zap logger with the given level and encoding
// ("json" or "console") writing to stderr.
func NewProduction(level core.LogLevel, encoding string) (*Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(ZapLevel(level))
	cfg.Sampling = nil
	switch encoding {
	case "", "json":
		cfg.Encoding = "json"
	case "console":
		cfg.Encoding = "console"
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	default:
		return nil, fmt.Errorf("zaplog: unknown encoding %q", encoding)
	}

	z, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return New(z), nil
}

// ZapLevel maps a core.LogLevel to the matching zap level.
func ZapLevel(level core.LogLevel) zapcore.Level {
	switch level {
	case core.LevelDebug:
		return zapcore.DebugLevel
	case core.LevelWarn:
		return zapcore.WarnLevel
	case core.LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Zap returns the underlying zap logger.
func (l *Logger) Zap() *zap.Logger {
	return l.z
}

// Sync flushes buffered entries.
func (l *Logger) Sync() error {
	return l.z.Sync()
}

func (l *Logger) Debug(msg string, fields ...core.Field) {
	l.z.Debug(msg, zapFields(fields)...)
}

func (l *Logger) Info(msg string, fields ...core.Field) {
	l.z.Info(msg, zapFields(fields)...)
}

func (l *Logger) Warn(msg string, fields ...core.Field) {
	l.z.Warn(msg, zapFields(fields)...)
}

func (l *Logger) Error(msg string, fields ...core.Field) {
	l.z.Error(msg, zapFields(fields)...)
}

func zapFields(fields []core.Field) []zap.Field {
	if len(fields) == 0 {
		return nil
	}
	out := make([]zap.Field, len(fields))
	for i, f := range fields {
		if err, ok := f.Value.(error); ok {
			out[i] = zap.NamedError(f.Key, err)
			continue
		}
		out[i] = zap.Any(f.Key, f.Value)
	}
	return out
}
