package log

import (
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapAdapter implements Logger using zap. It is meant for JSON output
// consumed by log pipelines.
type ZapAdapter struct {
	logger *zap.Logger
}

// NewZapAdapter builds a production JSON logger writing to stderr.
func NewZapAdapter(level Level) (*ZapAdapter, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapLevel(level))
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.Sampling = nil

	logger, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, err
	}
	return &ZapAdapter{logger: logger}, nil
}

// NewZapAdapterWithLogger creates an adapter wrapping an existing *zap.Logger.
func NewZapAdapterWithLogger(logger *zap.Logger) *ZapAdapter {
	return &ZapAdapter{logger: logger}
}

// Debug logs at debug level.
func (z *ZapAdapter) Debug(msg string, fields ...Field) { z.logger.Debug(msg, zapFields(fields)...) }

// Info logs at info level.
func (z *ZapAdapter) Info(msg string, fields ...Field) { z.logger.Info(msg, zapFields(fields)...) }

// Warn logs at warn level.
func (z *ZapAdapter) Warn(msg string, fields ...Field) { z.logger.Warn(msg, zapFields(fields)...) }

// Error logs at error level.
func (z *ZapAdapter) Error(msg string, fields ...Field) { z.logger.Error(msg, zapFields(fields)...) }

// Sync flushes buffered entries.
func (z *ZapAdapter) Sync() error {
	return z.logger.Sync()
}

// Logger returns the underlying *zap.Logger.
func (z *ZapAdapter) Logger() *zap.Logger {
	return z.logger
}

func zapFields(fields []Field) []zap.Field {
	if len(fields) == 0 {
		return nil
	}
	out := make([]zap.Field, 0, len(fields))
	for _, f := range fields {
		switch v := f.Value.(type) {
		case string:
			out = append(out, zap.String(f.Key, v))
		case int:
			out = append(out, zap.Int(f.Key, v))
		case int64:
			out = append(out, zap.Int64(f.Key, v))
		case uint64:
			out = append(out, zap.Uint64(f.Key, v))
		case float64:
			out = append(out, zap.Float64(f.Key, v))
		case bool:
			out = append(out, zap.Bool(f.Key, v))
		case time.Duration:
			out = append(out, zap.Duration(f.Key, v))
		case error:
			out = append(out, zap.NamedError(f.Key, v))
		default:
			out = append(out, zap.Any(f.Key, v))
		}
	}
	return out
}

func zapLevel(l Level) zapcore.Level {
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
