// Package logging provides the structured logger used across the
// notification pipeline's services.
package logging

import (
	"go.uber.org/zap"
)

// Logger is the structured logging interface every component depends on.
// It mirrors the key-value logging shape used throughout the pack
// (message plus alternating key/value pairs) so call sites read the same
// whether the backing implementation is zap, a test recorder, or anything
// else that satisfies this interface.
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	With(keysAndValues ...interface{}) Logger
}

// zapLogger adapts a *zap.SugaredLogger to the Logger interface.
type zapLogger struct {
	sugar *zap.SugaredLogger
}

// New builds a production JSON logger at the given level name
// ("debug", "info", "warn", "error"). An unrecognized level defaults to info.
func New(level string) (Logger, error) {
	cfg := zap.NewProductionConfig()
	if lvl, err := zap.ParseAtomicLevel(level); err == nil {
		cfg.Level = lvl
	}
	zl, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &zapLogger{sugar: zl.Sugar()}, nil
}

// NewNop returns a logger that discards everything; useful for tests.
func NewNop() Logger {
	return &zapLogger{sugar: zap.NewNop().Sugar()}
}

func (l *zapLogger) Debug(msg string, kv ...interface{}) { l.sugar.Debugw(msg, kv...) }
func (l *zapLogger) Info(msg string, kv ...interface{})  { l.sugar.Infow(msg, kv...) }
func (l *zapLogger) Warn(msg string, kv ...interface{})  { l.sugar.Warnw(msg, kv...) }
func (l *zapLogger) Error(msg string, kv ...interface{}) { l.sugar.Errorw(msg, kv...) }

func (l *zapLogger) With(kv ...interface{}) Logger {
	return &zapLogger{sugar: l.sugar.With(kv...)}
}
