// Package logging adapts zap to the accounts Logger and provides request
// and activity logging.
package logging

import (
	"strings"

	"github.com/goliatone/go-accounts"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapLogger implements accounts.Logger over a sugared zap logger
type ZapLogger struct {
	sugar *zap.SugaredLogger
}

var _ accounts.Logger = (*ZapLogger)(nil)

// New builds a zap logger. Format is "json" or "console", level one of
// debug, info, warn, error.
func New(level, format string) (*ZapLogger, error) {
	cfg := zap.NewProductionConfig()
	if strings.EqualFold(format, "console") {
		cfg = zap.NewDevelopmentConfig()
	}

	lvl, err := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return NewZap(logger), nil
}

// NewZap wraps an existing zap logger
func NewZap(logger *zap.Logger) *ZapLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapLogger{sugar: logger.Sugar()}
}

func (l *ZapLogger) Debug(msg string, args ...any) { l.sugar.Debugw(msg, args...) }
func (l *ZapLogger) Info(msg string, args ...any)  { l.sugar.Infow(msg, args...) }
func (l *ZapLogger) Warn(msg string, args ...any)  { l.sugar.Warnw(msg, args...) }
func (l *ZapLogger) Error(msg string, args ...any) { l.sugar.Errorw(msg, args...) }

// Named returns a child logger
func (l *ZapLogger) Named(name string) *ZapLogger {
	return &ZapLogger{sugar: l.sugar.Named(name)}
}

// Sync flushes buffered entries
func (l *ZapLogger) Sync() error {
	return l.sugar.Sync()
}
