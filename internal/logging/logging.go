// Package logging builds the structured loggers used across the
// supervisor: one root logger per process, with per-Job and per-Task
// children carrying their name as a fixed field.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the process-wide logger. debug selects console encoding
// with debug level; otherwise it's JSON at info level, suitable for
// piping into a log collector.
func New(debug bool) (*zap.Logger, error) {
	if debug {
		cfg := zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return cfg.Build()
	}
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

// ForJob returns a child logger scoped to a single Job, the way the
// supervisor attributes every lifecycle line back to the Job that
// caused it.
func ForJob(base *zap.Logger, name, category string) *zap.Logger {
	return base.With(zap.String("job", name), zap.String("category", category))
}

// ForTask returns a child logger scoped to a Task.
func ForTask(base *zap.Logger, name string) *zap.Logger {
	return base.With(zap.String("task", name))
}
