// Package logger provides the process-wide structured logger built on Zap.
package logger

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	sugar *zap.SugaredLogger
	once  sync.Once
	level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
)

// Init builds the global logger for env. "production" logs JSON at info level,
// "test" discards everything, anything else logs colored console output at debug level.
func Init(env string) {
	once.Do(func() {
		sugar = build(env).Sugar()
	})
}

func build(env string) *zap.Logger {
	var (
		base *zap.Logger
		err  error
	)

	switch env {
	case "production":
		cfg := zap.NewProductionConfig()
		level.SetLevel(zapcore.InfoLevel)
		cfg.Level = level
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		base, err = cfg.Build()
	case "test":
		return zap.NewNop()
	default:
		cfg := zap.NewDevelopmentConfig()
		cfg.Level = level
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		base, err = cfg.Build()
	}

	if err != nil {
		return zap.NewNop()
	}
	return base
}

// Get returns the global sugared logger, initializing a development logger
// when Init has not been called yet.
func Get() *zap.SugaredLogger {
	Init("development")
	return sugar
}

// SetLevel changes the minimum enabled level of the global logger.
func SetLevel(l zapcore.Level) {
	level.SetLevel(l)
}

// Named returns a child of the global logger tagged with a component name.
func Named(component string) *zap.SugaredLogger {
	return Get().Named(component)
}

// Sync flushes buffered entries. Call it before the process exits.
func Sync() {
	if sugar != nil {
		_ = sugar.Sync()
	}
}
