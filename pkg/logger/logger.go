// Package logger provides the process-wide structured logger every
// service entrypoint initializes once at startup.
package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config controls how Initialize builds the global logger.
type Config struct {
	Environment string // "production" selects a JSON encoder; anything else, console
	Level       string // debug, info, warn, error; defaults to info
	Service     string
	Version     string
}

var log *zap.Logger

// Initialize builds the global logger from cfg. It must be called once
// before any package-level Info/Warn/Error/Fatal call.
func Initialize(cfg Config) error {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return fmt.Errorf("logger: invalid level %q: %w", cfg.Level, err)
		}
	}

	var zcfg zap.Config
	if cfg.Environment == "production" {
		zcfg = zap.NewProductionConfig()
	} else {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)

	built, err := zcfg.Build()
	if err != nil {
		return fmt.Errorf("logger: build: %w", err)
	}

	log = built.With(
		zap.String("service", cfg.Service),
		zap.String("version", cfg.Version),
	)
	return nil
}

func logger() *zap.Logger {
	if log == nil {
		return zap.NewNop()
	}
	return log
}

// Info logs at info level.
func Info(msg string, fields ...zap.Field) { logger().Info(msg, fields...) }

// Warn logs at warn level.
func Warn(msg string, fields ...zap.Field) { logger().Warn(msg, fields...) }

// Error logs at error level.
func Error(msg string, fields ...zap.Field) { logger().Error(msg, fields...) }

// Fatal logs at fatal level and exits the process.
func Fatal(msg string, fields ...zap.Field) { logger().Fatal(msg, fields...) }

// Sync flushes any buffered log entries. Call on shutdown.
func Sync() {
	if log != nil {
		_ = log.Sync()
	}
}
