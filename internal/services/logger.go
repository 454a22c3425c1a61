package services

import (
	"log"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"timeplus_app/internal/config"
)

// NewLogger builds the process logger: JSON in production, console output
// with colored levels otherwise.
func NewLogger(app config.App) *zap.Logger {
	var level zapcore.Level
	switch app.LogLevel {
	case "debug":
		level = zap.DebugLevel
	case "warn":
		level = zap.WarnLevel
	case "error":
		level = zap.ErrorLevel
	default:
		level = zap.InfoLevel
	}

	var cfg zap.Config
	if app.Env == config.EnvProduction {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "time"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	cfg.Level = zap.NewAtomicLevelAt(level)

	logger, err := cfg.Build()
	if err != nil {
		log.Fatalf("Error while initializing zap logger: %v", err)
	}
	return logger
}
