// Package logger builds the zap loggers used by the command line tool.
package logger

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log formats.
const (
	FormatJSON  = "json"
	FormatHuman = "human"
)

// Config contains configuration for the logger
type Config struct {
	Debug  bool   `mapstructure:"debug"`
	Format string `mapstructure:"format"` // "json" or "human"
	File   string `mapstructure:"file"`   // optional log file, written beside stderr
}

// DefaultConfig returns human-readable info logging on stderr
func DefaultConfig() Config {
	return Config{Format: FormatHuman}
}

// New builds a logger from config.
func New(config Config) (*zap.Logger, error) {
	var zapConfig zap.Config
	switch config.Format {
	case FormatJSON:
		zapConfig = zap.NewProductionConfig()
	case FormatHuman, "":
		zapConfig = zap.NewDevelopmentConfig()
		zapConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapConfig.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	default:
		return nil, fmt.Errorf("unknown log format %q", config.Format)
	}

	zapConfig.OutputPaths = []string{"stderr"}
	if config.File != "" {
		if err := os.MkdirAll(filepath.Dir(config.File), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		zapConfig.OutputPaths = append(zapConfig.OutputPaths, config.File)
	}

	if config.Debug {
		zapConfig.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}

	logger, err := zapConfig.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}
