package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config represents logger configuration
type Config struct {
	Level       string `json:"level" yaml:"level"`
	Format      string `json:"format" yaml:"format"`
	Output      string `json:"output" yaml:"output"`
	ServiceName string `json:"service_name" yaml:"service_name"`
	Development bool   `json:"development" yaml:"development"`
}

// NewLogger creates a zap logger from the given configuration.
func NewLogger(config Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(config.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	var zapConfig zap.Config
	if config.Development {
		zapConfig = zap.NewDevelopmentConfig()
		zapConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		zapConfig = zap.NewProductionConfig()
		zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	zapConfig.Level = zap.NewAtomicLevelAt(level)

	switch strings.ToLower(config.Format) {
	case "console":
		zapConfig.Encoding = "console"
	default:
		zapConfig.Encoding = "json"
	}

	switch strings.ToLower(config.Output) {
	case "stderr":
		zapConfig.OutputPaths = []string{"stderr"}
	case "", "stdout":
		zapConfig.OutputPaths = []string{"stdout"}
	default:
		zapConfig.OutputPaths = []string{config.Output}
	}

	zapConfig.InitialFields = map[string]interface{}{
		"service": config.ServiceName,
	}

	return zapConfig.Build(zap.AddCaller())
}
