// Package logging builds the daemon's zap logger.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewConfig returns the logger config for level. Production output is JSON
// on stderr; development output is coloured console text without
// stacktraces.
func NewConfig(level string, development bool) (zap.Config, error) {
	lvl := zap.NewAtomicLevelAt(zap.InfoLevel)
	if level != "" {
		var err error
		if lvl, err = zap.ParseAtomicLevel(level); err != nil {
			return zap.Config{}, fmt.Errorf("log level: %w", err)
		}
	}

	enc := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	encoding := "json"
	if development {
		enc.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoding = "console"
	}

	return zap.Config{
		Level:             lvl,
		Development:       development,
		Encoding:          encoding,
		EncoderConfig:     enc,
		DisableStacktrace: development,
		OutputPaths:       []string{"stderr"},
		ErrorOutputPaths:  []string{"stderr"},
	}, nil
}

// New builds a named sugared logger.
func New(level string, development bool) (*zap.SugaredLogger, error) {
	cfg, err := NewConfig(level, development)
	if err != nil {
		return nil, err
	}
	l, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return l.Named("heater").Sugar(), nil
}
