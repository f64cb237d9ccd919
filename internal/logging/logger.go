// Package logging provides zap logger helpers.
package logging

import (
	"fmt"
	"io"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config selects the console encoding, level and optional rotated log file.
type Config struct {
	Development bool
	// Level overrides the default (debug in development, info otherwise).
	Level          string
	File           string
	FileMaxSizeMB  int
	FileMaxBackups int
	FileMaxAgeDays int
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// New builds a zap.Logger configured for development or production. When
// cfg.File is set, entries are also written as JSON to a lumberjack-rotated
// file; the returned closer releases it.
func New(cfg Config) (*zap.Logger, io.Closer, error) {
	zcfg := zap.NewProductionConfig()
	zcfg.DisableStacktrace = false
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
		zcfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	zcfg.EncoderConfig.TimeKey = "ts"
	if cfg.Level != "" {
		level, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, nil, fmt.Errorf("parse log level: %w", err)
		}
		zcfg.Level = zap.NewAtomicLevelAt(level)
	}

	var closer io.Closer = nopCloser{}
	var opts []zap.Option
	if cfg.File != "" {
		rotator := fileWriter(cfg)
		encCfg := zap.NewProductionEncoderConfig()
		encCfg.TimeKey = "ts"
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		fileCore := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(rotator), zcfg.Level)
		opts = append(opts, zap.WrapCore(func(core zapcore.Core) zapcore.Core {
			return zapcore.NewTee(core, fileCore)
		}))
		closer = rotator
	}

	logger, err := zcfg.Build(opts...)
	if err != nil {
		_ = closer.Close()
		if cfg.Development {
			return nil, nil, fmt.Errorf("build dev logger: %w", err)
		}
		return nil, nil, fmt.Errorf("build prod logger: %w", err)
	}
	return logger, closer, nil
}

func fileWriter(cfg Config) *lumberjack.Logger {
	maxSize := cfg.FileMaxSizeMB
	if maxSize <= 0 {
		maxSize = 50
	}
	maxBackups := cfg.FileMaxBackups
	if maxBackups <= 0 {
		maxBackups = 3
	}
	maxAge := cfg.FileMaxAgeDays
	if maxAge <= 0 {
		maxAge = 28
	}
	return &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    maxSize,
		MaxBackups: maxBackups,
		MaxAge:     maxAge,
	}
}
