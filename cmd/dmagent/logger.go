package main

import (
	"fmt"
	"log/slog"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/exp/zapslog"
	"go.uber.org/zap/zapcore"

	"github.com/alimaamoun/DM-Agent/config"
)

// newLogger builds a zap core for the configured level and format and
// exposes it as a slog.Logger. Output goes to stderr so the mcp command
// keeps stdout for the protocol.
func newLogger(cfg *config.Config) (*slog.Logger, func(), error) {
	name := strings.ToLower(cfg.Log.Level)
	if name == "warning" {
		name = "warn"
	}
	level, err := zapcore.ParseLevel(name)
	if err != nil {
		return nil, nil, fmt.Errorf("log level: %w", err)
	}

	zcfg := zap.NewProductionConfig()
	if cfg.LogFormat() == "console" {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	zcfg.OutputPaths = []string{"stderr"}
	zcfg.ErrorOutputPaths = []string{"stderr"}
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zcfg.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	z, err := zcfg.Build()
	if err != nil {
		return nil, nil, fmt.Errorf("build zap logger: %w", err)
	}
	handler := zapslog.NewHandler(z.Core(),
		zapslog.WithName("dmagent"),
		zapslog.WithCaller(true),
		zapslog.AddStacktraceAt(slog.LevelError),
	)
	return slog.New(handler), func() { _ = z.Sync() }, nil
}
