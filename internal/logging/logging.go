// Package logging builds the worker's zap logger.
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Environments accepted by New.
const (
	EnvDev  = "dev"
	EnvProd = "prod"
)

// New returns a development logger (console encoding, caller and stack
// traces on warnings) for EnvDev and a JSON production logger otherwise.
// An empty level keeps the environment's default.
func New(env, level string) (*zap.Logger, error) {
	var cfg zap.Config
	switch strings.ToLower(env) {
	case EnvDev:
		cfg = zap.NewDevelopmentConfig()
	case EnvProd, "":
		cfg = zap.NewProductionConfig()
	default:
		return nil, fmt.Errorf("invalid environment %q: must be %q or %q", env, EnvDev, EnvProd)
	}

	if level != "" {
		lvl, err := ParseLevel(level)
		if err != nil {
			return nil, err
		}
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}

	log, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return log, nil
}

// ParseLevel accepts zap level names and the WARNING and CRITICAL aliases
// used by the broker's deployment scripts.
func ParseLevel(level string) (zapcore.Level, error) {
	switch strings.ToUpper(level) {
	case "WARNING":
		return zapcore.WarnLevel, nil
	case "CRITICAL":
		return zapcore.FatalLevel, nil
	}
	lvl, err := zapcore.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zapcore.InfoLevel, fmt.Errorf("invalid log level %q", level)
	}
	return lvl, nil
}
