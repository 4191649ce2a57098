// Package logging builds the zap loggers used by the commands.
package logging

import (
	"fmt"

	"go.uber.org/zap"
)

// NewLogger returns a JSON production logger, or a console logger when env
// is "development". level is a zap level name such as "debug" or "warn".
func NewLogger(env, level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level %q: %w", level, err)
	}

	var cfg zap.Config
	switch env {
	case "development", "dev":
		cfg = zap.NewDevelopmentConfig()
	case "production", "prod", "":
		cfg = zap.NewProductionConfig()
	default:
		return nil, fmt.Errorf("unknown log environment %q", env)
	}
	cfg.Level = lvl
	return cfg.Build()
}
