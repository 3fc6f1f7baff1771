// Package logging constructs the engine's structured logger and provides
// helpers for keeping credentials out of log output.
package logging

import (
	"fmt"

	"go.uber.org/zap"
)

// New builds the root zap logger. Local runs get a human-readable console
// logger at debug level; everything else gets production JSON.
func New(env string) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if env == "local" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}
