package main

import (
	"go.uber.org/zap"

	config "github.com/omnicore/gateway/internal/config/gateway"
	"github.com/omnicore/gateway/internal/obs"
)

func initLogger(cfg *config.Config) (*zap.Logger, error) {
	return obs.NewLogger(*cfg.AsLoggerConfig())
}
