package main

import (
	config "github.com/NordCoder/Gatekeeper/internal/config/auth-server"
	"github.com/NordCoder/Gatekeeper/internal/obs"
	"go.uber.org/zap"
)

func initLogger(cfg *config.Config) (*zap.Logger, error) {
	if err := obs.InitSentry(cfg.AsSentryConfig()); err != nil {
		return nil, err
	}
	return obs.NewLogger(*cfg.AsLoggerConfig())
}
