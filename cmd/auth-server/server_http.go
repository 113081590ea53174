package main

import (
	"context"
	"net/http"
	"time"

	config "github.com/NordCoder/Gatekeeper/internal/config/auth-server"
	"github.com/NordCoder/Gatekeeper/internal/obs"
	"github.com/NordCoder/Gatekeeper/internal/services/auth-server/auth"
	"go.uber.org/zap"
)

func buildHTTPServer(cfg *config.Config, logger *zap.Logger, uc *auth.Usecase, checks map[string]func(context.Context) error) *http.Server {
	api := http.NewServeMux()
	auth.NewServer(uc, logger).Register(api)

	root := http.NewServeMux()
	root.Handle("/api/", obs.HTTPHandler(api, "auth-server"))
	root.Handle("GET /metrics", obs.MetricsHandler())
	root.Handle("GET /healthz", obs.HealthHandler(checks))

	return &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           root,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}
}

func serveHTTP(srv *http.Server, cfg *config.Config, logger *zap.Logger) error {
	logger.Info("http listening", zap.String("addr", cfg.Server.HTTPAddr))
	return srv.ListenAndServe()
}
