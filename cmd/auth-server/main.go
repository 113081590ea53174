package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	config "github.com/NordCoder/Gatekeeper/internal/config/auth-server"
	"github.com/NordCoder/Gatekeeper/internal/lockout"
	"github.com/NordCoder/Gatekeeper/internal/obs"
	"github.com/NordCoder/Gatekeeper/internal/services/auth-server/auth"
	"github.com/NordCoder/Gatekeeper/internal/token"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to the yaml config")
	flag.Parse()

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal(err)
	}

	logger, err := initLogger(cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer obs.FlushSentry()
	defer func() { _ = logger.Sync() }()
	logger.Info("starting auth-server",
		zap.String("env", cfg.App.Env),
		zap.String("ver", cfg.App.Version),
		zap.String("store", cfg.Store.Driver),
	)

	otelShutdown, err := initOTel(rootCtx, cfg)
	if err != nil {
		logger.Fatal("otel init", zap.Error(err))
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	st, err := initStorage(rootCtx, cfg, logger)
	if err != nil {
		logger.Fatal("storage init", zap.Error(err))
	}
	defer st.close()

	cache, err := initCache(rootCtx, cfg, logger)
	if err != nil {
		logger.Fatal("redis connect", zap.Error(err))
	}
	defer func() { _ = cache.Close() }()
	st.checks["redis"] = cache.Ping

	workCtx, stopWork := context.WithCancel(rootCtx)
	defer stopWork()

	emitter, stopAudit := auditPipeline(workCtx, cfg, st, logger)
	prunerErrCh := startPruner(workCtx, cfg, st, logger)

	uc := auth.NewUsecase(st.accounts, cache, token.NewService(cfg.Auth.AsTokenConfig()), emitter, logger, auth.Config{
		SessionTTL: cfg.Auth.SessionTTL,
		Lockout: lockout.Policy{
			MaxAttempts:  cfg.Auth.MaxFailedAttempts,
			LockDuration: cfg.Auth.LockDuration,
		},
		BcryptCost:     cfg.Auth.BcryptCost,
		MinPasswordLen: cfg.Auth.MinPasswordLen,
	})

	grpcServer, healthSrv, grpcLn, err := buildGRPCServer(cfg, uc)
	if err != nil {
		logger.Fatal("build grpc", zap.Error(err))
	}
	grpcErrCh := make(chan error, 1)
	go func() { grpcErrCh <- serveGRPC(grpcServer, grpcLn, cfg, logger) }()

	httpSrv := buildHTTPServer(cfg, logger, uc, st.checks)
	httpErrCh := make(chan error, 1)
	go func() { httpErrCh <- serveHTTP(httpSrv, cfg, logger) }()

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal")
	case err = <-grpcErrCh:
		logger.Error("grpc serve", zap.Error(err))
	case err = <-httpErrCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http serve", zap.Error(err))
		}
	case err = <-prunerErrCh:
		logger.Error("pruner stopped", zap.Error(err))
	}

	shCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()

	if err := httpSrv.Shutdown(shCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	gracefulStopGRPC(grpcServer, healthSrv)

	stopWork()
	stopAudit()
	logger.Info("bye")
}
