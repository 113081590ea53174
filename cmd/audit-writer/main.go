package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	config "github.com/NordCoder/Gatekeeper/internal/config/audit-writer"
	"github.com/NordCoder/Gatekeeper/internal/obs"
	"github.com/NordCoder/Gatekeeper/internal/obs/retry"
	"github.com/NordCoder/Gatekeeper/internal/repository/kafka"
	pg "github.com/NordCoder/Gatekeeper/internal/repository/postgres"
	auditwriter "github.com/NordCoder/Gatekeeper/internal/services/audit-writer"

	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to the yaml config")
	flag.Parse()

	// init
	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal(err)
	}

	// logger
	if err := obs.InitSentry(obs.SentryConfig{DSN: cfg.SentryDSN, Environment: cfg.Env}); err != nil {
		log.Fatal(err)
	}
	defer obs.FlushSentry()
	l, err := obs.NewLogger(*cfg.AsLoggerConfig())
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = l.Sync() }()

	l.Info("starting audit-writer",
		zap.Any("kafka_in", cfg.In),
		zap.String("metrics_addr", cfg.Server.MetricsAddr),
	)

	// otel
	otelCloser, err := obs.SetupOTel(rootCtx, cfg.AsOTELConfig())
	if err != nil {
		l.Fatal("otel init", zap.Error(err))
	}
	defer func() { _ = otelCloser.Shutdown(context.Background()) }()

	// db
	db, err := pg.NewDB(rootCtx, cfg.DB)
	if err != nil {
		l.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()
	l.Info("db connected")

	// metrics
	ms := obs.BootstrapMetricsServer(cfg.Server.MetricsAddr, db.Ping, l)

	// kafka
	cons := kafka.BootstrapConsumer(rootCtx, &kafka.ConsumerConfig{
		Brokers:       cfg.In.Brokers,
		GroupID:       cfg.In.GroupID,
		Topic:         cfg.In.Topic,
		FromBeginning: cfg.In.FromBeginning,
		Logger:        l,
	}, cfg.In.Partitions, l)
	defer func() { _ = cons.Close() }()

	// start
	h := auditwriter.NewHandler(pg.NewAuditRepo(db), retry.StorePolicy(l), l)
	runner := auditwriter.NewRunner(l, cons, h)
	errCh := make(chan error, 1)
	go func() { errCh <- runner.Run(rootCtx) }()

	// main loop
	select {
	case <-rootCtx.Done():
		l.Info("shutdown signal")
	case err = <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			l.Error("runner error", zap.Error(err))
		}
	}

	shCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_ = ms.Shutdown(shCtx)
	l.Info("bye")
}
