package main

import (
	"context"

	"github.com/NordCoder/Gatekeeper/internal/audit"
	config "github.com/NordCoder/Gatekeeper/internal/config/auth-server"
	domainaudit "github.com/NordCoder/Gatekeeper/internal/domain/audit"
	"github.com/NordCoder/Gatekeeper/internal/obs/retry"
	"github.com/NordCoder/Gatekeeper/internal/outbox"
	"github.com/NordCoder/Gatekeeper/internal/repository/kafka"
	"github.com/NordCoder/Gatekeeper/internal/services/pruner"
	"go.uber.org/zap"
)

// auditPipeline picks the event emitter and, when events go through the
// outbox, starts the relay to Kafka. The returned stop waits for the relay.
func auditPipeline(ctx context.Context, cfg *config.Config, st *storage, logger *zap.Logger) (domainaudit.Emitter, func()) {
	if st.outbox == nil || !cfg.Kafka.Enable {
		logger.Info("auth events go to the log only")
		return audit.NewLogEmitter(logger), func() {}
	}

	if err := kafka.EnsureTopic(ctx, cfg.Kafka.Brokers, kafka.TopicSpec{
		Name:          cfg.Kafka.Topic,
		NumPartitions: cfg.Kafka.Partitions,
	}, logger); err != nil {
		logger.Warn("ensure topic", zap.String("topic", cfg.Kafka.Topic), zap.Error(err))
	}

	prod := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic).WithLogger(logger)
	events := kafka.NewAuthEventsKafka(prod)

	runner := outbox.NewRunner(
		logger.Named("outbox"),
		st.outbox,
		outbox.MakeGlobalOutboxHandler(events, retry.PublishPolicy(logger)),
		cfg.Outbox.AsRunnerConfig(),
	)
	runner.Start(ctx)

	return audit.NewOutboxEmitter(st.outbox, logger), func() {
		runner.Wait()
		_ = prod.Close()
	}
}

func startPruner(ctx context.Context, cfg *config.Config, st *storage, logger *zap.Logger) <-chan error {
	uc := pruner.NewUC(st.accounts, nil)
	if st.purger != nil {
		uc.WithOutbox(st.purger, cfg.Pruner.OutboxRetention)
	}
	r := pruner.New(logger.Named("pruner"), uc, cfg.Pruner)
	errCh := make(chan error, 1)
	go func() { errCh <- r.Run(ctx) }()
	return errCh
}
