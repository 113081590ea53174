package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// BootstrapConsumer makes sure the topic exists before the reader joins its group.
func BootstrapConsumer(ctx context.Context, cfg *ConsumerConfig, partitions int, logger *zap.Logger) *Consumer {
	if err := EnsureTopic(ctx, cfg.Brokers, TopicSpec{
		Name:              cfg.Topic,
		NumPartitions:     partitions,
		ReplicationFactor: 1,
		MaxWait:           5 * time.Second,
	}, logger); err != nil {
		logger.Warn("ensure topic", zap.String("topic", cfg.Topic), zap.Error(err))
	}

	return NewConsumer(cfg)
}
