// Command kafka-init creates the auth event topics and waits until every
// partition has a leader. It is meant to run once before the services start.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/NordCoder/Gatekeeper/internal/obs"
	"github.com/NordCoder/Gatekeeper/internal/obs/retry"
	kafkax "github.com/NordCoder/Gatekeeper/internal/repository/kafka"
)

var errNoLeader = errors.New("partition without leader")

func main() {
	v := viper.New()
	v.SetDefault("kafka_brokers", "kafka:9092")
	v.SetDefault("kafka_topics", "gatekeeper.auth.events")
	v.SetDefault("kafka_partitions", 3)
	v.SetDefault("kafka_rf", 1)
	v.AutomaticEnv()

	l, err := obs.NewLogger(obs.LogConfig{Level: "info", App: "gatekeeper/kafka-init"})
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = l.Sync() }()

	brokers := splitList(v.GetString("kafka_brokers"))
	if len(brokers) == 0 {
		l.Fatal("KAFKA_BROKERS is empty")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	for _, topic := range splitList(v.GetString("kafka_topics")) {
		spec := kafkax.TopicSpec{
			Name:              topic,
			NumPartitions:     v.GetInt("kafka_partitions"),
			ReplicationFactor: v.GetInt("kafka_rf"),
			MaxWait:           10 * time.Second,
		}
		if err := kafkax.EnsureTopic(ctx, brokers, spec, l); err != nil {
			l.Fatal("ensure topic", zap.String("topic", topic), zap.Error(err))
		}
		if err := waitLeaders(ctx, brokers[0], topic, l); err != nil {
			l.Fatal("topic not ready", zap.String("topic", topic), zap.Error(err))
		}
		l.Info("topic ready", zap.String("topic", topic))
	}
}

func waitLeaders(ctx context.Context, broker, topic string, l *zap.Logger) error {
	return retry.Do(ctx, func() error {
		conn, err := kafka.DialContext(ctx, "tcp", broker)
		if err != nil {
			return err
		}
		defer conn.Close()
		parts, err := conn.ReadPartitions(topic)
		if err != nil {
			return err
		}
		if len(parts) == 0 {
			return fmt.Errorf("%s: no partitions yet", topic)
		}
		for _, p := range parts {
			if p.Leader.ID == -1 {
				return fmt.Errorf("%s/%d: %w", topic, p.ID, errNoLeader)
			}
		}
		return nil
	}, retry.Policy{
		Name:     "kafka_topic_ready",
		Attempts: 12,
		Backoff:  retry.ExpoJitter{Base: 200 * time.Millisecond, Max: 5 * time.Second},
		OnAttempt: func(i int, err error) {
			l.Debug("waiting for topic", zap.Int("attempt", i+1), zap.Error(err))
		},
	})
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
