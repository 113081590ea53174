package kafka

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// TopicSpec describes a topic to create. RetentionMs is left to the broker
// default when zero.
type TopicSpec struct {
	Name              string
	NumPartitions     int
	ReplicationFactor int
	RetentionMs       int64
	MaxWait           time.Duration
}

func (s TopicSpec) withDefaults() TopicSpec {
	if s.NumPartitions <= 0 {
		s.NumPartitions = 1
	}
	if s.ReplicationFactor <= 0 {
		s.ReplicationFactor = 1
	}
	if s.MaxWait <= 0 {
		s.MaxWait = 5 * time.Second
	}
	return s
}

func (s TopicSpec) topicConfig() kafka.TopicConfig {
	tc := kafka.TopicConfig{
		Topic:             s.Name,
		NumPartitions:     s.NumPartitions,
		ReplicationFactor: s.ReplicationFactor,
	}
	if s.RetentionMs > 0 {
		tc.ConfigEntries = append(tc.ConfigEntries, kafka.ConfigEntry{
			ConfigName: "retention.ms", ConfigValue: strconv.FormatInt(s.RetentionMs, 10),
		})
	}
	return tc
}

// EnsureTopic creates the topic through the cluster controller and waits up
// to spec.MaxWait for its partitions to show up. An existing topic is fine.
func EnsureTopic(ctx context.Context, brokers []string, spec TopicSpec, log *zap.Logger) error {
	if len(brokers) == 0 {
		return errors.New("kafka: no brokers")
	}
	if log == nil {
		log = zap.NewNop()
	}
	spec = spec.withDefaults()
	log = log.With(zap.String("topic", spec.Name))

	conn, err := kafka.DialContext(ctx, "tcp", brokers[0])
	if err != nil {
		return fmt.Errorf("dial %s: %w", brokers[0], err)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("find controller: %w", err)
	}
	cc, err := kafka.DialContext(ctx, "tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return fmt.Errorf("dial controller: %w", err)
	}
	defer cc.Close()

	if err := cc.CreateTopics(spec.topicConfig()); err != nil && !errors.Is(err, kafka.TopicAlreadyExists) {
		return fmt.Errorf("create topic: %w", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, spec.MaxWait)
	defer cancel()
	for {
		ps, err := conn.ReadPartitions(spec.Name)
		if err == nil && len(ps) > 0 {
			log.Info("topic ready", zap.Int("partitions", len(ps)))
			return nil
		}
		if err := sleepCtx(waitCtx, 200*time.Millisecond); err != nil {
			log.Warn("topic not confirmed ready in time")
			return nil
		}
	}
}
