package kafka

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var messagesConsumed = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "kafka_messages_consumed_total",
	Help: "Messages handled by consumers, by topic and result.",
}, []string{"topic", "result"})

// Handler processes one message. A returned error leaves the offset
// uncommitted.
type Handler func(ctx context.Context, key, value []byte) error

type Consumer struct {
	reader *kafka.Reader
	log    *zap.Logger
	cfg    *ConsumerConfig
}

type ConsumerConfig struct {
	Brokers       []string
	GroupID       string
	Topic         string
	FromBeginning bool
	Logger        *zap.Logger
}

func NewConsumer(cfg *ConsumerConfig) *Consumer {
	start := kafka.LastOffset
	if cfg.FromBeginning {
		start = kafka.FirstOffset
	}

	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:               cfg.Brokers,
		GroupID:               cfg.GroupID,
		Topic:                 cfg.Topic,
		StartOffset:           start,
		WatchPartitionChanges: true,

		MinBytes:          1,
		MaxBytes:          10e6,
		MaxWait:           500 * time.Millisecond,
		SessionTimeout:    10 * time.Second,
		RebalanceTimeout:  15 * time.Second,
		HeartbeatInterval: 3 * time.Second,
	})

	c := &Consumer{reader: r, cfg: cfg}
	return c.WithLogger(cfg.Logger)
}

func (c *Consumer) WithLogger(l *zap.Logger) *Consumer {
	if l == nil {
		l = zap.NewNop()
	}
	cp := *c
	cp.log = l.With(
		zap.String("component", "kafka.consumer"),
		zap.String("topic", c.cfg.Topic),
		zap.String("group", c.cfg.GroupID),
	)
	return &cp
}

// backoff doubles from min up to max and resets on success.
type backoff struct {
	min, max, cur time.Duration
}

func (b *backoff) next() time.Duration {
	if b.cur < b.min {
		b.cur = b.min
	}
	d := b.cur
	b.cur = min(b.cur*2, b.max)
	return d
}

func (b *backoff) reset() { b.cur = b.min }

// Consume fetches messages until ctx is done. Fetch errors are retried with
// backoff. Offsets are committed only after h succeeds.
func (c *Consumer) Consume(ctx context.Context, h Handler) error {
	c.log.Info("consumer started")
	defer c.log.Info("consumer stopped")

	bo := backoff{min: 200 * time.Millisecond, max: 5 * time.Second}
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			wait := bo.next()
			if errors.Is(err, io.EOF) {
				c.log.Debug("fetch EOF; retry", zap.Duration("backoff", wait))
			} else {
				c.log.Warn("fetch failed; retry", zap.Error(err), zap.Duration("backoff", wait))
			}
			if err := sleepCtx(ctx, wait); err != nil {
				return err
			}
			continue
		}
		bo.reset()

		if err := c.handle(ctx, h, msg); err != nil {
			messagesConsumed.WithLabelValues(msg.Topic, "error").Inc()
			c.log.Error("handler error", zap.Int("partition", msg.Partition), zap.Int64("offset", msg.Offset), zap.Error(err))
			continue
		}
		messagesConsumed.WithLabelValues(msg.Topic, "ok").Inc()

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.log.Warn("commit failed; will retry later", zap.Error(err))
		}
	}
}

// handle runs h in a consumer span whose parent is the producer's trace
// context carried in the message headers.
func (c *Consumer) handle(ctx context.Context, h Handler, msg kafka.Message) error {
	parent := otel.GetTextMapPropagator().Extract(ctx, headerCarrier{&msg.Headers})
	ctx, span := otel.Tracer("kafka.consumer").Start(parent, "kafka.consume "+msg.Topic,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			semconv.MessagingSystemKafka,
			semconv.MessagingDestinationName(msg.Topic),
			attribute.Int("messaging.kafka.partition", msg.Partition),
			attribute.Int64("messaging.kafka.message.offset", msg.Offset),
		),
	)
	defer span.End()

	if err := h(ctx, msg.Key, msg.Value); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "handler failed")
		return err
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (c *Consumer) Close() error { return c.reader.Close() }
