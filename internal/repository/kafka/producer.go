package kafka

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var messagesPublished = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "kafka_messages_published_total",
	Help: "Messages written to kafka, by topic and result.",
}, []string{"topic", "result"})

// Producer writes keyed messages to one topic. Messages with the same key land
// on the same partition and keep their order.
type Producer struct {
	w     *kafka.Writer
	topic string
	log   *zap.Logger
}

func NewProducer(brokers []string, topic string) *Producer {
	return &Producer{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			BatchTimeout: 10 * time.Millisecond,
			WriteTimeout: 10 * time.Second,
		},
		topic: topic,
		log:   zap.NewNop(),
	}
}

func (p *Producer) WithLogger(l *zap.Logger) *Producer {
	if l == nil {
		return p
	}
	cp := *p
	cp.log = l.With(zap.String("component", "kafka.producer"), zap.String("topic", p.topic))
	return &cp
}

// Publish writes one message and carries the trace context in its headers.
func (p *Producer) Publish(ctx context.Context, key, value []byte) error {
	ctx, span := otel.Tracer("kafka.producer").Start(ctx, "kafka.produce "+p.topic,
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			semconv.MessagingSystemKafka,
			semconv.MessagingDestinationName(p.topic),
			semconv.MessagingOperationPublish,
		),
	)
	defer span.End()

	msg := kafka.Message{Key: key, Value: value}
	otel.GetTextMapPropagator().Inject(ctx, headerCarrier{&msg.Headers})

	if err := p.w.WriteMessages(ctx, msg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "write failed")
		messagesPublished.WithLabelValues(p.topic, "error").Inc()
		p.log.Warn("kafka write failed", zap.ByteString("key", key), zap.Error(err))
		return err
	}
	messagesPublished.WithLabelValues(p.topic, "ok").Inc()
	p.log.Debug("message published", zap.ByteString("key", key), zap.Int("value_len", len(value)))
	return nil
}

func (p *Producer) Close() error { return p.w.Close() }
