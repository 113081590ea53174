package kafka

import (
	"context"

	"github.com/NordCoder/Gatekeeper/internal/domain/kafka"
)

// AuthEventsKafka publishes serialized audit events keyed by account, so the
// events of one account stay ordered within a partition.
type AuthEventsKafka struct {
	p *Producer
}

func NewAuthEventsKafka(p *Producer) *AuthEventsKafka { return &AuthEventsKafka{p: p} }

var _ kafka.AuthEvents = (*AuthEventsKafka)(nil)

func (e *AuthEventsKafka) PublishAuthEvent(ctx context.Context, key string, payload []byte) error {
	return e.p.Publish(ctx, []byte(key), payload)
}
