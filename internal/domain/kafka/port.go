package kafka

import "context"

type AuthEvents interface {
	PublishAuthEvent(ctx context.Context, key string, payload []byte) error
}
