package outbox

import (
	"context"
	"time"
)

// Status is the delivery state of a row. IN_PROGRESS rows older than the
// claim TTL are treated as CREATED again.
type Status string

const (
	StatusCreated    Status = "CREATED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusSuccess    Status = "SUCCESS"
)

type Kind int

const (
	KindAuthEvent Kind = 1
)

// Message is one event waiting to leave the process. Key becomes the Kafka
// message key; the trace fields carry the enqueuing request's span context.
type Message struct {
	IdempotencyKey string
	Kind           Kind
	Key            string
	Data           []byte
	Status         Status
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Tracestate     string
	Traceparent    string
	Baggage        string
}

type Repository interface {
	// Enqueue ignores a message whose IdempotencyKey is already stored.
	Enqueue(ctx context.Context, m Message) error
	// PickBatch claims up to batch messages, oldest first.
	PickBatch(ctx context.Context, batch int, inProgressTTL time.Duration) ([]Message, error)
	MarkSuccess(ctx context.Context, keys []string) error
}

type KindHandler func(ctx context.Context, m Message) error

// GlobalHandler resolves the handler for a kind, failing for unknown kinds.
type GlobalHandler func(kind Kind) (KindHandler, error)
