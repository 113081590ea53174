// Package audit turns auth events into durable outbox messages.
package audit

import (
	"context"
	"encoding/json"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"

	"github.com/NordCoder/Gatekeeper/internal/domain/audit"
	"github.com/NordCoder/Gatekeeper/internal/domain/outbox"
	"github.com/NordCoder/Gatekeeper/internal/obs"
)

var (
	_ audit.Emitter = (*OutboxEmitter)(nil)
	_ audit.Emitter = (*LogEmitter)(nil)
)

// OutboxEmitter enqueues events for the outbox runner. The event id is the
// idempotency key, so a retried Emit is stored once.
type OutboxEmitter struct {
	repo outbox.Repository
	log  *zap.Logger
}

func NewOutboxEmitter(repo outbox.Repository, log *zap.Logger) *OutboxEmitter {
	return &OutboxEmitter{repo: repo, log: log.With(zap.String("component", "audit.outbox"))}
}

func (e *OutboxEmitter) Emit(ctx context.Context, ev audit.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		obs.WithTrace(ctx, e.log).Error("marshal audit event", zap.String("action", string(ev.Action)), zap.Error(err))
		return
	}

	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)

	m := outbox.Message{
		IdempotencyKey: ev.ID,
		Kind:           outbox.KindAuthEvent,
		Key:            PartitionKey(ev),
		Data:           data,
		Traceparent:    carrier.Get("traceparent"),
		Tracestate:     carrier.Get("tracestate"),
		Baggage:        carrier.Get("baggage"),
	}
	if err := e.repo.Enqueue(ctx, m); err != nil {
		obs.WithTrace(ctx, e.log).Error("enqueue audit event",
			zap.String("action", string(ev.Action)), zap.String("event_id", ev.ID), zap.Error(err))
	}
}

// PartitionKey keeps the events of one account in order.
func PartitionKey(ev audit.Event) string {
	if ev.AccountID != "" {
		return ev.AccountID
	}
	return ev.Identifier
}

// LogEmitter writes events to the log only. Used when no outbox is configured.
type LogEmitter struct {
	log *zap.Logger
}

func NewLogEmitter(log *zap.Logger) *LogEmitter {
	return &LogEmitter{log: log.With(zap.String("component", "audit"))}
}

func (e *LogEmitter) Emit(ctx context.Context, ev audit.Event) {
	obs.WithTrace(ctx, e.log).Info("auth event",
		zap.String("event_id", ev.ID),
		zap.String("action", string(ev.Action)),
		zap.String("account_id", ev.AccountID),
		zap.String("identifier", ev.Identifier),
		zap.Any("detail", ev.Detail),
		zap.Time("at", ev.At),
	)
}
