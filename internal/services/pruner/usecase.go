package pruner

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/NordCoder/Gatekeeper/internal/domain/account"
)

const defaultBatchLimit = 500

// OutboxPurger deletes outbox messages that were already delivered.
type OutboxPurger interface {
	PurgeDelivered(ctx context.Context, before time.Time, limit int) (int, error)
}

// Usecase removes refresh records that are past their expiry. Expired records
// can never be redeemed, so this only bounds storage. With Outbox set it also
// drops delivered outbox messages older than Retention.
type Usecase struct {
	Store     account.Store
	Outbox    OutboxPurger
	Retention time.Duration
	Now       func() time.Time
}

func NewUC(store account.Store, now func() time.Time) *Usecase {
	if now == nil {
		now = time.Now
	}
	return &Usecase{Store: store, Now: now}
}

// WithOutbox enables purging of delivered outbox messages.
func (u *Usecase) WithOutbox(p OutboxPurger, retention time.Duration) *Usecase {
	u.Outbox = p
	u.Retention = retention
	return u
}

// Tick deletes expired records in batches of limit until a batch comes back
// short, and returns the total removed.
func (u *Usecase) Tick(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = defaultBatchLimit
	}

	ctxTick, span := otel.Tracer("pruner.uc").Start(ctx, "pruner.tick",
		trace.WithAttributes(attribute.Int("batch.limit", limit)),
	)
	defer span.End()

	now := u.Now()
	total := 0
	for {
		n, err := u.Store.PruneRefreshTokens(ctxTick, now, limit)
		total += n
		if err != nil {
			span.RecordError(err)
			return total, fmt.Errorf("prune refresh tokens: %w", err)
		}
		if n < limit || ctxTick.Err() != nil {
			break
		}
	}
	span.SetAttributes(attribute.Int("batch.pruned", total))
	return total, nil
}

// PurgeOutbox is a no-op without an OutboxPurger.
func (u *Usecase) PurgeOutbox(ctx context.Context, limit int) (int, error) {
	if u.Outbox == nil {
		return 0, nil
	}
	if limit <= 0 {
		limit = defaultBatchLimit
	}
	n, err := u.Outbox.PurgeDelivered(ctx, u.Now().Add(-u.Retention), limit)
	if err != nil {
		return n, fmt.Errorf("purge outbox: %w", err)
	}
	return n, nil
}
