package postgres

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/NordCoder/Gatekeeper/internal/domain/outbox"
)

var _ outbox.Repository = (*OutboxRepo)(nil)

type OutboxRepo struct{ db *DB }

func NewOutboxRepo(db *DB) *OutboxRepo { return &OutboxRepo{db: db} }

const (
	qEnqueue = `
INSERT INTO outbox (idempotency_key, kind, msg_key, data, status, traceparent, tracestate, baggage)
VALUES ($1, $2, $3, $4, 'CREATED', $5, $6, $7)
ON CONFLICT (idempotency_key) DO NOTHING;`

	// Rows stuck IN_PROGRESS longer than $2 seconds belong to a dead worker
	// and are picked again.
	qPick = `
WITH cand AS (
   SELECT idempotency_key
   FROM outbox
   WHERE status = 'CREATED'
      OR (status = 'IN_PROGRESS' AND updated_at < now() - make_interval(secs => $2))
   ORDER BY created_at
   LIMIT $1
   FOR UPDATE SKIP LOCKED
)
UPDATE outbox o
SET status = 'IN_PROGRESS', updated_at = now()
FROM cand
WHERE o.idempotency_key = cand.idempotency_key
RETURNING o.idempotency_key, o.kind, o.msg_key, o.data, o.status, o.created_at, o.updated_at,
          o.traceparent, o.tracestate, o.baggage;`

	qMarkSuccess = `
UPDATE outbox
SET status = 'SUCCESS', updated_at = now()
WHERE idempotency_key = ANY($1);`

	qPurge = `
DELETE FROM outbox
WHERE idempotency_key IN (
   SELECT idempotency_key FROM outbox
   WHERE status = 'SUCCESS' AND updated_at < $1
   LIMIT $2
);`
)

// Enqueue joins the transaction in ctx, if any, so events commit together
// with the state change that produced them.
func (r *OutboxRepo) Enqueue(ctx context.Context, m outbox.Message) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	if _, err := r.db.execQueryer(ctx).Exec(ctx, qEnqueue, m.IdempotencyKey, int(m.Kind), m.Key, m.Data,
		m.Traceparent, m.Tracestate, m.Baggage); err != nil {
		return fmt.Errorf("outbox enqueue: %w", err)
	}
	return nil
}

// PickBatch claims up to batch messages for this worker. Order within the
// batch follows creation time.
func (r *OutboxRepo) PickBatch(ctx context.Context, batch int, inProgressTTL time.Duration) ([]outbox.Message, error) {
	if batch <= 0 {
		return nil, errors.New("batch must be > 0")
	}
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.Pool.Query(ctx, qPick, batch, inProgressTTL.Seconds())
	if err != nil {
		return nil, fmt.Errorf("outbox pick: %w", err)
	}
	out, err := pgx.CollectRows(rows, scanMessage)
	if err != nil {
		return nil, fmt.Errorf("outbox scan: %w", err)
	}
	slices.SortFunc(out, func(a, b outbox.Message) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, nil
}

func scanMessage(row pgx.CollectableRow) (outbox.Message, error) {
	var (
		m      outbox.Message
		kind   int
		status string
	)
	err := row.Scan(&m.IdempotencyKey, &kind, &m.Key, &m.Data, &status, &m.CreatedAt, &m.UpdatedAt,
		&m.Traceparent, &m.Tracestate, &m.Baggage)
	m.Kind = outbox.Kind(kind)
	m.Status = outbox.Status(status)
	return m, err
}

func (r *OutboxRepo) MarkSuccess(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()
	if _, err := r.db.Pool.Exec(ctx, qMarkSuccess, keys); err != nil {
		return fmt.Errorf("outbox mark success: %w", err)
	}
	return nil
}

// PurgeDelivered deletes up to limit delivered messages last touched before
// before.
func (r *OutboxRepo) PurgeDelivered(ctx context.Context, before time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = 1000
	}
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tag, err := r.db.Pool.Exec(ctx, qPurge, before, limit)
	if err != nil {
		return 0, fmt.Errorf("outbox purge: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
