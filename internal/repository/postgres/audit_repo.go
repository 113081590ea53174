package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/NordCoder/Gatekeeper/internal/domain/audit"
)

var _ audit.Repo = (*AuditRepo)(nil)

type AuditRepo struct{ db *DB }

func NewAuditRepo(db *DB) *AuditRepo { return &AuditRepo{db: db} }

const (
	qAuditInsert = `
INSERT INTO audit_logs (id, action, account_id, identifier, detail, occurred_at)
VALUES ($1::uuid, $2, NULLIF($3, ''), $4, $5, COALESCE($6, now()))
ON CONFLICT (id) DO NOTHING;
`
	qAuditByAccount = `
SELECT id::text, action, COALESCE(account_id, ''), identifier, detail, occurred_at
FROM audit_logs
WHERE account_id = $1
ORDER BY occurred_at DESC
LIMIT $2;
`
)

// Insert is idempotent on event id, so redelivered events are written once.
func (r *AuditRepo) Insert(ctx context.Context, ev *audit.Event) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	detail, err := json.Marshal(ev.Detail)
	if err != nil {
		return fmt.Errorf("marshal audit detail: %w", err)
	}

	if _, err := r.db.execQueryer(ctx).Exec(ctx, qAuditInsert,
		ev.ID,
		string(ev.Action),
		ev.AccountID,
		ev.Identifier,
		detail,
		nullTime(ev.At),
	); err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

func (r *AuditRepo) ListByAccount(ctx context.Context, accountID string, limit int) ([]*audit.Event, error) {
	if limit <= 0 {
		limit = 50
	}

	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.Pool.Query(ctx, qAuditByAccount, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit logs: %w", err)
	}
	defer rows.Close()

	out := make([]*audit.Event, 0, limit)
	for rows.Next() {
		var (
			ev     audit.Event
			action string
			detail []byte
		)
		if err := rows.Scan(&ev.ID, &action, &ev.AccountID, &ev.Identifier, &detail, &ev.At); err != nil {
			return nil, fmt.Errorf("scan audit log: %w", err)
		}
		ev.Action = audit.Action(action)
		if len(detail) > 0 {
			if err := json.Unmarshal(detail, &ev.Detail); err != nil {
				return nil, fmt.Errorf("decode audit detail: %w", err)
			}
		}
		out = append(out, &ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}
