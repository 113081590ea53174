package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/NordCoder/Gatekeeper/internal/domain/account"
)

var _ account.Store = (*AccountRepo)(nil)

type AccountRepo struct {
	db *DB
	tx Transactor
}

func NewAccountRepo(db *DB, tx Transactor) *AccountRepo { return &AccountRepo{db: db, tx: tx} }

const accountColumns = `id::text, email, name, password_hash, role, is_active, last_login_at,
       failed_attempts, locked_until, credential_changed_at, created_at, updated_at`

const (
	qAccountInsert = `
INSERT INTO accounts (email, name, password_hash, role, is_active, credential_changed_at)
VALUES (lower($1), $2, $3, $4, $5, $6)
RETURNING ` + accountColumns + `;`

	qAccountByID = `
SELECT ` + accountColumns + `
FROM accounts
WHERE id = $1::uuid;`

	qAccountByIDForUpdate = `
SELECT ` + accountColumns + `
FROM accounts
WHERE id = $1::uuid
FOR UPDATE;`

	qAccountByEmail = `
SELECT ` + accountColumns + `
FROM accounts
WHERE email = lower($1);`

	qAccountByRefresh = `
SELECT a.id::text, a.email, a.name, a.password_hash, a.role, a.is_active, a.last_login_at,
       a.failed_attempts, a.locked_until, a.credential_changed_at, a.created_at, a.updated_at
FROM accounts a
JOIN refresh_tokens rt ON rt.account_id = a.id
WHERE rt.token_hash = $1;`

	qAccountUpdate = `
UPDATE accounts
SET email                 = lower($2),
    name                  = $3,
    password_hash         = $4,
    role                  = $5,
    is_active             = $6,
    last_login_at         = $7,
    failed_attempts       = $8,
    locked_until          = $9,
    credential_changed_at = $10,
    updated_at            = now()
WHERE id = $1::uuid
RETURNING updated_at;`

	qAccountDelete = `
DELETE FROM accounts
WHERE id = $1::uuid;`

	qTokensByAccount = `
SELECT token_hash, issued_at, expires_at
FROM refresh_tokens
WHERE account_id = $1::uuid;`

	qTokenInsert = `
INSERT INTO refresh_tokens (token_hash, account_id, issued_at, expires_at)
VALUES ($1, $2::uuid, $3, $4);`

	qTokenDelete = `
DELETE FROM refresh_tokens
WHERE token_hash = ANY($1);`

	qTokenPrune = `
DELETE FROM refresh_tokens
WHERE token_hash IN (
    SELECT token_hash
    FROM refresh_tokens
    WHERE expires_at <= $1
    ORDER BY expires_at
    LIMIT $2
);`
)

func (r *AccountRepo) Create(ctx context.Context, a *account.Account) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	row := r.db.execQueryer(ctx).QueryRow(ctx, qAccountInsert,
		a.Email, a.Name, a.PasswordHash, string(a.Role), a.Active, a.CredentialChangedAt)
	created, err := scanAccount(row)
	if err != nil {
		if pgCode(err) == codeUniqueViolation {
			return account.ErrConflict
		}
		return fmt.Errorf("account insert: %w", err)
	}
	tokens := a.RefreshTokens
	*a = *created
	a.RefreshTokens = tokens
	return nil
}

func (r *AccountRepo) FindByID(ctx context.Context, id string) (*account.Account, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	return scanAccount(r.db.execQueryer(ctx).QueryRow(ctx, qAccountByID, id))
}

func (r *AccountRepo) FindByIdentifier(ctx context.Context, email string) (*account.Account, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	return scanAccount(r.db.execQueryer(ctx).QueryRow(ctx, qAccountByEmail, email))
}

func (r *AccountRepo) FindByRefreshToken(ctx context.Context, hash string) (*account.Account, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	return scanAccount(r.db.execQueryer(ctx).QueryRow(ctx, qAccountByRefresh, hash))
}

// Update locks the account row for the duration of fn, so concurrent updates
// of one account are serialized by Postgres.
func (r *AccountRepo) Update(ctx context.Context, id string, fn account.Mutator) (*account.Account, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var out *account.Account
	err := r.tx.WithTx(ctx, func(ctx context.Context) error {
		q := r.db.execQueryer(ctx)

		a, err := scanAccount(q.QueryRow(ctx, qAccountByIDForUpdate, id))
		if err != nil {
			return err
		}
		if a.RefreshTokens, err = loadTokens(ctx, q, a.ID); err != nil {
			return err
		}
		before := a.Clone()

		if err := fn(a); err != nil {
			return err
		}
		a.ID = before.ID

		if err := q.QueryRow(ctx, qAccountUpdate,
			a.ID, a.Email, a.Name, a.PasswordHash, string(a.Role), a.Active,
			a.LastLoginAt, a.FailedAttempts, a.LockedUntil, a.CredentialChangedAt,
		).Scan(&a.UpdatedAt); err != nil {
			if pgCode(err) == codeUniqueViolation {
				return account.ErrConflict
			}
			return fmt.Errorf("account update: %w", err)
		}

		if err := syncTokens(ctx, q, a.ID, before.RefreshTokens, a.RefreshTokens); err != nil {
			return err
		}
		out = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *AccountRepo) Delete(ctx context.Context, id string) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tag, err := r.db.execQueryer(ctx).Exec(ctx, qAccountDelete, id)
	if err != nil {
		if pgCode(err) == codeInvalidTextRepr {
			return account.ErrNotFound
		}
		return fmt.Errorf("account delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return account.ErrNotFound
	}
	return nil
}

func (r *AccountRepo) PruneRefreshTokens(ctx context.Context, now time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = 1000
	}
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tag, err := r.db.execQueryer(ctx).Exec(ctx, qTokenPrune, now, limit)
	if err != nil {
		return 0, fmt.Errorf("prune refresh tokens: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func loadTokens(ctx context.Context, q execQueryer, accountID string) (map[string]account.RefreshToken, error) {
	rows, err := q.Query(ctx, qTokensByAccount, accountID)
	if err != nil {
		return nil, fmt.Errorf("query refresh tokens: %w", err)
	}
	defer rows.Close()

	out := make(map[string]account.RefreshToken)
	for rows.Next() {
		var rt account.RefreshToken
		if err := rows.Scan(&rt.Hash, &rt.IssuedAt, &rt.ExpiresAt); err != nil {
			return nil, fmt.Errorf("scan refresh token: %w", err)
		}
		out[rt.Hash] = rt
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

// syncTokens writes the difference between two refresh-token sets.
func syncTokens(ctx context.Context, q execQueryer, accountID string, before, after map[string]account.RefreshToken) error {
	var removed []string
	for h := range before {
		if _, ok := after[h]; !ok {
			removed = append(removed, h)
		}
	}
	if len(removed) > 0 {
		if _, err := q.Exec(ctx, qTokenDelete, removed); err != nil {
			return fmt.Errorf("delete refresh tokens: %w", err)
		}
	}

	for h, rt := range after {
		if _, ok := before[h]; ok {
			continue
		}
		if _, err := q.Exec(ctx, qTokenInsert, h, accountID, rt.IssuedAt, rt.ExpiresAt); err != nil {
			if pgCode(err) == codeUniqueViolation {
				return account.ErrConflict
			}
			return fmt.Errorf("insert refresh token: %w", err)
		}
	}
	return nil
}

func scanAccount(row pgx.Row) (*account.Account, error) {
	var (
		a    account.Account
		role string
	)
	if err := row.Scan(&a.ID, &a.Email, &a.Name, &a.PasswordHash, &role, &a.Active, &a.LastLoginAt,
		&a.FailedAttempts, &a.LockedUntil, &a.CredentialChangedAt, &a.CreatedAt, &a.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) || pgCode(err) == codeInvalidTextRepr {
			return nil, account.ErrNotFound
		}
		return nil, fmt.Errorf("scan account: %w", err)
	}
	a.Role = account.Role(role)
	return &a, nil
}
