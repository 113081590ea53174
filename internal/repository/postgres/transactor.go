package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// Transactor runs fn inside one database transaction. Repositories called
// with the ctx fn receives use that transaction.
type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

var _ Transactor = (*txManager)(nil)

type txManager struct {
	db     *DB
	opts   pgx.TxOptions
	logger *zap.Logger
}

func NewTransactor(db *DB, logger *zap.Logger) Transactor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &txManager{db: db, opts: pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, logger: logger}
}

// WithTx commits when fn returns nil and rolls back otherwise. A nested call
// joins the outer transaction and leaves the commit to it.
func (t *txManager) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if txFrom(ctx) != nil {
		return fn(ctx)
	}

	tx, err := t.db.Pool.BeginTx(ctx, t.opts)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		// The caller's ctx may already be done; rollback must still reach the server.
		if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			t.logger.Error("rollback", zap.Error(rbErr))
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type txKey struct{}

func txFrom(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(txKey{}).(pgx.Tx)
	return tx
}

type execQueryer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// execQueryer returns the transaction carried by ctx, or the pool.
func (db *DB) execQueryer(ctx context.Context) execQueryer {
	if tx := txFrom(ctx); tx != nil {
		return tx
	}
	return db.Pool
}
