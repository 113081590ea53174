package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolConfig_Overlay(t *testing.T) {
	pcfg, err := poolConfig(Config{
		DSN:             "postgres://u:p@localhost:5432/gatekeeper?sslmode=disable",
		MaxConns:        8,
		MinConns:        20,
		MaxConnLifetime: time.Minute,
	})
	require.NoError(t, err)
	assert.Equal(t, int32(8), pcfg.MaxConns)
	assert.Equal(t, int32(8), pcfg.MinConns)
	assert.Equal(t, time.Minute, pcfg.MaxConnLifetime)
	assert.Equal(t, "gatekeeper", pcfg.ConnConfig.Database)
}

func TestPoolConfig_BadDSN(t *testing.T) {
	_, err := poolConfig(Config{DSN: "postgres://%zz"})
	assert.Error(t, err)
}

func TestDB_WithTimeout(t *testing.T) {
	ctx, cancel := (&DB{}).withTimeout(context.Background())
	defer cancel()
	_, ok := ctx.Deadline()
	assert.False(t, ok)

	ctx, cancel = (&DB{QueryTimeout: time.Second}).withTimeout(context.Background())
	defer cancel()
	_, ok = ctx.Deadline()
	assert.True(t, ok)
}

func TestPgCode(t *testing.T) {
	assert.Empty(t, pgCode(nil))
	assert.Empty(t, pgCode(context.Canceled))
	assert.Equal(t, codeUniqueViolation, pgCode(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})))
}
