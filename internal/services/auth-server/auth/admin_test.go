package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NordCoder/Gatekeeper/internal/domain/audit"
	"github.com/NordCoder/Gatekeeper/internal/domain/autherr"
)

func TestDeactivateRevokesRefreshAndSession(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	res := e.register(t, alice, password)

	v, err := e.uc.Deactivate(ctx, "admin-1", res.Account.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Account.ID, v.ID)

	_, err = e.uc.Refresh(ctx, res.Tokens.RefreshToken)
	require.ErrorIs(t, err, autherr.ErrInvalidRefreshToken)

	_, ok, err := e.cache.GetSession(ctx, res.Account.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = e.uc.Deactivate(ctx, "admin-1", "missing")
	require.ErrorIs(t, err, autherr.ErrUserNotFound)
}

func TestUnlockClearsLock(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	res := e.register(t, alice, password)

	for i := 0; i < 5; i++ {
		_, _ = e.uc.Login(ctx, alice, "wrong-password")
	}
	_, err := e.uc.Login(ctx, alice, password)
	require.ErrorIs(t, err, autherr.ErrAccountLocked)

	_, err = e.uc.Unlock(ctx, "admin-1", res.Account.ID)
	require.NoError(t, err)

	_, err = e.uc.Login(ctx, alice, password)
	require.NoError(t, err)
	assert.Contains(t, e.events.actions(), audit.ActionAccountUnlocked)
}

func TestDeleteDropsSession(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	res := e.register(t, alice, password)

	require.NoError(t, e.uc.Delete(ctx, "admin-1", res.Account.ID))

	_, ok, err := e.cache.GetSession(ctx, res.Account.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	require.ErrorIs(t, e.uc.Delete(ctx, "admin-1", res.Account.ID), autherr.ErrUserNotFound)

	_, err = e.uc.CurrentSession(ctx, res.Account.ID)
	require.ErrorIs(t, err, autherr.ErrUserNotFound)
}
