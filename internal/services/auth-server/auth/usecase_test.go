package auth

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NordCoder/Gatekeeper/internal/domain/account"
	"github.com/NordCoder/Gatekeeper/internal/domain/audit"
	"github.com/NordCoder/Gatekeeper/internal/domain/autherr"
	"github.com/NordCoder/Gatekeeper/internal/domain/session"
)

const (
	alice    = "alice@example.com"
	password = "correct-horse"
)

func TestRegisterAuthenticateLogout(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	res := e.register(t, alice, password)
	assert.Equal(t, alice, res.Account.Email)
	assert.Equal(t, account.RoleStandard, res.Account.Role)

	v, err := e.uc.AuthenticateRequest(ctx, res.Tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, res.Account.ID, v.ID)

	require.NoError(t, e.uc.Logout(ctx, res.Tokens.AccessToken, res.Tokens.RefreshToken, res.Account.ID))

	_, err = e.uc.AuthenticateRequest(ctx, res.Tokens.AccessToken)
	require.ErrorIs(t, err, autherr.ErrBlacklistedToken)

	_, err = e.uc.Refresh(ctx, res.Tokens.RefreshToken)
	require.ErrorIs(t, err, autherr.ErrInvalidRefreshToken)

	_, ok, err := e.cache.GetSession(ctx, res.Account.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Contains(t, e.events.actions(), audit.ActionLogout)
}

func TestFiveFailuresLockTheAccount(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	res := e.register(t, alice, password)

	for i := 0; i < 5; i++ {
		_, err := e.uc.Login(ctx, alice, "wrong-password")
		require.ErrorIs(t, err, autherr.ErrInvalidCredentials, "attempt %d", i+1)
	}

	acc, err := e.store.FindByID(ctx, res.Account.ID)
	require.NoError(t, err)
	require.NotNil(t, acc.LockedUntil)
	assert.Equal(t, t0.Add(2*time.Hour), *acc.LockedUntil)

	_, err = e.uc.Login(ctx, alice, password)
	require.ErrorIs(t, err, autherr.ErrAccountLocked)

	e.clock.Advance(2*time.Hour - time.Second)
	_, err = e.uc.Login(ctx, alice, password)
	require.ErrorIs(t, err, autherr.ErrAccountLocked)

	assert.Contains(t, e.events.actions(), audit.ActionAccountLocked)
}

func TestLapsedLockSuccessResetsCounter(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	res := e.register(t, alice, password)

	for i := 0; i < 5; i++ {
		_, _ = e.uc.Login(ctx, alice, "wrong-password")
	}
	e.clock.Advance(2 * time.Hour)

	_, err := e.uc.Login(ctx, alice, password)
	require.NoError(t, err)

	acc, err := e.store.FindByID(ctx, res.Account.ID)
	require.NoError(t, err)
	assert.Zero(t, acc.FailedAttempts)
	assert.Nil(t, acc.LockedUntil)
	require.NotNil(t, acc.LastLoginAt)
	assert.Equal(t, e.clock.Now(), *acc.LastLoginAt)
}

func TestLapsedLockFailureRestartsAtOne(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	res := e.register(t, alice, password)

	for i := 0; i < 5; i++ {
		_, _ = e.uc.Login(ctx, alice, "wrong-password")
	}
	e.clock.Advance(2 * time.Hour)

	_, err := e.uc.Login(ctx, alice, "wrong-password")
	require.ErrorIs(t, err, autherr.ErrInvalidCredentials)

	acc, err := e.store.FindByID(ctx, res.Account.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, acc.FailedAttempts)
	assert.Nil(t, acc.LockedUntil)
}

func TestConcurrentFailuresAreAllCounted(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	res := e.register(t, alice, password)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = e.uc.Login(ctx, alice, "wrong-password")
		}()
	}
	wg.Wait()

	acc, err := e.store.FindByID(ctx, res.Account.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, acc.FailedAttempts)
	assert.Nil(t, acc.LockedUntil)
}

func TestUnknownAccountAndWrongPasswordLookAlike(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.register(t, alice, password)

	_, errUnknown := e.uc.Login(ctx, "bob@example.com", password)
	_, errWrong := e.uc.Login(ctx, alice, "wrong-password")

	kindA, msgA := autherr.Public(errUnknown)
	kindB, msgB := autherr.Public(errWrong)
	assert.Equal(t, autherr.KindInvalidCredentials, kindA)
	assert.Equal(t, kindA, kindB)
	assert.Equal(t, msgA, msgB)
}

func TestLoginInputAndInactive(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	res := e.register(t, alice, password)

	_, err := e.uc.Login(ctx, "", password)
	require.ErrorIs(t, err, autherr.New(autherr.KindInvalidInput, ""))
	_, err = e.uc.Login(ctx, alice, "")
	require.ErrorIs(t, err, autherr.New(autherr.KindInvalidInput, ""))

	_, err = e.uc.Deactivate(ctx, "admin", res.Account.ID)
	require.NoError(t, err)

	_, err = e.uc.Login(ctx, alice, password)
	require.ErrorIs(t, err, autherr.ErrAccountInactive)
}

func TestLoginIsCaseInsensitiveOnIdentifier(t *testing.T) {
	e := newEnv(t)
	e.register(t, alice, password)

	res, err := e.uc.Login(context.Background(), "  Alice@Example.COM ", password)
	require.NoError(t, err)
	assert.Equal(t, alice, res.Account.Email)
}

func TestRefreshIsSingleUse(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	res := e.register(t, alice, password)

	e.clock.Advance(time.Minute)
	pair, err := e.uc.Refresh(ctx, res.Tokens.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, res.Tokens.RefreshToken, pair.RefreshToken)

	_, err = e.uc.Refresh(ctx, res.Tokens.RefreshToken)
	require.ErrorIs(t, err, autherr.ErrInvalidRefreshToken)

	_, err = e.uc.AuthenticateRequest(ctx, pair.AccessToken)
	require.NoError(t, err)

	_, err = e.uc.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
}

func TestConcurrentRefreshHasOneWinner(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	res := e.register(t, alice, password)

	var (
		wg     sync.WaitGroup
		wins   int32
		losses int32
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.uc.Refresh(ctx, res.Tokens.RefreshToken)
			switch {
			case err == nil:
				atomic.AddInt32(&wins, 1)
			case autherr.KindOf(err) == autherr.KindInvalidRefreshToken:
				atomic.AddInt32(&losses, 1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, wins)
	assert.EqualValues(t, 9, losses)
}

func TestRefreshRejectsAccessTokenAndGarbage(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	res := e.register(t, alice, password)

	_, err := e.uc.Refresh(ctx, res.Tokens.AccessToken)
	require.ErrorIs(t, err, autherr.ErrInvalidRefreshToken)

	_, err = e.uc.Refresh(ctx, "garbage")
	require.ErrorIs(t, err, autherr.ErrInvalidRefreshToken)

	_, err = e.uc.Refresh(ctx, "")
	require.ErrorIs(t, err, autherr.New(autherr.KindInvalidInput, ""))
}

func TestChangeCredentialInvalidatesEarlierTokens(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	res := e.register(t, alice, password)

	e.clock.Advance(time.Second)
	pair, err := e.uc.ChangeCredential(ctx, res.Account.ID, password, "new-password-1")
	require.NoError(t, err)

	_, err = e.uc.AuthenticateRequest(ctx, res.Tokens.AccessToken)
	require.ErrorIs(t, err, autherr.ErrStalePasswordToken)

	_, err = e.uc.Refresh(ctx, res.Tokens.RefreshToken)
	require.ErrorIs(t, err, autherr.ErrInvalidRefreshToken)

	_, err = e.uc.AuthenticateRequest(ctx, pair.AccessToken)
	require.NoError(t, err)

	_, err = e.uc.Login(ctx, alice, password)
	require.ErrorIs(t, err, autherr.ErrInvalidCredentials)
	_, err = e.uc.Login(ctx, alice, "new-password-1")
	require.NoError(t, err)
}

func TestChangeCredentialWithinSameSecond(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.clock.Advance(100 * time.Millisecond)
	res := e.register(t, alice, password)

	e.clock.Advance(800 * time.Millisecond)
	pair, err := e.uc.ChangeCredential(ctx, res.Account.ID, password, "new-password-1")
	require.NoError(t, err)

	_, err = e.uc.AuthenticateRequest(ctx, res.Tokens.AccessToken)
	require.ErrorIs(t, err, autherr.ErrStalePasswordToken)

	_, err = e.uc.AuthenticateRequest(ctx, pair.AccessToken)
	require.NoError(t, err)
}

func TestChangeCredentialRejectsWrongCurrent(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	res := e.register(t, alice, password)

	_, err := e.uc.ChangeCredential(ctx, res.Account.ID, "not-my-password", "new-password-1")
	require.ErrorIs(t, err, autherr.ErrInvalidCredentials)

	_, err = e.uc.ChangeCredential(ctx, res.Account.ID, password, "short")
	require.ErrorIs(t, err, autherr.New(autherr.KindInvalidInput, ""))

	_, err = e.uc.AuthenticateRequest(ctx, res.Tokens.AccessToken)
	require.NoError(t, err)
}

func TestPipelineStageOrder(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	res := e.register(t, alice, password)

	_, err := e.uc.AuthenticateRequest(ctx, "")
	require.ErrorIs(t, err, autherr.ErrMissingToken)

	_, err = e.uc.AuthenticateRequest(ctx, "not.a.token")
	require.ErrorIs(t, err, autherr.ErrInvalidSignature)

	// A revoked token is rejected before its signature is looked at.
	require.NoError(t, e.cache.Revoke(ctx, "not.a.token", t0.Add(time.Hour)))
	_, err = e.uc.AuthenticateRequest(ctx, "not.a.token")
	require.ErrorIs(t, err, autherr.ErrBlacklistedToken)

	e.clock.Advance(24 * time.Hour)
	_, err = e.uc.AuthenticateRequest(ctx, res.Tokens.AccessToken)
	require.ErrorIs(t, err, autherr.ErrExpired)
}

func TestPipelineAccountChecks(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.register(t, alice, password)
	b := e.register(t, "bob@example.com", password)

	_, err := e.uc.Deactivate(ctx, "admin", a.Account.ID)
	require.NoError(t, err)
	_, err = e.uc.AuthenticateRequest(ctx, a.Tokens.AccessToken)
	require.ErrorIs(t, err, autherr.ErrAccountInactive)

	require.NoError(t, e.uc.Delete(ctx, "admin", b.Account.ID))
	_, err = e.uc.AuthenticateRequest(ctx, b.Tokens.AccessToken)
	require.ErrorIs(t, err, autherr.ErrUserNotFound)
}

func TestRevocationReadFailureFailsClosed(t *testing.T) {
	e := newEnvWithCache(t, func(c session.Cache) session.Cache {
		return &failingCache{Cache: c, err: errCacheDown}
	})
	ctx := context.Background()
	res := e.register(t, alice, password)

	_, err := e.uc.AuthenticateRequest(ctx, res.Tokens.AccessToken)
	require.Error(t, err)
	assert.Equal(t, autherr.KindInfrastructure, autherr.KindOf(err))
	assert.True(t, autherr.Retryable(err))
}

func TestLogoutSurfacesRevokeFailure(t *testing.T) {
	e := newEnvWithCache(t, func(c session.Cache) session.Cache {
		return &failingCache{Cache: c, err: errCacheDown}
	})
	ctx := context.Background()
	res := e.register(t, alice, password)

	err := e.uc.Logout(ctx, res.Tokens.AccessToken, res.Tokens.RefreshToken, res.Account.ID)
	require.Error(t, err)
	assert.Equal(t, autherr.KindInfrastructure, autherr.KindOf(err))

	// The refresh token survives a failed logout.
	_, err = e.uc.Refresh(ctx, res.Tokens.RefreshToken)
	require.NoError(t, err)
}

func TestLogoutOfAnotherAccountIsForbidden(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.register(t, alice, password)
	b := e.register(t, "bob@example.com", password)

	err := e.uc.Logout(ctx, a.Tokens.AccessToken, "", b.Account.ID)
	require.ErrorIs(t, err, autherr.ErrForbidden)
}

func TestLogoutWithoutRefreshToken(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	res := e.register(t, alice, password)

	require.NoError(t, e.uc.Logout(ctx, res.Tokens.AccessToken, "", res.Account.ID))

	_, err := e.uc.Refresh(ctx, res.Tokens.RefreshToken)
	require.NoError(t, err)
}

func TestRegisterValidation(t *testing.T) {
	e := newEnv(t)
	e.register(t, alice, password)

	cases := []struct {
		name string
		in   RegisterInput
		kind autherr.Kind
	}{
		{"short name", RegisterInput{Name: "A", Email: "a@example.com", Password: password}, autherr.KindInvalidInput},
		{"long name", RegisterInput{Name: string(make([]byte, 51)), Email: "a@example.com", Password: password}, autherr.KindInvalidInput},
		{"bad email", RegisterInput{Name: "Ann", Email: "not-an-email", Password: password}, autherr.KindInvalidInput},
		{"email without domain dot", RegisterInput{Name: "Ann", Email: "ann@localhost", Password: password}, autherr.KindInvalidInput},
		{"short password", RegisterInput{Name: "Ann", Email: "a@example.com", Password: "1234567"}, autherr.KindInvalidInput},
		{"duplicate", RegisterInput{Name: "Ann", Email: "ALICE@example.com", Password: password}, autherr.KindConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := e.uc.Register(context.Background(), tc.in)
			require.Error(t, err)
			assert.Equal(t, tc.kind, autherr.KindOf(err))
		})
	}
}

func TestResultsNeverCarryCredentialHash(t *testing.T) {
	e := newEnv(t)
	res := e.register(t, alice, password)

	b, err := json.Marshal(res)
	require.NoError(t, err)
	assert.NotContains(t, string(b), "$2a$")

	acc, err := e.store.FindByID(context.Background(), res.Account.ID)
	require.NoError(t, err)
	assert.NotContains(t, string(b), acc.PasswordHash)
}

func TestCurrentSessionFallsBackToStore(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	res := e.register(t, alice, password)

	snap, err := e.uc.CurrentSession(ctx, res.Account.ID)
	require.NoError(t, err)
	assert.Equal(t, alice, snap.Email)

	require.NoError(t, e.cache.DropSession(ctx, res.Account.ID))
	snap, err = e.uc.CurrentSession(ctx, res.Account.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Account.ID, snap.ID)

	_, ok, err := e.cache.GetSession(ctx, res.Account.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSessionTTLIsIndependentOfToken(t *testing.T) {
	e := newEnv(t)
	res := e.register(t, alice, password)

	assert.Equal(t, 24*time.Hour, e.redis.TTL("session:"+res.Account.ID))
}

func TestMe(t *testing.T) {
	e := newEnv(t)
	res := e.register(t, alice, password)

	v, err := e.uc.Me(context.Background(), res.Account.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alice", v.Name)

	_, err = e.uc.Me(context.Background(), "missing")
	require.ErrorIs(t, err, autherr.ErrUserNotFound)
}
