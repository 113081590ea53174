package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/NordCoder/Gatekeeper/internal/domain/account"
	"github.com/NordCoder/Gatekeeper/internal/domain/audit"
	"github.com/NordCoder/Gatekeeper/internal/domain/session"
	"github.com/NordCoder/Gatekeeper/internal/lockout"
	"github.com/NordCoder/Gatekeeper/internal/repository/memory"
	rediscache "github.com/NordCoder/Gatekeeper/internal/repository/redis"
	"github.com/NordCoder/Gatekeeper/internal/token"
)

var t0 = time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []audit.Event
}

func (e *recordingEmitter) Emit(_ context.Context, ev audit.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
}

func (e *recordingEmitter) actions() []audit.Action {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]audit.Action, 0, len(e.events))
	for _, ev := range e.events {
		out = append(out, ev.Action)
	}
	return out
}

// failingCache fails the denylist calls and delegates the rest.
type failingCache struct {
	session.Cache
	err error
}

func (c *failingCache) Revoke(context.Context, string, time.Time) error { return c.err }

func (c *failingCache) IsRevoked(context.Context, string) (bool, error) { return false, c.err }

type env struct {
	uc     *Usecase
	store  *memory.AccountStore
	cache  *rediscache.Cache
	tokens *token.Service
	clock  *fakeClock
	events *recordingEmitter
	redis  *miniredis.Miniredis
}

func newEnv(t *testing.T) *env {
	t.Helper()
	return newEnvWithCache(t, nil)
}

func newEnvWithCache(t *testing.T, wrap func(session.Cache) session.Cache) *env {
	t.Helper()

	clock := &fakeClock{t: t0}
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cache := rediscache.NewWithClient(rdb, clock.Now)
	var sc session.Cache = cache
	if wrap != nil {
		sc = wrap(cache)
	}

	store := memory.NewAccountStore(clock.Now)
	tokens := token.NewService(token.Config{
		AccessSecret:  []byte("test-access-secret"),
		RefreshSecret: []byte("test-refresh-secret"),
		Issuer:        "gatekeeper-test",
		Now:           clock.Now,
	})
	events := &recordingEmitter{}

	uc := NewUsecase(store, sc, tokens, events, zap.NewNop(), Config{
		SessionTTL:     24 * time.Hour,
		Lockout:        lockout.DefaultPolicy(),
		BcryptCost:     bcrypt.MinCost,
		MinPasswordLen: 8,
		Now:            clock.Now,
	})

	return &env{uc: uc, store: store, cache: cache, tokens: tokens, clock: clock, events: events, redis: mr}
}

func (e *env) register(t *testing.T, email, password string) Result {
	t.Helper()
	res, err := e.uc.Register(context.Background(), RegisterInput{Name: "Alice", Email: email, Password: password})
	require.NoError(t, err)
	return res
}

func (e *env) makeAdmin(t *testing.T, id string) {
	t.Helper()
	_, err := e.store.Update(context.Background(), id, func(a *account.Account) error {
		a.Role = account.RoleAdministrator
		return nil
	})
	require.NoError(t, err)
}

var errCacheDown = errors.New("redis: connection refused")
