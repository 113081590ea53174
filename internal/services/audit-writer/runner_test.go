package auditwriter

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/NordCoder/Gatekeeper/internal/domain/audit"
	"github.com/NordCoder/Gatekeeper/internal/obs/retry"
	kafkax "github.com/NordCoder/Gatekeeper/internal/repository/kafka"
)

type memRepo struct {
	mu       sync.Mutex
	failures int
	byID     map[string]audit.Event
}

func newMemRepo() *memRepo { return &memRepo{byID: map[string]audit.Event{}} }

func (r *memRepo) Insert(_ context.Context, ev *audit.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failures > 0 {
		r.failures--
		return errors.New("db unavailable")
	}
	if _, ok := r.byID[ev.ID]; !ok {
		r.byID[ev.ID] = *ev
	}
	return nil
}

func (r *memRepo) ListByAccount(_ context.Context, accountID string, limit int) ([]*audit.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*audit.Event
	for _, ev := range r.byID {
		if ev.AccountID == accountID && len(out) < limit {
			ev := ev
			out = append(out, &ev)
		}
	}
	return out, nil
}

// replaySource hands every message to the handler once and then waits for ctx.
type replaySource struct {
	msgs [][]byte
	errs []error
}

func (s *replaySource) Consume(ctx context.Context, h kafkax.Handler) error {
	for _, m := range s.msgs {
		s.errs = append(s.errs, h(ctx, []byte("key"), m))
	}
	<-ctx.Done()
	return ctx.Err()
}

func encode(t *testing.T, ev audit.Event) []byte {
	t.Helper()
	b, err := json.Marshal(ev)
	require.NoError(t, err)
	return b
}

func fastPolicy() retry.Policy {
	return retry.Policy{Name: "test", Attempts: 3, Backoff: retry.ExpoJitter{Base: time.Millisecond}}
}

func TestRunner_StoresEventsIdempotently(t *testing.T) {
	repo := newMemRepo()
	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	ev := audit.Event{ID: "e1", Action: audit.ActionLoginSucceeded, AccountID: "acc-1", At: at}

	src := &replaySource{msgs: [][]byte{encode(t, ev), encode(t, ev)}}
	r := NewRunner(zap.NewNop(), src, NewHandler(repo, fastPolicy(), nil))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := r.Run(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	assert.Equal(t, []error{nil, nil}, src.errs)
	stored, err := repo.ListByAccount(context.Background(), "acc-1", 10)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, audit.ActionLoginSucceeded, stored[0].Action)
	assert.True(t, at.Equal(stored[0].At))
}

func TestHandler_SkipsMalformedEvents(t *testing.T) {
	repo := newMemRepo()
	h := NewHandler(repo, fastPolicy(), nil)

	require.NoError(t, h.Handle(context.Background(), nil, audit.Event{Action: audit.ActionLogout, At: time.Now()}))
	require.NoError(t, h.Handle(context.Background(), nil, audit.Event{ID: "x", At: time.Now()}))
	require.NoError(t, h.Handle(context.Background(), nil, audit.Event{ID: "y", Action: audit.ActionLogout}))
	assert.Empty(t, repo.byID)
}

func TestHandler_RetriesTransientFailures(t *testing.T) {
	repo := newMemRepo()
	repo.failures = 2
	h := NewHandler(repo, fastPolicy(), nil)

	err := h.Handle(context.Background(), nil, audit.Event{ID: "e", Action: audit.ActionRegister, At: time.Now()})
	require.NoError(t, err)
	assert.Contains(t, repo.byID, "e")
}

func TestHandler_ReturnsErrorWhenRetriesExhausted(t *testing.T) {
	repo := newMemRepo()
	repo.failures = 10
	h := NewHandler(repo, fastPolicy(), nil)

	err := h.Handle(context.Background(), nil, audit.Event{ID: "e", Action: audit.ActionRegister, At: time.Now()})
	require.Error(t, err)
	assert.Empty(t, repo.byID)
}

func TestRunner_UndecodableMessageIsAnError(t *testing.T) {
	src := &replaySource{msgs: [][]byte{[]byte("{not json")}}
	r := NewRunner(zap.NewNop(), src, NewHandler(newMemRepo(), fastPolicy(), nil))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_ = r.Run(ctx)

	require.Len(t, src.errs, 1)
	assert.Error(t, src.errs[0])
}
