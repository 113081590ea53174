// Package memory provides an in-process account store for tests and
// single-node development.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/NordCoder/Gatekeeper/internal/domain/account"
)

var _ account.Store = (*AccountStore)(nil)

type AccountStore struct {
	mu      sync.Mutex
	byID    map[string]*account.Account
	byEmail map[string]string
	byToken map[string]string
	now     func() time.Time
}

func NewAccountStore(now func() time.Time) *AccountStore {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &AccountStore{
		byID:    make(map[string]*account.Account),
		byEmail: make(map[string]string),
		byToken: make(map[string]string),
		now:     now,
	}
}

func (s *AccountStore) Create(_ context.Context, a *account.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(a.Email)
	if _, ok := s.byEmail[email]; ok {
		return account.ErrConflict
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if _, ok := s.byID[a.ID]; ok {
		return account.ErrConflict
	}
	now := s.now()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now

	cp := a.Clone()
	if cp.RefreshTokens == nil {
		cp.RefreshTokens = make(map[string]account.RefreshToken)
	}
	s.byID[cp.ID] = cp
	s.byEmail[email] = cp.ID
	for h := range cp.RefreshTokens {
		s.byToken[h] = cp.ID
	}
	return nil
}

func (s *AccountStore) FindByID(_ context.Context, id string) (*account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.byID[id]
	if !ok {
		return nil, account.ErrNotFound
	}
	return a.Clone(), nil
}

func (s *AccountStore) FindByIdentifier(_ context.Context, email string) (*account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, account.ErrNotFound
	}
	return s.byID[id].Clone(), nil
}

func (s *AccountStore) FindByRefreshToken(_ context.Context, hash string) (*account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byToken[hash]
	if !ok {
		return nil, account.ErrNotFound
	}
	return s.byID[id].Clone(), nil
}

// Update runs fn under the store lock, so updates of any account are serialized.
func (s *AccountStore) Update(_ context.Context, id string, fn account.Mutator) (*account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.byID[id]
	if !ok {
		return nil, account.ErrNotFound
	}

	next := cur.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.ID = cur.ID
	next.UpdatedAt = s.now()

	oldEmail, newEmail := strings.ToLower(cur.Email), strings.ToLower(next.Email)
	if oldEmail != newEmail {
		if _, taken := s.byEmail[newEmail]; taken {
			return nil, account.ErrConflict
		}
		delete(s.byEmail, oldEmail)
		s.byEmail[newEmail] = id
	}

	for h := range cur.RefreshTokens {
		if !next.HasRefreshToken(h) {
			delete(s.byToken, h)
		}
	}
	if next.RefreshTokens == nil {
		next.RefreshTokens = make(map[string]account.RefreshToken)
	}
	for h := range next.RefreshTokens {
		s.byToken[h] = id
	}

	s.byID[id] = next
	return next.Clone(), nil
}

func (s *AccountStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.byID[id]
	if !ok {
		return account.ErrNotFound
	}
	for h := range a.RefreshTokens {
		delete(s.byToken, h)
	}
	delete(s.byEmail, strings.ToLower(a.Email))
	delete(s.byID, id)
	return nil
}

func (s *AccountStore) PruneRefreshTokens(_ context.Context, now time.Time, limit int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pruned := 0
	for h, id := range s.byToken {
		if limit > 0 && pruned >= limit {
			break
		}
		a := s.byID[id]
		rt := a.RefreshTokens[h]
		if now.Before(rt.ExpiresAt) {
			continue
		}
		delete(a.RefreshTokens, h)
		delete(s.byToken, h)
		pruned++
	}
	return pruned, nil
}
