package account

import (
	"time"

	"github.com/NordCoder/Gatekeeper/internal/lockout"
)

type Role string

const (
	RoleStandard      Role = "standard"
	RoleAdministrator Role = "administrator"
)

func (r Role) Valid() bool { return r == RoleStandard || r == RoleAdministrator }

// RefreshToken is an outstanding refresh-token record. Hash is the token
// fingerprint and the key of the account's refresh-token set.
type RefreshToken struct {
	Hash      string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type Account struct {
	ID                  string
	Email               string
	Name                string
	PasswordHash        string
	Role                Role
	Active              bool
	LastLoginAt         *time.Time
	FailedAttempts      int
	LockedUntil         *time.Time
	CredentialChangedAt *time.Time
	RefreshTokens       map[string]RefreshToken
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

func (a *Account) HasRefreshToken(hash string) bool {
	_, ok := a.RefreshTokens[hash]
	return ok
}

func (a *Account) AddRefreshToken(rt RefreshToken) {
	if a.RefreshTokens == nil {
		a.RefreshTokens = make(map[string]RefreshToken)
	}
	a.RefreshTokens[rt.Hash] = rt
}

// RemoveRefreshToken reports whether the token was present.
func (a *Account) RemoveRefreshToken(hash string) bool {
	if _, ok := a.RefreshTokens[hash]; !ok {
		return false
	}
	delete(a.RefreshTokens, hash)
	return true
}

func (a *Account) ClearRefreshTokens() {
	a.RefreshTokens = make(map[string]RefreshToken)
}

// IssuedBeforeCredentialChange reports whether a token issued at iat predates
// the most recent credential change.
func (a *Account) IssuedBeforeCredentialChange(iat time.Time) bool {
	if a.CredentialChangedAt == nil {
		return false
	}
	return iat.Before(*a.CredentialChangedAt)
}

func (a *Account) Clone() *Account {
	cp := *a
	cp.LastLoginAt = cloneTime(a.LastLoginAt)
	cp.LockedUntil = cloneTime(a.LockedUntil)
	cp.CredentialChangedAt = cloneTime(a.CredentialChangedAt)
	if a.RefreshTokens != nil {
		cp.RefreshTokens = make(map[string]RefreshToken, len(a.RefreshTokens))
		for k, v := range a.RefreshTokens {
			cp.RefreshTokens[k] = v
		}
	}
	return &cp
}

func (a *Account) View() View {
	return View{
		ID:        a.ID,
		Name:      a.Name,
		Email:     a.Email,
		Role:      a.Role,
		LastLogin: cloneTime(a.LastLoginAt),
		CreatedAt: a.CreatedAt,
	}
}

// View is the caller-facing projection of an account. It never carries the
// credential hash.
type View struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Email     string     `json:"email"`
	Role      Role       `json:"role"`
	LastLogin *time.Time `json:"last_login,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// LockoutState returns the persisted lockout data.
func (a *Account) LockoutState() lockout.State {
	return lockout.State{Failed: a.FailedAttempts, LockedUntil: cloneTime(a.LockedUntil)}
}

func (a *Account) SetLockoutState(s lockout.State) {
	a.FailedAttempts = s.Failed
	a.LockedUntil = cloneTime(s.LockedUntil)
}
