package session

import (
	"context"
	"time"

	"github.com/NordCoder/Gatekeeper/internal/domain/account"
)

// Snapshot is the identity cached for a live session.
type Snapshot struct {
	ID    string       `json:"id"`
	Email string       `json:"email"`
	Role  account.Role `json:"role"`
}

func SnapshotOf(a *account.Account) Snapshot {
	return Snapshot{ID: a.ID, Email: a.Email, Role: a.Role}
}

// Cache holds the access-token denylist and the advisory session cache. It is
// opened at process start; Close releases it at shutdown.
type Cache interface {
	// Revoke denylists token until expiresAt. Already expired tokens are not stored.
	Revoke(ctx context.Context, token string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, token string) (bool, error)

	PutSession(ctx context.Context, accountID string, s Snapshot, ttl time.Duration) error
	GetSession(ctx context.Context, accountID string) (Snapshot, bool, error)
	DropSession(ctx context.Context, accountID string) error

	Ping(ctx context.Context) error
	Close() error
}
