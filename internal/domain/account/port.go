package account

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("account not found")
	ErrConflict = errors.New("account already exists")
)

// Mutator changes an account inside Store.Update. Returning an error aborts
// the update without writing anything; the error is returned to the caller.
type Mutator func(a *Account) error

// Store is the credential store. Update is the only way to change an existing
// account: implementations run the read, the mutator and the write as one
// atomic step per account, so concurrent updates of the same account are
// serialized and never lose writes.
//
// Find* methods may return the account with a nil RefreshTokens set; Update
// always hands the mutator the full set.
type Store interface {
	Create(ctx context.Context, a *Account) error
	FindByID(ctx context.Context, id string) (*Account, error)
	FindByIdentifier(ctx context.Context, email string) (*Account, error)
	FindByRefreshToken(ctx context.Context, hash string) (*Account, error)
	Update(ctx context.Context, id string, fn Mutator) (*Account, error)
	Delete(ctx context.Context, id string) error
	PruneRefreshTokens(ctx context.Context, now time.Time, limit int) (int, error)
}
