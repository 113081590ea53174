package auth

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/NordCoder/Gatekeeper/internal/domain/account"
	"github.com/NordCoder/Gatekeeper/internal/domain/audit"
	"github.com/NordCoder/Gatekeeper/internal/domain/autherr"
	"github.com/NordCoder/Gatekeeper/internal/obs"
)

// Administrative operations. Callers gate them with RequireRole(account.RoleAdministrator).

// Deactivate disables the account and invalidates its refresh tokens and
// session. Outstanding access tokens fail the pipeline's active check.
func (u *Usecase) Deactivate(ctx context.Context, actorID, accountID string) (account.View, error) {
	ctx, span := otel.Tracer("auth.usecase").Start(ctx, "auth.Deactivate")
	defer span.End()
	defer observe("deactivate", time.Now())

	updated, err := u.accounts.Update(ctx, accountID, func(a *account.Account) error {
		a.Active = false
		a.ClearRefreshTokens()
		return nil
	})
	if errors.Is(err, account.ErrNotFound) {
		return account.View{}, autherr.ErrUserNotFound
	}
	if err != nil {
		return account.View{}, u.infra(ctx, err, "deactivate account")
	}

	if err := u.cache.DropSession(ctx, accountID); err != nil {
		obs.WithTrace(ctx, u.log).Warn("deactivate: drop session", zap.String("account_id", accountID), zap.Error(err))
	}
	u.emit(ctx, audit.ActionAccountDeactivated, accountID, updated.Email, map[string]string{"actor": actorID})
	return updated.View(), nil
}

// Unlock clears the failed-attempt counter and any lock.
func (u *Usecase) Unlock(ctx context.Context, actorID, accountID string) (account.View, error) {
	ctx, span := otel.Tracer("auth.usecase").Start(ctx, "auth.Unlock")
	defer span.End()
	defer observe("unlock", time.Now())

	updated, err := u.accounts.Update(ctx, accountID, func(a *account.Account) error {
		a.SetLockoutState(u.cfg.Lockout.Succeed(a.LockoutState()))
		return nil
	})
	if errors.Is(err, account.ErrNotFound) {
		return account.View{}, autherr.ErrUserNotFound
	}
	if err != nil {
		return account.View{}, u.infra(ctx, err, "unlock account")
	}

	u.emit(ctx, audit.ActionAccountUnlocked, accountID, updated.Email, map[string]string{"actor": actorID})
	return updated.View(), nil
}

// Delete removes the account and its session entry. The session drop is part
// of the operation: a failure is reported even though the account is gone.
func (u *Usecase) Delete(ctx context.Context, actorID, accountID string) error {
	ctx, span := otel.Tracer("auth.usecase").Start(ctx, "auth.Delete")
	defer span.End()
	defer observe("delete", time.Now())

	err := u.accounts.Delete(ctx, accountID)
	if errors.Is(err, account.ErrNotFound) {
		return autherr.ErrUserNotFound
	}
	if err != nil {
		return u.infra(ctx, err, "delete account")
	}

	u.emit(ctx, audit.ActionAccountDeleted, accountID, "", map[string]string{"actor": actorID})
	if err := u.cache.DropSession(ctx, accountID); err != nil {
		span.RecordError(err)
		return u.infra(ctx, err, "drop session")
	}
	return nil
}
