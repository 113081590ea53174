package auth

import (
	"context"
	"slices"

	"github.com/NordCoder/Gatekeeper/internal/domain/account"
	"github.com/NordCoder/Gatekeeper/internal/domain/autherr"
)

// Authorize allows the caller only if its role is one of roles.
func Authorize(v account.View, roles ...account.Role) error {
	if slices.Contains(roles, v.Role) {
		return nil
	}
	return autherr.ErrForbidden
}

func RequireRole(roles ...account.Role) Stage {
	return func(_ context.Context, r *Request) error {
		if r.Account == nil {
			return autherr.ErrForbidden
		}
		return Authorize(r.View(), roles...)
	}
}
