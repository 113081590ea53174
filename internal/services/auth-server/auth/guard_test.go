package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NordCoder/Gatekeeper/internal/domain/account"
	"github.com/NordCoder/Gatekeeper/internal/domain/autherr"
)

func TestAuthorize(t *testing.T) {
	std := account.View{Role: account.RoleStandard}
	adm := account.View{Role: account.RoleAdministrator}

	assert.NoError(t, Authorize(adm, account.RoleAdministrator))
	assert.NoError(t, Authorize(std, account.RoleStandard, account.RoleAdministrator))
	assert.ErrorIs(t, Authorize(std, account.RoleAdministrator), autherr.ErrForbidden)
	assert.ErrorIs(t, Authorize(adm), autherr.ErrForbidden)
}

func TestRequireRoleStage(t *testing.T) {
	stage := RequireRole(account.RoleAdministrator)

	err := stage(context.Background(), &Request{})
	assert.ErrorIs(t, err, autherr.ErrForbidden)

	err = stage(context.Background(), &Request{Account: &account.Account{Role: account.RoleAdministrator}})
	assert.NoError(t, err)
}

func TestPipelineShortCircuits(t *testing.T) {
	var calls []string
	stage := func(name string, err error) Stage {
		return func(context.Context, *Request) error {
			calls = append(calls, name)
			return err
		}
	}
	boom := errors.New("boom")

	base := NewPipeline(stage("a", nil), stage("b", boom))
	extended := base.Then(stage("c", nil))

	require.ErrorIs(t, extended.Run(context.Background(), &Request{}), boom)
	assert.Equal(t, []string{"a", "b"}, calls)

	calls = nil
	require.NoError(t, NewPipeline(stage("a", nil)).Then(stage("c", nil)).Run(context.Background(), &Request{}))
	assert.Equal(t, []string{"a", "c"}, calls)
	assert.Len(t, base.stages, 2)
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", BearerToken("Bearer abc"))
	assert.Equal(t, "abc", BearerToken("bearer   abc "))
	assert.Equal(t, "", BearerToken("Basic abc"))
	assert.Equal(t, "", BearerToken("Bearer"))
	assert.Equal(t, "", BearerToken(""))
}

func TestAuthenticateWithAdminStage(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	res := e.register(t, alice, password)

	_, err := e.uc.Authenticate(ctx, res.Tokens.AccessToken, RequireRole(account.RoleAdministrator))
	require.ErrorIs(t, err, autherr.ErrForbidden)

	e.makeAdmin(t, res.Account.ID)
	r, err := e.uc.Authenticate(ctx, res.Tokens.AccessToken, RequireRole(account.RoleAdministrator))
	require.NoError(t, err)
	assert.Equal(t, account.RoleAdministrator, r.View().Role)
}
