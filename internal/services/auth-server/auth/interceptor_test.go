package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/NordCoder/Gatekeeper/internal/domain/autherr"
)

func TestUnaryAuthInterceptor(t *testing.T) {
	e := newEnv(t)
	res := e.register(t, alice, password)
	icpt := UnaryAuthInterceptor(e.uc)

	var seen *Request
	handler := func(ctx context.Context, _ any) (any, error) {
		seen, _ = PrincipalFromCtx(ctx)
		return "ok", nil
	}

	out, err := icpt(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}, handler)
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Nil(t, seen)

	_, err = icpt(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/gatekeeper.v1.Accounts/Get"}, handler)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bearer "+res.Tokens.AccessToken))
	_, err = icpt(ctx, nil, &grpc.UnaryServerInfo{FullMethod: "/gatekeeper.v1.Accounts/Get"}, handler)
	require.NoError(t, err)
	require.NotNil(t, seen)
	assert.Equal(t, res.Account.ID, seen.Account.ID)
}

func TestCodeFor(t *testing.T) {
	assert.Equal(t, codes.Unavailable, CodeFor(autherr.KindInfrastructure))
	assert.Equal(t, codes.PermissionDenied, CodeFor(autherr.KindForbidden))
	assert.Equal(t, codes.ResourceExhausted, CodeFor(autherr.KindAccountLocked))
	assert.Equal(t, codes.Unauthenticated, CodeFor(autherr.KindBlacklistedToken))
	assert.Equal(t, codes.InvalidArgument, CodeFor(autherr.KindInvalidInput))
}
