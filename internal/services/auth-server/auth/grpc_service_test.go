package auth

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/NordCoder/Gatekeeper/internal/domain/account"
)

func dialAuthService(t *testing.T, e *env) *grpc.ClientConn {
	t.Helper()
	ln := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(UnaryAuthInterceptor(e.uc)),
		grpc.ChainStreamInterceptor(StreamAuthInterceptor(e.uc)),
	)
	RegisterGRPC(srv, e.uc)
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return ln.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype("json")),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func method(name string) string { return "/" + GRPCServiceName + "/" + name }

func withBearer(token string) context.Context {
	return metadata.AppendToOutgoingContext(context.Background(), "authorization", "Bearer "+token)
}

func TestGRPCAuthService(t *testing.T) {
	e := newEnv(t)
	e.register(t, alice, password)
	conn := dialAuthService(t, e)
	ctx := context.Background()

	var res Result
	require.NoError(t, conn.Invoke(ctx, method("Login"), &loginRequest{Email: alice, Password: password}, &res))
	require.NotEmpty(t, res.Tokens.AccessToken)

	var me account.View
	err := conn.Invoke(ctx, method("Me"), &struct{}{}, &me)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	require.NoError(t, conn.Invoke(withBearer(res.Tokens.AccessToken), method("Me"), &struct{}{}, &me))
	assert.Equal(t, alice, me.Email)

	var pair TokenPair
	require.NoError(t, conn.Invoke(ctx, method("Refresh"), &refreshRequest{RefreshToken: res.Tokens.RefreshToken}, &pair))
	err = conn.Invoke(ctx, method("Refresh"), &refreshRequest{RefreshToken: res.Tokens.RefreshToken}, &pair)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	var out struct{}
	require.NoError(t, conn.Invoke(withBearer(pair.AccessToken), method("Logout"), &refreshRequest{RefreshToken: pair.RefreshToken}, &out))
	err = conn.Invoke(withBearer(pair.AccessToken), method("Me"), &struct{}{}, &me)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestGRPCLoginValidation(t *testing.T) {
	e := newEnv(t)
	conn := dialAuthService(t, e)

	var res Result
	err := conn.Invoke(context.Background(), method("Login"), &loginRequest{Email: "nobody", Password: password}, &res)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	err = conn.Invoke(context.Background(), method("Login"), &loginRequest{Email: "nobody@example.com", Password: password}, &res)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}
