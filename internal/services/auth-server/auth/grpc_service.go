package auth

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/status"

	"github.com/NordCoder/Gatekeeper/internal/domain/account"
)

// GRPCServiceName is the service path clients call, e.g.
// /gatekeeper.auth.v1.Auth/Login with content-subtype "json".
const GRPCServiceName = "gatekeeper.auth.v1.Auth"

// jsonCodec carries the same JSON bodies as the HTTP API over gRPC.
type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) Unmarshal(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

func init() { encoding.RegisterCodec(jsonCodec{}) }

// AuthServiceServer is implemented by GRPCServer.
type AuthServiceServer interface {
	Login(ctx context.Context, in *loginRequest) (*Result, error)
	Refresh(ctx context.Context, in *refreshRequest) (*TokenPair, error)
	Me(ctx context.Context, in *struct{}) (*account.View, error)
	Logout(ctx context.Context, in *refreshRequest) (*struct{}, error)
}

// GRPCServer serves the token endpoints over gRPC. Me and Logout rely on
// UnaryAuthInterceptor having placed the caller in ctx.
type GRPCServer struct {
	uc *Usecase
}

func NewGRPCServer(uc *Usecase) *GRPCServer { return &GRPCServer{uc: uc} }

// RegisterGRPC adds the Auth service to s.
func RegisterGRPC(s grpc.ServiceRegistrar, uc *Usecase) {
	s.RegisterService(&authServiceDesc, NewGRPCServer(uc))
}

func (g *GRPCServer) Login(ctx context.Context, in *loginRequest) (*Result, error) {
	if err := in.Validate(); err != nil {
		return nil, grpcError(err)
	}
	res, err := g.uc.Login(ctx, in.Email, in.Password)
	if err != nil {
		return nil, grpcError(err)
	}
	return &res, nil
}

func (g *GRPCServer) Refresh(ctx context.Context, in *refreshRequest) (*TokenPair, error) {
	pair, err := g.uc.Refresh(ctx, in.RefreshToken)
	if err != nil {
		return nil, grpcError(err)
	}
	return &pair, nil
}

func (g *GRPCServer) Me(ctx context.Context, _ *struct{}) (*account.View, error) {
	p, ok := PrincipalFromCtx(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "authentication required")
	}
	v, err := g.uc.Me(ctx, p.Account.ID)
	if err != nil {
		return nil, grpcError(err)
	}
	return &v, nil
}

func (g *GRPCServer) Logout(ctx context.Context, in *refreshRequest) (*struct{}, error) {
	p, ok := PrincipalFromCtx(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "authentication required")
	}
	if err := g.uc.Logout(ctx, p.Bearer, in.RefreshToken, p.Account.ID); err != nil {
		return nil, grpcError(err)
	}
	return &struct{}{}, nil
}

// unary adapts a typed method to grpc.MethodHandler, running the server's
// interceptor chain like generated code does.
func unary[Req, Resp any](method string, call func(AuthServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	full := "/" + GRPCServiceName + "/" + method
	return func(srv any, ctx context.Context, dec func(any) error, icpt grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, status.Error(codes.InvalidArgument, "malformed request")
		}
		h := func(ctx context.Context, req any) (any, error) {
			return call(srv.(AuthServiceServer), ctx, req.(*Req))
		}
		if icpt == nil {
			return h(ctx, in)
		}
		return icpt(ctx, in, &grpc.UnaryServerInfo{Server: srv, FullMethod: full}, h)
	}
}

var authServiceDesc = grpc.ServiceDesc{
	ServiceName: GRPCServiceName,
	HandlerType: (*AuthServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Login", Handler: unary("Login", AuthServiceServer.Login)},
		{MethodName: "Refresh", Handler: unary("Refresh", AuthServiceServer.Refresh)},
		{MethodName: "Me", Handler: unary("Me", AuthServiceServer.Me)},
		{MethodName: "Logout", Handler: unary("Logout", AuthServiceServer.Logout)},
	},
}
