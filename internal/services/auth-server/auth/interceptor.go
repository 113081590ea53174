package auth

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/NordCoder/Gatekeeper/internal/domain/autherr"
)

var publicFullMethods = map[string]bool{
	"/grpc.health.v1.Health/Check": true,
	"/grpc.health.v1.Health/Watch": true,
	"/grpc.health.v1.Health/List":  true,

	"/" + GRPCServiceName + "/Login":   true,
	"/" + GRPCServiceName + "/Refresh": true,
}

func isPublic(fullMethod string) bool {
	return publicFullMethods[fullMethod] || strings.HasPrefix(fullMethod, "/grpc.reflection.")
}

func UnaryAuthInterceptor(uc *Usecase) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		if isPublic(info.FullMethod) {
			return next(ctx, req)
		}
		p, err := uc.Authenticate(ctx, bearer(ctx))
		if err != nil {
			return nil, grpcError(err)
		}
		return next(WithPrincipal(ctx, p), req)
	}
}

func StreamAuthInterceptor(uc *Usecase) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, next grpc.StreamHandler) error {
		if isPublic(info.FullMethod) {
			return next(srv, ss)
		}
		p, err := uc.Authenticate(ss.Context(), bearer(ss.Context()))
		if err != nil {
			return grpcError(err)
		}
		return next(srv, &principalStream{ServerStream: ss, ctx: WithPrincipal(ss.Context(), p)})
	}
}

type principalStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *principalStream) Context() context.Context { return s.ctx }

func grpcError(err error) error {
	kind, msg := autherr.Public(err)
	return status.Error(CodeFor(kind), msg)
}

func CodeFor(kind autherr.Kind) codes.Code {
	switch kind {
	case autherr.KindInvalidInput:
		return codes.InvalidArgument
	case autherr.KindConflict:
		return codes.AlreadyExists
	case autherr.KindAccountLocked:
		return codes.ResourceExhausted
	case autherr.KindForbidden:
		return codes.PermissionDenied
	case autherr.KindInfrastructure:
		return codes.Unavailable
	default:
		return codes.Unauthenticated
	}
}

func bearer(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if vals := md.Get("authorization"); len(vals) > 0 {
			return BearerToken(vals[0])
		}
	}
	return ""
}
