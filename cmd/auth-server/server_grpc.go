package main

import (
	"net"

	config "github.com/NordCoder/Gatekeeper/internal/config/auth-server"
	"github.com/NordCoder/Gatekeeper/internal/obs"
	"github.com/NordCoder/Gatekeeper/internal/services/auth-server/auth"
	grpcprometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

func buildGRPCServer(cfg *config.Config, uc *auth.Usecase) (*grpc.Server, *health.Server, net.Listener, error) {
	grpcMetrics := grpcprometheus.NewServerMetrics()

	opts := obs.GRPCServerOpts(
		[]grpc.UnaryServerInterceptor{
			grpcMetrics.UnaryServerInterceptor(),
			auth.UnaryAuthInterceptor(uc),
		},
		[]grpc.StreamServerInterceptor{
			grpcMetrics.StreamServerInterceptor(),
			auth.StreamAuthInterceptor(uc),
		},
	)

	grpcServer := grpc.NewServer(opts...)

	hs := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, hs)
	auth.RegisterGRPC(grpcServer, uc)
	hs.SetServingStatus(auth.GRPCServiceName, healthpb.HealthCheckResponse_SERVING)
	reflection.Register(grpcServer)

	grpcMetrics.InitializeMetrics(grpcServer)

	ln, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		return nil, nil, nil, err
	}
	return grpcServer, hs, ln, nil
}

func serveGRPC(s *grpc.Server, ln net.Listener, cfg *config.Config, logger *zap.Logger) error {
	logger.Info("grpc listening", zap.String("addr", cfg.Server.GRPCAddr))
	return s.Serve(ln)
}

func gracefulStopGRPC(s *grpc.Server, hs *health.Server) {
	hs.Shutdown()
	s.GracefulStop()
}
