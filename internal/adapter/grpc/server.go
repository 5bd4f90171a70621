// Package grpc serves the operational gRPC endpoint: health checks and
// reflection.
package grpc

import (
	"net"

	"github.com/Abdurahmanit/GroupProject/flashlist-service/internal/adapter/grpc/middleware"
	"github.com/Abdurahmanit/GroupProject/flashlist-service/internal/platform/logger"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

type OpsServer struct {
	server      *grpc.Server
	health      *health.Server
	serviceName string
	logger      *logger.Logger
}

func NewOpsServer(serviceName string, appLogger *logger.Logger) *OpsServer {
	log := appLogger.Named("gRPC")
	server := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(middleware.LoggingInterceptor(log)),
	)

	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(server, healthServer)
	reflection.Register(server)

	return &OpsServer{
		server:      server,
		health:      healthServer,
		serviceName: serviceName,
		logger:      log,
	}
}

// Serve marks the service SERVING and blocks until the server stops.
func (s *OpsServer) Serve(lis net.Listener) error {
	s.health.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	s.health.SetServingStatus(s.serviceName, grpc_health_v1.HealthCheckResponse_SERVING)
	s.logger.Info("gRPC ops server listening", zap.String("address", lis.Addr().String()))
	return s.server.Serve(lis)
}

// Shutdown reports NOT_SERVING before draining in-flight calls.
func (s *OpsServer) Shutdown() {
	s.health.Shutdown()
	s.logger.Info("gRPC health status set to NOT_SERVING")
	s.server.GracefulStop()
	s.logger.Info("gRPC ops server stopped")
}
