// Package grpc runs the gRPC side endpoint of the server: the standard
// grpc.health.v1 service, reporting whether the API is ready.
package grpc

import (
	"context"
	"net"

	"github.com/dmitrijs2005/taskkeeper/internal/logging"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health service name reported next to the overall "".
const ServiceName = "taskkeeper"

type GRPCServer struct {
	address string
	logger  logging.Logger
	health  *health.Server
}

// NewGRPCServer returns a server that reports NOT_SERVING until Run has
// bound its listener.
func NewGRPCServer(address string, l logging.Logger) *GRPCServer {
	s := &GRPCServer{
		address: address,
		logger:  l.With("module", "grpc_server"),
		health:  health.NewServer(),
	}
	s.SetServing(false)
	return s
}

// SetServing switches the reported status of both the overall server and
// ServiceName.
func (s *GRPCServer) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

func (s *GRPCServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	s.SetServing(true)

	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.loggingInterceptor))
	healthpb.RegisterHealthServer(srv, s.health)

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		s.health.Shutdown()
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", s.address)

	if err := srv.Serve(listen); err != nil {
		return err
	}

	return nil
}
