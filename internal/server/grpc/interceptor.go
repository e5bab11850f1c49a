package grpc

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

func (s *GRPCServer) loggingInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)

	s.logger.Debug(ctx, "gRPC request",
		"method", info.FullMethod,
		"code", status.Code(err).String(),
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return resp, err
}
