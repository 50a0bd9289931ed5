package health

import (
	"context"
	"net"

	"github.com/dmitrijs2005/seftconsumer/internal/logging"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// GRPCServer exposes the checker through grpc.health.v1.Health.
type GRPCServer struct {
	address string
	checker *Checker
	logger  logging.Logger
}

func NewGRPCServer(address string, checker *Checker, l logging.Logger) *GRPCServer {
	return &GRPCServer{
		address: address,
		checker: checker,
		logger:  l.With("module", "grpc_health"),
	}
}

// Run serves until ctx is done, then stops gracefully.
func (s *GRPCServer) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, s.checker.Server())

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC health server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC health server", "address", s.address)

	if err := srv.Serve(listen); err != nil {
		return err
	}
	return nil
}
