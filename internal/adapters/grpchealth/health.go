// Package grpchealth exposes the relay's serving status over the standard
// grpc.health.v1 service.
package grpchealth

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"signalRelay/internal/ports"
)

// ServiceName is the health service name reported next to the overall ("") status.
const ServiceName = "signalrelay.Relay"

// Server is a gRPC server carrying only the health service.
type Server struct {
	server *grpc.Server
	health *health.Server
	logger ports.Logger

	mu       sync.Mutex
	listener net.Listener
	running  bool
	done     chan struct{}
}

// New creates a health server reporting NOT_SERVING until told otherwise.
func New(logger ports.Logger) (*Server, error) {
	if logger == nil {
		return nil, fmt.Errorf("%w: logger is required for gRPC health server", ports.ErrConfiguration)
	}
	srv := grpc.NewServer()
	hs := health.NewServer()
	grpc_health_v1.RegisterHealthServer(srv, hs)

	s := &Server{server: srv, health: hs, logger: logger}
	s.SetServing(false)
	return s, nil
}

// SetServing updates both the overall and the relay service status.
func (s *Server) SetServing(serving bool) {
	status := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if serving {
		status = grpc_health_v1.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

// ListenAndServe listens on addr and serves in the background.
func (s *Server) ListenAndServe(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(lis)
}

// Serve serves on lis in the background.
func (s *Server) Serve(lis net.Listener) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errors.New("gRPC health server already running")
	}
	s.listener = lis
	s.running = true
	s.done = make(chan struct{})

	go func(done chan struct{}) {
		defer close(done)
		if err := s.server.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			s.logger.Error(context.Background(), err, "gRPC health server failed")
		}
	}(s.done)

	s.logger.Info(context.Background(), "gRPC health server started", map[string]interface{}{"addr": lis.Addr().String()})
	return nil
}

// Stop marks every service NOT_SERVING and stops gracefully, forcing the stop
// once ctx is done.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	done := s.done
	s.mu.Unlock()

	s.health.Shutdown()

	stopped := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(stopped)
	}()

	select {
	case <-ctx.Done():
		s.logger.Warn(ctx, "gRPC graceful shutdown timeout, forcing stop...")
		s.server.Stop()
	case <-stopped:
	}
	<-done
	s.logger.Info(ctx, "gRPC health server stopped")
	return nil
}
