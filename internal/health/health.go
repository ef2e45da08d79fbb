// Package health exposes the task states over the standard gRPC health
// protocol so a supervisor on the vehicle network can watch a run.
package health

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Service names reported alongside the overall "" service.
const (
	Capture    = "lanepilot.capture"
	Processing = "lanepilot.processing"
	Control    = "lanepilot.control"
)

const stopTimeout = 2 * time.Second

// Services lists every component service.
var Services = []string{Capture, Processing, Control}

// Server is a gRPC server carrying only the health service.
type Server struct {
	grpc   *grpc.Server
	health *health.Server
}

// NewServer creates a server with every service NOT_SERVING.
func NewServer() *Server {
	s := &Server{grpc: grpc.NewServer(), health: health.NewServer()}
	healthpb.RegisterHealthServer(s.grpc, s.health)
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	for _, svc := range Services {
		s.health.SetServingStatus(svc, healthpb.HealthCheckResponse_NOT_SERVING)
	}
	return s
}

// SetServing marks one component up or down.
func (s *Server) SetServing(service string, up bool) {
	s.health.SetServingStatus(service, servingStatus(up))
	diagf("[Health] %s serving=%v", service, up)
}

// SetOverall sets the "" service directly.
func (s *Server) SetOverall(up bool) {
	s.health.SetServingStatus("", servingStatus(up))
}

func servingStatus(up bool) healthpb.HealthCheckResponse_ServingStatus {
	if up {
		return healthpb.HealthCheckResponse_SERVING
	}
	return healthpb.HealthCheckResponse_NOT_SERVING
}

// Serve accepts connections on lis until ctx is cancelled, then stops
// gracefully after marking everything NOT_SERVING.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.grpc.Serve(lis) }()
	opsf("[Health] gRPC health service listening on %s", lis.Addr())

	select {
	case <-ctx.Done():
		s.health.Shutdown()
		stopped := make(chan struct{})
		go func() {
			s.grpc.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-time.After(stopTimeout):
			// open Watch streams keep GracefulStop waiting
			s.grpc.Stop()
		}
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return fmt.Errorf("health server failed: %w", err)
	}
}

// ListenAndServe listens on addr and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, lis)
}
