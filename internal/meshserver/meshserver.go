// Package meshserver is the optional gRPC transport surface for the mesh:
// a health-checkable gRPC server agents and operators can dial, built
// around the standard gRPC health service rather than a bespoke generated
// mesh-protocol service.
package meshserver

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Config holds the gRPC server's listen address and component identity.
type Config struct {
	ListenAddr    string
	ComponentName string
}

// Server wraps a grpc.Server instrumented with otelgrpc stats handlers and
// the standard health service, reporting SERVING once the mesh's own
// readiness probe passes.
type Server struct {
	grpcServer  *grpc.Server
	healthSrv   *health.Server
	listener    net.Listener
	logger      *slog.Logger
	serviceName string
}

// New constructs a Server bound to cfg.ListenAddr.
func New(cfg Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	lis, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("meshserver: failed to listen on %s: %w", cfg.ListenAddr, err)
	}

	grpcServer := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
	)
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthSrv)
	healthSrv.SetServingStatus(cfg.ComponentName, healthpb.HealthCheckResponse_NOT_SERVING)

	return &Server{
		grpcServer:  grpcServer,
		healthSrv:   healthSrv,
		listener:    lis,
		logger:      logger,
		serviceName: cfg.ComponentName,
	}, nil
}

// SetReady flips the health service's status for this component between
// SERVING and NOT_SERVING, driven by the mesh's own readiness checks.
func (s *Server) SetReady(ready bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if ready {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.healthSrv.SetServingStatus(s.serviceName, status)
}

// Serve blocks, accepting connections until Shutdown is called.
func (s *Server) Serve() error {
	s.logger.Info("meshserver: listening", "address", s.listener.Addr().String(), "component", s.serviceName)
	return s.grpcServer.Serve(s.listener)
}

// Shutdown gracefully stops the server, marking the health service
// NOT_SERVING first so in-flight health checks observe the transition.
func (s *Server) Shutdown(ctx context.Context) {
	s.healthSrv.SetServingStatus(s.serviceName, healthpb.HealthCheckResponse_NOT_SERVING)
	done := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.grpcServer.Stop()
	}
}

// DialHealth is a client-side helper: it dials target and issues a single
// health Check RPC, used to probe an AgentTransport endpoint's liveness
// before routing tasks to it.
func DialHealth(ctx context.Context, target, service string) (healthpb.HealthCheckResponse_ServingStatus, error) {
	conn, err := grpc.NewClient(target,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	)
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, fmt.Errorf("meshserver: dial %s: %w", target, err)
	}
	defer conn.Close()

	client := healthpb.NewHealthClient(conn)
	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, err
	}
	return resp.Status, nil
}
