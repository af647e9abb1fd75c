package health

import (
	"context"
	"errors"
	"fmt"
	"net"

	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	domain "github.com/oshokin/security-zone/internal/domain/zone"
	"github.com/oshokin/security-zone/internal/logger"
)

// ServicePrefix prefixes the health service name of every zone.
const ServicePrefix = "security_zone."

// ServiceName returns the health service name of a zone.
func ServiceName(zoneID string) string {
	return ServicePrefix + zoneID
}

// Server keeps the health status of the supervisor and its zones.
type Server struct {
	// health is the stock grpc-go implementation of the protocol.
	health *grpchealth.Server
}

// NewServer creates a server reporting the supervisor as NOT_SERVING until SetServing is called.
func NewServer() *Server {
	s := &Server{health: grpchealth.NewServer()}
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)

	return s
}

// Register attaches the health service to a gRPC server.
func (s *Server) Register(server *grpc.Server) {
	healthpb.RegisterHealthServer(server, s.health)
}

// SetServing updates the overall status of the supervisor.
func (s *Server) SetServing(serving bool) {
	s.health.SetServingStatus("", servingStatus(serving))
}

// Publish implements the zone publisher contract by mirroring the zone state.
func (s *Server) Publish(settings *domain.Settings, snapshot *domain.Snapshot) {
	s.health.SetServingStatus(ServiceName(settings.ID), servingStatus(!snapshot.State.Alarming()))
}

// Shutdown reports every service as NOT_SERVING and ignores later updates.
func (s *Server) Shutdown() {
	s.health.Shutdown()
}

// Run serves the health service on address until ctx is canceled.
func (s *Server) Run(ctx context.Context, address string) error {
	ctx = logger.WithKV(logger.WithName(ctx, "grpc"), "listen_address", address)

	lc := net.ListenConfig{}

	lis, err := lc.Listen(ctx, "tcp", address)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", address, err)
	}

	return s.Serve(ctx, lis)
}

// Serve serves the health service on lis until ctx is canceled.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	grpcServer := grpc.NewServer()
	s.Register(grpcServer)

	logger.InfoKV(ctx, "Health server listening", "address", lis.Addr().String())

	// Done channel is closed after GracefulStop finishes to ensure we block
	// until the server fully stops before returning.
	done := make(chan struct{})

	go func() {
		<-ctx.Done()
		logger.Info(ctx, "Shutting down gRPC server")
		s.Shutdown()
		grpcServer.GracefulStop()
		close(done)
	}()

	if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("serve gRPC: %w", err)
	}

	<-done
	logger.Info(ctx, "GRPC server stopped")

	return nil
}

func servingStatus(serving bool) healthpb.HealthCheckResponse_ServingStatus {
	if serving {
		return healthpb.HealthCheckResponse_SERVING
	}

	return healthpb.HealthCheckResponse_NOT_SERVING
}
