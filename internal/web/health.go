package web

import (
	"context"
	"net"
	"time"

	"github.com/elys-network/vault-apy/internal/logger"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthService is the gRPC service name whose status follows the exporter.
const HealthService = "vault_apy.Exporter"

// HealthServer publishes the exporter health over the standard gRPC health protocol.
type HealthServer struct {
	grpc   *grpc.Server
	health *health.Server
	check  func() bool
}

// NewHealthServer creates a gRPC server exposing grpc.health.v1.Health.
// check is polled to update the serving status.
func NewHealthServer(check func() bool) *HealthServer {
	hs := &HealthServer{
		grpc:   grpc.NewServer(),
		health: health.NewServer(),
		check:  check,
	}
	healthpb.RegisterHealthServer(hs.grpc, hs.health)
	hs.sync()
	return hs
}

// sync copies the current check result into the health status of the service and the server.
func (hs *HealthServer) sync() {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if hs.check != nil && hs.check() {
		status = healthpb.HealthCheckResponse_SERVING
	}
	hs.health.SetServingStatus(HealthService, status)
	hs.health.SetServingStatus("", status)
}

// Serve serves on lis and refreshes the status every interval until ctx is done.
func (hs *HealthServer) Serve(ctx context.Context, lis net.Listener, interval time.Duration) error {
	l := logger.GetForComponent("grpc_health")
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				hs.health.Shutdown()
				hs.grpc.GracefulStop()
				return
			case <-ticker.C:
				hs.sync()
			}
		}
	}()

	l.Info().Str("addr", lis.Addr().String()).Msg("Starting gRPC health server")
	return hs.grpc.Serve(lis)
}
