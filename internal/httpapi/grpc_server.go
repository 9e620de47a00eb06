package httpapi

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/bredsky212/Logiq212/internal/obs"
)

// GateServiceName is the health-check service name reported for the gate.
const GateServiceName = "logiq.v1.Gate"

// GRPCServer exposes the standard gRPC health protocol, driven by the same
// readiness probe as /readyz.
type GRPCServer struct {
	health    *health.Server
	readiness readinessChecker
}

// NewGRPCServer creates the health wrapper. Status starts as NOT_SERVING
// until the first Refresh.
func NewGRPCServer(r readinessChecker) *GRPCServer {
	if r == nil {
		r = ReadyProbe{}
	}
	s := &GRPCServer{health: health.NewServer(), readiness: r}
	s.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

// Register attaches the health service to srv.
func (s *GRPCServer) Register(srv *grpc.Server) {
	healthpb.RegisterHealthServer(srv, s.health)
}

// Refresh runs the readiness probe and publishes the result.
func (s *GRPCServer) Refresh(ctx context.Context) bool {
	if err := s.readiness.Check(ctx); err != nil {
		obs.Logger().Warn("readiness check failed", zap.Error(err))
		obs.SetReady(false)
		s.set(healthpb.HealthCheckResponse_NOT_SERVING)
		return false
	}
	obs.SetReady(true)
	s.set(healthpb.HealthCheckResponse_SERVING)
	return true
}

// Watch refreshes every interval until ctx is done.
func (s *GRPCServer) Watch(ctx context.Context, interval time.Duration) {
	s.Refresh(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Refresh(ctx)
		}
	}
}

// Shutdown marks every service NOT_SERVING and ignores later updates.
func (s *GRPCServer) Shutdown() {
	s.health.Shutdown()
}

func (s *GRPCServer) set(st healthpb.HealthCheckResponse_ServingStatus) {
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(GateServiceName, st)
}
