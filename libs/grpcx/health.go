package grpcx

import (
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/md-rashed-zaman/docbook/libs/runtime"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthServer serves the standard gRPC health protocol. Serving status follows the
// same dependency checks as /readyz and is refreshed every interval.
type HealthServer struct {
	srv      *grpc.Server
	health   *health.Server
	service  string
	checks   []runtime.ReadyCheck
	interval time.Duration
	logger   *slog.Logger
}

func NewHealthServer(logger *slog.Logger, service string, interval time.Duration, checks ...runtime.ReadyCheck) *HealthServer {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	srv := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			UnaryServerRequestIDInterceptor(),
			UnaryServerLoggingInterceptor(logger),
		),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	return &HealthServer{
		srv:      srv,
		health:   hs,
		service:  service,
		checks:   checks,
		interval: interval,
		logger:   logger,
	}
}

// Refresh runs the checks once and publishes the result for "" and the service name.
func (h *HealthServer) Refresh(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	if failures := runtime.RunChecks(ctx, h.checks...); len(failures) > 0 {
		status = healthpb.HealthCheckResponse_NOT_SERVING
		h.logger.Warn("grpc health not serving", "failures", failures)
	}
	h.health.SetServingStatus("", status)
	h.health.SetServingStatus(h.service, status)
	return status
}

// Serve blocks until ctx is cancelled or the listener fails.
func (h *HealthServer) Serve(ctx context.Context, lis net.Listener) error {
	h.Refresh(ctx)
	go func() {
		ticker := time.NewTicker(h.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				h.health.Shutdown()
				h.srv.GracefulStop()
				return
			case <-ticker.C:
				h.Refresh(ctx)
			}
		}
	}()
	return h.srv.Serve(lis)
}
