package grpcx

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/md-rashed-zaman/docbook/libs/runtime"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func TestHealthServerReportsChecks(t *testing.T) {
	var failing atomic.Bool
	failing.Store(true)
	check := runtime.ReadyCheck{Name: "db", Check: func(context.Context) error {
		if failing.Load() {
			return errors.New("down")
		}
		return nil
	}}
	hs := NewHealthServer(runtime.DiscardLogger(), "docbook", time.Hour, check)

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = hs.Serve(ctx, lis) }()

	conn, err := grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	client := healthpb.NewHealthClient(conn)

	callCtx, callCancel := context.WithTimeout(ctx, 2*time.Second)
	defer callCancel()
	resp, err := client.Check(callCtx, &healthpb.HealthCheckRequest{Service: "docbook"})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if resp.Status != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("expected NOT_SERVING, got %s", resp.Status)
	}

	failing.Store(false)
	if got := hs.Refresh(ctx); got != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("expected SERVING after refresh, got %s", got)
	}
	resp, err = client.Check(callCtx, &healthpb.HealthCheckRequest{Service: "docbook"})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if resp.Status != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("expected SERVING, got %s", resp.Status)
	}
}
