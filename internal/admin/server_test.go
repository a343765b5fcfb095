package admin

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/cory-johannsen/roomsync/internal/config"
)

type fakePinger struct {
	fail atomic.Bool
}

func (p *fakePinger) Ping(context.Context) error {
	if p.fail.Load() {
		return errors.New("connection refused")
	}
	return nil
}

func startServer(t *testing.T, deps map[string]Pinger) (*Server, *grpc.ClientConn) {
	t.Helper()
	srv := NewServer(config.AdminConfig{GRPCHost: "127.0.0.1", GRPCPort: 0}, deps, time.Hour, zaptest.NewLogger(t))

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	deadline := time.After(2 * time.Second)
	for srv.Addr() == "" {
		select {
		case err := <-errCh:
			t.Fatalf("admin server exited: %v", err)
		case <-deadline:
			t.Fatal("admin server did not start in time")
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient(srv.Addr(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return srv, conn
}

func status(t *testing.T, conn *grpc.ClientConn, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	require.NoError(t, err)
	return resp.GetStatus()
}

func TestServer_ServingWhenDependenciesHealthy(t *testing.T) {
	_, conn := startServer(t, map[string]Pinger{"accounts": &fakePinger{}})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, WaitForHealth(ctx, conn, ServiceName))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, status(t, conn, ""))
}

func TestServer_CheckTracksDependency(t *testing.T) {
	dep := &fakePinger{}
	srv, conn := startServer(t, map[string]Pinger{"accounts": dep})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, WaitForHealth(ctx, conn, ServiceName))

	dep.fail.Store(true)
	assert.False(t, srv.Check(context.Background()))
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, status(t, conn, ServiceName))

	dep.fail.Store(false)
	assert.True(t, srv.Check(context.Background()))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, status(t, conn, ServiceName))
}

func TestServer_SetServing(t *testing.T) {
	srv, conn := startServer(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, WaitForHealth(ctx, conn, ServiceName))

	srv.SetServing(false)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, status(t, conn, ServiceName))
	srv.SetServing(true)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, status(t, conn, ServiceName))
}

func TestWaitForHealth_TimesOut(t *testing.T) {
	dep := &fakePinger{}
	dep.fail.Store(true)
	_, conn := startServer(t, map[string]Pinger{"accounts": dep})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	err := WaitForHealth(ctx, conn, ServiceName)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWaitForHealth_NilConn(t *testing.T) {
	assert.Error(t, WaitForHealth(context.Background(), nil, ServiceName))
}

func TestServer_StopIsIdempotent(t *testing.T) {
	srv, _ := startServer(t, nil)
	assert.NotPanics(t, func() {
		srv.Stop()
		srv.Stop()
	})
}

func TestServer_StopBeforeStart(t *testing.T) {
	srv := NewServer(config.AdminConfig{GRPCHost: "127.0.0.1", GRPCPort: 0}, nil, 0, zaptest.NewLogger(t))
	srv.Stop()
	assert.NoError(t, srv.Start())
}
