// Package admin exposes the standard gRPC health service for orchestration health checks.
package admin

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/cory-johannsen/roomsync/internal/config"
)

// ServiceName is the health service name reported alongside the overall "" status.
const ServiceName = "roomsync"

// DefaultCheckInterval is how often dependencies are pinged.
const DefaultCheckInterval = 15 * time.Second

// Pinger is a dependency whose reachability gates SERVING.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server serves grpc.health.v1.Health on the admin address.
type Server struct {
	cfg      config.AdminConfig
	deps     map[string]Pinger
	interval time.Duration
	logger   *zap.Logger

	health *health.Server
	grpc   *grpc.Server

	mu       sync.Mutex
	listener net.Listener
	quit     chan struct{}
	stopped  bool
}

// NewServer creates a health server. Every dep is pinged on each check and
// any failure reports NOT_SERVING. Status starts NOT_SERVING until the first check.
//
// Precondition: logger must be non-nil; interval <= 0 selects DefaultCheckInterval.
func NewServer(cfg config.AdminConfig, deps map[string]Pinger, interval time.Duration, logger *zap.Logger) *Server {
	if interval <= 0 {
		interval = DefaultCheckInterval
	}
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

	gs := grpc.NewServer()
	healthpb.RegisterHealthServer(gs, hs)

	return &Server{
		cfg:      cfg,
		deps:     deps,
		interval: interval,
		logger:   logger,
		health:   hs,
		grpc:     gs,
		quit:     make(chan struct{}),
	}
}

// Start listens on the admin address and serves until Stop.
//
// Postcondition: Returns nil after Stop, or the listen/serve error.
func (s *Server) Start() error {
	lis, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Addr(), err)
	}
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		lis.Close()
		return nil
	}
	s.listener = lis
	s.mu.Unlock()

	s.logger.Info("admin gRPC server listening",
		zap.String("addr", lis.Addr().String()),
	)

	go s.watch()
	if err := s.grpc.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("serving gRPC: %w", err)
	}
	return nil
}

func (s *Server) watch() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	s.Check(context.Background())
	for {
		select {
		case <-ticker.C:
			s.Check(context.Background())
		case <-s.quit:
			return
		}
	}
}

// Check pings every dependency and publishes the resulting status.
//
// Postcondition: Returns true when every dependency answered.
func (s *Server) Check(ctx context.Context) bool {
	ok := true
	for name, dep := range s.deps {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := dep.Ping(pingCtx)
		cancel()
		if err != nil {
			s.logger.Warn("dependency health check failed",
				zap.String("dependency", name),
				zap.Error(err),
			)
			ok = false
		}
	}
	s.SetServing(ok)
	return ok
}

// SetServing publishes SERVING or NOT_SERVING for both service names.
func (s *Server) SetServing(serving bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

// Stop reports NOT_SERVING to watchers and stops the gRPC server.
func (s *Server) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	close(s.quit)
	s.mu.Unlock()

	s.health.Shutdown()
	s.grpc.GracefulStop()
	s.logger.Info("admin gRPC server stopped")
}

// Addr returns the actual listening address, or empty string if not yet listening.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}
