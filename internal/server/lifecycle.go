// Package server provides application lifecycle management including
// graceful startup and shutdown with signal handling.
package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// DefaultReadyTimeout bounds how long Run waits for a Readier to come up.
const DefaultReadyTimeout = 10 * time.Second

// ErrNotReady is returned by Run when a service does not become ready in time.
var ErrNotReady = errors.New("service not ready")

// Service represents a long-running component that can be started and stopped.
type Service interface {
	// Start begins the service. It should block until the service is stopped
	// or an error occurs.
	Start() error
	// Stop gracefully stops the service.
	Stop()
}

// Readier is implemented by services that need time to come up. Run does not
// start the next service until Ready reports true.
type Readier interface {
	Ready() bool
}

// FuncService adapts a start/stop function pair into the Service interface.
// ReadyFn is optional; nil means ready as soon as Start is called.
type FuncService struct {
	StartFn func() error
	StopFn  func()
	ReadyFn func() bool
}

// Start calls the underlying start function.
func (f *FuncService) Start() error { return f.StartFn() }

// Stop calls the underlying stop function.
func (f *FuncService) Stop() { f.StopFn() }

// Ready calls ReadyFn when set.
func (f *FuncService) Ready() bool {
	if f.ReadyFn == nil {
		return true
	}
	return f.ReadyFn()
}

// Lifecycle manages the startup and shutdown of multiple services.
// Services are started in order and stopped in reverse order.
type Lifecycle struct {
	logger       *zap.Logger
	readyTimeout time.Duration
	services     []namedService
	mu           sync.Mutex
}

type namedService struct {
	name    string
	service Service
}

// NewLifecycle creates a new Lifecycle manager.
//
// Precondition: logger must be non-nil.
func NewLifecycle(logger *zap.Logger) *Lifecycle {
	return &Lifecycle{
		logger:       logger,
		readyTimeout: DefaultReadyTimeout,
	}
}

// SetReadyTimeout overrides DefaultReadyTimeout.
func (l *Lifecycle) SetReadyTimeout(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if d > 0 {
		l.readyTimeout = d
	}
}

// Add registers a named service for lifecycle management.
// Services are started in the order they are added.
//
// Precondition: name must be non-empty; svc must be non-nil.
func (l *Lifecycle) Add(name string, svc Service) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.services = append(l.services, namedService{name: name, service: svc})
}

// Run starts all services and blocks until a termination signal is received
// (SIGINT or SIGTERM), ctx is cancelled or a service fails. Services are then
// stopped in reverse order.
//
// Postcondition: Every started service is stopped when this method returns.
// Returns the first service failure, or nil on signal or cancellation.
func (l *Lifecycle) Run(ctx context.Context) error {
	start := time.Now()

	l.mu.Lock()
	services := append([]namedService(nil), l.services...)
	readyTimeout := l.readyTimeout
	l.mu.Unlock()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	errCh := make(chan error, len(services))
	started := 0
	for _, ns := range services {
		l.logger.Info("starting service",
			zap.String("service", ns.name),
		)
		svcStart := time.Now()
		go func() {
			if err := ns.service.Start(); err != nil {
				l.logger.Error("service failed",
					zap.String("service", ns.name),
					zap.Error(err),
					zap.Duration("uptime", time.Since(svcStart)),
				)
				errCh <- fmt.Errorf("service %s: %w", ns.name, err)
			}
		}()
		started++

		if r, ok := ns.service.(Readier); ok {
			if err := l.waitReady(ctx, ns.name, r, readyTimeout, errCh); err != nil {
				l.shutdown(services[:started])
				return err
			}
		}
		l.logger.Info("service ready",
			zap.String("service", ns.name),
			zap.Duration("elapsed", time.Since(svcStart)),
		)
	}

	l.logger.Info("all services started",
		zap.Int("count", len(services)),
		zap.Duration("startup", time.Since(start)),
	)

	var runErr error
	select {
	case sig := <-sigCh:
		l.logger.Info("received signal, shutting down",
			zap.String("signal", sig.String()),
		)
	case runErr = <-errCh:
		l.logger.Error("service error, shutting down",
			zap.Error(runErr),
		)
	case <-ctx.Done():
		l.logger.Info("context cancelled, shutting down")
	}

	l.shutdown(services)

	l.logger.Info("shutdown complete",
		zap.Duration("total_uptime", time.Since(start)),
	)
	return runErr
}

func (l *Lifecycle) waitReady(ctx context.Context, name string, r Readier, timeout time.Duration, errCh <-chan error) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	poll := time.NewTicker(10 * time.Millisecond)
	defer poll.Stop()
	for !r.Ready() {
		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
			return fmt.Errorf("service %s: %w", name, ctx.Err())
		case <-deadline.C:
			return fmt.Errorf("service %s after %s: %w", name, timeout, ErrNotReady)
		case <-poll.C:
		}
	}
	return nil
}

func (l *Lifecycle) shutdown(services []namedService) {
	shutdownStart := time.Now()
	for i := len(services) - 1; i >= 0; i-- {
		ns := services[i]
		svcStart := time.Now()
		l.logger.Info("stopping service",
			zap.String("service", ns.name),
		)
		ns.service.Stop()
		l.logger.Info("service stopped",
			zap.String("service", ns.name),
			zap.Duration("elapsed", time.Since(svcStart)),
		)
	}
	l.logger.Info("all services stopped",
		zap.Duration("shutdown_elapsed", time.Since(shutdownStart)),
	)
}
