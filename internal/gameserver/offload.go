package gameserver

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/roomsync/internal/game/session"
)

// DefaultOffloadTimeout bounds a single offloaded step.
const DefaultOffloadTimeout = 25 * time.Millisecond

// Stepper computes one simulation step for a room.
//
// Precondition: in must not be mutated.
// Postcondition: Returns one displacement per participant to move, or an error.
type Stepper interface {
	Step(ctx context.Context, in []session.ParticipantState) ([]session.Displacement, error)
}

// StepperFunc adapts a function to Stepper.
type StepperFunc func(ctx context.Context, in []session.ParticipantState) ([]session.Displacement, error)

// Step calls f.
func (f StepperFunc) Step(ctx context.Context, in []session.ParticipantState) ([]session.Displacement, error) {
	return f(ctx, in)
}

// DriftStepper moves every participant by a constant offset each step.
type DriftStepper struct {
	DX float64
	DY float64
}

// Step returns a {DX, DY} displacement for every input participant.
func (d DriftStepper) Step(_ context.Context, in []session.ParticipantState) ([]session.Displacement, error) {
	out := make([]session.Displacement, 0, len(in))
	for _, p := range in {
		out = append(out, session.Displacement{ID: p.ID, DX: d.DX, DY: d.DY})
	}
	return out, nil
}

// StepRequest is one unit of work handed to an offload worker.
type StepRequest struct {
	Room         string
	Participants []session.ParticipantState

	ctx   context.Context
	reply chan stepResult
}

type stepResult struct {
	displacements []session.Displacement
	err           error
}

// Offloader runs steps on a fixed pool of worker goroutines. Requests and
// results travel over channels; workers never touch room state.
type Offloader struct {
	stepper  Stepper
	workers  int
	timeout  time.Duration
	logger   *zap.Logger
	requests chan StepRequest

	startOnce sync.Once
	stopOnce  sync.Once
	quit      chan struct{}
	wg        sync.WaitGroup
}

// NewOffloader creates a stopped Offloader.
//
// Precondition: stepper and logger must be non-nil.
// Postcondition: workers < 1 is raised to 1; timeout <= 0 uses DefaultOffloadTimeout.
func NewOffloader(stepper Stepper, workers int, timeout time.Duration, logger *zap.Logger) *Offloader {
	if workers < 1 {
		workers = 1
	}
	if timeout <= 0 {
		timeout = DefaultOffloadTimeout
	}
	return &Offloader{
		stepper:  stepper,
		workers:  workers,
		timeout:  timeout,
		logger:   logger,
		requests: make(chan StepRequest),
		quit:     make(chan struct{}),
	}
}

// Timeout returns the per-step deadline.
func (o *Offloader) Timeout() time.Duration {
	return o.timeout
}

// Start launches the worker pool. Idempotent.
func (o *Offloader) Start() {
	o.startOnce.Do(func() {
		for i := 0; i < o.workers; i++ {
			o.wg.Add(1)
			go o.work()
		}
		o.logger.Info("offload workers started", zap.Int("workers", o.workers))
	})
}

// Stop terminates the worker pool and waits for in-progress steps. Idempotent.
func (o *Offloader) Stop() {
	o.stopOnce.Do(func() {
		close(o.quit)
	})
	o.wg.Wait()
}

func (o *Offloader) work() {
	defer o.wg.Done()
	for {
		select {
		case <-o.quit:
			return
		case req := <-o.requests:
			out, err := o.stepper.Step(req.ctx, req.Participants)
			// reply is buffered; an abandoned request never blocks the worker.
			req.reply <- stepResult{displacements: out, err: err}
		}
	}
}

// Step submits a copy of in to the pool and waits for the result.
//
// Postcondition: Returns the displacements, or an error wrapping ErrOffloadFailure
// when the step timed out, failed, or the pool is stopped.
func (o *Offloader) Step(ctx context.Context, roomID string, in []session.ParticipantState) ([]session.Displacement, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	req := StepRequest{
		Room:         roomID,
		Participants: append([]session.ParticipantState(nil), in...),
		ctx:          ctx,
		reply:        make(chan stepResult, 1),
	}

	select {
	case o.requests <- req:
	case <-o.quit:
		return nil, fmt.Errorf("room %s: %w: offloader stopped", roomID, ErrOffloadFailure)
	case <-ctx.Done():
		return nil, fmt.Errorf("room %s: %w: no worker available: %v", roomID, ErrOffloadFailure, ctx.Err())
	}

	select {
	case res := <-req.reply:
		if res.err != nil {
			return nil, fmt.Errorf("room %s: %w: %v", roomID, ErrOffloadFailure, res.err)
		}
		return res.displacements, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("room %s: %w: %v", roomID, ErrOffloadFailure, ctx.Err())
	}
}
