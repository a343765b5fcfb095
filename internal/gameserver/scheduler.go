package gameserver

import (
	"sync"
	"time"
)

// Scheduler invokes a callback on a fixed interval from a single goroutine.
//
// Invariant: the callback is never invoked concurrently with itself, and never
// after Stop returns.
type Scheduler struct {
	interval time.Duration
	fn       func()

	startOnce sync.Once
	stopOnce  sync.Once
	quit      chan struct{}
	done      chan struct{}
}

// NewScheduler returns a stopped Scheduler that calls fn every interval.
//
// Precondition: interval must be > 0 and fn must be non-nil.
func NewScheduler(interval time.Duration, fn func()) *Scheduler {
	if interval <= 0 {
		panic("gameserver.NewScheduler: interval must be > 0")
	}
	if fn == nil {
		panic("gameserver.NewScheduler: fn must be non-nil")
	}
	return &Scheduler{
		interval: interval,
		fn:       fn,
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Interval returns the tick interval.
func (s *Scheduler) Interval() time.Duration {
	return s.interval
}

// Start launches the tick goroutine. Calling Start more than once, or after
// Stop, has no effect.
func (s *Scheduler) Start() {
	s.startOnce.Do(func() {
		select {
		case <-s.quit:
			close(s.done)
			return
		default:
		}
		go s.run()
	})
}

func (s *Scheduler) run() {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.quit:
			return
		case <-ticker.C:
			s.fn()
		}
	}
}

// Stop halts the ticker and waits for the tick goroutine to exit. Idempotent.
//
// Precondition: must not be called from inside the callback.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.quit) })
	s.startOnce.Do(func() { close(s.done) })
	<-s.done
}

// Done is closed once the tick goroutine has exited.
func (s *Scheduler) Done() <-chan struct{} {
	return s.done
}
