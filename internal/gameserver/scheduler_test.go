package gameserver

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduler_InvokesCallback(t *testing.T) {
	called := make(chan struct{}, 1)
	s := NewScheduler(10*time.Millisecond, func() {
		select {
		case called <- struct{}{}:
		default:
		}
	})
	s.Start()
	defer s.Stop()

	select {
	case <-called:
	case <-time.After(time.Second):
		t.Fatal("tick callback not invoked within timeout")
	}
}

func TestScheduler_StopIsIdempotentAndWaits(t *testing.T) {
	var count atomic.Int64
	s := NewScheduler(5*time.Millisecond, func() { count.Add(1) })
	s.Start()
	require.Eventually(t, func() bool { return count.Load() > 0 }, time.Second, time.Millisecond)

	s.Stop()
	s.Stop()
	select {
	case <-s.Done():
	default:
		t.Fatal("Done not closed after Stop")
	}

	after := count.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, count.Load(), "callback ran after Stop returned")
}

func TestScheduler_StopBeforeStart(t *testing.T) {
	var count atomic.Int64
	s := NewScheduler(time.Millisecond, func() { count.Add(1) })
	s.Stop()
	s.Start()
	time.Sleep(10 * time.Millisecond)
	assert.Zero(t, count.Load())
	<-s.Done()
}

func TestScheduler_StartTwiceRunsOneLoop(t *testing.T) {
	var running, maxRunning atomic.Int32
	s := NewScheduler(time.Millisecond, func() {
		n := running.Add(1)
		if n > maxRunning.Load() {
			maxRunning.Store(n)
		}
		time.Sleep(2 * time.Millisecond)
		running.Add(-1)
	})
	s.Start()
	s.Start()
	time.Sleep(30 * time.Millisecond)
	s.Stop()
	assert.EqualValues(t, 1, maxRunning.Load())
}

func TestNewScheduler_PanicsOnInvalidArgs(t *testing.T) {
	assert.Panics(t, func() { NewScheduler(0, func() {}) })
	assert.Panics(t, func() { NewScheduler(time.Second, nil) })
}

func TestScheduler_Interval(t *testing.T) {
	assert.Equal(t, 50*time.Millisecond, NewScheduler(50*time.Millisecond, func() {}).Interval())
}
