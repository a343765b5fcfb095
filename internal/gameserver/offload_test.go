package gameserver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/roomsync/internal/game/session"
)

func TestDriftStepper(t *testing.T) {
	in := []session.ParticipantState{{ID: "a", X: 1, Y: 2}, {ID: "b"}}
	out, err := DriftStepper{DX: 1, DY: 1}.Step(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, []session.Displacement{{ID: "a", DX: 1, DY: 1}, {ID: "b", DX: 1, DY: 1}}, out)
}

func newTestOffloader(t *testing.T, stepper Stepper, timeout time.Duration) *Offloader {
	t.Helper()
	o := NewOffloader(stepper, 2, timeout, zaptest.NewLogger(t))
	o.Start()
	t.Cleanup(o.Stop)
	return o
}

func TestOffloader_Step(t *testing.T) {
	o := newTestOffloader(t, DriftStepper{DX: 2, DY: -1}, time.Second)
	out, err := o.Step(context.Background(), "room1", []session.ParticipantState{{ID: "a"}})
	require.NoError(t, err)
	assert.Equal(t, []session.Displacement{{ID: "a", DX: 2, DY: -1}}, out)
}

func TestOffloader_InputIsCopied(t *testing.T) {
	mutating := StepperFunc(func(_ context.Context, in []session.ParticipantState) ([]session.Displacement, error) {
		for i := range in {
			in[i].X = -999
		}
		return nil, nil
	})
	o := newTestOffloader(t, mutating, time.Second)
	in := []session.ParticipantState{{ID: "a", X: 5}}
	_, err := o.Step(context.Background(), "room1", in)
	require.NoError(t, err)
	assert.Equal(t, 5.0, in[0].X)
}

func TestOffloader_StepperErrorIsOffloadFailure(t *testing.T) {
	boom := errors.New("boom")
	failing := StepperFunc(func(context.Context, []session.ParticipantState) ([]session.Displacement, error) {
		return nil, boom
	})
	o := newTestOffloader(t, failing, time.Second)
	_, err := o.Step(context.Background(), "room1", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOffloadFailure)
	assert.Contains(t, err.Error(), "boom")
}

func TestOffloader_Timeout(t *testing.T) {
	slow := StepperFunc(func(ctx context.Context, _ []session.ParticipantState) ([]session.Displacement, error) {
		time.Sleep(200 * time.Millisecond)
		return nil, nil
	})
	o := newTestOffloader(t, slow, 10*time.Millisecond)
	start := time.Now()
	_, err := o.Step(context.Background(), "room1", nil)
	assert.ErrorIs(t, err, ErrOffloadFailure)
	assert.Less(t, time.Since(start), 150*time.Millisecond)
}

func TestOffloader_StoppedRejects(t *testing.T) {
	o := NewOffloader(DriftStepper{}, 1, time.Second, zaptest.NewLogger(t))
	o.Start()
	o.Stop()
	o.Stop()
	_, err := o.Step(context.Background(), "room1", nil)
	assert.ErrorIs(t, err, ErrOffloadFailure)
}

func TestNewOffloader_Defaults(t *testing.T) {
	o := NewOffloader(DriftStepper{}, 0, 0, zaptest.NewLogger(t))
	assert.Equal(t, DefaultOffloadTimeout, o.Timeout())
	assert.Equal(t, 1, o.workers)
}

// Property: the drift stepper returns exactly one displacement per input, in order.
func TestPropertyDriftStepperOnePerInput(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 50).Draw(t, "n")
		in := make([]session.ParticipantState, n)
		for i := range in {
			in[i] = session.ParticipantState{ID: participantID(i), X: rapid.Float64Range(-1e6, 1e6).Draw(t, "x")}
		}
		out, err := DriftStepper{DX: 1, DY: 1}.Step(context.Background(), in)
		if err != nil {
			t.Fatal(err)
		}
		if len(out) != n {
			t.Fatalf("got %d displacements, want %d", len(out), n)
		}
		for i := range out {
			if out[i].ID != in[i].ID {
				t.Fatalf("displacement %d has id %q, want %q", i, out[i].ID, in[i].ID)
			}
		}
	})
}
