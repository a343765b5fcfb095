package gameserver

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/roomsync/internal/game/rng"
	"github.com/cory-johannsen/roomsync/internal/game/session"
	"github.com/cory-johannsen/roomsync/internal/protocol"
)

var errTransportClosed = errors.New("transport closed")

// fakeMember records frames pushed by a Room.
type fakeMember struct {
	id    string
	room  *Room
	limit int

	mu     sync.Mutex
	frames [][]byte
	closed atomic.Int32
}

func newFakeMember(id string, room *Room) *fakeMember {
	return &fakeMember{id: id, room: room}
}

func (m *fakeMember) ID() string { return m.id }

func (m *fakeMember) Send(frame []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed.Load() > 0 {
		return session.ErrOutboxClosed
	}
	if m.limit > 0 && len(m.frames) >= m.limit {
		return session.ErrOutboxFull
	}
	m.frames = append(m.frames, frame)
	return nil
}

func (m *fakeMember) Close() {
	if m.closed.Add(1) == 1 && m.room != nil {
		m.room.Leave(m.id)
	}
}

func (m *fakeMember) envelopes(t testing.TB) []protocol.Envelope {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]protocol.Envelope, 0, len(m.frames))
	for _, f := range m.frames {
		env, err := protocol.DecodeEnvelope(f)
		require.NoError(t, err)
		out = append(out, env)
	}
	return out
}

func (m *fakeMember) types(t testing.TB) []string {
	t.Helper()
	var out []string
	for _, env := range m.envelopes(t) {
		out = append(out, env.T)
	}
	return out
}

func (m *fakeMember) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames = nil
}

// fakeTransport is an in-memory Transport. Inbound frames are fed through in;
// closing in simulates a clean client close.
type fakeTransport struct {
	in       chan []byte
	out      chan []byte
	writeErr atomic.Pointer[error]

	closeOnce sync.Once
	closed    chan struct{}
	closes    atomic.Int32
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		in:     make(chan []byte, 16),
		out:    make(chan []byte, 256),
		closed: make(chan struct{}),
	}
}

func (f *fakeTransport) ReadMessage() ([]byte, error) {
	select {
	case b, ok := <-f.in:
		if !ok {
			return nil, io.EOF
		}
		return b, nil
	case <-f.closed:
		return nil, errTransportClosed
	}
}

func (f *fakeTransport) WriteMessage(frame []byte) error {
	if p := f.writeErr.Load(); p != nil {
		return *p
	}
	select {
	case <-f.closed:
		return errTransportClosed
	case f.out <- frame:
		return nil
	}
}

func (f *fakeTransport) Close() error {
	f.closes.Add(1)
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeTransport) failWrites(err error) {
	f.writeErr.Store(&err)
}

// next returns the next outbound envelope or fails after a timeout.
func (f *fakeTransport) next(t testing.TB) protocol.Envelope {
	t.Helper()
	select {
	case b := <-f.out:
		env, err := protocol.DecodeEnvelope(b)
		require.NoError(t, err)
		return env
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for outbound frame")
		return protocol.Envelope{}
	}
}

// nextOf skips frames until one of type typ arrives.
func (f *fakeTransport) nextOf(t testing.TB, typ string) protocol.Envelope {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case b := <-f.out:
			env, err := protocol.DecodeEnvelope(b)
			require.NoError(t, err)
			if env.T == typ {
				return env
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q frame", typ)
			return protocol.Envelope{}
		}
	}
}

func (f *fakeTransport) send(t testing.TB, typ string, payload any) {
	t.Helper()
	b, err := protocol.Encode(typ, payload)
	require.NoError(t, err)
	f.in <- b
}

func moveFrame(x, y float64) map[string]float64 {
	return map[string]float64{"x": x, "y": y}
}

func decode[T any](t testing.TB, env protocol.Envelope) T {
	t.Helper()
	out, err := protocol.DecodePayload[T](env)
	require.NoError(t, err)
	return out
}

// newTestRoom returns an unstarted room with a deterministic session.
func newTestRoom(t testing.TB, id string, cfg RoomConfig, offloader *Offloader) *Room {
	t.Helper()
	sess := session.New(id, session.Options{WorldObjects: session.DefaultWorldObjects, Source: rng.NewSeededSource(42)})
	r := NewRoom(sess, cfg, offloader, zaptest.NewLogger(t))
	t.Cleanup(r.Close)
	return r
}

func participantID(i int) string {
	return fmt.Sprintf("p%02d", i)
}

func mustParticipant(t testing.TB, r *Room, id string) session.Participant {
	t.Helper()
	p, ok := r.Session().Participant(id)
	require.True(t, ok, "participant %q not present", id)
	return p
}
