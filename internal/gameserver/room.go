package gameserver

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/roomsync/internal/game/session"
	"github.com/cory-johannsen/roomsync/internal/protocol"
)

// DefaultTickRate is the broadcast frequency in Hz used when RoomConfig.TickRate is unset.
const DefaultTickRate = 20

// Member is a connection attached to a room.
type Member interface {
	ID() string
	// Send enqueues an encoded frame without blocking.
	Send(frame []byte) error
	// Close detaches the member. It may call Room.Leave.
	Close()
}

// RoomConfig holds the per-room settings shared by every room in a Registry.
type RoomConfig struct {
	TickRate int
	Delivery Delivery
}

// TickInterval returns the period between broadcasts.
func (c RoomConfig) TickInterval() time.Duration {
	rate := c.TickRate
	if rate <= 0 {
		rate = DefaultTickRate
	}
	return time.Second / time.Duration(rate)
}

// Room couples a Session with the connections attached to it.
//
// Invariant: every mutation of the session and the fan-out of its event happen
// under mu, so each member observes events in mutation order.
// Invariant: the member set equals the session's participant set.
type Room struct {
	id        string
	session   *session.Session
	cfg       RoomConfig
	offloader *Offloader
	logger    *zap.Logger
	scheduler *Scheduler

	mu          sync.Mutex
	members     map[string]Member
	lastEmitted uint64
	closed      bool

	offloading atomic.Bool
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	closeOnce  sync.Once
}

// NewRoom creates a stopped Room around sess. offloader may be nil.
//
// Precondition: sess and logger must be non-nil.
func NewRoom(sess *session.Session, cfg RoomConfig, offloader *Offloader, logger *zap.Logger) *Room {
	if cfg.TickRate <= 0 {
		cfg.TickRate = DefaultTickRate
	}
	if cfg.Delivery.Policy == "" {
		cfg.Delivery = FullDelivery()
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &Room{
		id:          sess.ID(),
		session:     sess,
		cfg:         cfg,
		offloader:   offloader,
		logger:      logger,
		members:     make(map[string]Member),
		lastEmitted: sess.Version(),
		ctx:         ctx,
		cancel:      cancel,
	}
	r.scheduler = NewScheduler(cfg.TickInterval(), r.tick)
	return r
}

// ID returns the room id.
func (r *Room) ID() string {
	return r.id
}

// Session returns the room's authoritative state.
func (r *Room) Session() *session.Session {
	return r.session
}

// TickRate returns the broadcast frequency in Hz.
func (r *Room) TickRate() int {
	return r.cfg.TickRate
}

// MemberCount returns the number of attached members.
func (r *Room) MemberCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}

// Start begins periodic broadcasting.
func (r *Room) Start() {
	r.scheduler.Start()
}

// Join registers m as a participant, queues welcome and gameState to m and
// newParticipant to every other member.
//
// Postcondition: On success m is a member. On error the room is unchanged.
func (r *Room) Join(m Member) (session.Participant, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return session.Participant{}, ErrRoomClosed
	}
	p, err := r.session.AddParticipant(m.ID())
	if err != nil {
		r.mu.Unlock()
		return p, err
	}
	r.members[p.ID] = m

	var failed []Member
	welcome := protocol.MustEncode(protocol.MsgWelcome, protocol.Welcome{ID: p.ID, Room: r.id, TickRate: r.cfg.TickRate})
	state := protocol.MustEncode(protocol.MsgGameState, protocol.FromSnapshot(r.session.Snapshot()))
	for _, frame := range [][]byte{welcome, state} {
		if err := m.Send(frame); err != nil {
			failed = append(failed, m)
			break
		}
	}
	joined := protocol.MustEncode(protocol.MsgNewParticipant, protocol.ParticipantPosition{ID: p.ID, X: p.X, Y: p.Y})
	failed = append(failed, r.fanOut(joined, func(id string) bool { return id != p.ID })...)
	r.mu.Unlock()

	r.logger.Debug("participant added",
		zap.String("participant", p.ID),
		zap.Float64("x", p.X),
		zap.Float64("y", p.Y),
	)
	r.evict(failed)
	return p, nil
}

// Move updates a participant's position and sends participantMoved to the
// members selected by the room's delivery policy. The mover is always included.
//
// Postcondition: On error (unknown participant, invalid position) nothing is sent.
func (r *Room) Move(id string, x, y float64) error {
	r.mu.Lock()
	if err := r.session.UpdatePosition(id, x, y); err != nil {
		r.mu.Unlock()
		return err
	}
	mover := session.Position{X: x, Y: y}
	frame := protocol.MustEncode(protocol.MsgParticipantMoved, protocol.ParticipantPosition{ID: id, X: x, Y: y})

	var failed []Member
	if r.cfg.Delivery.Broadcast() {
		failed = r.fanOut(frame, nil)
	} else {
		failed = r.fanOut(frame, func(member string) bool {
			if member == id {
				return true
			}
			pos, ok := r.session.Position(member)
			return ok && r.cfg.Delivery.Includes(mover, pos)
		})
	}
	r.mu.Unlock()

	r.evict(failed)
	return nil
}

// Leave removes a participant and sends participantDisconnected to the
// remaining members. It reports whether the participant was present.
func (r *Room) Leave(id string) bool {
	r.mu.Lock()
	delete(r.members, id)
	removed := r.session.RemoveParticipant(id)
	var failed []Member
	if removed && !r.closed {
		frame := protocol.MustEncode(protocol.MsgParticipantDisconnected, protocol.ParticipantDisconnected{ID: id})
		failed = r.fanOut(frame, nil)
	}
	r.mu.Unlock()

	if removed {
		r.logger.Debug("participant removed", zap.String("participant", id))
	}
	r.evict(failed)
	return removed
}

// BroadcastState sends a gameState snapshot to every member when the session
// changed since the last emission. It reports whether a snapshot was sent.
func (r *Room) BroadcastState() bool {
	r.mu.Lock()
	version := r.session.Version()
	if version == r.lastEmitted {
		r.mu.Unlock()
		return false
	}
	if len(r.members) == 0 {
		r.lastEmitted = version
		r.mu.Unlock()
		return false
	}
	snap := r.session.Snapshot()
	r.lastEmitted = snap.Version
	frame := protocol.MustEncode(protocol.MsgGameState, protocol.FromSnapshot(snap))
	failed := r.fanOut(frame, nil)
	r.mu.Unlock()

	r.evict(failed)
	return true
}

// ApplyDisplacements swaps an offload result into the session.
//
// Postcondition: Returns the number of participants displaced; zero after Close.
func (r *Room) ApplyDisplacements(deltas []session.Displacement) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0
	}
	return r.session.ApplyDisplacements(deltas)
}

func (r *Room) tick() {
	r.BroadcastState()
	r.offload()
}

// offload submits the current positions to the Offloader unless a step for
// this room is still in flight.
func (r *Room) offload() {
	if r.offloader == nil {
		return
	}
	if !r.offloading.CompareAndSwap(false, true) {
		r.logger.Debug("offload step still in flight, skipping tick")
		return
	}
	in := r.session.Positions()
	if len(in) == 0 {
		r.offloading.Store(false)
		return
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.offloading.Store(false)

		start := time.Now()
		out, err := r.offloader.Step(r.ctx, r.id, in)
		if err != nil {
			r.logger.Warn("offload step failed, keeping current state",
				zap.Error(err),
				zap.Duration("elapsed", time.Since(start)),
			)
			return
		}
		r.ApplyDisplacements(out)
	}()
}

// fanOut sends frame to every member accepted by include (all when nil) and
// returns the members whose outbox rejected it.
//
// Precondition: r.mu must be held.
func (r *Room) fanOut(frame []byte, include func(id string) bool) []Member {
	var failed []Member
	for id, m := range r.members {
		if include != nil && !include(id) {
			continue
		}
		if err := m.Send(frame); err != nil {
			failed = append(failed, m)
		}
	}
	return failed
}

// evict closes members that could not keep up.
//
// Precondition: r.mu must not be held.
func (r *Room) evict(members []Member) {
	for _, m := range members {
		r.logger.Warn("closing slow connection", zap.String("participant", m.ID()))
		m.Close()
	}
}

// Close stops the scheduler, abandons any offload step and closes every member.
// Idempotent.
func (r *Room) Close() {
	r.closeOnce.Do(func() {
		r.scheduler.Stop()
		r.cancel()
		r.wg.Wait()

		r.mu.Lock()
		r.closed = true
		members := make([]Member, 0, len(r.members))
		for _, m := range r.members {
			members = append(members, m)
		}
		r.mu.Unlock()

		for _, m := range members {
			m.Close()
		}
		r.logger.Debug("room closed", zap.Int("members", len(members)))
	})
}
