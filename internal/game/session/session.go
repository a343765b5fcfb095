// Package session holds the authoritative state of a single room: its
// participants and its static world objects.
package session

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/cory-johannsen/roomsync/internal/game/rng"
)

// DefaultBounds is the playable area used when Options.Bounds is zero.
var DefaultBounds = Bounds{Width: 800, Height: 600}

// DefaultWorldObjects is the object count used when Options.WorldObjects is negative.
const DefaultWorldObjects = 10

// DefaultObjectKind is the kind assigned to generated world objects.
const DefaultObjectKind = "star"

var (
	// ErrDuplicateParticipant is returned by AddParticipant when the id is already present.
	ErrDuplicateParticipant = errors.New("duplicate participant")
	// ErrUnknownParticipant is returned when an operation names an absent participant.
	ErrUnknownParticipant = errors.New("unknown participant")
	// ErrInvalidPosition is returned for NaN or infinite coordinates.
	ErrInvalidPosition = errors.New("invalid position")
)

// Bounds is the room rectangle [0, Width) x [0, Height).
type Bounds struct {
	Width  float64
	Height float64
}

// Position is a point in room coordinates.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Finite reports whether both coordinates are real numbers.
func (p Position) Finite() bool {
	return !math.IsNaN(p.X) && !math.IsInf(p.X, 0) && !math.IsNaN(p.Y) && !math.IsInf(p.Y, 0)
}

// Participant is one connected player within a Session.
type Participant struct {
	ID string
	Position
	ConnectedAt time.Time
}

// ParticipantState is the id/position pair handed to offload steppers.
type ParticipantState struct {
	ID string
	X  float64
	Y  float64
}

// Displacement is a field-level position delta produced by an offload step.
type Displacement struct {
	ID string
	DX float64
	DY float64
}

// WorldObject is a static decoration placed at room creation.
type WorldObject struct {
	Kind string  `json:"kind"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
}

// Snapshot is a point-in-time copy of a Session. It shares no memory with the
// Session it was taken from.
type Snapshot struct {
	SessionID    string
	Version      uint64
	WorldObjects []WorldObject
	Participants map[string]Position
}

// IDs returns the participant ids of the snapshot in ascending order.
func (s Snapshot) IDs() []string {
	ids := make([]string, 0, len(s.Participants))
	for id := range s.Participants {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Options configures a new Session.
type Options struct {
	// Bounds is the room area. Zero means DefaultBounds.
	Bounds Bounds
	// WorldObjects is the number of objects to generate. Negative means DefaultWorldObjects.
	WorldObjects int
	// Objects, when non-nil, replaces generation with a fixed layout.
	Objects []WorldObject
	// Source drives spawn and object placement. Nil means a crypto source.
	Source rng.Source
	// Now stamps ConnectedAt. Nil means time.Now.
	Now func() time.Time
}

// Session is the authoritative state of one room.
// All methods are safe for concurrent use; each completes atomically.
type Session struct {
	id     string
	bounds Bounds
	src    rng.Source
	now    func() time.Time

	mu           sync.RWMutex
	participants map[string]*Participant
	worldObjects []WorldObject
	version      uint64
}

// New creates a Session with freshly generated world objects and no participants.
//
// Precondition: id must be non-empty.
// Postcondition: Returns a Session whose world objects are fixed until RegenerateWorldObjects.
func New(id string, opts Options) *Session {
	if opts.Bounds.Width <= 0 || opts.Bounds.Height <= 0 {
		opts.Bounds = DefaultBounds
	}
	if opts.Source == nil {
		opts.Source = rng.NewCryptoSource()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &Session{
		id:           id,
		bounds:       opts.Bounds,
		src:          opts.Source,
		now:          opts.Now,
		participants: make(map[string]*Participant),
	}
	switch {
	case opts.Objects != nil:
		s.worldObjects = append([]WorldObject(nil), opts.Objects...)
	case opts.WorldObjects < 0:
		s.worldObjects = s.generateObjects(DefaultWorldObjects)
	default:
		s.worldObjects = s.generateObjects(opts.WorldObjects)
	}
	return s
}

// ID returns the session identifier (the room path).
func (s *Session) ID() string {
	return s.id
}

// Bounds returns the room area.
func (s *Session) Bounds() Bounds {
	return s.bounds
}

func (s *Session) randomPosition() Position {
	return Position{
		X: rng.Between(s.src, 0, s.bounds.Width),
		Y: rng.Between(s.src, 0, s.bounds.Height),
	}
}

func (s *Session) generateObjects(count int) []WorldObject {
	objs := make([]WorldObject, 0, count)
	for i := 0; i < count; i++ {
		p := s.randomPosition()
		objs = append(objs, WorldObject{Kind: DefaultObjectKind, X: p.X, Y: p.Y})
	}
	return objs
}

// AddParticipant registers a participant at a random position.
//
// Precondition: id must be non-empty.
// Postcondition: Returns the new Participant, or the existing one together with
// ErrDuplicateParticipant. An existing participant is never overwritten.
func (s *Session) AddParticipant(id string) (Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.participants[id]; ok {
		return *p, fmt.Errorf("participant %q: %w", id, ErrDuplicateParticipant)
	}
	p := &Participant{
		ID:          id,
		Position:    s.randomPosition(),
		ConnectedAt: s.now(),
	}
	s.participants[id] = p
	s.version++
	return *p, nil
}

// RemoveParticipant removes a participant. It reports whether one was removed;
// removing an absent id is a no-op.
func (s *Session) RemoveParticipant(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.participants[id]; !ok {
		return false
	}
	delete(s.participants, id)
	s.version++
	return true
}

// UpdatePosition sets a participant's position.
//
// Postcondition: On ErrUnknownParticipant or ErrInvalidPosition the session is unchanged.
func (s *Session) UpdatePosition(id string, x, y float64) error {
	pos := Position{X: x, Y: y}
	if !pos.Finite() {
		return ErrInvalidPosition
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.participants[id]
	if !ok {
		return fmt.Errorf("participant %q: %w", id, ErrUnknownParticipant)
	}
	p.Position = pos
	s.version++
	return nil
}

// Participant returns a copy of the participant with the given id.
func (s *Session) Participant(id string) (Participant, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.participants[id]
	if !ok {
		return Participant{}, false
	}
	return *p, true
}

// Position returns the current position of the participant with the given id.
func (s *Session) Position(id string) (Position, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.participants[id]
	if !ok {
		return Position{}, false
	}
	return p.Position, true
}

// Len returns the number of participants.
func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.participants)
}

// Version returns a counter that increases with every successful mutation.
func (s *Session) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Snapshot returns a deep copy of the session taken under a single lock.
//
// Postcondition: The returned value shares no mutable memory with the Session.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		SessionID:    s.id,
		Version:      s.version,
		WorldObjects: append([]WorldObject(nil), s.worldObjects...),
		Participants: make(map[string]Position, len(s.participants)),
	}
	if snap.WorldObjects == nil {
		snap.WorldObjects = []WorldObject{}
	}
	for id, p := range s.participants {
		snap.Participants[id] = p.Position
	}
	return snap
}

// Positions returns every participant's id and position, sorted by id.
func (s *Session) Positions() []ParticipantState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ParticipantState, 0, len(s.participants))
	for id, p := range s.participants {
		out = append(out, ParticipantState{ID: id, X: p.X, Y: p.Y})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ApplyDisplacements adds each delta to the current position of its participant.
// Deltas for absent participants and non-finite results are skipped, so joins,
// leaves and moves that raced with the step are preserved.
//
// Postcondition: Returns the number of participants actually displaced.
func (s *Session) ApplyDisplacements(deltas []Displacement) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	applied := 0
	for _, d := range deltas {
		p, ok := s.participants[d.ID]
		if !ok {
			continue
		}
		next := Position{X: p.X + d.DX, Y: p.Y + d.DY}
		if !next.Finite() {
			continue
		}
		p.Position = next
		applied++
	}
	if applied > 0 {
		s.version++
	}
	return applied
}

// RegenerateWorldObjects replaces the world objects wholesale with count new ones.
// Negative counts are treated as zero.
func (s *Session) RegenerateWorldObjects(count int) {
	if count < 0 {
		count = 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.worldObjects = s.generateObjects(count)
	s.version++
}
