package gameserver

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/cory-johannsen/roomsync/internal/game/session"
	"github.com/cory-johannsen/roomsync/internal/game/world"
	"github.com/cory-johannsen/roomsync/internal/observability"
)

// Registry maps room ids to live rooms. It is the only way rooms are created
// or destroyed; the underlying map is never exposed.
type Registry struct {
	catalog   *world.Catalog
	cfg       RoomConfig
	offloader *Offloader
	logger    *zap.Logger

	mu     sync.Mutex
	rooms  map[string]*Room
	closed bool
}

// NewRegistry creates an empty Registry.
//
// Precondition: logger must be non-nil. catalog and offloader may be nil.
func NewRegistry(catalog *world.Catalog, cfg RoomConfig, offloader *Offloader, logger *zap.Logger) *Registry {
	return &Registry{
		catalog:   catalog,
		cfg:       cfg,
		offloader: offloader,
		logger:    logger,
		rooms:     make(map[string]*Room),
	}
}

func (r *Registry) options(roomID string) session.Options {
	if r.catalog == nil {
		return session.Options{WorldObjects: -1}
	}
	return r.catalog.Options(roomID)
}

// GetOrCreate returns the room for roomID, creating and starting it on first use.
//
// Postcondition: Concurrent callers with the same id receive the same *Room.
// Returns ErrInvalidRoomID or ErrRegistryClosed on failure.
func (r *Registry) GetOrCreate(roomID string) (*Room, error) {
	if !world.ValidRoomID(roomID) {
		return nil, fmt.Errorf("room %q: %w", roomID, ErrInvalidRoomID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrRegistryClosed
	}
	if room, ok := r.rooms[roomID]; ok {
		return room, nil
	}

	logger := observability.RoomLogger(r.logger, roomID)
	room := NewRoom(session.New(roomID, r.options(roomID)), r.cfg, r.offloader, logger)
	room.Start()
	r.rooms[roomID] = room
	logger.Info("room created",
		zap.Int("world_objects", len(room.Session().Snapshot().WorldObjects)),
		zap.Int("tick_rate", room.TickRate()),
	)
	return room, nil
}

// Get returns the room for roomID if it exists.
func (r *Registry) Get(roomID string) (*Room, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[roomID]
	return room, ok
}

// Count returns the number of live rooms.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}

// RoomIDs returns the ids of all live rooms in ascending order.
func (r *Registry) RoomIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.rooms))
	for id := range r.rooms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Remove evicts a room: its scheduler stops and its connections close. It
// reports whether the room existed. A later GetOrCreate builds a fresh room.
func (r *Registry) Remove(roomID string) bool {
	r.mu.Lock()
	room, ok := r.rooms[roomID]
	delete(r.rooms, roomID)
	r.mu.Unlock()

	if !ok {
		return false
	}
	room.Close()
	r.logger.Info("room removed", zap.String("room", roomID))
	return true
}

// Close removes every room and rejects further GetOrCreate calls. Idempotent.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	rooms := make([]*Room, 0, len(r.rooms))
	for _, room := range r.rooms {
		rooms = append(rooms, room)
	}
	r.rooms = make(map[string]*Room)
	r.mu.Unlock()

	for _, room := range rooms {
		room.Close()
	}
	if len(rooms) > 0 {
		r.logger.Info("registry closed", zap.Int("rooms", len(rooms)))
	}
}
