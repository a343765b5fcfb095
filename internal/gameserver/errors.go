package gameserver

import "errors"

var (
	// ErrInvalidRoomID is returned by Registry.GetOrCreate for ids that cannot name a room.
	ErrInvalidRoomID = errors.New("invalid room id")
	// ErrRegistryClosed is returned by Registry.GetOrCreate after Close.
	ErrRegistryClosed = errors.New("registry closed")
	// ErrRoomClosed is returned by Room.Join after the room has been removed.
	ErrRoomClosed = errors.New("room closed")
	// ErrConnectionClosed is returned by Connection.Serve when the connection
	// was closed before it became active.
	ErrConnectionClosed = errors.New("connection closed")
	// ErrOffloadFailure wraps a timed-out, failed or rejected offload step.
	ErrOffloadFailure = errors.New("offload failure")
)
