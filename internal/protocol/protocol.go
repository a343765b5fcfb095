// Package protocol defines the JSON wire format spoken over room websockets.
//
// Every frame is an Envelope {"t": <type>, "p": <payload>}.
package protocol

import (
	"encoding/json"

	"github.com/cory-johannsen/roomsync/internal/game/session"
)

// Inbound message types.
const (
	MsgMove = "move"
)

// Outbound message types.
const (
	MsgWelcome                 = "welcome"
	MsgGameState               = "gameState"
	MsgNewParticipant          = "newParticipant"
	MsgParticipantMoved        = "participantMoved"
	MsgParticipantDisconnected = "participantDisconnected"
)

// Envelope is the outer frame of every message.
type Envelope struct {
	T string          `json:"t"`
	P json.RawMessage `json:"p"`
}

// Move requests a position update for the sending connection. Pointer fields
// distinguish a missing coordinate from zero.
type Move struct {
	X *float64 `json:"x"`
	Y *float64 `json:"y"`
}

// Welcome tells a client its own participant id.
type Welcome struct {
	ID       string `json:"id"`
	Room     string `json:"room"`
	TickRate int    `json:"tickRate"`
}

// GameState is a full room snapshot.
type GameState struct {
	WorldObjects []session.WorldObject       `json:"worldObjects"`
	Participants map[string]session.Position `json:"participants"`
}

// ParticipantPosition announces a join or a move.
type ParticipantPosition struct {
	ID string  `json:"id"`
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
}

// ParticipantDisconnected announces a departure.
type ParticipantDisconnected struct {
	ID string `json:"id"`
}

// FromSnapshot converts a session snapshot into its wire form.
func FromSnapshot(snap session.Snapshot) GameState {
	return GameState{
		WorldObjects: snap.WorldObjects,
		Participants: snap.Participants,
	}
}
