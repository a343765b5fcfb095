package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// ErrInvalidMessage marks an inbound frame that is malformed or semantically invalid.
var ErrInvalidMessage = errors.New("invalid message")

// Encode wraps payload in an Envelope of type t and marshals it.
func Encode(t string, payload any) ([]byte, error) {
	if t == "" {
		return nil, errors.New("encoding envelope: empty type")
	}
	if payload == nil {
		return nil, fmt.Errorf("encoding %q: nil payload", t)
	}
	pb, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding %q payload: %w", t, err)
	}
	return json.Marshal(Envelope{T: t, P: pb})
}

// MustEncode is Encode for payloads that cannot fail to marshal.
func MustEncode(t string, payload any) []byte {
	b, err := Encode(t, payload)
	if err != nil {
		panic("protocol: " + err.Error())
	}
	return b
}

// DecodeEnvelope parses the outer frame.
func DecodeEnvelope(b []byte) (Envelope, error) {
	if len(b) == 0 {
		return Envelope{}, fmt.Errorf("%w: empty frame", ErrInvalidMessage)
	}
	var e Envelope
	if err := json.Unmarshal(b, &e); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if e.T == "" {
		return Envelope{}, fmt.Errorf("%w: missing type", ErrInvalidMessage)
	}
	return e, nil
}

// DecodePayload unmarshals the envelope payload into T.
func DecodePayload[T any](env Envelope) (T, error) {
	var out T
	if len(env.P) == 0 {
		return out, fmt.Errorf("%w: empty payload for type %q", ErrInvalidMessage, env.T)
	}
	if err := json.Unmarshal(env.P, &out); err != nil {
		return out, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	return out, nil
}

// DecodeMove parses and validates a move payload.
//
// Postcondition: Returns finite coordinates, or an error wrapping ErrInvalidMessage
// when either field is missing, non-numeric or non-finite.
func DecodeMove(env Envelope) (x, y float64, err error) {
	m, err := DecodePayload[Move](env)
	if err != nil {
		return 0, 0, err
	}
	if m.X == nil || m.Y == nil {
		return 0, 0, fmt.Errorf("%w: move requires x and y", ErrInvalidMessage)
	}
	if !finite(*m.X) || !finite(*m.Y) {
		return 0, 0, fmt.Errorf("%w: move coordinates must be finite", ErrInvalidMessage)
	}
	return *m.X, *m.Y, nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
