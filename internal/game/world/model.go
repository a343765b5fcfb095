// Package world loads room presets: named rooms whose bounds and world-object
// layout are fixed by content files instead of generated from defaults.
package world

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/cory-johannsen/roomsync/internal/game/session"
)

// roomIDPattern is the accepted room identifier alphabet.
var roomIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidRoomID reports whether id can name a room.
func ValidRoomID(id string) bool {
	return roomIDPattern.MatchString(id)
}

// Preset describes one named room.
type Preset struct {
	// ID is the room identifier the preset applies to.
	ID string
	// Title is a human-readable label, informational only.
	Title string
	// Bounds overrides the default room area when non-zero.
	Bounds session.Bounds
	// WorldObjects overrides the generated object count when non-nil.
	WorldObjects *int
	// Objects is a fixed layout; when non-empty it replaces generation.
	Objects []session.WorldObject
}

// Validate checks preset invariants.
//
// Postcondition: Returns nil if valid, or an error describing every violation.
func (p *Preset) Validate() error {
	var errs []string
	if !ValidRoomID(p.ID) {
		errs = append(errs, fmt.Sprintf("room id %q must match %s", p.ID, roomIDPattern.String()))
	}
	if p.Bounds.Width < 0 || p.Bounds.Height < 0 {
		errs = append(errs, "bounds must not be negative")
	}
	if (p.Bounds.Width == 0) != (p.Bounds.Height == 0) {
		errs = append(errs, "bounds width and height must both be set or both be omitted")
	}
	if p.WorldObjects != nil && *p.WorldObjects < 0 {
		errs = append(errs, fmt.Sprintf("world_objects must be >= 0, got %d", *p.WorldObjects))
	}
	for i, o := range p.Objects {
		if o.Kind == "" {
			errs = append(errs, fmt.Sprintf("objects[%d]: kind must not be empty", i))
		}
		if !(session.Position{X: o.X, Y: o.Y}).Finite() {
			errs = append(errs, fmt.Sprintf("objects[%d]: coordinates must be finite", i))
		}
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}
