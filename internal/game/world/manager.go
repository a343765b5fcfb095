package world

import (
	"fmt"
	"sort"
	"sync"

	"github.com/cory-johannsen/roomsync/internal/game/rng"
	"github.com/cory-johannsen/roomsync/internal/game/session"
)

// Defaults are the session options applied to rooms without a preset.
type Defaults struct {
	Bounds       session.Bounds
	WorldObjects int
	Source       rng.Source
}

// Catalog resolves room ids to session options, consulting presets first.
// It is safe for concurrent use.
type Catalog struct {
	mu       sync.RWMutex
	presets  map[string]*Preset
	defaults Defaults
}

// NewCatalog indexes presets by id.
//
// Postcondition: Returns a Catalog, or an error on duplicate preset ids.
func NewCatalog(presets []*Preset, defaults Defaults) (*Catalog, error) {
	c := &Catalog{
		presets:  make(map[string]*Preset, len(presets)),
		defaults: defaults,
	}
	for _, p := range presets {
		if _, exists := c.presets[p.ID]; exists {
			return nil, fmt.Errorf("duplicate room preset %q", p.ID)
		}
		c.presets[p.ID] = p
	}
	return c, nil
}

// Preset returns the preset for roomID, if any.
func (c *Catalog) Preset(roomID string) (*Preset, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.presets[roomID]
	return p, ok
}

// PresetIDs returns the ids of all presets in ascending order.
func (c *Catalog) PresetIDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.presets))
	for id := range c.presets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Options returns the session options for roomID: the preset's overrides on top
// of the catalog defaults.
func (c *Catalog) Options(roomID string) session.Options {
	opts := session.Options{
		Bounds:       c.defaults.Bounds,
		WorldObjects: c.defaults.WorldObjects,
		Source:       c.defaults.Source,
	}
	p, ok := c.Preset(roomID)
	if !ok {
		return opts
	}
	if p.Bounds.Width > 0 && p.Bounds.Height > 0 {
		opts.Bounds = p.Bounds
	}
	if p.WorldObjects != nil {
		opts.WorldObjects = *p.WorldObjects
	}
	if len(p.Objects) > 0 {
		opts.Objects = append([]session.WorldObject(nil), p.Objects...)
	}
	return opts
}
