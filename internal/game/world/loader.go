package world

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cory-johannsen/roomsync/internal/game/session"
)

// yamlPresetFile is the top-level YAML structure for preset files.
type yamlPresetFile struct {
	Room yamlRoom `yaml:"room"`
}

type yamlRoom struct {
	ID           string       `yaml:"id"`
	Title        string       `yaml:"title"`
	Bounds       yamlBounds   `yaml:"bounds"`
	WorldObjects *int         `yaml:"world_objects"`
	Objects      []yamlObject `yaml:"objects"`
}

type yamlBounds struct {
	Width  float64 `yaml:"width"`
	Height float64 `yaml:"height"`
}

type yamlObject struct {
	Kind string  `yaml:"kind"`
	X    float64 `yaml:"x"`
	Y    float64 `yaml:"y"`
}

// LoadPresetFromFile reads and validates a single preset YAML file.
//
// Precondition: path must point to a valid YAML preset file.
// Postcondition: Returns a validated Preset or a non-nil error.
func LoadPresetFromFile(path string) (*Preset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading preset file %s: %w", path, err)
	}
	return LoadPresetFromBytes(data)
}

// LoadPresetFromBytes parses and validates a preset from YAML bytes.
func LoadPresetFromBytes(data []byte) (*Preset, error) {
	var file yamlPresetFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing preset YAML: %w", err)
	}

	p := convertYAMLRoom(file.Room)
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("validating preset: %w", err)
	}
	return p, nil
}

// LoadPresetsFromDir loads every *.yaml / *.yml file in dir. An empty directory
// yields an empty slice.
//
// Precondition: dir must be a readable directory.
// Postcondition: Returns all validated presets or the first error encountered.
func LoadPresetsFromDir(dir string) ([]*Preset, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading preset directory %s: %w", dir, err)
	}

	var presets []*Preset
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}
		p, err := LoadPresetFromFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("loading preset from %s: %w", name, err)
		}
		presets = append(presets, p)
	}
	return presets, nil
}

func convertYAMLRoom(yr yamlRoom) *Preset {
	p := &Preset{
		ID:           yr.ID,
		Title:        strings.TrimSpace(yr.Title),
		Bounds:       session.Bounds{Width: yr.Bounds.Width, Height: yr.Bounds.Height},
		WorldObjects: yr.WorldObjects,
	}
	for _, yo := range yr.Objects {
		p.Objects = append(p.Objects, session.WorldObject{Kind: yo.Kind, X: yo.X, Y: yo.Y})
	}
	return p
}
