package world

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/roomsync/internal/game/session"
)

const testPresetYAML = `
room:
  id: lobby
  title: "  The Lobby  "
  bounds:
    width: 400
    height: 300
  objects:
    - kind: fountain
      x: 200
      y: 150
    - kind: star
      x: 10
      y: 20
`

func TestLoadPresetFromBytes(t *testing.T) {
	p, err := LoadPresetFromBytes([]byte(testPresetYAML))
	require.NoError(t, err)

	assert.Equal(t, "lobby", p.ID)
	assert.Equal(t, "The Lobby", p.Title)
	assert.Equal(t, session.Bounds{Width: 400, Height: 300}, p.Bounds)
	assert.Nil(t, p.WorldObjects)
	require.Len(t, p.Objects, 2)
	assert.Equal(t, session.WorldObject{Kind: "fountain", X: 200, Y: 150}, p.Objects[0])
}

func TestLoadPresetFromBytes_WorldObjectCount(t *testing.T) {
	p, err := LoadPresetFromBytes([]byte("room:\n  id: empty\n  world_objects: 0\n"))
	require.NoError(t, err)
	require.NotNil(t, p.WorldObjects)
	assert.Equal(t, 0, *p.WorldObjects)
}

func TestLoadPresetFromBytes_InvalidYAML(t *testing.T) {
	_, err := LoadPresetFromBytes([]byte("room: [unclosed"))
	assert.Error(t, err)
}

func TestLoadPresetFromBytes_Invalid(t *testing.T) {
	cases := map[string]string{
		"missing id":      "room:\n  title: x\n",
		"bad id":          "room:\n  id: \"a b\"\n",
		"negative count":  "room:\n  id: r\n  world_objects: -1\n",
		"half bounds":     "room:\n  id: r\n  bounds:\n    width: 10\n",
		"negative bounds": "room:\n  id: r\n  bounds:\n    width: -10\n    height: -10\n",
		"empty kind":      "room:\n  id: r\n  objects:\n    - x: 1\n      y: 2\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadPresetFromBytes([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadPresetsFromDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "lobby.yaml"), []byte(testPresetYAML), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "arena.yml"), []byte("room:\n  id: arena\n  world_objects: 25\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.yaml"), 0755))

	presets, err := LoadPresetsFromDir(dir)
	require.NoError(t, err)
	require.Len(t, presets, 2)

	ids := []string{presets[0].ID, presets[1].ID}
	assert.ElementsMatch(t, []string{"lobby", "arena"}, ids)
}

func TestLoadPresetsFromDir_EmptyDir(t *testing.T) {
	presets, err := LoadPresetsFromDir(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, presets)
}

func TestLoadPresetsFromDir_InvalidFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte("room:\n  id: \"\"\n"), 0644))
	_, err := LoadPresetsFromDir(dir)
	assert.Error(t, err)
}

func TestLoadPresetsFromDir_Missing(t *testing.T) {
	_, err := LoadPresetsFromDir("/nonexistent/presets")
	assert.Error(t, err)
}

func TestValidRoomID(t *testing.T) {
	assert.True(t, ValidRoomID("room1"))
	assert.True(t, ValidRoomID("A-b_9"))
	assert.False(t, ValidRoomID(""))
	assert.False(t, ValidRoomID("../etc"))
	assert.False(t, ValidRoomID(string(make([]byte, 65))))
}

func TestPropertyValidRoomIDAcceptsAlphabet(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		id := rapid.StringMatching(`[A-Za-z0-9_-]{1,64}`).Draw(t, "id")
		if !ValidRoomID(id) {
			t.Fatalf("id %q rejected", id)
		}
	})
}
