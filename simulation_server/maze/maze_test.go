package maze_test

import (
	"slices"
	"testing"

	"github.com/fvdveen/simulacra/simulation_server/maze"
	"github.com/fvdveen/simulacra/simulation_server/memory"
)

// makeVille builds a 2x2 world split over two arenas, with a bed object and a
// spawning location.
func makeVille() *maze.Maze {
	cafe := memory.ParseAddress("the Ville:Hobbs Cafe:cafe")
	bed := memory.ParseAddress("the Ville:Hobbs Cafe:cafe:bed")
	park := memory.ParseAddress("the Ville:Johnson Park:park")

	tiles := [][]maze.Tile{
		{
			{Address: cafe, SpawningLocation: "sp-A", Events: map[maze.Event]struct{}{}},
			{Address: bed, Events: map[maze.Event]struct{}{}},
		},
		{
			{Address: park, Events: map[maze.Event]struct{}{}},
			{Address: park, Events: map[maze.Event]struct{}{}},
		},
	}
	collision := [][]bool{{false, false}, {false, false}}

	return maze.New("the Ville", "test_maze", 2, 2, 32, collision, tiles)
}

func TestAddressToTiles(t *testing.T) {
	m := makeVille()

	tiles, ok := m.AddressToTiles(memory.ParseAddress("the Ville:Hobbs Cafe:cafe:bed"))
	if !ok {
		t.Fatalf("Expected the bed to be on the map")
	}
	if want := []maze.TilePos{{X: 1, Y: 0}}; !slices.Equal(tiles, want) {
		t.Fatalf("Wrong tiles for the bed, got: %+v, want: %+v", tiles, want)
	}

	tiles, ok = m.AddressToTiles(memory.ParseAddress("the Ville:Hobbs Cafe:cafe"))
	if !ok {
		t.Fatalf("Expected the cafe arena to be on the map")
	}
	if len(tiles) != 2 {
		t.Fatalf("Wrong number of cafe tiles, got: %d, want: 2", len(tiles))
	}

	tiles, ok = m.AddressToTiles(memory.SpecialAddress(memory.AddressStateSpawningLocation, "sp-A"))
	if !ok {
		t.Fatalf("Expected the spawning location to be on the map")
	}
	if want := []maze.TilePos{{X: 0, Y: 0}}; !slices.Equal(tiles, want) {
		t.Fatalf("Wrong tiles for the spawning location, got: %+v, want: %+v", tiles, want)
	}
}

func TestExists(t *testing.T) {
	m := makeVille()

	if !m.Exists(memory.ParseAddress("the Ville:Johnson Park:park")) {
		t.Fatalf("Expected the park to exist")
	}
	if m.Exists(memory.ParseAddress("the Ville:Dorm:common room")) {
		t.Fatalf("The dorm should not exist on this map")
	}
}

func TestGetNearbyTiles(t *testing.T) {
	m := makeVille()

	nearby := m.GetNearbyTiles(maze.TilePos{X: 0, Y: 0}, 1)
	if len(nearby) != 4 {
		t.Fatalf("Wrong number of nearby tiles, got: %d, want: 4", len(nearby))
	}

	for _, pos := range nearby {
		if pos.X < 0 || pos.X >= m.Width() || pos.Y < 0 || pos.Y >= m.Height() {
			t.Fatalf("Nearby tile out of bounds: %+v", pos)
		}
	}
}

func TestGetNearbyTilesCoversVision(t *testing.T) {
	size := 7
	collision := make([][]bool, size)
	tiles := make([][]maze.Tile, size)
	for i := 0; i < size; i += 1 {
		for j := 0; j < size; j += 1 {
			collision[i] = append(collision[i], false)
			tiles[i] = append(tiles[i], maze.Tile{})
		}
	}
	m := maze.New("the Ville", "test_maze", size, size, 32, collision, tiles)

	nearby := m.GetNearbyTiles(maze.TilePos{X: 3, Y: 3}, 1)
	if len(nearby) != 9 {
		t.Fatalf("Wrong number of nearby tiles, got: %d, want: 9", len(nearby))
	}
	for _, want := range []maze.TilePos{{X: 2, Y: 2}, {X: 3, Y: 3}, {X: 4, Y: 4}} {
		if !slices.Contains(nearby, want) {
			t.Fatalf("Nearby tiles are missing %+v, got: %+v", want, nearby)
		}
	}
}

func TestGetNearbyTilesRadiusZero(t *testing.T) {
	m := makeVille()

	pos := maze.TilePos{X: 1, Y: 1}
	nearby := m.GetNearbyTiles(pos, 0)

	if len(nearby) != 1 || nearby[0] != pos {
		t.Fatalf("Radius zero should yield only the current tile, got: %+v", nearby)
	}
}

func TestTileEvents(t *testing.T) {
	m := makeVille()

	pos := maze.TilePos{X: 1, Y: 0}
	sleeping := maze.Event{
		SPO:         memory.SPO{Subject: "Maria Lopez", Predicate: "is", Object: "sleeping"},
		Description: "sleeping",
	}

	m.AddEventToTile(pos, sleeping)
	if _, ok := m.GetTile(pos).Events[sleeping]; !ok {
		t.Fatalf("Expected the event on the tile, got: %+v", m.GetTile(pos).Events)
	}

	m.TurnTileEventIdle(pos, sleeping)
	if _, ok := m.GetTile(pos).Events[sleeping]; ok {
		t.Fatalf("The active event should be gone after idling")
	}
	if _, ok := m.GetTile(pos).Events[maze.Blank("Maria Lopez")]; !ok {
		t.Fatalf("Expected a blank event after idling, got: %+v", m.GetTile(pos).Events)
	}

	m.AddEventToTile(pos, sleeping)
	m.RemoveSubjectEventsFromTile(pos, "Maria Lopez")
	if got := len(m.GetTile(pos).Events); got != 0 {
		t.Fatalf("Expected all of the subject's events gone, got: %+v", m.GetTile(pos).Events)
	}

	// Removing an event that is not there is a no-op
	m.RemoveEventFromTile(pos, sleeping)
}
