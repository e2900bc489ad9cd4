package server_test

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/fvdveen/simulacra/simulation_server/agent"
	"github.com/fvdveen/simulacra/simulation_server/llm"
	"github.com/fvdveen/simulacra/simulation_server/llm/llmtest"
	"github.com/fvdveen/simulacra/simulation_server/maze"
	"github.com/fvdveen/simulacra/simulation_server/memory"
	"github.com/fvdveen/simulacra/simulation_server/server"
)

type loadResult struct {
	env map[string]server.EnvironmentPersona
	err error
}

// fakeStorage keeps everything in memory. Environments are served per step the
// way the file storage does, with an optional queue of canned results to
// emulate a frontend that is slow or mid-write.
type fakeStorage struct {
	envDir string

	envs  map[int]map[string]server.EnvironmentPersona
	queue []loadResult

	loadCalls     int
	movements     map[int]map[string]server.PersonaMovement
	movementTimes map[int]time.Time
	backups       []int
	saved         int
	destroyed     bool
}

func newFakeStorage(t *testing.T) *fakeStorage {
	return &fakeStorage{
		envDir:        t.TempDir(),
		envs:          map[int]map[string]server.EnvironmentPersona{},
		movements:     map[int]map[string]server.PersonaMovement{},
		movementTimes: map[int]time.Time{},
	}
}

func (f *fakeStorage) LoadEnvironment(step int) (map[string]server.EnvironmentPersona, error) {
	f.loadCalls += 1

	if len(f.queue) > 0 {
		next := f.queue[0]
		f.queue = f.queue[1:]
		return next.env, next.err
	}

	env, ok := f.envs[step]
	if !ok {
		return nil, fs.ErrNotExist
	}
	return env, nil
}

func (f *fakeStorage) SaveMovements(step int, movements map[string]server.PersonaMovement, currTime time.Time) error {
	f.movements[step] = movements
	f.movementTimes[step] = currTime
	return nil
}

func (f *fakeStorage) SaveEnvironment(step int, movements map[string]server.PersonaMovement) error {
	env := map[string]server.EnvironmentPersona{}
	for name, movement := range movements {
		env[name] = server.EnvironmentPersona{Maze: "test_maze", Tile: movement.Tile}
	}
	f.envs[step] = env
	return nil
}

func (f *fakeStorage) SaveSimulation(srv *server.Server) error {
	f.saved += 1
	return nil
}

func (f *fakeStorage) Backup(step int) error {
	f.backups = append(f.backups, step)
	return nil
}

func (f *fakeStorage) EnvironmentDir() string { return f.envDir }

func (f *fakeStorage) Destroy() error {
	f.destroyed = true
	return nil
}

// makeMaze builds a small open maze where every tile belongs to the same arena,
// so personas perceive each other's events.
func makeMaze() *maze.Maze {
	size := 7
	address := memory.ParseAddress("the Ville:Hobbs Cafe:cafe")

	collision := make([][]bool, size)
	tiles := make([][]maze.Tile, size)
	for i := 0; i < size; i += 1 {
		for j := 0; j < size; j += 1 {
			collision[i] = append(collision[i], false)
			tiles[i] = append(tiles[i], maze.Tile{
				Address: address,
				Events:  map[maze.Event]struct{}{},
			})
		}
	}

	return maze.New("the Ville", "test_maze", size, size, 32, collision, tiles)
}

// makePersona builds a persona mid-activity at the given time: their path is
// already set, their current task does not expire for hours and nothing about
// the day has changed, so a step leaves them where the environment put them.
func makePersona(name string, now time.Time) *agent.Persona {
	schedule := []llm.Plan{
		{Activity: "sleeping", Duration: 420},
		{Activity: "working on her painting", Duration: 1020},
	}

	state := agent.State{
		CurrentTime: now.Add(-time.Minute),
		FullName:    name,
		LivingArea:  memory.ParseAddress("the Ville:Hobbs Cafe:cafe"),

		VisionRadius:       2,
		AttentionBandwidth: 3,
		Retention:          5,

		CurrentReflectionTrigger: 250,
		ReflectionTrigger:        250,
		RecencyDecay:             0.995,

		DailySchedule:         schedule,
		OriginalDailySchedule: schedule,

		ActivitySPO:          memory.SPO{Subject: name, Predicate: "is", Object: "sleeping"},
		ActivityDescription:  "sleeping",
		ActivityPronunciatio: "😴",
		ActivityAddress:      memory.ParseAddress("the Ville:Hobbs Cafe:cafe:bed"),
		ActivityStartTime:    now.Add(-time.Hour),
		ActivityDuration:     8 * time.Hour,
		ActivityPathSet:      true,

		ActivityObjectDescription:  "being slept in",
		ActivityObjectPronunciatio: "😴",
		ActivityObjectSPO:          memory.SPO{Subject: "bed", Predicate: "is", Object: "in use"},

		ChattingWithBuffer: map[string]int{},

		RecencyWeight:    1,
		ImportanceWeight: 1,
		RelevanceWeight:  1,
		ValenceWeight:    1,
	}

	associative := memory.NewAssociative(map[string][]float64{}, map[string]int{}, map[string]int{})

	return agent.New(name, associative, memory.NewSpatial(), state, llmtest.Embedder{}, &llmtest.Cognition{Importance: 1})
}

func makeServer(t *testing.T, storage server.SimulationStorer) *server.Server {
	srv := server.New()
	srv.CurrentTime = time.Date(2023, time.February, 13, 9, 0, 0, 0, time.UTC)
	srv.StartTime = time.Date(2023, time.February, 13, 0, 0, 0, 0, time.UTC)
	srv.TimeStep = 10 * time.Second
	srv.Maze = makeMaze()
	srv.Personas = map[string]*agent.Persona{}
	srv.PersonaPositions = map[string]maze.TilePos{}
	srv.Headless = true
	srv.ServerSleep = time.Millisecond
	srv.FallbackAddress = memory.ParseAddress("the Ville:Hobbs Cafe:cafe")
	srv.Log = slog.New(slog.NewTextHandler(io.Discard, nil))
	srv.Storage = storage

	return srv
}

func tileHasEvent(m *maze.Maze, pos maze.TilePos, ev maze.Event) bool {
	_, ok := m.GetTile(pos).Events[ev]
	return ok
}

func TestRunHeadless(t *testing.T) {
	storage := newFakeStorage(t)
	storage.envs[0] = map[string]server.EnvironmentPersona{}

	srv := makeServer(t, storage)
	srv.BackupInterval = 2
	start := srv.CurrentTime

	if err := srv.Run(3); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if srv.Step != 3 {
		t.Fatalf("Wrong step after run, got: %d, want: 3", srv.Step)
	}
	if want := start.Add(3 * srv.TimeStep); !srv.CurrentTime.Equal(want) {
		t.Fatalf("Wrong time after run, got: %v, want: %v", srv.CurrentTime, want)
	}

	for step := 0; step < 3; step += 1 {
		if _, ok := storage.movements[step]; !ok {
			t.Fatalf("No movements saved for step %d", step)
		}
		if want := start.Add(time.Duration(step) * srv.TimeStep); !storage.movementTimes[step].Equal(want) {
			t.Fatalf("Wrong movement time for step %d, got: %v, want: %v", step, storage.movementTimes[step], want)
		}
	}

	// A headless server feeds itself the next environment after every step
	for step := 1; step <= 3; step += 1 {
		if _, ok := storage.envs[step]; !ok {
			t.Fatalf("No environment saved for step %d", step)
		}
	}

	if len(storage.backups) != 2 || storage.backups[0] != 0 || storage.backups[1] != 2 {
		t.Fatalf("Wrong backup steps, got: %v, want: [0 2]", storage.backups)
	}
}

func TestRunWaitsForEnvironment(t *testing.T) {
	storage := newFakeStorage(t)
	storage.queue = []loadResult{
		{nil, fs.ErrNotExist},
		{nil, fs.ErrNotExist},
	}
	storage.envs[0] = map[string]server.EnvironmentPersona{}

	srv := makeServer(t, storage)

	if err := srv.Run(1); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if storage.loadCalls != 3 {
		t.Fatalf("Wrong number of environment loads, got: %d, want: 3", storage.loadCalls)
	}
	if srv.Step != 1 {
		t.Fatalf("Wrong step after run, got: %d, want: 1", srv.Step)
	}
}

func TestRunRetriesUnusableEnvironment(t *testing.T) {
	storage := newFakeStorage(t)
	storage.queue = []loadResult{
		{nil, errors.New("unexpected end of JSON input")},
	}
	storage.envs[0] = map[string]server.EnvironmentPersona{}

	var logs bytes.Buffer

	srv := makeServer(t, storage)
	srv.Log = slog.New(slog.NewTextHandler(&logs, nil))

	if err := srv.Run(1); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if storage.loadCalls != 2 {
		t.Fatalf("Wrong number of environment loads, got: %d, want: 2", storage.loadCalls)
	}
	if !strings.Contains(logs.String(), "environment_unusable") {
		t.Fatalf("Expected an environment_unusable warning, got logs: %s", logs.String())
	}
}

func TestRunWaitsForMissingPersona(t *testing.T) {
	storage := newFakeStorage(t)
	// The frontend has written an environment without our persona in it
	storage.queue = []loadResult{
		{map[string]server.EnvironmentPersona{}, nil},
	}
	storage.envs[0] = map[string]server.EnvironmentPersona{
		"Maria Lopez": {Maze: "test_maze", Tile: maze.TilePos{X: 2, Y: 2}},
	}

	srv := makeServer(t, storage)
	srv.Personas["Maria Lopez"] = makePersona("Maria Lopez", srv.CurrentTime)
	srv.PersonaPositions["Maria Lopez"] = maze.TilePos{X: 2, Y: 2}

	if err := srv.Run(1); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if storage.loadCalls != 2 {
		t.Fatalf("Wrong number of environment loads, got: %d, want: 2", storage.loadCalls)
	}
}

func TestExecuteStepEnvironmentIngest(t *testing.T) {
	storage := newFakeStorage(t)
	srv := makeServer(t, storage)

	name := "Maria Lopez"
	persona := makePersona(name, srv.CurrentTime)
	srv.Personas[name] = persona
	srv.PersonaPositions[name] = maze.TilePos{X: 2, Y: 2}

	personaEvent := persona.GetCurrentEvent()
	objectEvent := persona.GetCurrentObjectEvent()
	objectBlank := maze.Blank(objectEvent.SPO.Subject)

	// Where the previous step left things: the persona's event on their old
	// tile, the untouched object still idle on the tile they are walking to.
	srv.Maze.AddEventToTile(maze.TilePos{X: 2, Y: 2}, personaEvent)
	srv.Maze.AddEventToTile(maze.TilePos{X: 3, Y: 2}, objectBlank)

	srv.ExecuteStep(map[string]server.EnvironmentPersona{
		name: {Maze: "test_maze", Tile: maze.TilePos{X: 3, Y: 2}},
	})

	if got := srv.PersonaPositions[name]; got != (maze.TilePos{X: 3, Y: 2}) {
		t.Fatalf("Wrong persona position, got: %v, want: {3 2}", got)
	}
	if tileHasEvent(srv.Maze, maze.TilePos{X: 2, Y: 2}, personaEvent) {
		t.Fatalf("Persona event was not removed from the old tile")
	}
	if !tileHasEvent(srv.Maze, maze.TilePos{X: 3, Y: 2}, personaEvent) {
		t.Fatalf("Persona event was not added to the new tile")
	}

	// The persona arrived, so the object they use comes alive
	if !tileHasEvent(srv.Maze, maze.TilePos{X: 3, Y: 2}, objectEvent) {
		t.Fatalf("Object event was not activated on the persona's tile")
	}
	if tileHasEvent(srv.Maze, maze.TilePos{X: 3, Y: 2}, objectBlank) {
		t.Fatalf("Blank object event was not removed from the persona's tile")
	}

	movement, ok := storage.movements[0][name]
	if !ok {
		t.Fatalf("No movement saved for %s", name)
	}
	if movement.Tile != (maze.TilePos{X: 3, Y: 2}) {
		t.Fatalf("Wrong movement tile, got: %v, want: {3 2}", movement.Tile)
	}
	if movement.Pronunciatio != "😴" {
		t.Fatalf("Wrong pronunciatio, got: %s, want: 😴", movement.Pronunciatio)
	}
	if want := "sleeping @ the Ville:Hobbs Cafe:cafe:bed"; movement.Event.Description != want {
		t.Fatalf("Wrong movement event description, got: %s, want: %s", movement.Event.Description, want)
	}

	if got := storage.envs[1][name].Tile; got != (maze.TilePos{X: 3, Y: 2}) {
		t.Fatalf("Wrong self-supplied environment tile, got: %v, want: {3 2}", got)
	}

	if srv.Step != 1 {
		t.Fatalf("Wrong step after ExecuteStep, got: %d, want: 1", srv.Step)
	}
}

func TestExecuteStepObjectCleanup(t *testing.T) {
	storage := newFakeStorage(t)
	srv := makeServer(t, storage)

	name := "Maria Lopez"
	persona := makePersona(name, srv.CurrentTime)
	srv.Personas[name] = persona
	srv.PersonaPositions[name] = maze.TilePos{X: 2, Y: 2}

	objectEvent := persona.GetCurrentObjectEvent()
	objectBlank := maze.Blank(objectEvent.SPO.Subject)

	srv.ExecuteStep(map[string]server.EnvironmentPersona{
		name: {Maze: "test_maze", Tile: maze.TilePos{X: 3, Y: 2}},
	})

	if !tileHasEvent(srv.Maze, maze.TilePos{X: 3, Y: 2}, objectEvent) {
		t.Fatalf("Object event was not activated on the persona's tile")
	}

	// The frontend moves the persona away, the object they left behind
	// returns to idle.
	srv.ExecuteStep(map[string]server.EnvironmentPersona{
		name: {Maze: "test_maze", Tile: maze.TilePos{X: 5, Y: 5}},
	})

	if tileHasEvent(srv.Maze, maze.TilePos{X: 3, Y: 2}, objectEvent) {
		t.Fatalf("Object event on the abandoned tile was not cleaned up")
	}
	if !tileHasEvent(srv.Maze, maze.TilePos{X: 3, Y: 2}, objectBlank) {
		t.Fatalf("Object event on the abandoned tile was not turned idle")
	}
	if !tileHasEvent(srv.Maze, maze.TilePos{X: 5, Y: 5}, objectEvent) {
		t.Fatalf("Object event was not activated on the persona's new tile")
	}
}

func TestExecuteStepSkipsSleep(t *testing.T) {
	storage := newFakeStorage(t)
	srv := makeServer(t, storage)
	srv.CurrentTime = time.Date(2023, time.February, 13, 1, 0, 0, 0, time.UTC)
	srv.TimeStep = 10 * time.Minute
	srv.SkipSleep = true

	name := "Maria Lopez"
	srv.Personas[name] = makePersona(name, srv.CurrentTime)
	srv.PersonaPositions[name] = maze.TilePos{X: 2, Y: 2}

	srv.ExecuteStep(map[string]server.EnvironmentPersona{
		name: {Maze: "test_maze", Tile: maze.TilePos{X: 2, Y: 2}},
	})

	// The persona sleeps until 07:00, the clock jumps to three steps before
	// that and then advances one step as usual.
	want := time.Date(2023, time.February, 13, 6, 40, 0, 0, time.UTC)
	if !srv.CurrentTime.Equal(want) {
		t.Fatalf("Wrong time after skipping sleep, got: %v, want: %v", srv.CurrentTime, want)
	}
}

func TestExecuteStepDoesNotSkipWhenAwake(t *testing.T) {
	storage := newFakeStorage(t)
	srv := makeServer(t, storage)
	srv.SkipSleep = true

	// 09:00, the persona's schedule has them painting
	name := "Maria Lopez"
	srv.Personas[name] = makePersona(name, srv.CurrentTime)
	srv.PersonaPositions[name] = maze.TilePos{X: 2, Y: 2}

	start := srv.CurrentTime
	srv.ExecuteStep(map[string]server.EnvironmentPersona{
		name: {Maze: "test_maze", Tile: maze.TilePos{X: 2, Y: 2}},
	})

	if want := start.Add(srv.TimeStep); !srv.CurrentTime.Equal(want) {
		t.Fatalf("Wrong time after step, got: %v, want: %v", srv.CurrentTime, want)
	}
}

func TestSaveAndDiscard(t *testing.T) {
	storage := newFakeStorage(t)
	srv := makeServer(t, storage)

	if err := srv.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if storage.saved != 1 {
		t.Fatalf("Wrong number of simulation saves, got: %d, want: 1", storage.saved)
	}

	if err := srv.Discard(); err != nil {
		t.Fatalf("Discard failed: %v", err)
	}
	if !storage.destroyed {
		t.Fatalf("Discard did not destroy the simulation storage")
	}
}
