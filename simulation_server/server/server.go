package server

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/fvdveen/simulacra/simulation_server/agent"
	"github.com/fvdveen/simulacra/simulation_server/maze"
	"github.com/fvdveen/simulacra/simulation_server/memory"
)

type SimulationStorer interface {
	LoadEnvironment(step int) (map[string]EnvironmentPersona, error)
	SaveMovements(step int, movements map[string]PersonaMovement, currTime time.Time) error
	SaveEnvironment(step int, movements map[string]PersonaMovement) error
	SaveSimulation(srv *Server) error
	Backup(step int) error
	EnvironmentDir() string
	Destroy() error
}

type Server struct {
	CurrentTime time.Time
	StartTime   time.Time
	// How much time the simulation progresses each step
	TimeStep time.Duration
	Maze     *maze.Maze
	// The step the current simulation is on
	Step             int
	Personas         map[string]*agent.Persona
	PersonaPositions map[string]maze.TilePos
	ForkedSim        string
	// After how many steps we make a backup of the simulation state
	BackupInterval int

	// How long to wait between polls for the next environment file
	ServerSleep time.Duration
	// A headless server supplies its own environment files instead of
	// waiting for a frontend to write them
	Headless bool
	// Fast-forward the clock when every persona is asleep
	SkipSleep bool
	// Where to send personas whose activity address does not exist on the map
	FallbackAddress memory.Address

	Log *slog.Logger

	Storage SimulationStorer

	// Object events activated last step, restored to idle once the next
	// environment arrives
	objCleanup map[maze.Event]maze.TilePos
}

func New() *Server {
	return &Server{}
}

// EnvironmentPersona is a persona's placement as reported by the frontend.
type EnvironmentPersona struct {
	Maze string
	Tile maze.TilePos
}

type PersonaMovement struct {
	Tile         maze.TilePos
	Pronunciatio string
	Event        maze.Event
	Chat         []memory.Utterance
}

type Movements struct {
	Personas    map[string]PersonaMovement
	CurrentTime time.Time
}

// Run advances the simulation i steps. Each step waits for the frontend to
// report persona placements in environment/{step}.json before executing.
func (s *Server) Run(i int) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("could not create environment watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(s.Storage.EnvironmentDir()); err != nil {
		return fmt.Errorf("could not watch environment folder: %w", err)
	}

	for i > 0 {
		env, err := s.Storage.LoadEnvironment(s.Step)
		if errors.Is(err, fs.ErrNotExist) {
			// The frontend has not written this step's environment yet
			s.waitForEnvironment(watcher)
			continue
		} else if err == nil {
			err = s.validateEnvironment(env)
		}
		if err != nil {
			// Possibly a file the frontend is still writing, retry once it settles
			s.Log.Warn("environment_unusable",
				slog.Int("step", s.Step),
				slog.Any("error", err),
			)
			s.waitForEnvironment(watcher)
			continue
		}

		if s.BackupInterval > 0 && s.Step%s.BackupInterval == 0 {
			if err := s.Storage.Backup(s.Step); err != nil {
				return fmt.Errorf("could not create server backup: %w", err)
			}
		}

		s.ExecuteStep(env)
		i -= 1
	}

	return nil
}

// Save persists the full simulation state so it can be loaded again later.
func (s *Server) Save() error {
	return s.Storage.SaveSimulation(s)
}

// Discard deletes the simulation from disk.
func (s *Server) Discard() error {
	return s.Storage.Destroy()
}

func (s *Server) waitForEnvironment(watcher *fsnotify.Watcher) {
	sleep := s.ServerSleep
	if sleep <= 0 {
		sleep = 100 * time.Millisecond
	}

	timer := time.NewTimer(sleep)
	defer timer.Stop()

	select {
	case <-watcher.Events:
	case err := <-watcher.Errors:
		s.Log.Warn("environment_watcher_error", slog.Any("error", err))
	case <-timer.C:
	}
}

func (s *Server) validateEnvironment(env map[string]EnvironmentPersona) error {
	for name := range s.Personas {
		if _, ok := env[name]; !ok {
			return fmt.Errorf("persona %s is missing from the environment", name)
		}
	}

	return nil
}

func (s *Server) ExecuteStep(env map[string]EnvironmentPersona) {
	stepLog := s.Log.With(
		slog.Int("step", s.Step),
		slog.String("type", "step"),
		slog.Time("sim_time", s.CurrentTime),
	)

	stepLog.Info("step_start", slog.String("phase", "start"))

	if s.Headless && s.SkipSleep {
		s.skipSleep(stepLog)
	}

	// Restore the object events the previous step activated
	for ev, pos := range s.objCleanup {
		s.Maze.TurnTileEventIdle(pos, ev)
	}
	s.objCleanup = map[maze.Event]maze.TilePos{}

	names := slices.Sorted(maps.Keys(s.Personas))

	// The frontend owns persona positions: pick up where it placed everyone
	// before anybody plans their next move
	for _, name := range names {
		persona := s.Personas[name]
		curr := s.PersonaPositions[name]
		next := env[name].Tile

		s.PersonaPositions[name] = next
		s.Maze.RemoveSubjectEventsFromTile(curr, name)
		s.Maze.AddEventToTile(next, persona.GetCurrentEvent())

		if len(persona.PlannedPath()) != 0 {
			continue
		}

		// The persona is at their destination, activate their object event
		ev := persona.GetCurrentObjectEvent()
		if ev.SPO.Subject == "" {
			continue
		}

		s.objCleanup[ev] = next
		s.Maze.AddEventToTile(next, ev)
		s.Maze.RemoveEventFromTile(next, maze.Blank(ev.SPO.Subject))
	}

	movements := Movements{Personas: map[string]PersonaMovement{}, CurrentTime: s.CurrentTime}

	for _, name := range names {
		persona := s.Personas[name]
		ctx := agent.MoveCtx{
			Log:             stepLog,
			FallbackAddress: s.FallbackAddress,
		}
		next, pronunciatio, event := persona.Move(ctx, s.Maze, s.Personas, s.PersonaPositions[name], s.CurrentTime)

		movements.Personas[name] = PersonaMovement{
			Tile:         next,
			Pronunciatio: pronunciatio,
			Event:        event,
			Chat:         persona.GetChat(),
		}
	}

	if err := s.Storage.SaveMovements(s.Step, movements.Personas, movements.CurrentTime); err != nil {
		panic(fmt.Sprintf("Could not save movements: %v", err))
	}

	if s.Headless {
		// Without a frontend the server reports placements to itself
		if err := s.Storage.SaveEnvironment(s.Step+1, movements.Personas); err != nil {
			panic(fmt.Sprintf("Could not save environment: %v", err))
		}
	}

	stepLog.Info("step_end",
		slog.String("phase", "end"),
	)

	s.CurrentTime = s.CurrentTime.Add(s.TimeStep)
	s.Step += 1
}

func (s *Server) skipSleep(stepLog *slog.Logger) {
	step := 3

	midnight := time.Date(
		s.CurrentTime.Year(),
		s.CurrentTime.Month(),
		s.CurrentTime.Day(),
		0, 0, 0, 0,
		s.CurrentTime.Location(),
	)

	elapsed := s.CurrentTime.Sub(midnight)
	iterationsSinceDay := int(elapsed / s.TimeStep)

	// NOTE(Friso): We don't skip the first few iterations of the day as that is when we plan the daily schedule
	if iterationsSinceDay < step {
		return
	}

	var earliestWakeUpTime time.Time
	for _, p := range s.Personas {
		if len(p.PlannedPath()) != 0 || !strings.Contains(p.DailySchedule()[p.DailyScheduleIdx()].Activity, "sleeping") {
			// NOTE(Friso): This means the agent is currently not asleep, we can only skip if all agents are sleeping
			return
		}

		t := p.WakeUpTime()
		if t.IsZero() || !p.StartOfDay().Before(t.Add(-s.TimeStep*time.Duration(step))) {
			return
		}
		t = t.Add(-s.TimeStep * time.Duration(step))

		if earliestWakeUpTime.IsZero() {
			earliestWakeUpTime = t
		} else if t.Before(earliestWakeUpTime) {
			earliestWakeUpTime = t
		}
	}

	if !s.CurrentTime.Before(earliestWakeUpTime) {
		// NOTE(Friso): Just to be safe we have them complete one last timestep whilst sleeping
		// This ensures we don't accidentally go back in time
		return
	}

	stepLog.With(slog.String("type", "skip_sleep"), slog.Time("next_step_time", earliestWakeUpTime)).Debug("skipping sleep")

	s.CurrentTime = earliestWakeUpTime
	for _, p := range s.Personas {
		// NOTE(Friso): Since we actually skipped sleep, we need to ensure that all time dependent state in the agents matches the expected values.
		p.ResetChattingWithBuffer()
	}
}
