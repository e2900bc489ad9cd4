package agent_test

import (
	"io"
	"log/slog"
	"slices"
	"testing"
	"time"

	"github.com/fvdveen/simulacra/simulation_server/agent"
	"github.com/fvdveen/simulacra/simulation_server/llm"
	"github.com/fvdveen/simulacra/simulation_server/llm/llmtest"
	"github.com/fvdveen/simulacra/simulation_server/maze"
	"github.com/fvdveen/simulacra/simulation_server/memory"
)

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

// makeState describes a persona mid-activity at the given time: their path is
// already set, their current task does not expire for hours and nothing about
// the day has changed.
func makeState(name string, now time.Time) agent.State {
	schedule := []llm.Plan{
		{Activity: "sleeping", Duration: 420},
		{Activity: "working on her painting", Duration: 1020},
	}

	return agent.State{
		Position:    maze.TilePos{X: 2, Y: 2},
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
}

func newPersona(name string, state agent.State) *agent.Persona {
	associative := memory.NewAssociative(map[string][]float64{}, map[string]int{}, map[string]int{})
	return agent.New(name, associative, memory.NewSpatial(), state, llmtest.Embedder{}, &llmtest.Cognition{Importance: 1})
}

func moveCtx() agent.MoveCtx {
	return agent.MoveCtx{
		Log:             slog.New(slog.NewTextHandler(io.Discard, nil)),
		FallbackAddress: memory.ParseAddress("the Ville:Hobbs Cafe:cafe"),
	}
}

func TestIsActivityFinishedNoActivity(t *testing.T) {
	state := agent.State{CurrentTime: time.Date(2023, time.February, 13, 9, 0, 0, 0, time.UTC)}

	if !state.IsActivityFinished() {
		t.Fatalf("A persona without an activity address should count as finished")
	}
}

func TestIsActivityFinishedMidActivity(t *testing.T) {
	now := time.Date(2023, time.February, 13, 9, 0, 0, 0, time.UTC)
	state := agent.State{
		CurrentTime:       now,
		ActivityAddress:   memory.ParseAddress("the Ville:Hobbs Cafe:cafe:bed"),
		ActivityStartTime: now.Add(-time.Hour),
		ActivityDuration:  2 * time.Hour,
	}

	if state.IsActivityFinished() {
		t.Fatalf("Activity should not be finished halfway through")
	}
}

func TestIsActivityFinishedAtEnd(t *testing.T) {
	now := time.Date(2023, time.February, 13, 9, 0, 0, 0, time.UTC)
	state := agent.State{
		CurrentTime:       now,
		ActivityAddress:   memory.ParseAddress("the Ville:Hobbs Cafe:cafe:bed"),
		ActivityStartTime: now.Add(-time.Hour),
		ActivityDuration:  time.Hour,
	}

	if !state.IsActivityFinished() {
		t.Fatalf("Activity should be finished once its duration has elapsed")
	}
}

func TestIsActivityFinishedChatting(t *testing.T) {
	now := time.Date(2023, time.February, 13, 9, 0, 0, 0, time.UTC)
	state := agent.State{
		CurrentTime:     now,
		ActivityAddress: memory.ParseAddress("the Ville:Hobbs Cafe:cafe"),
		// The activity window has long passed, the chat end time decides.
		ActivityStartTime: now.Add(-3 * time.Hour),
		ActivityDuration:  time.Hour,
		ChattingWith:      "Klaus Mueller",
		ChatEndTime:       now.Add(time.Minute),
	}

	if state.IsActivityFinished() {
		t.Fatalf("A chat should not be finished before its end time")
	}

	state.ChatEndTime = now
	if !state.IsActivityFinished() {
		t.Fatalf("A chat should be finished at its end time")
	}
}

func TestGetDailyPlanIndex(t *testing.T) {
	schedule := []llm.Plan{
		{Activity: "sleeping", Duration: 420},
		{Activity: "working on her painting", Duration: 1020},
	}

	state := agent.State{DailySchedule: schedule}

	state.CurrentTime = time.Date(2023, time.February, 13, 6, 59, 0, 0, time.UTC)
	if got := state.GetDailyPlanIndex(); got != 0 {
		t.Fatalf("Wrong plan index at 06:59, got: %d, want: 0", got)
	}

	state.CurrentTime = time.Date(2023, time.February, 13, 7, 0, 0, 0, time.UTC)
	if got := state.GetDailyPlanIndex(); got != 1 {
		t.Fatalf("Wrong plan index at 07:00, got: %d, want: 1", got)
	}

	state.CurrentTime = time.Date(2023, time.February, 13, 23, 59, 0, 0, time.UTC)
	if got := state.GetDailyPlanIndex(); got != 1 {
		t.Fatalf("Wrong plan index at 23:59, got: %d, want: 1", got)
	}
}

func TestGetDailyPlanIndexInMinutes(t *testing.T) {
	schedule := []llm.Plan{
		{Activity: "sleeping", Duration: 420},
		{Activity: "working on her painting", Duration: 1020},
	}

	state := agent.State{
		CurrentTime:   time.Date(2023, time.February, 13, 6, 45, 0, 0, time.UTC),
		DailySchedule: schedule,
	}

	if got := state.GetDailyPlanIndexInMinutes(0); got != 0 {
		t.Fatalf("Wrong plan index without advance, got: %d, want: 0", got)
	}
	if got := state.GetDailyPlanIndexInMinutes(30); got != 1 {
		t.Fatalf("Wrong plan index 30 minutes ahead, got: %d, want: 1", got)
	}
}

func TestGetDailyPlanIndexPastSchedule(t *testing.T) {
	state := agent.State{
		CurrentTime:   time.Date(2023, time.February, 13, 2, 0, 0, 0, time.UTC),
		DailySchedule: []llm.Plan{{Activity: "napping", Duration: 60}},
	}

	if got := state.GetDailyPlanIndex(); got != 1 {
		t.Fatalf("Wrong plan index past the schedule, got: %d, want: 1", got)
	}
}

func TestWakeUpTime(t *testing.T) {
	now := time.Date(2023, time.February, 13, 1, 0, 0, 0, time.UTC)
	state := makeState("Maria Lopez", now)
	state.CurrentTime = now
	p := newPersona("Maria Lopez", state)

	want := time.Date(2023, time.February, 13, 7, 0, 0, 0, time.UTC)
	if got := p.WakeUpTime(); !got.Equal(want) {
		t.Fatalf("Wrong wake up time, got: %v, want: %v", got, want)
	}
}

func TestWakeUpTimeWhileAwake(t *testing.T) {
	now := time.Date(2023, time.February, 13, 9, 0, 0, 0, time.UTC)
	state := makeState("Maria Lopez", now)
	state.CurrentTime = now
	p := newPersona("Maria Lopez", state)

	if got := p.WakeUpTime(); !got.IsZero() {
		t.Fatalf("An awake persona should have no wake up time, got: %v", got)
	}
}

func TestActivityEndTime(t *testing.T) {
	now := time.Date(2023, time.February, 13, 9, 0, 0, 0, time.UTC)
	state := makeState("Maria Lopez", now)
	state.CurrentTime = now
	p := newPersona("Maria Lopez", state)

	if got := p.ActivityEndTime(0); !got.Equal(p.StartOfDay()) {
		t.Fatalf("Wrong end time for index 0, got: %v, want: %v", got, p.StartOfDay())
	}

	want := time.Date(2023, time.February, 13, 7, 0, 0, 0, time.UTC)
	if got := p.ActivityEndTime(1); !got.Equal(want) {
		t.Fatalf("Wrong end time for index 1, got: %v, want: %v", got, want)
	}
}

func TestGetCurrentEvent(t *testing.T) {
	now := time.Date(2023, time.February, 13, 9, 0, 0, 0, time.UTC)
	p := newPersona("Maria Lopez", makeState("Maria Lopez", now))

	event := p.GetCurrentEvent()
	want := memory.SPO{Subject: "Maria Lopez", Predicate: "is", Object: "sleeping"}
	if event.SPO != want {
		t.Fatalf("Wrong current event triple, got: %+v, want: %+v", event.SPO, want)
	}
	if event.Description != "sleeping" {
		t.Fatalf("Wrong current event description, got: %s, want: sleeping", event.Description)
	}
}

func TestGetCurrentEventIdle(t *testing.T) {
	p := newPersona("Maria Lopez", agent.State{FullName: "Maria Lopez"})

	event := p.GetCurrentEvent()
	if event != maze.Blank("Maria Lopez") {
		t.Fatalf("An idle persona should emit a blank event, got: %+v", event)
	}
}

func TestGetCurrentObjectEvent(t *testing.T) {
	now := time.Date(2023, time.February, 13, 9, 0, 0, 0, time.UTC)
	p := newPersona("Maria Lopez", makeState("Maria Lopez", now))

	event := p.GetCurrentObjectEvent()
	want := memory.SPO{Subject: "the Ville:Hobbs Cafe:cafe:bed", Predicate: "is", Object: "in use"}
	if event.SPO != want {
		t.Fatalf("Wrong object event triple, got: %+v, want: %+v", event.SPO, want)
	}
	if event.Description != "being slept in" {
		t.Fatalf("Wrong object event description, got: %s", event.Description)
	}
}

func TestGetCurrentObjectEventIdle(t *testing.T) {
	p := newPersona("Maria Lopez", agent.State{FullName: "Maria Lopez"})

	if event := p.GetCurrentObjectEvent(); event != (maze.Event{}) {
		t.Fatalf("An idle persona should have no object event, got: %+v", event)
	}
}

func TestMoveFollowsPlannedPath(t *testing.T) {
	now := time.Date(2023, time.February, 13, 9, 0, 0, 0, time.UTC)
	state := makeState("Maria Lopez", now)
	state.PlannedPath = []maze.TilePos{{X: 3, Y: 2}, {X: 4, Y: 2}}

	p := newPersona("Maria Lopez", state)
	personas := map[string]*agent.Persona{"Maria Lopez": p}

	next, pronunciatio, event := p.Move(moveCtx(), makeMaze(), personas, maze.TilePos{X: 2, Y: 2}, now)

	if want := (maze.TilePos{X: 3, Y: 2}); next != want {
		t.Fatalf("Wrong next tile, got: %+v, want: %+v", next, want)
	}
	if pronunciatio != "😴" {
		t.Fatalf("Wrong pronunciatio, got: %s, want: 😴", pronunciatio)
	}
	if event.Description != "sleeping @ the Ville:Hobbs Cafe:cafe:bed" {
		t.Fatalf("Wrong event description, got: %s", event.Description)
	}

	if want := []maze.TilePos{{X: 4, Y: 2}}; !slices.Equal(p.PlannedPath(), want) {
		t.Fatalf("Wrong remaining path, got: %+v, want: %+v", p.PlannedPath(), want)
	}
	if !p.CurrentTime().Equal(now) {
		t.Fatalf("Move should adopt the simulation time, got: %v, want: %v", p.CurrentTime(), now)
	}
}

func TestMoveStaysInPlace(t *testing.T) {
	now := time.Date(2023, time.February, 13, 9, 0, 0, 0, time.UTC)
	p := newPersona("Maria Lopez", makeState("Maria Lopez", now))
	personas := map[string]*agent.Persona{"Maria Lopez": p}

	pos := maze.TilePos{X: 2, Y: 2}
	next, _, _ := p.Move(moveCtx(), makeMaze(), personas, pos, now)

	if next != pos {
		t.Fatalf("A persona without a path should stay put, got: %+v, want: %+v", next, pos)
	}
	if len(p.PlannedPath()) != 0 {
		t.Fatalf("Expected an empty path, got: %+v", p.PlannedPath())
	}
}

func TestMovePerceivesNearbyEvents(t *testing.T) {
	now := time.Date(2023, time.February, 13, 9, 0, 0, 0, time.UTC)
	p := newPersona("Maria Lopez", makeState("Maria Lopez", now))
	personas := map[string]*agent.Persona{"Maria Lopez": p}

	m := makeMaze()
	easel := maze.Event{
		SPO:         memory.SPO{Subject: "the Ville:Hobbs Cafe:cafe:easel", Predicate: "is", Object: "in use"},
		Description: "being used",
	}
	m.AddEventToTile(maze.TilePos{X: 3, Y: 2}, easel)

	p.Move(moveCtx(), m, personas, maze.TilePos{X: 2, Y: 2}, now)

	associative, spatial := p.Memory()

	ids := associative.GetLatestEventIds()
	if len(ids) != 1 {
		t.Fatalf("Wrong number of perceived events, got: %d, want: 1", len(ids))
	}

	node := associative.GetNode(ids[0])
	if node.SPOSummary() != easel.SPO {
		t.Fatalf("Wrong perceived triple, got: %+v, want: %+v", node.SPOSummary(), easel.SPO)
	}
	if node.Description != "the Ville:Hobbs Cafe:cafe:easel is being used" {
		t.Fatalf("Wrong perceived description, got: %s", node.Description)
	}
	if !slices.Contains(node.Keywords, "easel") || !slices.Contains(node.Keywords, "in use") {
		t.Fatalf("Wrong keywords, got: %+v", node.Keywords)
	}

	// Perception costs reflection budget
	if got := p.State().CurrentReflectionTrigger; got != 249 {
		t.Fatalf("Wrong reflection trigger, got: %d, want: 249", got)
	}

	// The surrounding tiles are now part of spatial memory
	if _, ok := spatial.Worlds()["the Ville"]["Hobbs Cafe"]["cafe"]; !ok {
		t.Fatalf("Expected the arena in spatial memory, got: %+v", spatial.Worlds())
	}

	// Perceiving the same event again within the retention window does not
	// store it twice.
	p.Move(moveCtx(), m, personas, maze.TilePos{X: 2, Y: 2}, now.Add(10*time.Second))
	if got := len(associative.GetLatestEventIds()); got != 1 {
		t.Fatalf("Wrong number of events after re-perceiving, got: %d, want: 1", got)
	}
}

func TestWhisper(t *testing.T) {
	now := time.Date(2023, time.February, 13, 9, 0, 0, 0, time.UTC)
	state := makeState("Maria Lopez", now)
	p := newPersona("Maria Lopez", state)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	p.Whisper(log, "Maria loves painting")

	associative, _ := p.Memory()
	ids := associative.GetLatestThoughtIds()
	if len(ids) != 1 {
		t.Fatalf("Wrong number of thoughts, got: %d, want: 1", len(ids))
	}

	node := associative.GetNode(ids[0])
	if node.Type != memory.NodeTypeThought {
		t.Fatalf("Wrong node type, got: %v", node.Type)
	}
	if node.Description != "Maria loves painting" {
		t.Fatalf("Wrong thought description, got: %s", node.Description)
	}

	want := memory.SPO{Subject: "Maria Lopez", Predicate: "is", Object: "Maria loves painting"}
	if node.SPOSummary() != want {
		t.Fatalf("Wrong thought triple, got: %+v, want: %+v", node.SPOSummary(), want)
	}

	if !node.Created.Equal(state.CurrentTime) {
		t.Fatalf("Wrong creation time, got: %v, want: %v", node.Created, state.CurrentTime)
	}
	if node.Expiration == nil {
		t.Fatalf("Whispered thoughts should expire")
	}
	if got := node.Expiration.Sub(node.Created); got != 30*24*time.Hour {
		t.Fatalf("Wrong expiration window, got: %v, want: 720h", got)
	}
}

func TestGetEmbeddingCaches(t *testing.T) {
	now := time.Date(2023, time.February, 13, 9, 0, 0, 0, time.UTC)
	p := newPersona("Maria Lopez", makeState("Maria Lopez", now))

	embedding := p.GetEmbedding("painting")

	associative, _ := p.Memory()
	cached, ok := associative.GetEmbedding("painting")
	if !ok {
		t.Fatalf("Expected the embedding to be cached")
	}
	if !slices.Equal(embedding, cached) {
		t.Fatalf("Cached embedding differs, got: %v, want: %v", cached, embedding)
	}
}

func TestMoveIgnoresEventsWithZeroBandwidth(t *testing.T) {
	now := time.Date(2023, time.February, 13, 9, 0, 0, 0, time.UTC)
	state := makeState("Maria Lopez", now)
	state.AttentionBandwidth = 0

	p := newPersona("Maria Lopez", state)
	personas := map[string]*agent.Persona{"Maria Lopez": p}

	m := makeMaze()
	m.AddEventToTile(maze.TilePos{X: 3, Y: 2}, maze.Event{
		SPO:         memory.SPO{Subject: "the Ville:Hobbs Cafe:cafe:easel", Predicate: "is", Object: "in use"},
		Description: "being used",
	})

	p.Move(moveCtx(), m, personas, maze.TilePos{X: 2, Y: 2}, now)

	associative, _ := p.Memory()
	if got := len(associative.GetLatestEventIds()); got != 0 {
		t.Fatalf("A persona with no attention should perceive nothing, got: %d events", got)
	}
}

func TestMovePadsScheduleToFullDay(t *testing.T) {
	now := time.Date(2023, time.February, 13, 9, 0, 0, 0, time.UTC)
	state := makeState("Maria Lopez", now)
	// The current activity ended half an hour ago, forcing a new one to be
	// planned against a schedule that does not fill the day.
	state.ActivityDuration = 30 * time.Minute
	state.DailySchedule = []llm.Plan{
		{Activity: "sleeping", Duration: 420},
		{Activity: "working on her painting", Duration: 900},
	}

	associative := memory.NewAssociative(map[string][]float64{}, map[string]int{}, map[string]int{})
	cognition := &llmtest.Cognition{
		Importance: 1,
		Sector:     "Hobbs Cafe",
		Arena:      "cafe",
		Object:     "easel",
	}
	p := agent.New("Maria Lopez", associative, memory.NewSpatial(), state, llmtest.Embedder{}, cognition)
	personas := map[string]*agent.Persona{"Maria Lopez": p}

	p.Move(moveCtx(), makeMaze(), personas, maze.TilePos{X: 2, Y: 2}, now)

	total := 0
	for _, plan := range p.DailySchedule() {
		total += plan.Duration
	}
	if total != 1440 {
		t.Fatalf("Schedule should cover the full day, got: %d minutes, want: 1440", total)
	}

	last := p.DailySchedule()[len(p.DailySchedule())-1]
	if last.Activity != "sleeping" || last.Duration != 120 {
		t.Fatalf("Wrong padding slot, got: %+v, want: sleeping for 120 minutes", last)
	}

	if got := p.GetCurrentEvent().SPO.Object; got != "working on her painting" {
		t.Fatalf("Wrong new activity, got: %s, want: working on her painting", got)
	}
}
