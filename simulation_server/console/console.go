// Package console is the operator REPL driving a running simulation. Commands
// mirror the reverie server: advancing steps, inspecting persona state and
// memory, interviewing personas and injecting whispers.
package console

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/fvdveen/simulacra/simulation_server/agent"
	"github.com/fvdveen/simulacra/simulation_server/llm"
	"github.com/fvdveen/simulacra/simulation_server/maze"
	"github.com/fvdveen/simulacra/simulation_server/memory"
	"github.com/fvdveen/simulacra/simulation_server/server"
)

const timeFormat = "January 02, 2006, 15:04:05"

type Console struct {
	srv *server.Server
	log *slog.Logger

	in  *bufio.Scanner
	out io.Writer
}

func New(srv *server.Server, log *slog.Logger, in io.Reader, out io.Writer) *Console {
	return &Console{
		srv: srv,
		log: log,
		in:  bufio.NewScanner(in),
		out: out,
	}
}

// Run reads commands until the operator finishes the session. Command errors
// are printed and the loop continues; only losing stdin ends it early.
func (c *Console) Run() error {
	for {
		fmt.Fprintf(c.out, "Enter option: ")
		if !c.in.Scan() {
			return c.in.Err()
		}

		line := strings.TrimSpace(c.in.Text())
		if line == "" {
			continue
		}

		quit, err := c.dispatch(line)
		if err != nil {
			fmt.Fprintf(c.out, "Error: %v\n", err)
		}
		if quit {
			return nil
		}
	}
}

func (c *Console) dispatch(line string) (quit bool, err error) {
	lower := strings.ToLower(line)

	arg := func(prefix string) string {
		return strings.TrimSpace(line[len(prefix):])
	}

	switch {
	case lower == "f" || lower == "fin" || lower == "finish":
		if err := c.srv.Save(); err != nil {
			return false, fmt.Errorf("could not save simulation: %w", err)
		}
		return true, nil

	case lower == "exit":
		if err := c.srv.Discard(); err != nil {
			return false, fmt.Errorf("could not delete simulation: %w", err)
		}
		return true, nil

	case lower == "save":
		if err := c.srv.Save(); err != nil {
			return false, fmt.Errorf("could not save simulation: %w", err)
		}
		return false, nil

	case strings.HasPrefix(lower, "run "):
		n, err := strconv.Atoi(arg("run "))
		if err != nil {
			return false, fmt.Errorf("could not parse step count: %w", err)
		}
		return false, c.srv.Run(n)

	case lower == "print current time":
		fmt.Fprintf(c.out, "%s\n", c.srv.CurrentTime.Format(timeFormat))
		return false, nil

	case lower == "print all persona schedule":
		for _, name := range slices.Sorted(maps.Keys(c.srv.Personas)) {
			fmt.Fprintf(c.out, "%s\n", name)
			c.printSchedule(c.srv.Personas[name].DailySchedule())
		}
		return false, nil

	case strings.HasPrefix(lower, "print hourly org persona schedule "):
		p, err := c.persona(arg("print hourly org persona schedule "))
		if err != nil {
			return false, err
		}
		c.printSchedule(p.OriginalHourlySchedule())
		return false, nil

	case strings.HasPrefix(lower, "print persona schedule "):
		p, err := c.persona(arg("print persona schedule "))
		if err != nil {
			return false, err
		}
		c.printSchedule(p.DailySchedule())
		return false, nil

	case strings.HasPrefix(lower, "print persona current tile "):
		p, err := c.persona(arg("print persona current tile "))
		if err != nil {
			return false, err
		}
		pos := p.Position()
		fmt.Fprintf(c.out, "(%d, %d)\n", pos.X, pos.Y)
		return false, nil

	case strings.HasPrefix(lower, "print persona chatting with buffer "):
		p, err := c.persona(arg("print persona chatting with buffer "))
		if err != nil {
			return false, err
		}
		buffer := p.State().ChattingWithBuffer
		for _, name := range slices.Sorted(maps.Keys(buffer)) {
			fmt.Fprintf(c.out, "%s: %d\n", name, buffer[name])
		}
		return false, nil

	case strings.HasPrefix(lower, "print persona associative memory event "):
		return false, c.printAssociativeMemory(arg("print persona associative memory event "), memory.NodeTypeEvent)

	case strings.HasPrefix(lower, "print persona associative memory thought "):
		return false, c.printAssociativeMemory(arg("print persona associative memory thought "), memory.NodeTypeThought)

	case strings.HasPrefix(lower, "print persona associative memory chat "):
		return false, c.printAssociativeMemory(arg("print persona associative memory chat "), memory.NodeTypeChat)

	case strings.HasPrefix(lower, "print persona spatial memory "):
		p, err := c.persona(arg("print persona spatial memory "))
		if err != nil {
			return false, err
		}
		c.printSpatialMemory(p)
		return false, nil

	case strings.HasPrefix(lower, "print tile event "):
		pos, err := c.parseTile(arg("print tile event "))
		if err != nil {
			return false, err
		}
		for ev := range c.srv.Maze.GetTile(pos).Events {
			fmt.Fprintf(c.out, "(%s, %s, %s) %s\n", ev.SPO.Subject, ev.SPO.Predicate, ev.SPO.Object, ev.Description)
		}
		return false, nil

	case strings.HasPrefix(lower, "print tile details "):
		pos, err := c.parseTile(arg("print tile details "))
		if err != nil {
			return false, err
		}
		c.printTileDetails(pos)
		return false, nil

	case strings.HasPrefix(lower, "call -- analysis "):
		p, err := c.persona(arg("call -- analysis "))
		if err != nil {
			return false, err
		}
		c.interviewSession(p)
		return false, nil

	case strings.HasPrefix(lower, "call -- load history "):
		return false, c.loadHistory(arg("call -- load history "))

	default:
		return false, fmt.Errorf("unknown command: %s", line)
	}
}

func (c *Console) persona(name string) (*agent.Persona, error) {
	p, ok := c.srv.Personas[name]
	if !ok {
		return nil, fmt.Errorf("unknown persona: %s", name)
	}

	return p, nil
}

// printSchedule lists each task with the time it ends.
func (c *Console) printSchedule(schedule []llm.Plan) {
	minutes := 0
	for _, plan := range schedule {
		minutes += plan.Duration
		fmt.Fprintf(c.out, "%02d:%02d || %s\n", minutes/60, minutes%60, plan.Activity)
	}
}

func (c *Console) printAssociativeMemory(name string, nodeType memory.NodeType) error {
	p, err := c.persona(name)
	if err != nil {
		return err
	}

	assoc, _ := p.Memory()

	var ids []memory.NodeId
	switch nodeType {
	case memory.NodeTypeEvent:
		ids = assoc.GetLatestEventIds()
	case memory.NodeTypeThought:
		ids = assoc.GetLatestThoughtIds()
	case memory.NodeTypeChat:
		ids = assoc.GetLatestChatIds()
	}

	label := nodeType.ToString()
	for i, id := range ids {
		node := assoc.GetNode(id)
		spo := node.SPOSummary()
		fmt.Fprintf(c.out, "%s %d: (%s, %s, %s) -- %s\n", label, len(ids)-i, spo.Subject, spo.Predicate, spo.Object, node.Description)
	}

	return nil
}

func (c *Console) printSpatialMemory(p *agent.Persona) {
	_, spatial := p.Memory()

	worlds := spatial.Worlds()
	for _, world := range slices.Sorted(maps.Keys(worlds)) {
		fmt.Fprintf(c.out, "%s\n", world)
		for _, sector := range slices.Sorted(maps.Keys(worlds[world])) {
			fmt.Fprintf(c.out, " >%s\n", sector)
			for _, arena := range slices.Sorted(maps.Keys(worlds[world][sector])) {
				fmt.Fprintf(c.out, " > >%s\n", arena)
				objects := slices.Sorted(maps.Keys(worlds[world][sector][arena]))
				if len(objects) > 0 {
					fmt.Fprintf(c.out, " > > >%s\n", strings.Join(objects, ", "))
				}
			}
		}
	}
}

func (c *Console) parseTile(coords string) (maze.TilePos, error) {
	parts := strings.Split(coords, ",")
	if len(parts) != 2 {
		return maze.TilePos{}, fmt.Errorf("expected tile coordinates as x, y: %s", coords)
	}

	x, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return maze.TilePos{}, fmt.Errorf("could not parse tile x: %w", err)
	}
	y, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return maze.TilePos{}, fmt.Errorf("could not parse tile y: %w", err)
	}

	if x < 0 || x >= c.srv.Maze.Width() || y < 0 || y >= c.srv.Maze.Height() {
		return maze.TilePos{}, fmt.Errorf("tile (%d, %d) is outside the maze", x, y)
	}

	return maze.TilePos{X: x, Y: y}, nil
}

func (c *Console) printTileDetails(pos maze.TilePos) {
	tile := c.srv.Maze.GetTile(pos)

	fmt.Fprintf(c.out, "address: %s\n", tile.Address.ToString())
	if tile.SpawningLocation != "" {
		fmt.Fprintf(c.out, "spawning location: %s\n", tile.SpawningLocation)
	}
	fmt.Fprintf(c.out, "collision: %t\n", tile.Collision)
	fmt.Fprintf(c.out, "events:\n")
	for ev := range tile.Events {
		fmt.Fprintf(c.out, "  (%s, %s, %s) %s\n", ev.SPO.Subject, ev.SPO.Predicate, ev.SPO.Object, ev.Description)
	}
}

// interviewSession runs a question/answer loop with a persona until the
// operator enters "end_convo". Nothing said here enters the persona's memory.
func (c *Console) interviewSession(p *agent.Persona) {
	const interviewer = "Interviewer"

	var conversation []memory.Utterance
	for {
		fmt.Fprintf(c.out, "Enter Your Question: ")
		if !c.in.Scan() {
			return
		}

		question := strings.TrimSpace(c.in.Text())
		if question == "" {
			continue
		}
		if question == "end_convo" {
			return
		}

		conversation = append(conversation, memory.Utterance{Speaker: interviewer, Sentence: question})
		answer := p.Interview(c.log, interviewer, conversation, question)
		conversation = append(conversation, memory.Utterance{Speaker: p.Name(), Sentence: answer})

		fmt.Fprintf(c.out, "%s: %s\n", p.Name(), answer)
	}
}
