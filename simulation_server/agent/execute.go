package agent

import (
	"fmt"
	"log/slog"
	"math/rand"
	"slices"

	"github.com/fvdveen/simulacra/simulation_server/maze"
	"github.com/fvdveen/simulacra/simulation_server/memory"
)

func sample[T any](arr []T, sampleSize int) []T {
	arr = slices.Clone(arr)
	n := len(arr)

	rand.Shuffle(n, func(i, j int) {
		arr[i], arr[j] = arr[j], arr[i]
	})

	if n < sampleSize {
		return arr
	}

	return arr[:sampleSize]
}

func (p *Persona) execute(m *maze.Maze, personas map[string]*Persona, plan memory.Address) (maze.TilePos, string, maze.Event) {
	if plan.HasState(memory.AddressStateRandom) && len(p.state.PlannedPath) == 0 {
		p.state.ActivityPathSet = false
	}

	if !p.state.ActivityPathSet {
		targetTiles := []maze.TilePos{}

		if plan.HasState(memory.AddressStatePersona) {
			targetPersonaPos := personas[plan.GetArg()].state.Position
			potentialPath := m.Pathfind(p.state.Position, targetPersonaPos)
			if len(potentialPath) == 0 {
				// We cannot reach our chat partner, stay where we are.
				targetTiles = []maze.TilePos{p.state.Position}
			} else if len(potentialPath) <= 2 {
				targetTiles = []maze.TilePos{potentialPath[0]}
			} else {
				p1 := m.Pathfind(p.state.Position, potentialPath[len(potentialPath)/2])
				p2 := m.Pathfind(p.state.Position, potentialPath[len(potentialPath)/2+1])
				if len(p1) <= len(p2) {
					targetTiles = []maze.TilePos{potentialPath[len(potentialPath)/2]}
				} else {
					targetTiles = []maze.TilePos{potentialPath[len(potentialPath)/2+1]}
				}
			}
		} else if plan.HasState(memory.AddressStateWaiting) {
			var x, y int
			n, err := fmt.Sscanf(plan.GetArg(), memory.WaitingArgFormat, &x, &y)
			if n != 2 {
				panic(fmt.Errorf("Parsed unexpected amount of wait argument, got: %d, expected 2", n))
			} else if err != nil {
				panic(fmt.Errorf("Could not parse waiting arguments: %w", err))
			}
			targetTiles = []maze.TilePos{{X: x, Y: y}}
		} else if plan.HasState(memory.AddressStateRandom) {
			if t, ok := m.AddressToTiles(plan.AtLevel(memory.AddressLevelArena)); ok {
				targetTiles = sample(t, 1)
			} else {
				targetTiles = p.fallbackTargetTiles(m, plan)
			}
		} else {
			if t, ok := m.AddressToTiles(plan); ok {
				targetTiles = t
			} else {
				targetTiles = p.fallbackTargetTiles(m, plan)
			}
		}

		targetTiles = sample(targetTiles, 4)

		newTargetTiles := []maze.TilePos{}
		for _, tile := range targetTiles {
			events := m.GetTile(tile).Events
			passTile := false
			for event := range events {
				if _, ok := personas[event.SPO.Subject]; ok {
					passTile = true
					break
				}
			}
			if !passTile {
				newTargetTiles = append(newTargetTiles, tile)
			}
		}
		if len(newTargetTiles) != 0 {
			targetTiles = newTargetTiles
		}

		currTile := p.state.Position
		var path []maze.TilePos

		for _, target := range targetTiles {
			currPath := m.Pathfind(currTile, target)
			if currPath == nil {
				continue
			}
			if path == nil || len(currPath) < len(path) {
				path = currPath
			}
		}

		if path == nil {
			// None of the candidate tiles are reachable. Stand still for this
			// step, we will pick new target tiles on the next one.
			p.ctx.Log.Warn("no_reachable_target",
				slog.String("type", "execute"),
				slog.String("address", plan.ToString()),
			)
			p.state.PlannedPath = nil
		} else {
			// The path returned by maze.Pathfind still includes the start tile, so skip that
			p.state.PlannedPath = path[1:]
			p.state.ActivityPathSet = true
		}
	}

	tile := p.state.Position
	if len(p.state.PlannedPath) > 0 {
		tile = p.state.PlannedPath[0]
		p.state.PlannedPath = p.state.PlannedPath[1:]
	}

	description := fmt.Sprintf("%s @ %s", p.state.ActivityDescription, p.state.ActivityAddress.ToString())

	return tile, p.state.ActivityPronunciatio, maze.Event{SPO: p.state.ActivitySPO, Description: description}
}

// fallbackTargetTiles handles activity addresses that do not exist on the map,
// usually because the LLM hallucinated a location. We send the persona to a
// configured safe spot instead, or keep them where they are if even that is
// not on the map.
func (p *Persona) fallbackTargetTiles(m *maze.Maze, plan memory.Address) []maze.TilePos {
	if t, ok := m.AddressToTiles(p.ctx.FallbackAddress); ok {
		p.ctx.Log.Warn("address_not_in_maze",
			slog.String("type", "execute"),
			slog.String("address", plan.ToString()),
			slog.String("fallback", p.ctx.FallbackAddress.ToString()),
		)
		return t
	}

	p.ctx.Log.Warn("address_not_in_maze",
		slog.String("type", "execute"),
		slog.String("address", plan.ToString()),
		slog.String("fallback", ""),
	)
	return []maze.TilePos{p.state.Position}
}
