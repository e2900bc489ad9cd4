package memory

import (
	"fmt"
	"strings"
)

// AddressLevel selects how deep into an address we are looking: world,
// sector, arena or game object.
type AddressLevel int

const (
	AddressLevelInvalid AddressLevel = iota
	AddressLevelWorld
	AddressLevelSector
	AddressLevelArena
	AddressLevelObject
)

// AddressState marks the special action targets that are not real places
// on the map. They are encoded in the world part of the address.
type AddressState int

const (
	AddressStateNormal AddressState = iota

	addressStateSpecialStart

	AddressStateWaiting
	AddressStatePersona
	AddressStateSpawningLocation

	addressStateSpecialEnd

	AddressStateRandom
)

const (
	WaitingArgFormat = "X: %d, Y: %d"
)

func (s AddressState) ToString() string {
	switch s {
	case AddressStateNormal:
		return ""
	case AddressStatePersona:
		return "<persona>"
	case AddressStateRandom:
		return "<random>"
	case AddressStateWaiting:
		return "<waiting>"
	case AddressStateSpawningLocation:
		return "<spawn_loc>"
	default:
		panic(fmt.Errorf("unexpected memory.AddressState: %#v", s))
	}
}

type AddressOption func(*Address)

func AddressWithWorld(world string) AddressOption   { return func(a *Address) { a.world = world } }
func AddressWithSector(sector string) AddressOption { return func(a *Address) { a.sector = sector } }
func AddressWithArena(arena string) AddressOption   { return func(a *Address) { a.arena = arena } }
func AddressWithObject(object string) AddressOption { return func(a *Address) { a.object = object } }

// Address names a place in the game world, from the whole world down to a
// single game object. Trailing parts may be absent, so it must always be
// read left to right.
type Address struct {
	world  string
	sector string
	arena  string
	object string
}

// ParseAddress splits a colon separated address of 1-4 parts.
func ParseAddress(loc string) Address {
	parts := strings.Split(loc, ":")
	if len(parts) > 4 {
		panic("addresses should consist of 1-4 parts separated by ':'")
	}

	a := Address{world: parts[0]}

	if len(parts) > 1 {
		a.sector = parts[1]
	}
	if len(parts) > 2 {
		a.arena = parts[2]
	}
	if len(parts) > 3 {
		a.object = parts[3]
	}

	return a
}

func NewAddress(opts ...AddressOption) Address {
	a := Address{}

	for _, opt := range opts {
		opt(&a)
	}

	return a
}

// SpecialAddress builds one of the marker addresses, e.g.
// "<persona> Klaus Mueller" or "the Ville:cafe:counter:<random>".
func SpecialAddress(state AddressState, arg string) Address {
	switch state {
	case AddressStateNormal:
		return ParseAddress(arg)
	case AddressStateRandom:
		return ParseAddress(arg).
			Copy(AddressWithObject("<random>"))
	default:
		return ParseAddress(fmt.Sprintf("%s %s", state.ToString(), arg))
	}
}

func (a Address) Copy(opts ...AddressOption) Address {
	newAddress := a

	for _, opt := range opts {
		opt(&newAddress)
	}

	return newAddress
}

func (a Address) ToString() string {
	str := a.world
	if a.sector == "" {
		return str
	}

	str += ":" + a.sector
	if a.arena == "" {
		return str
	}

	str += ":" + a.arena
	if a.object == "" {
		return str
	}

	str += ":" + a.object
	return str
}

func (a Address) HasState(state AddressState) bool {
	return a.Contains(state.ToString())
}

func (a Address) Contains(substr string) bool {
	return strings.Contains(a.world, substr) ||
		strings.Contains(a.sector, substr) ||
		strings.Contains(a.arena, substr) ||
		strings.Contains(a.object, substr)
}

// Base returns the deepest part of the address that is present.
func (a Address) Base() string {
	if a.object != "" {
		return a.object
	}
	if a.arena != "" {
		return a.arena
	}
	if a.sector != "" {
		return a.sector
	}
	return a.world
}

func (a Address) Get(level AddressLevel) string {
	switch level {
	case AddressLevelWorld:
		return a.world
	case AddressLevelSector:
		return a.sector
	case AddressLevelArena:
		return a.arena
	case AddressLevelObject:
		return a.object
	default:
		panic(fmt.Errorf("trying to get address with invalid level: %d", level))
	}
}

// AtLevel truncates the address to the given level.
func (a Address) AtLevel(level AddressLevel) (newAddress Address) {
	if level == AddressLevelInvalid {
		return a
	}

	if level >= AddressLevelWorld {
		newAddress.world = a.world
	}
	if level >= AddressLevelSector {
		newAddress.sector = a.sector
	}
	if level >= AddressLevelArena {
		newAddress.arena = a.arena
	}
	if level >= AddressLevelObject {
		newAddress.object = a.object
	}

	return
}

func (a Address) Level() AddressLevel {
	if a.sector == "" {
		return AddressLevelWorld
	} else if a.arena == "" {
		return AddressLevelSector
	} else if a.object == "" {
		return AddressLevelArena
	} else {
		return AddressLevelObject
	}
}

// Matches reports whether every part set on the mask equals the
// corresponding part of a.
func (a Address) Matches(mask Address) bool {
	if mask.world != "" && a.world != mask.world {
		return false
	}
	if mask.sector != "" && a.sector != mask.sector {
		return false
	}
	if mask.arena != "" && a.arena != mask.arena {
		return false
	}
	if mask.object != "" && a.object != mask.object {
		return false
	}
	return true
}

func (a Address) IsEmpty() bool {
	return a.world == "" &&
		a.sector == "" &&
		a.arena == "" &&
		a.object == ""
}

// GetArg returns the text following a special marker, e.g. the persona
// name in "<persona> Klaus Mueller".
func (a Address) GetArg() string {
	for i := addressStateSpecialStart + 1; i < addressStateSpecialEnd; i += 1 {
		prefix := i.ToString()
		if strings.HasPrefix(a.world, prefix) {
			return strings.TrimSpace(strings.TrimPrefix(a.world, prefix))
		}
	}

	return ""
}

func (a Address) IsSpecial(s AddressState) bool {
	switch s {
	case AddressStatePersona:
		return strings.HasPrefix(a.world, "<persona>")
	case AddressStateRandom:
		return a.Level() == AddressLevelObject && a.object == "<random>"
	case AddressStateWaiting:
		return strings.HasPrefix(a.world, "<waiting>")
	default:
		return false
	}
}

func (a Address) IsObject() bool {
	return a.object != ""
}
