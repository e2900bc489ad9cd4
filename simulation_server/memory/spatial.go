package memory

type Worlds map[string]map[string]map[string]map[string]struct{}

// Spatial is the tree of places a persona has seen so far. It only ever
// grows: perception registers addresses, nothing removes them.
type Spatial struct {
	// world->sector->arena->object
	worlds Worlds
}

func NewSpatial() *Spatial {
	return &Spatial{
		worlds: make(Worlds),
	}
}

func (store *Spatial) Worlds() Worlds { return store.worlds }

func (store *Spatial) Register(addr Address) {
	if addr.world != "" {
		if _, ok := store.worlds[addr.world]; !ok {
			store.worlds[addr.world] = map[string]map[string]map[string]struct{}{}
		}
	}
	if addr.sector != "" {
		if _, ok := store.worlds[addr.world][addr.sector]; !ok {
			store.worlds[addr.world][addr.sector] = map[string]map[string]struct{}{}
		}
	}
	if addr.arena != "" {
		if _, ok := store.worlds[addr.world][addr.sector][addr.arena]; !ok {
			store.worlds[addr.world][addr.sector][addr.arena] = map[string]struct{}{}
		}
	}
	if addr.object != "" {
		if _, ok := store.worlds[addr.world][addr.sector][addr.arena][addr.object]; !ok {
			store.worlds[addr.world][addr.sector][addr.arena][addr.object] = struct{}{}
		}
	}
}

func keys[K comparable, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))

	for k := range m {
		keys = append(keys, k)
	}

	return keys
}

// GetKnown lists the known names one level below the given address, e.g.
// the known arenas of a sector when called with AddressLevelArena.
func (store *Spatial) GetKnown(addr Address, level AddressLevel) []string {
	if level == AddressLevelInvalid {
		return []string{}
	}
	if level <= AddressLevelWorld {
		return keys(store.worlds)
	}

	sectors, ok := store.worlds[addr.Get(AddressLevelWorld)]
	if !ok {
		return []string{}
	} else if level <= AddressLevelSector {
		return keys(sectors)
	}

	arenas, ok := sectors[addr.Get(AddressLevelSector)]
	if !ok {
		return []string{}
	} else if level <= AddressLevelArena {
		return keys(arenas)
	}

	objects, ok := arenas[addr.Get(AddressLevelArena)]
	if !ok {
		return []string{}
	}
	return keys(objects)
}
