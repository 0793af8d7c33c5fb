package control

import (
	"fmt"
	"sync"

	"github.com/troupe-ai/troupe/pkg/registry"
)

// DefaultSimulationID names the simulation slot used when no id is
// given.
const DefaultSimulationID = "default"

// Runtime carries the shared engine state that constructors need: the
// per-kind entity registries, the fresh-id counter and the currently
// running simulation. Passing a Runtime explicitly keeps programs free
// of package-level globals and lets tests run isolated engines.
type Runtime struct {
	Agents    *registry.BaseRegistry[Entity]
	Worlds    *registry.BaseRegistry[Entity]
	Factories *registry.BaseRegistry[Entity]

	mu      sync.Mutex
	freshID int
	current *Simulation
}

func NewRuntime() *Runtime {
	return &Runtime{
		Agents:    registry.NewBaseRegistry[Entity](),
		Worlds:    registry.NewBaseRegistry[Entity](),
		Factories: registry.NewBaseRegistry[Entity](),
	}
}

// FreshID returns the next unique id, used to mint distinct default
// names.
func (rt *Runtime) FreshID() int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.freshID++
	return rt.freshID
}

// Current returns the running simulation, or nil when none started.
func (rt *Runtime) Current() *Simulation {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.current
}

// RegisterEntity adds an entity to the registry of its kind. The name
// must be unique within the kind.
func (rt *Runtime) RegisterEntity(e Entity) error {
	reg, err := rt.registryFor(e.Kind())
	if err != nil {
		return err
	}
	return reg.Register(e.Name(), e)
}

// RemoveEntity drops an entity from its registry.
func (rt *Runtime) RemoveEntity(e Entity) error {
	reg, err := rt.registryFor(e.Kind())
	if err != nil {
		return err
	}
	return reg.Remove(e.Name())
}

// HasEntity reports whether a name is taken within a kind.
func (rt *Runtime) HasEntity(kind, name string) bool {
	reg, err := rt.registryFor(kind)
	if err != nil {
		return false
	}
	_, ok := reg.Get(name)
	return ok
}

func (rt *Runtime) registryFor(kind string) (*registry.BaseRegistry[Entity], error) {
	switch kind {
	case KindAgent:
		return rt.Agents, nil
	case KindWorld:
		return rt.Worlds, nil
	case KindFactory:
		return rt.Factories, nil
	default:
		return nil, fmt.Errorf("unknown entity kind %q", kind)
	}
}

// Begin starts a simulation, loading its cached trace from cachePath
// (the default path when empty). Only one simulation can run at a
// time. The entity registries are cleared so the program re-creates
// its population deterministically from the top.
func (rt *Runtime) Begin(id, cachePath string, autoCheckpoint bool) (*Simulation, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if rt.current != nil {
		return nil, fmt.Errorf("simulation %q is already started", rt.current.ID)
	}
	if id == "" {
		id = DefaultSimulationID
	}

	rt.Agents.Clear()
	rt.Worlds.Clear()
	rt.Factories.Clear()
	rt.freshID = 0

	sim := newSimulation(rt, id)
	if err := sim.begin(cachePath, autoCheckpoint); err != nil {
		return nil, err
	}
	rt.current = sim
	return sim, nil
}

// End checkpoints and stops the running simulation.
func (rt *Runtime) End() error {
	rt.mu.Lock()
	sim := rt.current
	rt.mu.Unlock()

	if sim == nil {
		return fmt.Errorf("no simulation is running")
	}
	if err := sim.end(); err != nil {
		return err
	}

	rt.mu.Lock()
	rt.current = nil
	rt.mu.Unlock()
	return nil
}
