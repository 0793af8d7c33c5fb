package control

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/troupe-ai/troupe/pkg/logger"
)

// Simulation status values.
const (
	StatusStopped = "stopped"
	StatusStarted = "started"
)

// Simulation owns a population of entities and two traces: the cached
// trace loaded from disk and the execution trace built as the program
// runs. While the next program event matches the cached trace,
// transaction results are replayed instead of executed.
type Simulation struct {
	ID string

	rt     *Runtime
	status string

	cachePath      string
	autoCheckpoint bool

	cachedTrace    []TraceNode
	executionTrace []TraceNode

	agents    []Entity
	worlds    []Entity
	factories []Entity
	owned     map[string]map[string]bool

	underTransaction  bool
	hasUnsavedChanges bool

	cacheHits   int
	cacheMisses int
}

func newSimulation(rt *Runtime, id string) *Simulation {
	return &Simulation{
		ID:     id,
		rt:     rt,
		status: StatusStopped,
		owned: map[string]map[string]bool{
			KindAgent:   {},
			KindWorld:   {},
			KindFactory: {},
		},
	}
}

// DefaultCachePath returns the cache file name used for a simulation
// id when none is configured.
func DefaultCachePath(id string) string {
	return fmt.Sprintf("tinytroupe-cache-%s.json", id)
}

func (s *Simulation) begin(cachePath string, autoCheckpoint bool) error {
	if s.status == StatusStarted {
		return fmt.Errorf("simulation %q is already started", s.ID)
	}
	if cachePath == "" {
		cachePath = DefaultCachePath(s.ID)
	}
	s.cachePath = cachePath
	s.autoCheckpoint = autoCheckpoint
	s.status = StatusStarted

	return s.loadCacheFile()
}

func (s *Simulation) end() error {
	if s.status == StatusStopped {
		return fmt.Errorf("simulation %q is already stopped", s.ID)
	}
	if err := s.Checkpoint(); err != nil {
		return err
	}
	s.status = StatusStopped

	logger.GetLogger().Debug("simulation ended",
		"id", s.ID, "cache_hits", s.cacheHits, "cache_misses", s.cacheMisses)
	return nil
}

// Checkpoint saves the cached trace to disk when there are unsaved
// changes.
func (s *Simulation) Checkpoint() error {
	if !s.hasUnsavedChanges {
		logger.GetLogger().Debug("checkpoint skipped, nothing to save", "id", s.ID)
		return nil
	}
	if err := s.saveCacheFile(); err != nil {
		return err
	}
	s.hasUnsavedChanges = false
	return nil
}

// CacheStats returns the number of transaction cache hits and misses
// so far.
func (s *Simulation) CacheStats() (hits, misses int) {
	return s.cacheHits, s.cacheMisses
}

// Add captures an entity into the simulation. Names must be unique
// per kind within the simulation.
func (s *Simulation) Add(e Entity) error {
	names := s.owned[e.Kind()]
	if names == nil {
		return fmt.Errorf("unknown entity kind %q", e.Kind())
	}
	if names[e.Name()] {
		return fmt.Errorf("%s named %q is already in simulation %q", e.Kind(), e.Name(), s.ID)
	}
	names[e.Name()] = true
	e.SetSimulationID(s.ID)

	switch e.Kind() {
	case KindAgent:
		s.agents = append(s.agents, e)
	case KindWorld:
		s.worlds = append(s.worlds, e)
	case KindFactory:
		s.factories = append(s.factories, e)
	}
	return nil
}

func (s *Simulation) loadCacheFile() error {
	data, err := os.ReadFile(s.cachePath)
	if os.IsNotExist(err) {
		logger.GetLogger().Debug("no cache file, starting fresh", "path", s.cachePath)
		s.cachedTrace = nil
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading cache file %s: %w", s.cachePath, err)
	}
	if err := json.Unmarshal(data, &s.cachedTrace); err != nil {
		return fmt.Errorf("parsing cache file %s: %w", s.cachePath, err)
	}
	logger.GetLogger().Debug("loaded cached trace", "path", s.cachePath, "nodes", len(s.cachedTrace))
	return nil
}

// saveCacheFile writes the cached trace through a temp file and an
// atomic rename.
func (s *Simulation) saveCacheFile() error {
	data, err := json.Marshal(s.cachedTrace)
	if err != nil {
		return fmt.Errorf("encoding cached trace: %w", err)
	}

	dir := filepath.Dir(s.cachePath)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.cachePath)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp cache file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.cachePath)
}

// encodeSimulationState snapshots every owned entity, in the order
// they joined the simulation.
func (s *Simulation) encodeSimulationState() (json.RawMessage, error) {
	state := map[string]any{}

	collect := func(entities []Entity) ([]map[string]any, error) {
		out := make([]map[string]any, 0, len(entities))
		for _, e := range entities {
			es, err := e.EncodeCompleteState()
			if err != nil {
				return nil, fmt.Errorf("encoding %s %q: %w", e.Kind(), e.Name(), err)
			}
			out = append(out, es)
		}
		return out, nil
	}

	agents, err := collect(s.agents)
	if err != nil {
		return nil, err
	}
	worlds, err := collect(s.worlds)
	if err != nil {
		return nil, err
	}
	factories, err := collect(s.factories)
	if err != nil {
		return nil, err
	}

	state["agents"] = agents
	state["environments"] = worlds
	state["factories"] = factories
	return json.Marshal(state)
}

// decodeSimulationState restores every entity named in a snapshot.
// Entities are resolved by name against the runtime; an unknown name
// means the program no longer matches the cache and is a hard error.
func (s *Simulation) decodeSimulationState(raw json.RawMessage) error {
	var state struct {
		Agents       []map[string]any `json:"agents"`
		Environments []map[string]any `json:"environments"`
		Factories    []map[string]any `json:"factories"`
	}
	if err := json.Unmarshal(raw, &state); err != nil {
		return fmt.Errorf("parsing cached state: %w", err)
	}

	restore := func(kind string, states []map[string]any) error {
		reg, err := s.rt.registryFor(kind)
		if err != nil {
			return err
		}
		for _, es := range states {
			name, _ := es["name"].(string)
			entity, ok := reg.Get(name)
			if !ok {
				return fmt.Errorf("cached state references unknown %s %q", kind, name)
			}
			if err := entity.DecodeCompleteState(es); err != nil {
				return fmt.Errorf("restoring %s %q: %w", kind, name, err)
			}
		}
		return nil
	}

	// Factories first, then environments (which reattach their
	// agents), then the agents themselves.
	if err := restore(KindFactory, state.Factories); err != nil {
		return err
	}
	if err := restore(KindWorld, state.Environments); err != nil {
		return err
	}
	return restore(KindAgent, state.Agents)
}

func (s *Simulation) beginTransaction() {
	s.underTransaction = true
}

func (s *Simulation) endTransaction() {
	s.underTransaction = false
}
