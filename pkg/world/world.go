// Package world implements the environments agents live in: shared
// spaces with a simulated clock that deliver stimuli, collect actions
// and mediate agent-to-agent interaction.
package world

import (
	"context"
	"fmt"
	"time"

	"github.com/troupe-ai/troupe/pkg/agent"
	"github.com/troupe-ai/troupe/pkg/control"
	"github.com/troupe-ai/troupe/pkg/logger"
	"github.com/troupe-ai/troupe/pkg/protocol"
)

const datetimeLayout = "2006-01-02T15:04:05"

// World is a basic environment: every agent in it perceives broadcast
// stimuli, and TALK and REACH_OUT actions are routed between agents.
type World struct {
	rt *control.Runtime

	name         string
	simulationID string

	currentDatetime time.Time
	hasClock        bool

	agents      []*agent.Agent
	nameToAgent map[string]*agent.Agent

	// TALK with no resolvable target becomes a broadcast when set.
	broadcastIfNoTarget bool

	// Hooks used by specialized environments.
	beforeStep   func()
	reachOutFunc func(ctx context.Context, source *agent.Agent, content, targetName string) error
}

// Option customizes world construction.
type Option func(*World)

// WithInitialDatetime starts the world clock at the given time.
func WithInitialDatetime(t time.Time) Option {
	return func(w *World) {
		w.currentDatetime = t
		w.hasClock = true
	}
}

// WithoutBroadcastFallback makes untargeted TALK actions go nowhere
// instead of being broadcast.
func WithoutBroadcastFallback() Option {
	return func(w *World) { w.broadcastIfNoTarget = false }
}

// New creates a world and registers it in the runtime.
func New(rt *control.Runtime, name string, agents []*agent.Agent, opts ...Option) (*World, error) {
	if name == "" {
		return nil, fmt.Errorf("world name cannot be empty")
	}
	w := &World{
		rt:                  rt,
		name:                name,
		nameToAgent:         map[string]*agent.Agent{},
		broadcastIfNoTarget: true,
	}
	w.reachOutFunc = w.handleReachOut
	for _, opt := range opts {
		opt(w)
	}

	if err := rt.RegisterEntity(w); err != nil {
		return nil, fmt.Errorf("world name %q is already in use: %w", name, err)
	}
	for _, a := range agents {
		if err := w.AddAgent(a); err != nil {
			return nil, err
		}
	}
	return w, nil
}

func (w *World) Name() string              { return w.name }
func (w *World) Kind() string              { return control.KindWorld }
func (w *World) SimulationID() string      { return w.simulationID }
func (w *World) SetSimulationID(id string) { w.simulationID = id }

// CurrentDatetime returns the simulation clock, false when the world
// has no clock.
func (w *World) CurrentDatetime() (time.Time, bool) {
	return w.currentDatetime, w.hasClock
}

// AddAgent puts an agent into the world. Agent names must be unique
// within a world.
func (w *World) AddAgent(a *agent.Agent) error {
	if _, exists := w.nameToAgent[a.Name()]; exists {
		return fmt.Errorf("agent %q is already in world %q", a.Name(), w.name)
	}
	w.agents = append(w.agents, a)
	w.nameToAgent[a.Name()] = a
	a.SetEnvironment(w)
	return nil
}

// AddAgents puts several agents into the world.
func (w *World) AddAgents(agents []*agent.Agent) error {
	for _, a := range agents {
		if err := w.AddAgent(a); err != nil {
			return err
		}
	}
	return nil
}

// RemoveAgent takes an agent out of the world.
func (w *World) RemoveAgent(a *agent.Agent) {
	delete(w.nameToAgent, a.Name())
	kept := w.agents[:0]
	for _, existing := range w.agents {
		if existing.Name() != a.Name() {
			kept = append(kept, existing)
		}
	}
	w.agents = kept
	a.SetEnvironment(nil)
}

// Agents returns the agents currently in the world.
func (w *World) Agents() []*agent.Agent {
	out := make([]*agent.Agent, len(w.agents))
	copy(out, w.agents)
	return out
}

// GetAgentByName finds an agent in this world.
func (w *World) GetAgentByName(name string) (*agent.Agent, bool) {
	a, ok := w.nameToAgent[name]
	return a, ok
}

// MakeEveryoneAccessible lets every agent interact with every other.
func (w *World) MakeEveryoneAccessible() error {
	for _, a := range w.agents {
		for _, other := range w.agents {
			if a.Name() == other.Name() {
				continue
			}
			if err := a.MakeAgentAccessible(other, ""); err != nil {
				return err
			}
		}
	}
	return nil
}

// Step advances the clock by delta and lets every agent act once,
// routing the resulting actions. It returns the actions each agent
// took.
func (w *World) Step(ctx context.Context, delta time.Duration) (map[string][]protocol.Action, error) {
	return control.Execute(w.rt, w, "step", []any{delta.String()}, func() (map[string][]protocol.Action, error) {
		return w.step(ctx, delta)
	})
}

func (w *World) step(ctx context.Context, delta time.Duration) (map[string][]protocol.Action, error) {
	if w.hasClock && delta > 0 {
		w.currentDatetime = w.currentDatetime.Add(delta)
		logger.GetLogger().Debug("world clock advanced",
			"world", w.name, "now", w.currentDatetime.Format(datetimeLayout))
	}
	if w.beforeStep != nil {
		w.beforeStep()
	}

	taken := map[string][]protocol.Action{}
	for _, a := range w.agents {
		if _, err := a.Act(ctx); err != nil {
			return taken, fmt.Errorf("agent %s failed to act: %w", a.Name(), err)
		}
		actions, err := a.PopLatestActions()
		if err != nil {
			return taken, err
		}
		taken[a.Name()] = actions
		if err := w.handleActions(ctx, a, actions); err != nil {
			return taken, err
		}
	}
	return taken, nil
}

// Run performs a number of steps of the given duration.
func (w *World) Run(ctx context.Context, steps int, delta time.Duration) error {
	for i := 0; i < steps; i++ {
		if _, err := w.Step(ctx, delta); err != nil {
			return fmt.Errorf("world %s, step %d: %w", w.name, i+1, err)
		}
	}
	return nil
}

// Skip advances the clock without letting anyone act.
func (w *World) Skip(steps int, delta time.Duration) error {
	for i := 0; i < steps; i++ {
		_, err := control.Execute(w.rt, w, "skip", []any{i, delta.String()}, func() (any, error) {
			if w.hasClock {
				w.currentDatetime = w.currentDatetime.Add(delta)
			}
			return nil, nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (w *World) RunMinutes(ctx context.Context, n int) error { return w.Run(ctx, n, time.Minute) }
func (w *World) RunHours(ctx context.Context, n int) error   { return w.Run(ctx, n, time.Hour) }
func (w *World) RunDays(ctx context.Context, n int) error    { return w.Run(ctx, n, 24*time.Hour) }
func (w *World) RunWeeks(ctx context.Context, n int) error   { return w.Run(ctx, n, 7*24*time.Hour) }

// RunMonths approximates a month as four weeks.
func (w *World) RunMonths(ctx context.Context, n int) error { return w.Run(ctx, n, 4*7*24*time.Hour) }

// RunYears approximates a year as 365 days.
func (w *World) RunYears(ctx context.Context, n int) error { return w.Run(ctx, n, 365*24*time.Hour) }

func (w *World) SkipMinutes(n int) error { return w.Skip(n, time.Minute) }
func (w *World) SkipHours(n int) error   { return w.Skip(n, time.Hour) }
func (w *World) SkipDays(n int) error    { return w.Skip(n, 24*time.Hour) }
func (w *World) SkipWeeks(n int) error   { return w.Skip(n, 7*24*time.Hour) }
func (w *World) SkipMonths(n int) error  { return w.Skip(n, 4*7*24*time.Hour) }
func (w *World) SkipYears(n int) error   { return w.Skip(n, 365*24*time.Hour) }

// handleActions routes the environment-facing actions an agent took.
// TALK and REACH_OUT concern other agents; everything else was already
// consumed by the agent itself or its faculties.
func (w *World) handleActions(ctx context.Context, source *agent.Agent, actions []protocol.Action) error {
	for _, action := range actions {
		switch action.Type {
		case protocol.ActionReachOut:
			if err := w.reachOutFunc(ctx, source, action.ContentString(), action.Target); err != nil {
				return err
			}
		case protocol.ActionTalk:
			if err := w.handleTalk(ctx, source, action.ContentString(), action.Target); err != nil {
				return err
			}
		}
	}
	return nil
}

// handleReachOut makes the two agents mutually accessible and tells
// both about it.
func (w *World) handleReachOut(ctx context.Context, source *agent.Agent, content, targetName string) error {
	if targetName == source.Name() {
		logger.GetLogger().Warn("agent tried to reach out to itself",
			"world", w.name, "agent", source.Name())
		return nil
	}
	target, ok := w.GetAgentByName(targetName)
	if !ok {
		logger.GetLogger().Warn("reach out to unknown agent",
			"world", w.name, "source", source.Name(), "target", targetName)
		return nil
	}

	if err := source.MakeAgentAccessible(target, ""); err != nil {
		return err
	}
	if err := target.MakeAgentAccessible(source, ""); err != nil {
		return err
	}

	if err := source.Socialize(fmt.Sprintf("%s was successfully reached out, and is now available for interaction.", target.Name()), w.name); err != nil {
		return err
	}
	return target.Socialize(fmt.Sprintf("%s reached out to you, and is now available for interaction.", source.Name()), w.name)
}

// handleTalk delivers speech to its target, or broadcasts it when the
// target cannot be resolved.
func (w *World) handleTalk(ctx context.Context, source *agent.Agent, content, targetName string) error {
	if target, ok := w.GetAgentByName(targetName); ok {
		return target.Listen(content, source.Name())
	}
	if w.broadcastIfNoTarget {
		return w.broadcast(content, source)
	}
	logger.GetLogger().Debug("talk with no reachable target dropped",
		"world", w.name, "source", source.Name(), "target", targetName)
	return nil
}

// Broadcast delivers speech to every agent in the world.
func (w *World) Broadcast(speech string) error {
	return w.broadcast(speech, nil)
}

func (w *World) broadcast(speech string, source *agent.Agent) error {
	sourceName := w.name
	if source != nil {
		sourceName = source.Name()
	}
	for _, a := range w.agents {
		if source != nil && a.Name() == source.Name() {
			continue
		}
		if err := a.Listen(speech, sourceName); err != nil {
			return err
		}
	}
	return nil
}

// BroadcastThought makes every agent think the same thought.
func (w *World) BroadcastThought(thought string) error {
	for _, a := range w.agents {
		if err := a.Think(thought); err != nil {
			return err
		}
	}
	return nil
}

// BroadcastInternalGoal plants the same goal in every agent.
func (w *World) BroadcastInternalGoal(goal string) error {
	for _, a := range w.agents {
		if err := a.InternalizeGoal(goal); err != nil {
			return err
		}
	}
	return nil
}

// BroadcastContextChange resets every agent's situational context.
func (w *World) BroadcastContextChange(context []string) error {
	for _, a := range w.agents {
		if err := a.ChangeContext(context); err != nil {
			return err
		}
	}
	return nil
}

// worldState is the serializable form of a world.
type worldState struct {
	Name            string   `json:"name"`
	CurrentDatetime string   `json:"current_datetime,omitempty"`
	Agents          []string `json:"agents"`
}

func (w *World) EncodeCompleteState() (map[string]any, error) {
	names := make([]string, 0, len(w.agents))
	for _, a := range w.agents {
		names = append(names, a.Name())
	}
	state := map[string]any{
		"name":   w.name,
		"agents": names,
	}
	if w.hasClock {
		state["current_datetime"] = w.currentDatetime.Format(datetimeLayout)
	}
	return state, nil
}

func (w *World) DecodeCompleteState(state map[string]any) error {
	if name, ok := state["name"].(string); ok && name != "" {
		w.name = name
	}
	if raw, ok := state["current_datetime"].(string); ok && raw != "" {
		dt, err := time.Parse(datetimeLayout, raw)
		if err != nil {
			return fmt.Errorf("world %s has a bad datetime %q: %w", w.name, raw, err)
		}
		w.currentDatetime = dt
		w.hasClock = true
	}

	names, _ := state["agents"].([]any)
	w.agents = nil
	w.nameToAgent = map[string]*agent.Agent{}
	for _, rawName := range names {
		name, _ := rawName.(string)
		a, ok := agent.ByName(w.rt, name)
		if !ok {
			return fmt.Errorf("world %s references unknown agent %q", w.name, name)
		}
		if err := w.AddAgent(a); err != nil {
			return err
		}
	}
	return nil
}
