package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/troupe-ai/troupe/pkg/control"
	"github.com/troupe-ai/troupe/pkg/logger"
	"github.com/troupe-ai/troupe/pkg/memory"
	"github.com/troupe-ai/troupe/pkg/protocol"
)

// completeState is everything needed to rebuild an agent inside a
// running process, minus the runtime wiring.
type completeState struct {
	Name             string               `json:"name"`
	Config           Configuration        `json:"config"`
	EpisodicMemory   memory.EpisodicState `json:"episodic_memory"`
	SemanticMemory   memory.SemanticState `json:"semantic_memory"`
	AccessibleAgents []string             `json:"accessible_agents"`
	ActionsBuffer    []protocol.Action    `json:"actions_buffer"`
}

// EncodeCompleteState captures the agent for the simulation trace.
// Faculties and the model client are wiring, not state, and are left
// out.
func (a *Agent) EncodeCompleteState() (map[string]any, error) {
	accessible := make([]string, 0, len(a.accessibleAgents))
	for _, other := range a.accessibleAgents {
		accessible = append(accessible, other.Name())
	}

	state := completeState{
		Name:             a.name,
		Config:           a.config,
		EpisodicMemory:   a.episodic.EncodeState(),
		SemanticMemory:   a.semantic.EncodeState(),
		AccessibleAgents: accessible,
		ActionsBuffer:    a.actionsBuffer,
	}

	data, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("encoding agent %s: %w", a.name, err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DecodeCompleteState restores the agent from a previously encoded
// state.
func (a *Agent) DecodeCompleteState(raw map[string]any) error {
	data, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	var state completeState
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("decoding agent %s: %w", a.name, err)
	}

	if state.Name != "" {
		a.name = state.Name
	}
	if state.Config != nil {
		a.config = state.Config
	}
	a.episodic.DecodeState(state.EpisodicMemory)
	if err := a.semantic.DecodeState(context.Background(), state.SemanticMemory); err != nil {
		return fmt.Errorf("restoring semantic memory of %s: %w", a.name, err)
	}
	a.actionsBuffer = state.ActionsBuffer

	a.accessibleAgents = nil
	for _, name := range state.AccessibleAgents {
		other, ok := ByName(a.rt, name)
		if !ok {
			logger.GetLogger().Warn("accessible agent not found while restoring state",
				"agent", a.name, "other", name)
			continue
		}
		a.accessibleAgents = append(a.accessibleAgents, other)
	}
	a.rebuildAccessibleConfig()

	a.resetPrompt()
	return nil
}

// specification is the on-disk persona file format.
type specification struct {
	Type           string                `json:"type"`
	Persona        Configuration         `json:"persona"`
	EpisodicMemory *memory.EpisodicState `json:"episodic_memory,omitempty"`
	SemanticMemory *memory.SemanticState `json:"semantic_memory,omitempty"`
}

const specificationType = "Agent"

// SaveSpecification writes the persona, and optionally the memories,
// to a JSON file.
func (a *Agent) SaveSpecification(path string, includeMemory bool) error {
	spec := specification{
		Type:    specificationType,
		Persona: a.config,
	}
	if includeMemory {
		episodic := a.episodic.EncodeState()
		semantic := a.semantic.EncodeState()
		spec.EpisodicMemory = &episodic
		spec.SemanticMemory = &semantic
	}

	data, err := json.MarshalIndent(spec, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o644)
}

// LoadSpecification builds an agent from a persona file. With
// autoRename, a taken name gets a numeric suffix instead of failing;
// newName, when given, overrides the file's name outright.
func LoadSpecification(ctx context.Context, rt *control.Runtime, client ModelClient, path string, autoRename bool, newName string, opts ...Option) (*Agent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading agent specification: %w", err)
	}

	var spec specification
	if err := json.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("parsing agent specification %s: %w", path, err)
	}
	if spec.Type != specificationType {
		return nil, fmt.Errorf("file %s is not an agent specification (type %q)", path, spec.Type)
	}

	name, _ := spec.Persona["name"].(string)
	if newName != "" {
		name = newName
	}
	if name == "" {
		return nil, fmt.Errorf("agent specification %s has no name", path)
	}
	if autoRename {
		base := name
		for i := 1; ; i++ {
			if _, taken := rt.Agents.Get(name); !taken {
				break
			}
			name = fmt.Sprintf("%s (%d)", base, i)
		}
	}

	a, err := New(rt, client, name, opts...)
	if err != nil {
		return nil, err
	}

	for key, value := range spec.Persona {
		if key == "name" {
			continue
		}
		a.config[key] = value
	}
	a.config["name"] = name

	if spec.EpisodicMemory != nil {
		a.episodic.DecodeState(*spec.EpisodicMemory)
	}
	if spec.SemanticMemory != nil {
		if err := a.semantic.DecodeState(ctx, *spec.SemanticMemory); err != nil {
			return nil, err
		}
	}

	a.resetPrompt()
	return a, nil
}

// PrettyCurrentInteractions renders the recent episodic window as
// human-readable text.
func (a *Agent) PrettyCurrentInteractions(firstN, lastN int) string {
	var events []protocol.Event
	if firstN > 0 || lastN > 0 {
		events = a.episodic.Retrieve(firstN, lastN, true)
	} else {
		events = a.episodic.RetrieveAll()
	}

	var b strings.Builder
	for _, event := range events {
		b.WriteString(prettyEvent(a.name, event))
		b.WriteString("\n")
	}
	return b.String()
}

func prettyEvent(agentName string, event protocol.Event) string {
	ts := event.SimulationTimestamp
	if ts == "" {
		ts = "-"
	}

	content := event.Content
	switch {
	case content.Info != "":
		return fmt.Sprintf("[%s] %s", ts, content.Info)
	case content.Action != nil:
		return fmt.Sprintf("[%s] %s acts: [%s] %s",
			ts, agentName, content.Action.Type, content.Action.ContentString())
	case len(content.Stimuli) > 0:
		var parts []string
		for _, s := range content.Stimuli {
			source := s.Source
			if source == "" {
				source = "environment"
			}
			parts = append(parts, fmt.Sprintf("[%s] from %s: %s", s.Type, source, s.Content))
		}
		return fmt.Sprintf("[%s] %s perceives: %s", ts, agentName, strings.Join(parts, "; "))
	}
	return fmt.Sprintf("[%s] (empty event)", ts)
}
