// Package control owns the simulation lifecycle: the Runtime that
// threads shared registries through the engine, the Simulation with
// its execution trace and cache file, and the Transaction wrapper that
// memoizes state-mutating calls.
package control

import (
	"encoding/json"
	"fmt"
)

// Entity kinds tracked by a simulation.
const (
	KindAgent   = "agent"
	KindWorld   = "world"
	KindFactory = "factory"
)

// Entity is anything a simulation can own and snapshot: agents,
// worlds and factories. Entities are addressed by name, which is
// unique per kind within a runtime.
type Entity interface {
	Name() string
	Kind() string
	SimulationID() string
	SetSimulationID(id string)
	EncodeCompleteState() (map[string]any, error)
	DecodeCompleteState(state map[string]any) error
}

// Output reference types used in encoded transaction outputs.
const (
	outputTypeAgentRef   = "AgentRef"
	outputTypeWorldRef   = "WorldRef"
	outputTypeFactoryRef = "FactoryRef"
	outputTypeJSON       = "JSON"
)

type encodedOutput struct {
	Type  string          `json:"type"`
	Name  string          `json:"name,omitempty"`
	Value json.RawMessage `json:"value,omitempty"`
}

// encodeOutput converts a transaction result into its cacheable form:
// entities become name references, everything else is embedded as
// JSON. A nil output stays nil.
func encodeOutput(output any) (json.RawMessage, error) {
	if output == nil {
		return json.RawMessage("null"), nil
	}

	if entity, ok := output.(Entity); ok {
		var refType string
		switch entity.Kind() {
		case KindAgent:
			refType = outputTypeAgentRef
		case KindWorld:
			refType = outputTypeWorldRef
		case KindFactory:
			refType = outputTypeFactoryRef
		default:
			return nil, fmt.Errorf("cannot encode output of kind %q", entity.Kind())
		}
		return json.Marshal(encodedOutput{Type: refType, Name: entity.Name()})
	}

	value, err := json.Marshal(output)
	if err != nil {
		return nil, fmt.Errorf("encoding transaction output: %w", err)
	}
	return json.Marshal(encodedOutput{Type: outputTypeJSON, Value: value})
}

// decodeOutput resolves a cached output back into a live value.
// Entity references are looked up in the runtime; a missing entity is
// a hard error since the cached trace no longer matches the program.
func decodeOutput(rt *Runtime, raw json.RawMessage) (any, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var enc encodedOutput
	if err := json.Unmarshal(raw, &enc); err != nil {
		return nil, fmt.Errorf("decoding cached output: %w", err)
	}

	switch enc.Type {
	case outputTypeAgentRef:
		if entity, ok := rt.Agents.Get(enc.Name); ok {
			return entity, nil
		}
		return nil, fmt.Errorf("cached output references unknown agent %q", enc.Name)
	case outputTypeWorldRef:
		if entity, ok := rt.Worlds.Get(enc.Name); ok {
			return entity, nil
		}
		return nil, fmt.Errorf("cached output references unknown world %q", enc.Name)
	case outputTypeFactoryRef:
		if entity, ok := rt.Factories.Get(enc.Name); ok {
			return entity, nil
		}
		return nil, fmt.Errorf("cached output references unknown factory %q", enc.Name)
	case outputTypeJSON:
		var value any
		if err := json.Unmarshal(enc.Value, &value); err != nil {
			return nil, fmt.Errorf("decoding cached JSON output: %w", err)
		}
		return value, nil
	default:
		return nil, fmt.Errorf("unknown cached output type %q", enc.Type)
	}
}
