package control

import (
	"fmt"
)

// Factory is a named entity that produces other entities. The engine
// tracks factories so transaction outputs can reference them by name;
// concrete generation strategies embed Factory and add their own
// behavior.
type Factory struct {
	name         string
	simulationID string
}

// NewFactory registers a factory in the runtime. An empty name gets a
// fresh default.
func NewFactory(rt *Runtime, name string) (*Factory, error) {
	if name == "" {
		name = fmt.Sprintf("Factory %d", rt.FreshID())
	}
	f := &Factory{name: name}
	if err := rt.RegisterEntity(f); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *Factory) Name() string              { return f.name }
func (f *Factory) Kind() string              { return KindFactory }
func (f *Factory) SimulationID() string      { return f.simulationID }
func (f *Factory) SetSimulationID(id string) { f.simulationID = id }

func (f *Factory) EncodeCompleteState() (map[string]any, error) {
	return map[string]any{"name": f.name}, nil
}

func (f *Factory) DecodeCompleteState(state map[string]any) error {
	if name, ok := state["name"].(string); ok && name != "" {
		f.name = name
	}
	return nil
}
