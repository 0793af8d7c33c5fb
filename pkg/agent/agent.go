// Package agent implements the simulated person: a persona-driven
// cognitive loop over an LLM, episodic and semantic memory, and the
// mental faculties that consume special actions.
package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/troupe-ai/troupe/pkg/control"
	"github.com/troupe-ai/troupe/pkg/logger"
	"github.com/troupe-ai/troupe/pkg/memory"
	"github.com/troupe-ai/troupe/pkg/protocol"
	"github.com/troupe-ai/troupe/pkg/utils"
)

// DefaultEmotions is what an agent feels before anything happens.
const DefaultEmotions = "Currently you feel calm and friendly."

// DefaultAccessibilityRelation describes agents made accessible with
// no explicit relation.
const DefaultAccessibilityRelation = "An agent I can currently interact with."

// Stimulus content shown in prompts is truncated to this many
// characters unless configured otherwise.
const DefaultMaxContentDisplayLength = 1024

// ModelClient is the slice of the model client agents need.
type ModelClient interface {
	SendMessage(ctx context.Context, messages []protocol.Message) (*protocol.Message, error)
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Environment is the agent's view of the world it lives in.
type Environment interface {
	Name() string
	CurrentDatetime() (time.Time, bool)
}

// Configuration is the persona document driving the prompt. Keys are
// the persona fields; group keys hold lists.
type Configuration map[string]any

func defaultConfiguration(name string) Configuration {
	return Configuration{
		"name":                        name,
		"age":                         nil,
		"nationality":                 nil,
		"country_of_residence":        nil,
		"occupation":                  nil,
		"routines":                    []any{},
		"occupation_description":      nil,
		"personality_traits":          []any{},
		"professional_interests":      []any{},
		"personal_interests":          []any{},
		"skills":                      []any{},
		"relationships":               []any{},
		"current_datetime":            nil,
		"current_location":            nil,
		"current_context":             []any{},
		"current_attention":           nil,
		"current_goals":               []any{},
		"current_emotions":            DefaultEmotions,
		"currently_accessible_agents": []any{},
	}
}

// Agent is a simulated person.
type Agent struct {
	rt     *control.Runtime
	client ModelClient

	name         string
	simulationID string

	config Configuration

	episodic *memory.EpisodicMemory
	semantic *memory.SemanticMemory

	faculties []Faculty

	environment      Environment
	accessibleAgents []*Agent

	currentMessages []protocol.Message
	actionsBuffer   []protocol.Action

	displayBuffer []string

	maxContentDisplayLength int
}

// Option customizes agent construction.
type Option func(*Agent)

// WithEpisodicMemory replaces the default episodic memory.
func WithEpisodicMemory(m *memory.EpisodicMemory) Option {
	return func(a *Agent) { a.episodic = m }
}

// WithSemanticMemory replaces the default semantic memory.
func WithSemanticMemory(m *memory.SemanticMemory) Option {
	return func(a *Agent) { a.semantic = m }
}

// WithMaxContentDisplayLength caps stimulus content length in prompts.
func WithMaxContentDisplayLength(n int) Option {
	return func(a *Agent) { a.maxContentDisplayLength = n }
}

// New creates an agent, registers it in the runtime and renders its
// initial prompt. The name must be unique among agents.
func New(rt *control.Runtime, client ModelClient, name string, opts ...Option) (*Agent, error) {
	if name == "" {
		return nil, fmt.Errorf("agent name cannot be empty")
	}

	a := &Agent{
		rt:                      rt,
		client:                  client,
		name:                    name,
		config:                  defaultConfiguration(name),
		maxContentDisplayLength: DefaultMaxContentDisplayLength,
	}
	for _, opt := range opts {
		opt(a)
	}

	if a.episodic == nil {
		a.episodic = memory.NewEpisodicMemory()
	}
	if a.semantic == nil {
		semantic, err := memory.NewSemanticMemory(clientEmbedder{client})
		if err != nil {
			return nil, err
		}
		a.semantic = semantic
	}

	if err := rt.RegisterEntity(a); err != nil {
		return nil, fmt.Errorf("agent name %q is already in use: %w", name, err)
	}

	a.resetPrompt()
	return a, nil
}

// clientEmbedder adapts a ModelClient to the semantic memory's
// embedder interface.
type clientEmbedder struct {
	client ModelClient
}

func (e clientEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return e.client.Embed(ctx, text)
}

// ByName resolves a registered agent.
func ByName(rt *control.Runtime, name string) (*Agent, bool) {
	entity, ok := rt.Agents.Get(name)
	if !ok {
		return nil, false
	}
	a, ok := entity.(*Agent)
	return a, ok
}

func (a *Agent) Name() string              { return a.name }
func (a *Agent) Kind() string              { return control.KindAgent }
func (a *Agent) SimulationID() string      { return a.simulationID }
func (a *Agent) SetSimulationID(id string) { a.simulationID = id }

// EpisodicMemory exposes the agent's episodic memory.
func (a *Agent) EpisodicMemory() *memory.EpisodicMemory { return a.episodic }

// SemanticMemory exposes the agent's semantic memory.
func (a *Agent) SemanticMemory() *memory.SemanticMemory { return a.semantic }

// SetEnvironment attaches the agent to a world. Called by the world
// when the agent joins it.
func (a *Agent) SetEnvironment(env Environment) {
	a.environment = env
}

// EnvironmentName returns the name of the world the agent is in.
func (a *Agent) EnvironmentName() string {
	if a.environment == nil {
		return ""
	}
	return a.environment.Name()
}

// isoDatetime returns the current simulation timestamp, empty when
// the agent is not in a clocked world.
func (a *Agent) isoDatetime() string {
	if a.environment == nil {
		return ""
	}
	dt, ok := a.environment.CurrentDatetime()
	if !ok {
		return ""
	}
	return dt.Format("2006-01-02T15:04:05")
}

// Get returns a persona field.
func (a *Agent) Get(key string) any {
	return a.config[key]
}

// Define sets a persona field and re-renders the prompt. String
// values are dedented first.
func (a *Agent) Define(key string, value any) error {
	_, err := control.Execute(a.rt, a, "define", []any{key, value}, func() (any, error) {
		a.define(key, value, "")
		return nil, nil
	})
	return err
}

// DefineGroup appends a value to a persona group list.
func (a *Agent) DefineGroup(group string, value any) error {
	_, err := control.Execute(a.rt, a, "define_group", []any{group, value}, func() (any, error) {
		a.define("", value, group)
		return nil, nil
	})
	return err
}

// DefineSeveral appends several values to a persona group list.
func (a *Agent) DefineSeveral(group string, records []any) error {
	_, err := control.Execute(a.rt, a, "define_several", []any{group, records}, func() (any, error) {
		for _, record := range records {
			a.define("", record, group)
		}
		return nil, nil
	})
	return err
}

func (a *Agent) define(key string, value any, group string) {
	if s, ok := value.(string); ok {
		value = utils.Dedent(s)
	}
	if group == "" {
		a.config[key] = value
	} else {
		list, _ := a.config[group].([]any)
		a.config[group] = append(list, value)
	}
	a.resetPrompt()
}

// Relationship links a persona to another agent.
type Relationship struct {
	Name        string `json:"Name"`
	Description string `json:"Description"`
}

// DefineRelationships adds (or, with replace, substitutes) the
// persona's relationships.
func (a *Agent) DefineRelationships(relationships []Relationship, replace bool) error {
	_, err := control.Execute(a.rt, a, "define_relationships", []any{relationships, replace}, func() (any, error) {
		if replace {
			a.config["relationships"] = []any{}
		}
		list, _ := a.config["relationships"].([]any)
		for _, r := range relationships {
			list = append(list, map[string]any{"Name": r.Name, "Description": r.Description})
		}
		a.config["relationships"] = list
		a.resetPrompt()
		return nil, nil
	})
	return err
}

// ClearRelationships removes all of the persona's relationships.
func (a *Agent) ClearRelationships() error {
	_, err := control.Execute(a.rt, a, "clear_relationships", nil, func() (any, error) {
		a.config["relationships"] = []any{}
		a.resetPrompt()
		return nil, nil
	})
	return err
}

// RelatedTo records a relationship with another agent, optionally
// also the symmetric one on the other side.
func (a *Agent) RelatedTo(other *Agent, description, symmetricDescription string) error {
	if err := a.DefineRelationships([]Relationship{{Name: other.Name(), Description: description}}, false); err != nil {
		return err
	}
	if symmetricDescription != "" {
		return other.DefineRelationships([]Relationship{{Name: a.Name(), Description: symmetricDescription}}, false)
	}
	return nil
}

// MoveTo changes the persona's location, and its context when one is
// given.
func (a *Agent) MoveTo(location string, context []string) error {
	_, err := control.Execute(a.rt, a, "move_to", []any{location, context}, func() (any, error) {
		a.config["current_location"] = location
		if len(context) > 0 {
			a.setContext(context)
		}
		a.resetPrompt()
		return nil, nil
	})
	return err
}

// ChangeContext replaces the persona's current context, a list of
// plain statements describing the situation.
func (a *Agent) ChangeContext(context []string) error {
	_, err := control.Execute(a.rt, a, "change_context", []any{context}, func() (any, error) {
		a.setContext(context)
		a.resetPrompt()
		return nil, nil
	})
	return err
}

// Context is canonically a list of strings.
func (a *Agent) setContext(context []string) {
	list := make([]any, len(context))
	for i, c := range context {
		list[i] = c
	}
	a.config["current_context"] = list
}

// MakeAgentAccessible lets this agent interact with another one.
func (a *Agent) MakeAgentAccessible(other *Agent, relationDescription string) error {
	if relationDescription == "" {
		relationDescription = DefaultAccessibilityRelation
	}
	_, err := control.Execute(a.rt, a, "make_agent_accessible", []any{other.Name(), relationDescription}, func() (any, error) {
		if other.Name() == a.name {
			logger.GetLogger().Debug("agent cannot be made accessible to itself", "agent", a.name)
			return nil, nil
		}
		for _, existing := range a.accessibleAgents {
			if existing.Name() == other.Name() {
				logger.GetLogger().Debug("agent already accessible", "agent", a.name, "other", other.Name())
				return nil, nil
			}
		}
		a.accessibleAgents = append(a.accessibleAgents, other)
		list, _ := a.config["currently_accessible_agents"].([]any)
		a.config["currently_accessible_agents"] = append(list, map[string]any{
			"name":                 other.Name(),
			"relation_description": relationDescription,
		})
		a.resetPrompt()
		return nil, nil
	})
	return err
}

// MakeAgentInaccessible removes one agent from reach.
func (a *Agent) MakeAgentInaccessible(other *Agent) error {
	_, err := control.Execute(a.rt, a, "make_agent_inaccessible", []any{other.Name()}, func() (any, error) {
		kept := a.accessibleAgents[:0]
		for _, existing := range a.accessibleAgents {
			if existing.Name() != other.Name() {
				kept = append(kept, existing)
			}
		}
		a.accessibleAgents = kept
		a.rebuildAccessibleConfig()
		a.resetPrompt()
		return nil, nil
	})
	return err
}

// MakeAllAgentsInaccessible empties the accessible set.
func (a *Agent) MakeAllAgentsInaccessible() error {
	_, err := control.Execute(a.rt, a, "make_all_agents_inaccessible", nil, func() (any, error) {
		a.accessibleAgents = nil
		a.rebuildAccessibleConfig()
		a.resetPrompt()
		return nil, nil
	})
	return err
}

func (a *Agent) rebuildAccessibleConfig() {
	list := make([]any, 0, len(a.accessibleAgents))
	for _, other := range a.accessibleAgents {
		list = append(list, map[string]any{
			"name":                 other.Name(),
			"relation_description": DefaultAccessibilityRelation,
		})
	}
	a.config["currently_accessible_agents"] = list
}

// AccessibleAgents returns the agents currently in reach.
func (a *Agent) AccessibleAgents() []*Agent {
	out := make([]*Agent, len(a.accessibleAgents))
	copy(out, a.accessibleAgents)
	return out
}

// AddMentalFaculty attaches a faculty. Faculties are identified by
// name; adding a duplicate is an error.
func (a *Agent) AddMentalFaculty(f Faculty) error {
	for _, existing := range a.faculties {
		if existing.Name() == f.Name() {
			return fmt.Errorf("faculty %q is already present", f.Name())
		}
	}
	a.faculties = append(a.faculties, f)
	a.resetPrompt()
	return nil
}

// AddMentalFaculties attaches several faculties.
func (a *Agent) AddMentalFaculties(faculties []Faculty) error {
	for _, f := range faculties {
		if err := a.AddMentalFaculty(f); err != nil {
			return err
		}
	}
	return nil
}

// ReadDocumentsFromFolder ingests a folder of documents into semantic
// memory.
func (a *Agent) ReadDocumentsFromFolder(ctx context.Context, path string) error {
	return a.semantic.AddDocumentsPath(ctx, path)
}

// ReadDocumentsFromWeb ingests web pages into semantic memory.
func (a *Agent) ReadDocumentsFromWeb(ctx context.Context, urls []string) error {
	return a.semantic.AddWebURLs(ctx, urls)
}

// RetrieveRelevantMemories searches semantic memory.
func (a *Agent) RetrieveRelevantMemories(ctx context.Context, relevanceTarget string, topK int) ([]string, error) {
	return a.semantic.RetrieveRelevant(ctx, relevanceTarget, topK)
}

// PopLatestActions returns and clears the pending actions buffer.
// Environments drain this after each act turn.
func (a *Agent) PopLatestActions() ([]protocol.Action, error) {
	return control.Execute(a.rt, a, "pop_latest_actions", nil, func() ([]protocol.Action, error) {
		actions := a.actionsBuffer
		a.actionsBuffer = nil
		if actions == nil {
			actions = []protocol.Action{}
		}
		return actions, nil
	})
}

// PopActionsAndGetContentsFor drains the buffer and returns the
// contents of actions of one type, either all of them or only the
// last one.
func (a *Agent) PopActionsAndGetContentsFor(actionType string, onlyLastAction bool) (string, error) {
	actions, err := a.PopLatestActions()
	if err != nil {
		return "", err
	}

	var contents []string
	for _, action := range actions {
		if action.Type == actionType {
			contents = append(contents, action.ContentString())
		}
	}
	if len(contents) == 0 {
		return "", nil
	}
	if onlyLastAction {
		return contents[len(contents)-1], nil
	}

	out := ""
	for i, c := range contents {
		if i > 0 {
			out += "\n"
		}
		out += c
	}
	return out, nil
}

// Minibio returns a one-line description of the persona.
func (a *Agent) Minibio() string {
	return fmt.Sprintf("%s is a %v year old %v, %v, currently living in %v.",
		a.name, a.config["age"], a.config["occupation"],
		a.config["nationality"], a.config["country_of_residence"])
}
