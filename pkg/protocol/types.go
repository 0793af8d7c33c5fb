// Package protocol defines the data types exchanged between agents,
// worlds, memories and the model client: stimuli, actions, cognitive
// state and episodic events.
package protocol

// Stimulus types an agent can perceive.
const (
	StimulusConversation   = "CONVERSATION"
	StimulusSocial         = "SOCIAL"
	StimulusVisual         = "VISUAL"
	StimulusThought        = "THOUGHT"
	StimulusInternalGoal   = "INTERNAL_GOAL_FORMULATION"
	StimulusLocationUpdate = "LOCATION_UPDATE"
	StimulusContextUpdate  = "CONTEXT_UPDATE"
)

// Action types an agent can emit. TALK, REACH_OUT and DONE are handled
// by the environment; the rest are consumed by mental faculties.
const (
	ActionTalk          = "TALK"
	ActionThink         = "THINK"
	ActionReachOut      = "REACH_OUT"
	ActionDone          = "DONE"
	ActionRecall        = "RECALL"
	ActionConsult       = "CONSULT"
	ActionListDocuments = "LIST_DOCUMENTS"
	ActionWriteDocument = "WRITE_DOCUMENT"
	ActionCreateEvent   = "CREATE_EVENT"
)

// Message is a single chat message on the model wire.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Stimulus is an input delivered to an agent's senses.
type Stimulus struct {
	Type    string `json:"type"`
	Content string `json:"content"`
	Source  string `json:"source,omitempty"`
}

// Action is a behavior an agent decided to perform. Content is either a
// plain string or, for tool actions, a JSON object.
type Action struct {
	Type    string `json:"type"`
	Content any    `json:"content,omitempty"`
	Target  string `json:"target,omitempty"`
}

// ContentString returns the action content as a string when it is one.
func (a Action) ContentString() string {
	s, _ := a.Content.(string)
	return s
}

// CognitiveState is the agent's self-reported mental state after acting.
type CognitiveState struct {
	Goals     string `json:"goals"`
	Attention string `json:"attention"`
	Emotions  string `json:"emotions"`
}

// ModelOutput is the JSON document the model must produce on each act
// turn: exactly one action plus the updated cognitive state.
type ModelOutput struct {
	Action         Action         `json:"action"`
	CognitiveState CognitiveState `json:"cognitive_state"`
}

// EventContent is the payload of an episodic event. Exactly one of the
// fields is set: Stimuli for perceptions, Action plus CognitiveState
// for behaviors, Info for bookkeeping entries such as omission markers.
type EventContent struct {
	Stimuli        []Stimulus      `json:"stimuli,omitempty"`
	Action         *Action         `json:"action,omitempty"`
	CognitiveState *CognitiveState `json:"cognitive_state,omitempty"`
	Info           string          `json:"info,omitempty"`
}

// Event is one entry in an agent's episodic memory.
type Event struct {
	Role                string       `json:"role"`
	Content             EventContent `json:"content"`
	SimulationTimestamp string       `json:"simulation_timestamp,omitempty"`
}
