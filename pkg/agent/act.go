package agent

import (
	"context"
	"fmt"

	"github.com/troupe-ai/troupe/pkg/control"
	"github.com/troupe-ai/troupe/pkg/logger"
	"github.com/troupe-ai/troupe/pkg/protocol"
	"github.com/troupe-ai/troupe/pkg/utils"
)

// MaxActionsBeforeDone bounds a single act turn. An agent that has not
// issued DONE by then is cut off.
const MaxActionsBeforeDone = 15

// produceMessage asks the model for the next reply, retrying when the
// response does not parse as an action document.
const maxParseAttempts = 5

// Act runs one act turn: the agent issues actions until DONE, the
// turn limit, or a repetition stall. The actions are stored in memory
// and buffered for the environment to collect.
func (a *Agent) Act(ctx context.Context) ([]protocol.Action, error) {
	return control.Execute(a.rt, a, "act", nil, func() ([]protocol.Action, error) {
		return a.act(ctx)
	})
}

// ActN runs exactly n single-action turns regardless of DONE. The
// count must stay below the per-turn action limit.
func (a *Agent) ActN(ctx context.Context, n int) ([]protocol.Action, error) {
	if n >= MaxActionsBeforeDone {
		return nil, fmt.Errorf("agent %s: cannot act %d times in one turn, the limit is %d",
			a.name, n, MaxActionsBeforeDone)
	}
	return control.Execute(a.rt, a, "act_n", []any{n}, func() ([]protocol.Action, error) {
		var actions []protocol.Action
		for i := 0; i < n; i++ {
			action, err := a.actOnce(ctx)
			if err != nil {
				return actions, err
			}
			actions = append(actions, action)
		}
		return actions, nil
	})
}

func (a *Agent) act(ctx context.Context) ([]protocol.Action, error) {
	log := logger.GetLogger()
	var actions []protocol.Action

	for {
		action, err := a.actOnce(ctx)
		if err != nil {
			return actions, err
		}
		actions = append(actions, action)

		if action.Type == protocol.ActionDone {
			break
		}
		if len(actions) >= MaxActionsBeforeDone {
			log.Warn("agent exceeded the action limit without DONE",
				"agent", a.name, "actions", len(actions))
			break
		}
		if isStalled(actions) {
			log.Warn("agent is repeating itself, cutting the turn short",
				"agent", a.name, "action", action.Type)
			break
		}
	}
	return actions, nil
}

// isStalled reports whether the last three actions are identical in
// type and content.
func isStalled(actions []protocol.Action) bool {
	n := len(actions)
	if n < 3 {
		return false
	}
	a, b, c := actions[n-3], actions[n-2], actions[n-1]
	return sameAction(a, b) && sameAction(b, c)
}

func sameAction(a, b protocol.Action) bool {
	if a.Type != b.Type || a.Target != b.Target {
		return false
	}
	ha, errA := utils.HashJSON(a.Content)
	hb, errB := utils.HashJSON(b.Content)
	return errA == nil && errB == nil && ha == hb
}

// actOnce performs a single action: a grounding thought, one model
// call, memory bookkeeping, cognitive state update and faculty
// processing.
func (a *Agent) actOnce(ctx context.Context) (protocol.Action, error) {
	a.think("I will now act a bit, and then issue DONE.")

	output, err := a.produceModelOutput(ctx)
	if err != nil {
		return protocol.Action{}, err
	}

	action := output.Action
	logger.GetLogger().Info("agent acts",
		"agent", a.name, "type", action.Type, "target", action.Target)

	a.actionsBuffer = append(a.actionsBuffer, action)
	a.storeEvent(protocol.Event{
		Role: "assistant",
		Content: protocol.EventContent{
			Action:         &action,
			CognitiveState: &output.CognitiveState,
		},
		SimulationTimestamp: a.isoDatetime(),
	})
	a.updateCognitiveState(output.CognitiveState)
	a.display(fmt.Sprintf("%s acts: [%s] %s", a.name, action.Type, action.ContentString()))

	for _, f := range a.faculties {
		if f.ProcessAction(ctx, a, action) {
			break
		}
	}
	return action, nil
}

// produceModelOutput calls the model and parses the action document,
// retrying malformed replies a few times.
func (a *Agent) produceModelOutput(ctx context.Context) (*protocol.ModelOutput, error) {
	log := logger.GetLogger()
	var lastErr error

	for attempt := 1; attempt <= maxParseAttempts; attempt++ {
		response, err := a.client.SendMessage(ctx, a.currentMessages)
		if err != nil {
			return nil, fmt.Errorf("agent %s: model call failed: %w", a.name, err)
		}

		output, err := parseModelOutput(response.Content)
		if err != nil {
			lastErr = err
			log.Warn("model reply did not parse as an action, retrying",
				"agent", a.name, "attempt", attempt, "error", err)
			continue
		}
		return output, nil
	}
	return nil, fmt.Errorf("agent %s: no valid action after %d attempts: %w",
		a.name, maxParseAttempts, lastErr)
}

func parseModelOutput(content string) (*protocol.ModelOutput, error) {
	var probe map[string]any
	if err := utils.ExtractJSON(content, &probe); err != nil {
		return nil, err
	}
	if _, ok := probe["action"]; !ok {
		return nil, fmt.Errorf("reply has no action field")
	}
	var output protocol.ModelOutput
	if err := utils.ExtractJSON(content, &output); err != nil {
		return nil, err
	}
	if output.Action.Type == "" {
		return nil, fmt.Errorf("action has no type")
	}
	return &output, nil
}

// updateCognitiveState folds the model-reported state back into the
// persona so the next prompt reflects it.
func (a *Agent) updateCognitiveState(state protocol.CognitiveState) {
	if state.Goals != "" {
		a.config["current_goals"] = state.Goals
	}
	if state.Attention != "" {
		a.config["current_attention"] = state.Attention
	}
	if state.Emotions != "" {
		a.config["current_emotions"] = state.Emotions
	}
	if a.environment != nil {
		if dt, ok := a.environment.CurrentDatetime(); ok {
			a.config["current_datetime"] = dt.Format("2006-01-02T15:04:05")
		}
	}
	a.resetPrompt()
}

// observe stores a stimulus as a perception event.
func (a *Agent) observe(stimulus protocol.Stimulus) {
	a.storeEvent(protocol.Event{
		Role:                "user",
		Content:             protocol.EventContent{Stimuli: []protocol.Stimulus{stimulus}},
		SimulationTimestamp: a.isoDatetime(),
	})
	content := utils.BreakTextAtLength(stimulus.Content, a.maxContentDisplayLength)
	a.display(fmt.Sprintf("%s perceives: [%s] %s", a.name, stimulus.Type, content))
}

// storeEvent appends the event to episodic memory and to the live
// chat history.
func (a *Agent) storeEvent(event protocol.Event) {
	a.episodic.Store(event)
	a.currentMessages = append(a.currentMessages, eventMessage(event))
}

// Listen delivers speech directed at this agent.
func (a *Agent) Listen(speech, source string) error {
	_, err := control.Execute(a.rt, a, "listen", []any{speech, source}, func() (any, error) {
		a.observe(protocol.Stimulus{Type: protocol.StimulusConversation, Content: speech, Source: source})
		return nil, nil
	})
	return err
}

// See delivers a visual description.
func (a *Agent) See(visualDescription, source string) error {
	_, err := control.Execute(a.rt, a, "see", []any{visualDescription, source}, func() (any, error) {
		a.observe(protocol.Stimulus{Type: protocol.StimulusVisual, Content: visualDescription, Source: source})
		return nil, nil
	})
	return err
}

// Think makes the agent think a thought to itself.
func (a *Agent) Think(thought string) error {
	_, err := control.Execute(a.rt, a, "think", []any{thought}, func() (any, error) {
		a.think(thought)
		return nil, nil
	})
	return err
}

func (a *Agent) think(thought string) {
	a.observe(protocol.Stimulus{Type: protocol.StimulusThought, Content: thought, Source: a.name})
}

// InternalizeGoal plants a goal in the agent's mind.
func (a *Agent) InternalizeGoal(goal string) error {
	_, err := control.Execute(a.rt, a, "internalize_goal", []any{goal}, func() (any, error) {
		a.observe(protocol.Stimulus{Type: protocol.StimulusInternalGoal, Content: goal, Source: a.name})
		return nil, nil
	})
	return err
}

// Socialize delivers a social stimulus, such as a rejection notice.
func (a *Agent) Socialize(socialDescription, source string) error {
	_, err := control.Execute(a.rt, a, "socialize", []any{socialDescription, source}, func() (any, error) {
		a.observe(protocol.Stimulus{Type: protocol.StimulusSocial, Content: socialDescription, Source: source})
		return nil, nil
	})
	return err
}

// ListenAndAct is the common stimulate-then-respond shorthand.
func (a *Agent) ListenAndAct(ctx context.Context, speech, source string) ([]protocol.Action, error) {
	if err := a.Listen(speech, source); err != nil {
		return nil, err
	}
	return a.Act(ctx)
}

// SeeAndAct shows something to the agent and lets it respond.
func (a *Agent) SeeAndAct(ctx context.Context, visualDescription, source string) ([]protocol.Action, error) {
	if err := a.See(visualDescription, source); err != nil {
		return nil, err
	}
	return a.Act(ctx)
}

// ThinkAndAct makes the agent think and then respond.
func (a *Agent) ThinkAndAct(ctx context.Context, thought string) ([]protocol.Action, error) {
	if err := a.Think(thought); err != nil {
		return nil, err
	}
	return a.Act(ctx)
}

func (a *Agent) display(line string) {
	a.displayBuffer = append(a.displayBuffer, line)
	logger.GetLogger().Debug(line)
}

// DisplayedCommunications returns the human-readable lines produced
// since the last clear.
func (a *Agent) DisplayedCommunications() []string {
	out := make([]string, len(a.displayBuffer))
	copy(out, a.displayBuffer)
	return out
}

// ClearDisplayedCommunications empties the display buffer.
func (a *Agent) ClearDisplayedCommunications() {
	a.displayBuffer = nil
}
