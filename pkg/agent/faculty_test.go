package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/troupe-ai/troupe/pkg/control"
	"github.com/troupe-ai/troupe/pkg/protocol"
)

func lastThought(t *testing.T, a *Agent) string {
	t.Helper()
	events := a.episodic.RetrieveAll()
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	require.Len(t, last.Content.Stimuli, 1)
	assert.Equal(t, protocol.StimulusThought, last.Content.Stimuli[0].Type)
	return last.Content.Stimuli[0].Content
}

func TestRecallFacultyInjectsMemories(t *testing.T) {
	rt := control.NewRuntime()
	a := newTestAgent(t, rt, "Oscar")
	f := NewRecallFaculty()
	require.NoError(t, a.AddMentalFaculty(f))

	ctx := context.Background()
	require.NoError(t, a.SemanticMemory().AddDocument(ctx, "notes", "The meeting is on Friday at noon.", "notes"))

	handled := f.ProcessAction(ctx, a, protocol.Action{Type: protocol.ActionRecall, Content: "when is the meeting"})
	assert.True(t, handled)

	thought := lastThought(t, a)
	assert.Contains(t, thought, "I have remembered the following information")
	assert.Contains(t, thought, "Friday at noon")
}

func TestRecallFacultyWithEmptyMemory(t *testing.T) {
	rt := control.NewRuntime()
	a := newTestAgent(t, rt, "Oscar")
	f := NewRecallFaculty()

	handled := f.ProcessAction(context.Background(), a, protocol.Action{Type: protocol.ActionRecall, Content: "anything"})
	assert.True(t, handled)
	assert.Contains(t, lastThought(t, a), "can't remember anything")
}

func TestRecallFacultyIgnoresOtherActions(t *testing.T) {
	rt := control.NewRuntime()
	a := newTestAgent(t, rt, "Oscar")
	f := NewRecallFaculty()

	handled := f.ProcessAction(context.Background(), a, protocol.Action{Type: protocol.ActionTalk, Content: "hi"})
	assert.False(t, handled)
}

func TestGroundingFacultyListsAndConsults(t *testing.T) {
	rt := control.NewRuntime()
	a := newTestAgent(t, rt, "Oscar")
	f := NewFilesAndWebGroundingFaculty()

	ctx := context.Background()
	require.NoError(t, a.SemanticMemory().AddDocument(ctx, "handbook", "Employees get 30 vacation days.", "handbook"))

	handled := f.ProcessAction(ctx, a, protocol.Action{Type: protocol.ActionListDocuments})
	assert.True(t, handled)
	assert.Contains(t, lastThought(t, a), "handbook")

	handled = f.ProcessAction(ctx, a, protocol.Action{Type: protocol.ActionConsult, Content: "handbook"})
	assert.True(t, handled)
	assert.Contains(t, lastThought(t, a), "30 vacation days")

	handled = f.ProcessAction(ctx, a, protocol.Action{Type: protocol.ActionConsult, Content: "missing"})
	assert.True(t, handled)
	assert.Contains(t, lastThought(t, a), "don't have it")
}

// recordingTool remembers the actions routed to it.
type recordingTool struct {
	name    string
	handles string
	seen    []protocol.Action
}

func (r *recordingTool) Name() string               { return r.name }
func (r *recordingTool) ActionsDefinitions() string { return "- " + r.handles + ": a test action." }
func (r *recordingTool) ActionsConstraints() string { return "- Use " + r.handles + " sparingly." }

func (r *recordingTool) ProcessAction(ctx context.Context, agentName string, action protocol.Action) (bool, error) {
	if action.Type != r.handles {
		return false, nil
	}
	r.seen = append(r.seen, action)
	return true, nil
}

func TestToolUseFacultyRoutesToTools(t *testing.T) {
	rt := control.NewRuntime()
	a := newTestAgent(t, rt, "Oscar")

	tool := &recordingTool{name: "scribe", handles: protocol.ActionWriteDocument}
	f := NewToolUseFaculty(tool)
	require.NoError(t, a.AddMentalFaculty(f))

	handled := f.ProcessAction(context.Background(), a, protocol.Action{
		Type:    protocol.ActionWriteDocument,
		Content: map[string]any{"title": "Plan"},
	})
	assert.True(t, handled)
	require.Len(t, tool.seen, 1)

	handled = f.ProcessAction(context.Background(), a, protocol.Action{Type: protocol.ActionTalk})
	assert.False(t, handled)
}

func TestFacultyActionsAppearInPrompt(t *testing.T) {
	rt := control.NewRuntime()
	a := newTestAgent(t, rt, "Oscar")
	require.NoError(t, a.AddMentalFaculty(NewRecallFaculty()))

	system := a.currentMessages[0].Content
	assert.Contains(t, system, "RECALL")

	err := a.AddMentalFaculty(NewRecallFaculty())
	assert.Error(t, err, "duplicate faculties are rejected")
}
