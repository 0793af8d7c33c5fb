package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/troupe-ai/troupe/pkg/logger"
	"github.com/troupe-ai/troupe/pkg/protocol"
)

// Faculty is a cognitive capability plugged into an agent. A faculty
// contributes extra action types to the prompt and consumes those
// actions when the agent issues them.
type Faculty interface {
	Name() string

	// ActionsDefinitions returns prompt text describing the action
	// types this faculty handles.
	ActionsDefinitions() string

	// ActionsConstraints returns prompt text with usage rules for
	// those actions.
	ActionsConstraints() string

	// ProcessAction consumes an action, returning true when it was
	// handled.
	ProcessAction(ctx context.Context, a *Agent, action protocol.Action) bool
}

// RecallFaculty lets the agent search its own semantic memory.
type RecallFaculty struct{}

func NewRecallFaculty() *RecallFaculty { return &RecallFaculty{} }

func (f *RecallFaculty) Name() string { return "Memory Recall" }

func (f *RecallFaculty) ActionsDefinitions() string {
	return "- RECALL: you can recall information from your memory. The content is the query of what you want to remember."
}

func (f *RecallFaculty) ActionsConstraints() string {
	return `- Before concluding you don't know something or don't have access to some information, you should try to RECALL it from your memory.
- You try to RECALL information from your semantic memory, so that you can have more relevant elements to think and talk about, whenever such an action would be likely to enrich the current interaction.
- If you RECALL and find nothing, don't keep repeating the same query, either rephrase it or move on.`
}

func (f *RecallFaculty) ProcessAction(ctx context.Context, a *Agent, action protocol.Action) bool {
	if action.Type != protocol.ActionRecall {
		return false
	}
	target := action.ContentString()

	memories, err := a.RetrieveRelevantMemories(ctx, target, 5)
	if err != nil {
		logger.GetLogger().Warn("memory recall failed", "agent", a.Name(), "error", err)
		a.think(fmt.Sprintf("I tried to remember something about '%s' but my memory failed me.", target))
		return true
	}
	if len(memories) == 0 {
		a.think(fmt.Sprintf("I can't remember anything about '%s' right now.", target))
		return true
	}
	a.think("I have remembered the following information from my memory and am going to use it to respond to you:\n\n" +
		strings.Join(memories, "\n"))
	return true
}

// FilesAndWebGroundingFaculty lets the agent consult the documents it
// ingested from local folders and web pages.
type FilesAndWebGroundingFaculty struct{}

func NewFilesAndWebGroundingFaculty() *FilesAndWebGroundingFaculty {
	return &FilesAndWebGroundingFaculty{}
}

func (f *FilesAndWebGroundingFaculty) Name() string { return "Local Files and Web Grounding" }

func (f *FilesAndWebGroundingFaculty) ActionsDefinitions() string {
	return `- LIST_DOCUMENTS: you can list the documents you have access to. No content needed.
- CONSULT: you can consult a specific document to read its content. The content is the name of the document.`
}

func (f *FilesAndWebGroundingFaculty) ActionsConstraints() string {
	return `- You are aware that you have documents available to consult, and you use LIST_DOCUMENTS and CONSULT when the interaction could benefit from their content.
- You can only CONSULT documents whose names appeared in a LIST_DOCUMENTS result.`
}

func (f *FilesAndWebGroundingFaculty) ProcessAction(ctx context.Context, a *Agent, action protocol.Action) bool {
	switch action.Type {
	case protocol.ActionListDocuments:
		names := a.SemanticMemory().ListDocumentsNames()
		a.think(fmt.Sprintf("I have the following documents available to me: %s", strings.Join(names, "; ")))
		return true

	case protocol.ActionConsult:
		name := action.ContentString()
		content, ok := a.SemanticMemory().RetrieveDocumentContentByName(name)
		if !ok {
			a.think(fmt.Sprintf("I tried to consult a document named '%s' but I don't have it.", name))
			return true
		}
		a.think(fmt.Sprintf("I have read the following document:\n%s", content))
		return true
	}
	return false
}

// Tool is an instrument agents can operate through actions. Concrete
// tools live in the tools package.
type Tool interface {
	Name() string
	ActionsDefinitions() string
	ActionsConstraints() string

	// ProcessAction consumes an action on behalf of the named agent,
	// returning true when the action belonged to this tool.
	ProcessAction(ctx context.Context, agentName string, action protocol.Action) (bool, error)
}

// ToolUseFaculty bridges agents to a set of tools.
type ToolUseFaculty struct {
	tools []Tool
}

func NewToolUseFaculty(tools ...Tool) *ToolUseFaculty {
	return &ToolUseFaculty{tools: tools}
}

func (f *ToolUseFaculty) Name() string { return "Tool Use" }

func (f *ToolUseFaculty) ActionsDefinitions() string {
	parts := make([]string, 0, len(f.tools))
	for _, t := range f.tools {
		parts = append(parts, t.ActionsDefinitions())
	}
	return strings.Join(parts, "\n")
}

func (f *ToolUseFaculty) ActionsConstraints() string {
	parts := make([]string, 0, len(f.tools))
	for _, t := range f.tools {
		parts = append(parts, t.ActionsConstraints())
	}
	return strings.Join(parts, "\n")
}

func (f *ToolUseFaculty) ProcessAction(ctx context.Context, a *Agent, action protocol.Action) bool {
	for _, t := range f.tools {
		handled, err := t.ProcessAction(ctx, a.Name(), action)
		if err != nil {
			logger.GetLogger().Error("tool failed to process action",
				"tool", t.Name(), "agent", a.Name(), "action", action.Type, "error", err)
			return true
		}
		if handled {
			return true
		}
	}
	return false
}
