package tools

import (
	"context"
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/troupe-ai/troupe/pkg/logger"
	"github.com/troupe-ai/troupe/pkg/protocol"
)

// DocumentSpec is the argument document of a WRITE_DOCUMENT action.
type DocumentSpec struct {
	Title   string `mapstructure:"title"`
	Content string `mapstructure:"content"`
	Author  string `mapstructure:"author"`
}

// WordProcessor lets agents write documents. Written documents are
// exported as artifacts when an exporter is attached.
type WordProcessor struct {
	baseTool
	exporter *ArtifactExporter
}

// NewWordProcessor creates a word processor. A nil exporter keeps
// documents in memory only (they still reach the agent's log).
func NewWordProcessor(exporter *ArtifactExporter) *WordProcessor {
	return &WordProcessor{
		baseTool: baseTool{
			name:        "wordprocessor",
			description: "A basic word processor tool that allows agents to write documents.",
		},
		exporter: exporter,
	}
}

func (w *WordProcessor) ActionsDefinitions() string {
	return `- WRITE_DOCUMENT: you can create a new document. The content must be JSON of the form {"title": TITLE, "content": CONTENT, "author": AUTHOR}, where CONTENT is Markdown text. The content should be long and detailed, unless there's a good reason for it not to be.`
}

func (w *WordProcessor) ActionsConstraints() string {
	return `- Whenever you WRITE_DOCUMENT, you write all the content at once. Moreover, the content should be long and detailed, unless there's a good reason for it not to be.
- When you WRITE_DOCUMENT, you follow these additional guidelines:
  * For any milestones or timelines mentioned, try mentioning specific owners or partner teams, unless none make sense.
  * The document must be written in Markdown, so it should have sections, bullet points, etc.`
}

// ProcessAction consumes WRITE_DOCUMENT actions. A malformed argument
// document is logged and the action is left unhandled.
func (w *WordProcessor) ProcessAction(ctx context.Context, agentName string, action protocol.Action) (bool, error) {
	if action.Type != protocol.ActionWriteDocument {
		return false, nil
	}
	if err := w.checkUse(agentName); err != nil {
		return false, err
	}

	content, err := actionContentMap(action)
	if err != nil {
		logger.GetLogger().Error("WRITE_DOCUMENT with malformed content",
			"agent", agentName, "error", err)
		return false, nil
	}

	spec, err := decodeDocumentSpec(content)
	if err != nil {
		logger.GetLogger().Error("WRITE_DOCUMENT with invalid fields",
			"agent", agentName, "error", err)
		return false, nil
	}

	if err := w.WriteDocument(spec); err != nil {
		return false, err
	}
	return true, nil
}

// decodeDocumentSpec rejects unknown fields so hallucinated arguments
// surface instead of being silently dropped.
func decodeDocumentSpec(content map[string]any) (DocumentSpec, error) {
	var spec DocumentSpec
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      &spec,
		ErrorUnused: true,
	})
	if err != nil {
		return spec, err
	}
	if err := decoder.Decode(content); err != nil {
		return spec, err
	}
	return spec, nil
}

// WriteDocument persists a document in every available format.
func (w *WordProcessor) WriteDocument(spec DocumentSpec) error {
	if spec.Title == "" {
		spec.Title = "Untitled"
	}
	logger.GetLogger().Info("writing document", "title", spec.Title, "author", spec.Author)

	if w.exporter == nil {
		return nil
	}

	name := spec.Title
	if spec.Author != "" {
		name = fmt.Sprintf("%s.%s", spec.Title, spec.Author)
	}
	data := map[string]any{
		"title":   spec.Title,
		"content": spec.Content,
		"author":  spec.Author,
	}

	if _, err := w.exporter.Export("Document", name, data, "md"); err != nil {
		return err
	}
	if _, err := w.exporter.Export("Document", name, data, "json"); err != nil {
		return err
	}
	if w.exporter.docxTemplatePath != "" {
		if _, err := w.exporter.Export("Document", name, data, "docx"); err != nil {
			return err
		}
	}
	return nil
}
