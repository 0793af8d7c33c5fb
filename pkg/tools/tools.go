// Package tools implements the instruments agents can operate through
// actions, plus the artifact exporter that persists what they produce.
package tools

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/nguyenthenguyen/docx"

	"github.com/troupe-ai/troupe/pkg/logger"
	"github.com/troupe-ai/troupe/pkg/protocol"
)

// baseTool carries the bookkeeping every tool shares: identity,
// optional ownership and the real-world side effect warning.
type baseTool struct {
	name        string
	description string

	// Only this agent may use the tool when set.
	owner string

	realWorldSideEffects bool
}

func (t *baseTool) Name() string { return t.name }

// SetOwner restricts the tool to one agent.
func (t *baseTool) SetOwner(agentName string) { t.owner = agentName }

func (t *baseTool) checkUse(agentName string) error {
	if t.realWorldSideEffects {
		logger.GetLogger().Warn("tool has REAL-WORLD side effects, use with care",
			"tool", t.name, "agent", agentName)
	}
	if t.owner != "" && t.owner != agentName {
		return fmt.Errorf("agent %s does not own tool %s, which is owned by %s",
			agentName, t.name, t.owner)
	}
	return nil
}

// actionContentMap normalizes an action's content into a JSON object.
// Tool actions carry their arguments either as an embedded object or
// as a JSON string.
func actionContentMap(action protocol.Action) (map[string]any, error) {
	switch content := action.Content.(type) {
	case map[string]any:
		return content, nil
	case string:
		var out map[string]any
		if err := json.Unmarshal([]byte(content), &out); err != nil {
			return nil, fmt.Errorf("action content is not valid JSON: %w", err)
		}
		return out, nil
	case nil:
		return nil, fmt.Errorf("action has no content")
	default:
		return nil, fmt.Errorf("action content has unexpected type %T", content)
	}
}

// ArtifactExporter persists agent outputs as files, one folder per
// content type.
type ArtifactExporter struct {
	baseOutputFolder string

	// A .docx file used as the shell for docx exports. Word export is
	// unavailable without one.
	docxTemplatePath string
}

// NewArtifactExporter creates an exporter rooted at the given folder.
func NewArtifactExporter(baseOutputFolder string) *ArtifactExporter {
	return &ArtifactExporter{baseOutputFolder: baseOutputFolder}
}

// WithDocxTemplate enables Word export through a template document
// containing a {{CONTENT}} placeholder.
func (e *ArtifactExporter) WithDocxTemplate(path string) *ArtifactExporter {
	e.docxTemplatePath = path
	return e
}

// Export writes one artifact and returns the path it was written to.
// Supported target formats: md, txt, json and docx.
func (e *ArtifactExporter) Export(contentType, artifactName string, data map[string]any, targetFormat string) (string, error) {
	dir := filepath.Join(e.baseOutputFolder, contentType)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating artifact folder: %w", err)
	}
	path := filepath.Join(dir, sanitizeArtifactName(artifactName)+"."+targetFormat)

	switch targetFormat {
	case "json":
		payload, err := json.MarshalIndent(data, "", "  ")
		if err != nil {
			return "", err
		}
		return path, os.WriteFile(path, payload, 0o644)

	case "md", "txt":
		content, _ := data["content"].(string)
		return path, os.WriteFile(path, []byte(content), 0o644)

	case "docx":
		if e.docxTemplatePath == "" {
			return "", fmt.Errorf("docx export requires a template document")
		}
		content, _ := data["content"].(string)
		return path, e.exportDocx(path, content)

	default:
		return "", fmt.Errorf("unsupported target format %q", targetFormat)
	}
}

func (e *ArtifactExporter) exportDocx(path, content string) error {
	reader, err := docx.ReadDocxFile(e.docxTemplatePath)
	if err != nil {
		return fmt.Errorf("opening docx template: %w", err)
	}
	defer reader.Close()

	doc := reader.Editable()
	if err := doc.Replace("{{CONTENT}}", xmlEscape(content), -1); err != nil {
		return fmt.Errorf("filling docx template: %w", err)
	}
	return doc.WriteToFile(path)
}

func xmlEscape(s string) string {
	replacer := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		"\n", "</w:t><w:br/><w:t>",
	)
	return replacer.Replace(s)
}

// sanitizeArtifactName keeps artifact names filesystem-safe without
// losing the dotted "title.author" convention.
func sanitizeArtifactName(name string) string {
	replacer := strings.NewReplacer(
		"/", "-",
		"\\", "-",
		":", "-",
		"*", "-",
		"?", "-",
		"\"", "-",
		"<", "-",
		">", "-",
		"|", "-",
		"\x00", "",
	)
	return strings.TrimSpace(replacer.Replace(name))
}
