package llms

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/invopop/jsonschema"

	"github.com/troupe-ai/troupe/pkg/logger"
	"github.com/troupe-ai/troupe/pkg/protocol"
)

// SchemaFor derives a strict response-format schema from a Go struct,
// for providers that support constrained JSON output.
func SchemaFor(name string, v any) (*ResponseFormat, error) {
	reflector := jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	schema := reflector.Reflect(v)

	data, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("marshaling schema for %s: %w", name, err)
	}
	var asMap map[string]any
	if err := json.Unmarshal(data, &asMap); err != nil {
		return nil, fmt.Errorf("round-tripping schema for %s: %w", name, err)
	}

	return &ResponseFormat{
		Type: "json_schema",
		JSONSchema: &JSONSchema{
			Name:   name,
			Schema: asMap,
			Strict: true,
		},
	}, nil
}

var (
	actionFormatOnce sync.Once
	actionFormat     *ResponseFormat
)

// ActionDocumentFormat returns the response format constraining chat
// replies to the action document agents must produce. The schema is
// derived from protocol.ModelOutput once and shared.
func ActionDocumentFormat() *ResponseFormat {
	actionFormatOnce.Do(func() {
		format, err := SchemaFor("model_output", protocol.ModelOutput{})
		if err != nil {
			logger.GetLogger().Error("building the action document schema failed", "error", err)
			return
		}
		actionFormat = format
	})
	return actionFormat
}
