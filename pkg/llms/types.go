// Package llms provides the model client used by agents: pluggable
// chat-completion providers, a retry policy for transient API
// failures, and a persistent response cache keyed by request content.
package llms

import (
	"context"
	"time"

	"github.com/troupe-ai/troupe/pkg/protocol"
)

// Params are the sampling and transport parameters for a single model
// call. Zero values mean "provider default" except where noted.
type Params struct {
	Model            string          `json:"model"`
	Temperature      float64         `json:"temperature"`
	TopP             float64         `json:"top_p"`
	MaxTokens        int             `json:"max_tokens"`
	FrequencyPenalty float64         `json:"frequency_penalty"`
	PresencePenalty  float64         `json:"presence_penalty"`
	Stop             []string        `json:"stop,omitempty"`
	N                int             `json:"n"`
	ResponseFormat   *ResponseFormat `json:"response_format,omitempty"`
	Timeout          time.Duration   `json:"timeout"`
}

// ResponseFormat asks the provider to constrain output, either to any
// JSON object ("json_object") or to a specific schema ("json_schema").
type ResponseFormat struct {
	Type       string      `json:"type"`
	JSONSchema *JSONSchema `json:"json_schema,omitempty"`
}

// JSONSchema is a named schema for constrained model output.
type JSONSchema struct {
	Name   string         `json:"name"`
	Schema map[string]any `json:"schema"`
	Strict bool           `json:"strict,omitempty"`
}

// Provider is a chat-completion and embedding backend.
type Provider interface {
	Name() string
	SendMessage(ctx context.Context, messages []protocol.Message, params Params) (*protocol.Message, error)
	Embed(ctx context.Context, text string, model string) ([]float32, error)
}

// Embedder is the narrow embedding interface consumed by semantic
// memory.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
