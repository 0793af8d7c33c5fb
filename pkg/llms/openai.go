package llms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/troupe-ai/troupe/pkg/protocol"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAIProvider speaks the OpenAI chat-completions and embeddings
// API. It also covers Azure OpenAI deployments, which use the same
// wire format with a different endpoint and auth header.
type OpenAIProvider struct {
	name       string
	apiKey     string
	baseURL    string
	azureAuth  bool
	httpClient *http.Client
}

type openAIRequest struct {
	Model            string          `json:"model"`
	Messages         []openAIMessage `json:"messages"`
	MaxTokens        *int            `json:"max_tokens,omitempty"`
	Temperature      float64         `json:"temperature"`
	TopP             *float64        `json:"top_p,omitempty"`
	FrequencyPenalty *float64        `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64        `json:"presence_penalty,omitempty"`
	Stop             []string        `json:"stop,omitempty"`
	N                *int            `json:"n,omitempty"`
	ResponseFormat   *openAIRespFmt  `json:"response_format,omitempty"`
}

type openAIRespFmt struct {
	Type       string            `json:"type"`
	JSONSchema *openAIJSONSchema `json:"json_schema,omitempty"`
}

type openAIJSONSchema struct {
	Name   string         `json:"name"`
	Schema map[string]any `json:"schema"`
	Strict bool           `json:"strict,omitempty"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChoice struct {
	Message      openAIMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

type openAIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type openAIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

type openAIResponse struct {
	Choices []openAIChoice `json:"choices"`
	Usage   openAIUsage    `json:"usage"`
	Error   *openAIError   `json:"error,omitempty"`
}

type openAIEmbeddingRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type openAIEmbeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Error *openAIError `json:"error,omitempty"`
}

// NewOpenAIProvider creates a provider against the public OpenAI API.
// An empty baseURL uses the default endpoint.
func NewOpenAIProvider(apiKey, baseURL string, timeout time.Duration) *OpenAIProvider {
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	return &OpenAIProvider{
		name:       "openai",
		apiKey:     apiKey,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// NewAzureProvider creates a provider against an Azure OpenAI
// endpoint, which authenticates with an "api-key" header.
func NewAzureProvider(apiKey, endpoint string, timeout time.Duration) *OpenAIProvider {
	return &OpenAIProvider{
		name:       "azure",
		apiKey:     apiKey,
		baseURL:    endpoint,
		azureAuth:  true,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (p *OpenAIProvider) Name() string { return p.name }

func (p *OpenAIProvider) SendMessage(ctx context.Context, messages []protocol.Message, params Params) (*protocol.Message, error) {
	request := p.buildRequest(messages, params)

	var response openAIResponse
	if err := p.post(ctx, "/chat/completions", request, &response); err != nil {
		return nil, err
	}
	if response.Error != nil {
		return nil, &APIError{StatusCode: http.StatusBadRequest, Type: response.Error.Type, Message: response.Error.Message}
	}
	if len(response.Choices) == 0 {
		return nil, fmt.Errorf("no response choices returned")
	}

	choice := response.Choices[0]
	return &protocol.Message{Role: choice.Message.Role, Content: choice.Message.Content}, nil
}

func (p *OpenAIProvider) Embed(ctx context.Context, text string, model string) ([]float32, error) {
	request := openAIEmbeddingRequest{Model: model, Input: text}

	var response openAIEmbeddingResponse
	if err := p.post(ctx, "/embeddings", request, &response); err != nil {
		return nil, err
	}
	if response.Error != nil {
		return nil, &APIError{StatusCode: http.StatusBadRequest, Type: response.Error.Type, Message: response.Error.Message}
	}
	if len(response.Data) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}
	return response.Data[0].Embedding, nil
}

func (p *OpenAIProvider) buildRequest(messages []protocol.Message, params Params) openAIRequest {
	request := openAIRequest{
		Model:       params.Model,
		Messages:    make([]openAIMessage, len(messages)),
		Temperature: params.Temperature,
	}
	for i, m := range messages {
		request.Messages[i] = openAIMessage{Role: m.Role, Content: m.Content}
	}
	if params.MaxTokens > 0 {
		request.MaxTokens = &params.MaxTokens
	}
	if params.TopP > 0 {
		request.TopP = &params.TopP
	}
	if params.FrequencyPenalty != 0 {
		request.FrequencyPenalty = &params.FrequencyPenalty
	}
	if params.PresencePenalty != 0 {
		request.PresencePenalty = &params.PresencePenalty
	}
	if len(params.Stop) > 0 {
		request.Stop = params.Stop
	}
	if params.N > 1 {
		request.N = &params.N
	}
	if rf := params.ResponseFormat; rf != nil {
		request.ResponseFormat = &openAIRespFmt{Type: rf.Type}
		if rf.JSONSchema != nil {
			request.ResponseFormat.JSONSchema = &openAIJSONSchema{
				Name:   rf.JSONSchema.Name,
				Schema: rf.JSONSchema.Schema,
				Strict: rf.JSONSchema.Strict,
			}
		}
	}
	return request
}

func (p *OpenAIProvider) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.azureAuth {
		req.Header.Set("api-key", p.apiKey)
	} else {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return parseErrorResponse(resp.StatusCode, respBody)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("unmarshaling response: %w", err)
	}
	return nil
}

func parseErrorResponse(statusCode int, body []byte) error {
	var wrapper struct {
		Error *openAIError `json:"error"`
	}
	if err := json.Unmarshal(body, &wrapper); err == nil && wrapper.Error != nil {
		return &APIError{StatusCode: statusCode, Type: wrapper.Error.Type, Message: wrapper.Error.Message}
	}
	return &APIError{StatusCode: statusCode, Message: string(body)}
}
