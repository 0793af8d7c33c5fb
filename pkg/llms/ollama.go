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

const defaultOllamaBaseURL = "http://localhost:11434"

// OllamaProvider speaks the Ollama chat and embeddings API for
// self-hosted models. No API key is needed.
type OllamaProvider struct {
	baseURL    string
	httpClient *http.Client
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []openAIMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Format   json.RawMessage `json:"format,omitempty"`
	Options  ollamaOptions   `json:"options"`
}

type ollamaOptions struct {
	Temperature float64  `json:"temperature"`
	TopP        float64  `json:"top_p,omitempty"`
	NumPredict  int      `json:"num_predict,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

type ollamaChatResponse struct {
	Message openAIMessage `json:"message"`
	Done    bool          `json:"done"`
	Error   string        `json:"error,omitempty"`
}

type ollamaEmbeddingRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbeddingResponse struct {
	Embedding []float32 `json:"embedding"`
	Error     string    `json:"error,omitempty"`
}

func NewOllamaProvider(baseURL string, timeout time.Duration) *OllamaProvider {
	if baseURL == "" {
		baseURL = defaultOllamaBaseURL
	}
	return &OllamaProvider{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (p *OllamaProvider) Name() string { return "ollama" }

func (p *OllamaProvider) SendMessage(ctx context.Context, messages []protocol.Message, params Params) (*protocol.Message, error) {
	request := ollamaChatRequest{
		Model:    params.Model,
		Messages: make([]openAIMessage, len(messages)),
		Stream:   false,
		Options: ollamaOptions{
			Temperature: params.Temperature,
			TopP:        params.TopP,
			NumPredict:  params.MaxTokens,
			Stop:        params.Stop,
		},
	}
	for i, m := range messages {
		request.Messages[i] = openAIMessage{Role: m.Role, Content: m.Content}
	}
	// Ollama only knows plain JSON mode, not named schemas.
	if params.ResponseFormat != nil {
		request.Format = json.RawMessage(`"json"`)
	}

	var response ollamaChatResponse
	if err := p.post(ctx, "/api/chat", request, &response); err != nil {
		return nil, err
	}
	if response.Error != "" {
		return nil, &APIError{StatusCode: http.StatusBadRequest, Message: response.Error}
	}
	return &protocol.Message{Role: response.Message.Role, Content: response.Message.Content}, nil
}

func (p *OllamaProvider) Embed(ctx context.Context, text string, model string) ([]float32, error) {
	request := ollamaEmbeddingRequest{Model: model, Prompt: text}

	var response ollamaEmbeddingResponse
	if err := p.post(ctx, "/api/embeddings", request, &response); err != nil {
		return nil, err
	}
	if response.Error != "" {
		return nil, &APIError{StatusCode: http.StatusBadRequest, Message: response.Error}
	}
	if len(response.Embedding) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}
	return response.Embedding, nil
}

func (p *OllamaProvider) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

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
		return &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}
	return json.Unmarshal(respBody, out)
}
