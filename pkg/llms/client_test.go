package llms

import (
	"context"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/troupe-ai/troupe/pkg/config"
	"github.com/troupe-ai/troupe/pkg/protocol"
)

// scriptedProvider returns queued results in order, recording calls.
type scriptedProvider struct {
	results    []scriptedResult
	calls      int
	lastParams Params
}

type scriptedResult struct {
	msg *protocol.Message
	err error
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) SendMessage(ctx context.Context, messages []protocol.Message, params Params) (*protocol.Message, error) {
	p.lastParams = params
	if p.calls >= len(p.results) {
		return nil, &APIError{StatusCode: 500, Message: "script exhausted"}
	}
	r := p.results[p.calls]
	p.calls++
	return r.msg, r.err
}

func (p *scriptedProvider) Embed(ctx context.Context, text string, model string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

func fastConfig(t *testing.T) config.LLMConfig {
	t.Helper()
	cfg := config.LLMConfig{}
	cfg.SetDefaults()
	cfg.MaxAttempts = 3
	cfg.WaitingTime = time.Millisecond
	cfg.ExponentialBackoffFactor = 2
	cfg.CacheFileName = filepath.Join(t.TempDir(), "cache.gob")
	return cfg
}

func TestClientRetriesTransientErrors(t *testing.T) {
	provider := &scriptedProvider{results: []scriptedResult{
		{err: &APIError{StatusCode: 500, Message: "boom"}},
		{err: &APIError{StatusCode: 429, Message: "slow down"}},
		{msg: &protocol.Message{Role: "assistant", Content: "ok"}},
	}}

	client, err := NewClient(fastConfig(t), provider)
	require.NoError(t, err)

	msg, err := client.SendMessage(context.Background(), []protocol.Message{{Role: "user", Content: "hi"}})
	require.NoError(t, err)
	assert.Equal(t, "ok", msg.Content)
	assert.Equal(t, 3, provider.calls)
}

func TestClientInvalidRequestNotRetried(t *testing.T) {
	provider := &scriptedProvider{results: []scriptedResult{
		{err: &APIError{StatusCode: http.StatusBadRequest, Type: "invalid_request_error", Message: "bad"}},
		{msg: &protocol.Message{Role: "assistant", Content: "never reached"}},
	}}

	client, err := NewClient(fastConfig(t), provider)
	require.NoError(t, err)

	msg, err := client.SendMessage(context.Background(), []protocol.Message{{Role: "user", Content: "hi"}})
	assert.Nil(t, msg)
	assert.Error(t, err)
	assert.Equal(t, 1, provider.calls)
}

func TestClientExhaustsRetries(t *testing.T) {
	provider := &scriptedProvider{results: []scriptedResult{
		{err: &APIError{StatusCode: 500, Message: "boom"}},
		{err: &APIError{StatusCode: 500, Message: "boom"}},
		{err: &APIError{StatusCode: 500, Message: "boom"}},
	}}

	client, err := NewClient(fastConfig(t), provider)
	require.NoError(t, err)

	msg, err := client.SendMessage(context.Background(), []protocol.Message{{Role: "user", Content: "hi"}})
	assert.Nil(t, msg)
	require.Error(t, err)
	assert.True(t, IsExhausted(err))
	assert.Equal(t, 3, provider.calls)
}

func TestClientSanitizesResponse(t *testing.T) {
	provider := &scriptedProvider{results: []scriptedResult{
		{msg: &protocol.Message{Role: "assistant", Content: "cle\x00an\x07 text"}},
	}}

	client, err := NewClient(fastConfig(t), provider)
	require.NoError(t, err)

	msg, err := client.SendMessage(context.Background(), []protocol.Message{{Role: "user", Content: "hi"}})
	require.NoError(t, err)
	assert.Equal(t, "clean text", msg.Content)
}

func TestClientCachePersistsAcrossClients(t *testing.T) {
	cfg := fastConfig(t)
	cfg.CacheAPICalls = true

	provider := &scriptedProvider{results: []scriptedResult{
		{msg: &protocol.Message{Role: "assistant", Content: "cached answer"}},
	}}
	client, err := NewClient(cfg, provider)
	require.NoError(t, err)

	messages := []protocol.Message{{Role: "user", Content: "what is up"}}
	msg, err := client.SendMessage(context.Background(), messages)
	require.NoError(t, err)
	assert.Equal(t, "cached answer", msg.Content)

	// A fresh client with an empty script must serve from the cache file.
	client2, err := NewClient(cfg, &scriptedProvider{})
	require.NoError(t, err)

	msg2, err := client2.SendMessage(context.Background(), messages)
	require.NoError(t, err)
	assert.Equal(t, "cached answer", msg2.Content)
}

func TestClientCacheMissOnDifferentParams(t *testing.T) {
	cfg := fastConfig(t)
	cfg.CacheAPICalls = true

	provider := &scriptedProvider{results: []scriptedResult{
		{msg: &protocol.Message{Role: "assistant", Content: "first"}},
		{msg: &protocol.Message{Role: "assistant", Content: "second"}},
	}}
	client, err := NewClient(cfg, provider)
	require.NoError(t, err)

	messages := []protocol.Message{{Role: "user", Content: "hi"}}
	_, err = client.SendMessage(context.Background(), messages)
	require.NoError(t, err)

	params := client.DefaultParams()
	params.Temperature = 0.9
	msg, err := client.SendMessageWithParams(context.Background(), messages, params)
	require.NoError(t, err)
	assert.Equal(t, "second", msg.Content)
	assert.Equal(t, 2, provider.calls)
}

func TestSendMessageConstrainsReplyFormat(t *testing.T) {
	provider := &scriptedProvider{results: []scriptedResult{
		{msg: &protocol.Message{Role: "assistant", Content: "ok"}},
	}}

	client, err := NewClient(fastConfig(t), provider)
	require.NoError(t, err)

	_, err = client.SendMessage(context.Background(), []protocol.Message{{Role: "user", Content: "hi"}})
	require.NoError(t, err)

	format := provider.lastParams.ResponseFormat
	require.NotNil(t, format)
	assert.Equal(t, "json_schema", format.Type)
	require.NotNil(t, format.JSONSchema)
	assert.Equal(t, "model_output", format.JSONSchema.Name)

	properties, ok := format.JSONSchema.Schema["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, properties, "action")
	assert.Contains(t, properties, "cognitive_state")

	// The schema is built once and shared.
	assert.Same(t, format, ActionDocumentFormat())
}

func TestClientWaitsBeforeFirstCall(t *testing.T) {
	cfg := fastConfig(t)
	cfg.WaitingTime = 30 * time.Millisecond

	provider := &scriptedProvider{results: []scriptedResult{
		{msg: &protocol.Message{Role: "assistant", Content: "ok"}},
	}}
	client, err := NewClient(cfg, provider)
	require.NoError(t, err)

	start := time.Now()
	_, err = client.SendMessage(context.Background(), []protocol.Message{{Role: "user", Content: "hi"}})
	require.NoError(t, err)

	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
	assert.Equal(t, 1, provider.calls)
}

func TestRetryPolicyNextWait(t *testing.T) {
	policy := DefaultRetryPolicy()

	assert.Equal(t, 10*time.Second, policy.NextWait(2*time.Second))
	// Non-positive waits are bumped to two seconds first.
	assert.Equal(t, 10*time.Second, policy.NextWait(0))
	assert.Equal(t, 10*time.Second, policy.NextWait(-time.Second))
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{name: "bad request", err: &APIError{StatusCode: 400}, want: ClassInvalid},
		{name: "unauthorized", err: &APIError{StatusCode: 401}, want: ClassInvalid},
		{name: "rate limited", err: &APIError{StatusCode: 429}, want: ClassRateLimit},
		{name: "server error", err: &APIError{StatusCode: 503}, want: ClassTransient},
		{name: "network error", err: assert.AnError, want: ClassTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyError(tt.err))
		})
	}
}

func TestProviderRegistry(t *testing.T) {
	reg := NewProviderRegistry()
	openai := NewOpenAIProvider("key", "", time.Minute)

	require.NoError(t, reg.RegisterProvider("openai", openai, false))
	assert.Error(t, reg.RegisterProvider("openai", openai, false))
	assert.NoError(t, reg.RegisterProvider("openai", NewOllamaProvider("", time.Minute), true))

	p, ok := reg.Get("openai")
	require.True(t, ok)
	assert.Equal(t, "ollama", p.Name())
}
