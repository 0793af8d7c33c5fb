package llms

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/troupe-ai/troupe/pkg/config"
	"github.com/troupe-ai/troupe/pkg/logger"
	"github.com/troupe-ai/troupe/pkg/protocol"
	"github.com/troupe-ai/troupe/pkg/utils"
)

// Response content longer than this is dropped as garbage.
const maxResponseLength = 1_000_000

// Client wraps a provider with the response cache, the retry policy
// and output sanitation. Agents talk to the model only through it.
type Client struct {
	provider Provider
	cfg      config.LLMConfig
	policy   RetryPolicy
	cache    *ResponseCache
}

// NewClient builds a client for the given provider. The response cache
// is loaded only when CACHE_API_CALLS is enabled.
func NewClient(cfg config.LLMConfig, provider Provider) (*Client, error) {
	c := &Client{
		provider: provider,
		cfg:      cfg,
		policy: RetryPolicy{
			MaxAttempts:   cfg.MaxAttempts,
			BaseWait:      cfg.WaitingTime,
			BackoffFactor: cfg.ExponentialBackoffFactor,
			Classify:      ClassifyError,
		},
	}

	if cfg.CacheAPICalls {
		cache, err := NewResponseCache(cfg.CacheFileName)
		if err != nil {
			return nil, err
		}
		c.cache = cache
	}
	return c, nil
}

// NewClientFromConfig builds a client with the provider selected by
// the configuration's API_TYPE.
func NewClientFromConfig(cfg config.LLMConfig) (*Client, error) {
	provider, err := CreateProviderFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	return NewClient(cfg, provider)
}

// DefaultParams returns the call parameters derived from the client's
// configuration.
func (c *Client) DefaultParams() Params {
	return Params{
		Model:            c.cfg.Model,
		Temperature:      c.cfg.Temperature,
		TopP:             c.cfg.TopP,
		MaxTokens:        c.cfg.MaxTokens,
		FrequencyPenalty: c.cfg.FreqPenalty,
		PresencePenalty:  c.cfg.PresencePenalty,
		N:                c.cfg.N,
		Timeout:          c.cfg.Timeout,
	}
}

// SendMessage sends a chat request with the client's default
// parameters, constraining the reply to the action document schema.
func (c *Client) SendMessage(ctx context.Context, messages []protocol.Message) (*protocol.Message, error) {
	params := c.DefaultParams()
	params.ResponseFormat = ActionDocumentFormat()
	return c.SendMessageWithParams(ctx, messages, params)
}

// SendMessageWithParams sends a chat request, consulting the response
// cache first and retrying transient failures with exponential
// backoff. On an invalid request or exhausted retries there is no
// message to return.
func (c *Client) SendMessageWithParams(ctx context.Context, messages []protocol.Message, params Params) (*protocol.Message, error) {
	log := logger.GetLogger()

	var key string
	if c.cache != nil {
		var err error
		key, err = CacheKey(messages, params)
		if err != nil {
			return nil, err
		}
		if msg, ok := c.cache.Get(key); ok {
			log.Debug("model call served from response cache", "model", params.Model)
			return msg, nil
		}
	}

	if tokens := CountTokens(params.Model, messages); tokens >= 0 {
		log.Debug("sending model request", "model", params.Model, "messages", len(messages), "prompt_tokens", tokens)
	}

	wait := c.policy.BaseWait
	var lastErr error

	// The base wait also applies ahead of the first call, as a crude
	// rate limit.
	if wait > 0 {
		if err := c.policy.Sleep(ctx, wait); err != nil {
			return nil, err
		}
	}

	for attempt := 1; attempt <= c.policy.MaxAttempts; attempt++ {
		msg, err := c.provider.SendMessage(ctx, messages, params)
		if err == nil {
			msg.Content = utils.SanitizeRawString(msg.Content, maxResponseLength)
			if c.cache != nil {
				if err := c.cache.Put(key, *msg); err != nil {
					return nil, fmt.Errorf("persisting response cache: %w", err)
				}
			}
			return msg, nil
		}

		lastErr = err
		switch c.policy.Classify(err) {
		case ClassInvalid:
			log.Error("invalid model request, not retrying", "error", err)
			return nil, err
		case ClassRateLimit:
			log.Warn("model request rate-limited, backing off", "attempt", attempt, "wait", wait)
		default:
			log.Warn("model request failed, retrying", "attempt", attempt, "wait", wait, "error", err)
		}

		if attempt == c.policy.MaxAttempts {
			break
		}
		if wait <= 0 {
			wait = 2 * time.Second
		}
		if err := c.policy.Sleep(ctx, wait); err != nil {
			return nil, err
		}
		wait = time.Duration(float64(wait) * c.policy.BackoffFactor)
	}

	return nil, fmt.Errorf("%w after %d attempts: %w", ErrExhausted, c.policy.MaxAttempts, lastErr)
}

// Embed returns the embedding of text using the configured embedding
// model, with the same retry policy as chat calls.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	wait := c.policy.BaseWait
	var lastErr error

	if wait > 0 {
		if err := c.policy.Sleep(ctx, wait); err != nil {
			return nil, err
		}
	}

	for attempt := 1; attempt <= c.policy.MaxAttempts; attempt++ {
		vec, err := c.provider.Embed(ctx, text, c.cfg.EmbeddingModel)
		if err == nil {
			return vec, nil
		}
		lastErr = err
		if c.policy.Classify(err) == ClassInvalid {
			return nil, err
		}
		if attempt == c.policy.MaxAttempts {
			break
		}
		if wait <= 0 {
			wait = 2 * time.Second
		}
		if err := c.policy.Sleep(ctx, wait); err != nil {
			return nil, err
		}
		wait = time.Duration(float64(wait) * c.policy.BackoffFactor)
	}
	return nil, fmt.Errorf("%w after %d attempts: %w", ErrExhausted, c.policy.MaxAttempts, lastErr)
}

// IsExhausted reports whether err is an exhausted-retries failure.
func IsExhausted(err error) bool {
	return errors.Is(err, ErrExhausted)
}
