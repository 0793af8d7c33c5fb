// Package config loads engine configuration from an ini-style file,
// with environment variable expansion and sane defaults.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/ini.v1"
)

// LLMConfig controls the model client: provider selection, sampling
// parameters, retry behavior and the API response cache.
type LLMConfig struct {
	APIType        string `json:"api_type"`
	Model          string `json:"model"`
	EmbeddingModel string `json:"embedding_model"`
	BaseURL        string `json:"base_url,omitempty"`

	MaxTokens       int     `json:"max_tokens"`
	Temperature     float64 `json:"temperature"`
	TopP            float64 `json:"top_p"`
	FreqPenalty     float64 `json:"freq_penalty"`
	PresencePenalty float64 `json:"presence_penalty"`
	N               int     `json:"n"`

	Timeout                  time.Duration `json:"timeout"`
	MaxAttempts              int           `json:"max_attempts"`
	WaitingTime              time.Duration `json:"waiting_time"`
	ExponentialBackoffFactor float64       `json:"exponential_backoff_factor"`

	CacheAPICalls bool   `json:"cache_api_calls"`
	CacheFileName string `json:"cache_file_name"`

	MaxContentDisplayLength int `json:"max_content_display_length"`
}

// LoggingConfig controls the slog setup.
type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// Config is the full engine configuration.
type Config struct {
	LLM     LLMConfig     `json:"llm"`
	Logging LoggingConfig `json:"logging"`
}

// SetDefaults fills unset fields with default values.
func (c *LLMConfig) SetDefaults() {
	if c.APIType == "" {
		c.APIType = "openai"
	}
	if c.Model == "" {
		c.Model = "gpt-4o-mini"
	}
	if c.EmbeddingModel == "" {
		c.EmbeddingModel = "text-embedding-3-small"
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 4000
	}
	if c.Temperature == 0 {
		c.Temperature = 0.3
	}
	if c.N == 0 {
		c.N = 1
	}
	if c.Timeout == 0 {
		c.Timeout = 60 * time.Second
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 5
	}
	if c.WaitingTime == 0 {
		c.WaitingTime = time.Second
	}
	if c.ExponentialBackoffFactor == 0 {
		c.ExponentialBackoffFactor = 5
	}
	if c.CacheFileName == "" {
		c.CacheFileName = "llm_api_cache.gob"
	}
	if c.MaxContentDisplayLength == 0 {
		c.MaxContentDisplayLength = 1024
	}
}

// Validate checks that the configuration is usable.
func (c *LLMConfig) Validate() error {
	switch c.APIType {
	case "openai", "azure", "ollama":
	default:
		return fmt.Errorf("unknown API_TYPE %q", c.APIType)
	}
	if c.Model == "" {
		return fmt.Errorf("MODEL cannot be empty")
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("MAX_ATTEMPTS must be at least 1")
	}
	if c.ExponentialBackoffFactor <= 1 {
		return fmt.Errorf("EXPONENTIAL_BACKOFF_FACTOR must be greater than 1")
	}
	return nil
}

func (c *LoggingConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "warn"
	}
	if c.Format == "" {
		c.Format = "simple"
	}
}

// Default returns a configuration with all defaults applied and no
// file loaded.
func Default() *Config {
	cfg := &Config{}
	cfg.LLM.SetDefaults()
	cfg.Logging.SetDefaults()
	return cfg
}

// Load reads an ini-style configuration file, expands environment
// variable references in its values, applies defaults and validates.
// A missing file yields the default configuration.
func Load(path string) (*Config, error) {
	if err := LoadEnvFiles(); err != nil {
		return nil, err
	}

	cfg := &Config{}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg.LLM.SetDefaults()
		cfg.Logging.SetDefaults()
		return cfg, nil
	}

	file, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config file %s: %w", path, err)
	}

	llm := file.Section("LLM")
	if !file.HasSection("LLM") && file.HasSection("OpenAI") {
		// Older config files used the provider name as the section.
		llm = file.Section("OpenAI")
	}

	cfg.LLM.APIType = get(llm, "API_TYPE")
	cfg.LLM.Model = get(llm, "MODEL")
	cfg.LLM.EmbeddingModel = get(llm, "EMBEDDING_MODEL")
	cfg.LLM.BaseURL = get(llm, "BASE_URL")
	cfg.LLM.MaxTokens = llm.Key("MAX_TOKENS").MustInt(0)
	cfg.LLM.Temperature = llm.Key("TEMPERATURE").MustFloat64(0)
	cfg.LLM.TopP = llm.Key("TOP_P").MustFloat64(0)
	cfg.LLM.FreqPenalty = llm.Key("FREQ_PENALTY").MustFloat64(0)
	cfg.LLM.PresencePenalty = llm.Key("PRESENCE_PENALTY").MustFloat64(0)
	cfg.LLM.N = llm.Key("N").MustInt(0)
	cfg.LLM.Timeout = time.Duration(llm.Key("TIMEOUT").MustInt(0)) * time.Second
	cfg.LLM.MaxAttempts = llm.Key("MAX_ATTEMPTS").MustInt(0)
	cfg.LLM.WaitingTime = time.Duration(llm.Key("WAITING_TIME").MustFloat64(0) * float64(time.Second))
	cfg.LLM.ExponentialBackoffFactor = llm.Key("EXPONENTIAL_BACKOFF_FACTOR").MustFloat64(0)
	cfg.LLM.CacheAPICalls = llm.Key("CACHE_API_CALLS").MustBool(false)
	cfg.LLM.CacheFileName = get(llm, "CACHE_FILE_NAME")
	cfg.LLM.MaxContentDisplayLength = llm.Key("MAX_CONTENT_DISPLAY_LENGTH").MustInt(0)

	logging := file.Section("Logging")
	cfg.Logging.Level = get(logging, "LOGLEVEL")
	cfg.Logging.Format = get(logging, "LOGFORMAT")

	cfg.LLM.SetDefaults()
	cfg.Logging.SetDefaults()

	if err := cfg.LLM.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func get(section *ini.Section, key string) string {
	return expandEnvVars(section.Key(key).String())
}
