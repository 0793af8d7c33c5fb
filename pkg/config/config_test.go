package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.ini")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadDefaultsWhenMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.ini"))
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.LLM.APIType)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.Equal(t, 5, cfg.LLM.MaxAttempts)
	assert.Equal(t, time.Second, cfg.LLM.WaitingTime)
	assert.Equal(t, 5.0, cfg.LLM.ExponentialBackoffFactor)
	assert.Equal(t, 1024, cfg.LLM.MaxContentDisplayLength)
	assert.False(t, cfg.LLM.CacheAPICalls)
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
[LLM]
API_TYPE = ollama
MODEL = llama3.2
MAX_TOKENS = 2048
TEMPERATURE = 0.7
TIMEOUT = 30
MAX_ATTEMPTS = 3
CACHE_API_CALLS = true
CACHE_FILE_NAME = cache.gob

[Logging]
LOGLEVEL = debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "ollama", cfg.LLM.APIType)
	assert.Equal(t, "llama3.2", cfg.LLM.Model)
	assert.Equal(t, 2048, cfg.LLM.MaxTokens)
	assert.Equal(t, 0.7, cfg.LLM.Temperature)
	assert.Equal(t, 30*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, 3, cfg.LLM.MaxAttempts)
	assert.True(t, cfg.LLM.CacheAPICalls)
	assert.Equal(t, "cache.gob", cfg.LLM.CacheFileName)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadLegacySectionName(t *testing.T) {
	path := writeConfig(t, `
[OpenAI]
MODEL = gpt-4o
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", cfg.LLM.Model)
}

func TestLoadEnvExpansion(t *testing.T) {
	t.Setenv("TEST_MODEL_NAME", "gpt-4o")

	path := writeConfig(t, `
[LLM]
MODEL = ${TEST_MODEL_NAME}
BASE_URL = ${TEST_UNSET_URL:-http://localhost:11434}
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", cfg.LLM.Model)
	assert.Equal(t, "http://localhost:11434", cfg.LLM.BaseURL)
}

func TestLoadRejectsUnknownAPIType(t *testing.T) {
	path := writeConfig(t, `
[LLM]
API_TYPE = mainframe
`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*LLMConfig)
		wantErr bool
	}{
		{name: "defaults are valid", mutate: func(c *LLMConfig) {}},
		{name: "empty model", mutate: func(c *LLMConfig) { c.Model = "" }, wantErr: true},
		{name: "zero attempts", mutate: func(c *LLMConfig) { c.MaxAttempts = 0 }, wantErr: true},
		{name: "backoff factor of one", mutate: func(c *LLMConfig) { c.ExponentialBackoffFactor = 1 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := LLMConfig{}
			cfg.SetDefaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
