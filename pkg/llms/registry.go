package llms

import (
	"fmt"

	"github.com/troupe-ai/troupe/pkg/config"
	"github.com/troupe-ai/troupe/pkg/registry"
)

// ProviderRegistry holds named provider instances. The configured
// API_TYPE selects which registered provider a client uses.
type ProviderRegistry struct {
	*registry.BaseRegistry[Provider]
}

func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{BaseRegistry: registry.NewBaseRegistry[Provider]()}
}

// RegisterProvider adds a provider under its API type name. With force
// set, an existing registration is replaced.
func (r *ProviderRegistry) RegisterProvider(apiType string, provider Provider, force bool) error {
	if force {
		return r.ForceRegister(apiType, provider)
	}
	return r.Register(apiType, provider)
}

// CreateProviderFromConfig builds the provider selected by the
// configuration's API_TYPE.
func CreateProviderFromConfig(cfg config.LLMConfig) (Provider, error) {
	switch cfg.APIType {
	case "openai":
		return NewOpenAIProvider(config.GetProviderAPIKey("openai"), cfg.BaseURL, cfg.Timeout), nil
	case "azure":
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("azure API_TYPE requires BASE_URL")
		}
		return NewAzureProvider(config.GetProviderAPIKey("azure"), cfg.BaseURL, cfg.Timeout), nil
	case "ollama":
		return NewOllamaProvider(cfg.BaseURL, cfg.Timeout), nil
	default:
		return nil, fmt.Errorf("unknown API_TYPE %q", cfg.APIType)
	}
}

// DefaultRegistry returns a registry pre-populated with the built-in
// providers for the given configuration.
func DefaultRegistry(cfg config.LLMConfig) (*ProviderRegistry, error) {
	reg := NewProviderRegistry()

	openai := NewOpenAIProvider(config.GetProviderAPIKey("openai"), "", cfg.Timeout)
	if err := reg.RegisterProvider("openai", openai, false); err != nil {
		return nil, err
	}
	ollama := NewOllamaProvider("", cfg.Timeout)
	if err := reg.RegisterProvider("ollama", ollama, false); err != nil {
		return nil, err
	}
	return reg, nil
}
