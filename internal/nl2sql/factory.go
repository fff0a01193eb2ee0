package nl2sql

import (
	"fmt"

	"github.com/querypilot/querypilot/internal/config"
)

// FromConfig builds the synthesizer selected by cfg.Provider.
func FromConfig(cfg config.AIConfig) (Synthesizer, error) {
	switch cfg.Provider {
	case config.AIProviderOffline:
		return OfflineSynthesizer{}, nil
	case config.AIProviderOpenAI:
		return NewOpenAISynthesizer(OpenAIConfig{
			BaseURL:     cfg.BaseURL,
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
			Timeout:     cfg.Timeout,
		})
	case config.AIProviderAzure:
		return NewOpenAISynthesizer(OpenAIConfig{
			BaseURL:     cfg.BaseURL,
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
			Timeout:     cfg.Timeout,
			Azure:       true,
			Deployment:  cfg.Deployment,
			APIVersion:  cfg.APIVersion,
		})
	case config.AIProviderAnthropic:
		return NewAnthropicSynthesizer(AnthropicConfig{
			BaseURL:     cfg.BaseURL,
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
			Timeout:     cfg.Timeout,
		})
	default:
		return nil, fmt.Errorf("unsupported AI provider %q", cfg.Provider)
	}
}
