package model

import (
	"context"

	"github.com/flynn-ai/tripwise/internal/config"
	"github.com/flynn-ai/tripwise/internal/errors"
)

// New builds the model for the configured provider. The provider set is
// closed; the choice is made once at start-up.
func New(ctx context.Context, cfg config.LLMConfig) (Model, error) {
	r, err := cfg.Resolve()
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeModelUnknownProvider, "cannot select model provider", errors.CategoryUser)
	}
	defaults, _ := r.Provider.Defaults()

	switch r.Provider {
	case config.ProviderOpenAI, config.ProviderGroq, config.ProviderOpenRouter, config.ProviderOllama:
		return NewOpenAIClient(&OpenAIConfig{
			Provider:    string(r.Provider),
			APIKey:      r.APIKey,
			BaseURL:     r.BaseURL,
			Model:       r.Model,
			KeyEnv:      defaults.KeyEnv,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
			Timeout:     cfg.Timeout.Duration,
			MaxRetries:  cfg.MaxRetries,
		}), nil
	case config.ProviderAnthropic:
		return NewAnthropicClient(&AnthropicConfig{
			APIKey:      r.APIKey,
			BaseURL:     r.BaseURL,
			Model:       r.Model,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
			Timeout:     cfg.Timeout.Duration,
			MaxRetries:  cfg.MaxRetries,
		}), nil
	case config.ProviderGemini:
		return NewGeminiClient(ctx, &GeminiConfig{
			APIKey:      r.APIKey,
			Model:       r.Model,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
			Timeout:     cfg.Timeout.Duration,
			MaxRetries:  cfg.MaxRetries,
		})
	}

	return nil, errors.User(errors.CodeModelUnknownProvider, "unsupported provider "+string(r.Provider))
}
