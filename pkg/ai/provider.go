package ai

import (
	"fmt"
	"strings"
)

// ProviderConfig holds credentials for the supported generation providers.
// Keys are server-side only and never reach clients.
type ProviderConfig struct {
	OpenAIBaseURL string
	OpenAIAPIKey  string
	OpenAIModel   string
	GeminiAPIKey  string
	GeminiModel   string
}

// NewTextGenerator picks the provider by which API key is configured:
// an OpenAI-compatible endpoint when one is set, Gemini otherwise.
// Configuring neither is a startup error.
func NewTextGenerator(cfg ProviderConfig) (TextGenerator, error) {
	if strings.TrimSpace(cfg.OpenAIBaseURL) != "" {
		if strings.TrimSpace(cfg.OpenAIModel) == "" {
			return nil, fmt.Errorf("openai-compat model required")
		}
		return NewOpenAICompatGenerator(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.OpenAIModel), nil
	}
	if strings.TrimSpace(cfg.GeminiAPIKey) != "" {
		if strings.TrimSpace(cfg.GeminiModel) == "" {
			return nil, fmt.Errorf("gemini model required")
		}
		client, err := NewGeminiClient(cfg.GeminiAPIKey)
		if err != nil {
			return nil, err
		}
		return NewGeminiGenerator(client, cfg.GeminiModel), nil
	}
	return nil, fmt.Errorf("no generation provider configured")
}
