package llm

import (
	"fmt"

	"github.com/scrypster/ontograph/internal/config"
)

// NewTextGenerator creates the TextGenerator for the configured provider.
func NewTextGenerator(cfg config.LLMConfig) (TextGenerator, error) {
	switch cfg.Provider {
	case "openai", "":
		return NewOpenAIClient(OpenAIConfig{APIKey: cfg.APIKey, Model: cfg.Model, BaseURL: cfg.BaseURL, Timeout: cfg.Timeout}), nil
	case "anthropic":
		return NewAnthropicClient(AnthropicConfig{APIKey: cfg.APIKey, Model: cfg.Model, BaseURL: cfg.BaseURL, Timeout: cfg.Timeout}), nil
	case "ollama":
		return NewOllamaClient(OllamaConfig{BaseURL: cfg.BaseURL, Model: cfg.Model, Timeout: cfg.Timeout}), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %q", cfg.Provider)
	}
}

// NewEmbeddingGenerator creates an EmbeddingGenerator when an embedding model
// is configured. It returns (nil, nil) when embeddings are disabled or the
// provider has no embedding API (Anthropic).
func NewEmbeddingGenerator(cfg config.LLMConfig) (EmbeddingGenerator, error) {
	if cfg.EmbeddingModel == "" {
		return nil, nil
	}
	switch cfg.Provider {
	case "openai", "":
		return NewOpenAIEmbeddingClient(OpenAIEmbeddingConfig{APIKey: cfg.APIKey, Model: cfg.EmbeddingModel, BaseURL: cfg.BaseURL}), nil
	case "ollama":
		return NewOllamaClient(OllamaConfig{BaseURL: cfg.BaseURL, Model: cfg.EmbeddingModel, Timeout: cfg.Timeout}), nil
	case "anthropic":
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %q", cfg.Provider)
	}
}
