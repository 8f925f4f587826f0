package llm

import (
	"context"
	"fmt"
	"time"
)

const openAIBaseURL = "https://api.openai.com"

// OpenAIConfig configures the chat completions client.
type OpenAIConfig struct {
	APIKey  string
	Model   string        // default: gpt-3.5-turbo
	BaseURL string        // default: https://api.openai.com
	Timeout time.Duration // default: 60s
}

// OpenAIClient completes prompts with the OpenAI chat completions API at
// temperature 0.
type OpenAIClient struct {
	endpoint
	apiKey string
	model  string
}

// NewOpenAIClient creates a client, filling zero fields with defaults.
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	return &OpenAIClient{
		endpoint: newEndpoint("openai", orDefault(cfg.BaseURL, openAIBaseURL), orDefault(cfg.Timeout, 60*time.Second),
			map[string]string{"Authorization": "Bearer " + cfg.APIKey}),
		apiKey: cfg.APIKey,
		model:  orDefault(cfg.Model, "gpt-3.5-turbo"),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (c *OpenAIClient) Complete(ctx context.Context, prompt string) (string, error) {
	var out openAIChatResponse
	req := openAIChatRequest{Model: c.model, Messages: []chatMessage{{Role: "user", Content: prompt}}}
	if err := c.post(ctx, "/v1/chat/completions", req, &out); err != nil {
		return "", err
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("openai: no choices in response")
	}
	return out.Choices[0].Message.Content, nil
}

// Check fails fast when no API key is configured.
func (c *OpenAIClient) Check(context.Context) error { return requireKey("openai", c.apiKey) }

func (c *OpenAIClient) GetModel() string { return c.model }

// OpenAIEmbeddingConfig configures the embeddings client.
type OpenAIEmbeddingConfig struct {
	APIKey  string
	Model   string        // default: text-embedding-3-small
	BaseURL string        // default: https://api.openai.com
	Timeout time.Duration // default: 30s
}

// OpenAIEmbeddingClient embeds node names with the OpenAI embeddings API.
type OpenAIEmbeddingClient struct {
	endpoint
	model string
}

func NewOpenAIEmbeddingClient(cfg OpenAIEmbeddingConfig) *OpenAIEmbeddingClient {
	return &OpenAIEmbeddingClient{
		endpoint: newEndpoint("openai-embedding", orDefault(cfg.BaseURL, openAIBaseURL), orDefault(cfg.Timeout, 30*time.Second),
			map[string]string{"Authorization": "Bearer " + cfg.APIKey}),
		model: orDefault(cfg.Model, "text-embedding-3-small"),
	}
}

type openAIEmbeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func (c *OpenAIEmbeddingClient) Embed(ctx context.Context, text string) ([]float32, error) {
	var out openAIEmbeddingResponse
	req := map[string]string{"model": c.model, "input": text}
	if err := c.post(ctx, "/v1/embeddings", req, &out); err != nil {
		return nil, err
	}
	if len(out.Data) == 0 || len(out.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("openai: empty embedding")
	}
	return out.Data[0].Embedding, nil
}

func (c *OpenAIEmbeddingClient) GetModel() string { return c.model }

var (
	_ TextGenerator      = (*OpenAIClient)(nil)
	_ Checker            = (*OpenAIClient)(nil)
	_ EmbeddingGenerator = (*OpenAIEmbeddingClient)(nil)
)
