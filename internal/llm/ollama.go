package llm

import (
	"context"
	"fmt"
	"time"
)

// OllamaConfig configures a client for a local Ollama server.
type OllamaConfig struct {
	BaseURL string        // default: http://localhost:11434
	Model   string        // default: qwen2.5:7b
	Timeout time.Duration // default: 120s, local models are slow on long chunks
}

// OllamaClient completes prompts and embeds text against a local Ollama
// server. No credentials are needed, so Check probes /api/version instead.
type OllamaClient struct {
	endpoint
	model string
}

func NewOllamaClient(cfg OllamaConfig) *OllamaClient {
	return &OllamaClient{
		endpoint: newEndpoint("ollama", orDefault(cfg.BaseURL, "http://localhost:11434"), orDefault(cfg.Timeout, 120*time.Second), nil),
		model:    orDefault(cfg.Model, "qwen2.5:7b"),
	}
}

type generateRequest struct {
	Model   string             `json:"model"`
	Prompt  string             `json:"prompt"`
	Stream  bool               `json:"stream"`
	Options map[string]float64 `json:"options,omitempty"`
}

func (c *OllamaClient) Complete(ctx context.Context, prompt string) (string, error) {
	var out struct {
		Response string `json:"response"`
	}
	req := generateRequest{Model: c.model, Prompt: prompt, Options: map[string]float64{"temperature": 0}}
	if err := c.post(ctx, "/api/generate", req, &out); err != nil {
		return "", err
	}
	return out.Response, nil
}

func (c *OllamaClient) Embed(ctx context.Context, text string) ([]float32, error) {
	var out struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := c.post(ctx, "/api/embed", map[string]string{"model": c.model, "input": text}, &out); err != nil {
		return nil, err
	}
	if len(out.Embeddings) == 0 || len(out.Embeddings[0]) == 0 {
		return nil, fmt.Errorf("ollama: empty embedding")
	}
	return out.Embeddings[0], nil
}

// Check verifies the server answers. It bypasses the circuit breaker.
func (c *OllamaClient) Check(ctx context.Context) error { return c.ping(ctx, "/api/version") }

func (c *OllamaClient) GetModel() string { return c.model }

var (
	_ TextGenerator      = (*OllamaClient)(nil)
	_ EmbeddingGenerator = (*OllamaClient)(nil)
	_ Checker            = (*OllamaClient)(nil)
)
