package llm

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// AnthropicConfig configures the Messages API client.
type AnthropicConfig struct {
	APIKey    string
	Model     string        // default: claude-haiku-4-5-20251001
	BaseURL   string        // default: https://api.anthropic.com
	MaxTokens int           // default: 2048
	Timeout   time.Duration // default: 60s
}

// AnthropicClient completes prompts with the Anthropic Messages API. It has
// no embedding endpoint.
type AnthropicClient struct {
	endpoint
	apiKey    string
	model     string
	maxTokens int
}

func NewAnthropicClient(cfg AnthropicConfig) *AnthropicClient {
	return &AnthropicClient{
		endpoint: newEndpoint("anthropic", orDefault(cfg.BaseURL, "https://api.anthropic.com"), orDefault(cfg.Timeout, 60*time.Second),
			map[string]string{"x-api-key": cfg.APIKey, "anthropic-version": "2023-06-01"}),
		apiKey:    cfg.APIKey,
		model:     orDefault(cfg.Model, "claude-haiku-4-5-20251001"),
		maxTokens: orDefault(cfg.MaxTokens, 2048),
	}
}

type anthropicRequest struct {
	Model       string        `json:"model"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
	Messages    []chatMessage `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

func (c *AnthropicClient) Complete(ctx context.Context, prompt string) (string, error) {
	var out anthropicResponse
	req := anthropicRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		Messages:  []chatMessage{{Role: "user", Content: prompt}},
	}
	if err := c.post(ctx, "/v1/messages", req, &out); err != nil {
		return "", err
	}

	var b strings.Builder
	for _, block := range out.Content {
		if block.Type == "" || block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("anthropic: empty content")
	}
	return b.String(), nil
}

func (c *AnthropicClient) Check(context.Context) error { return requireKey("anthropic", c.apiKey) }

func (c *AnthropicClient) GetModel() string { return c.model }

var (
	_ TextGenerator = (*AnthropicClient)(nil)
	_ Checker       = (*AnthropicClient)(nil)
)
