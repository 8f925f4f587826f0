package llm

import "context"

// TextGenerator is the interface for LLM text completion.
// Prompts are single-string completions, not chat transcripts.
type TextGenerator interface {
	Complete(ctx context.Context, prompt string) (string, error)
	GetModel() string
}

// EmbeddingGenerator is the interface for generating vector embeddings.
type EmbeddingGenerator interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	GetModel() string
}

// Checker is implemented by clients that can verify, before any real work,
// that the provider is usable (credentials present, host reachable).
type Checker interface {
	Check(ctx context.Context) error
}
