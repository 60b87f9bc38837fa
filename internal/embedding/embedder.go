// Package embedding provides the embedding and generation gateway over an external model
// service, plus a deterministic in-process fake and a query-embedding cache.
package embedding

import "context"

// Embedder produces vector embeddings for text and generates text from prompts.
// EmbedBatch is order-preserving: result i is the embedding of texts[i].
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)
	// Status reports liveness: any successful probe is enough, the response body is ignored.
	Status(ctx context.Context) error
	Dimensions() int
	Model() string
	Close() error
}

// GenerateOptions tunes a single generation call.
type GenerateOptions struct {
	System      string
	Temperature float64
	MaxTokens   int
	Stop        []string
}

// DefaultGenerateOptions mirrors the generation defaults used by the helpdesk assistant.
func DefaultGenerateOptions() GenerateOptions {
	return GenerateOptions{Temperature: 0.7}
}
