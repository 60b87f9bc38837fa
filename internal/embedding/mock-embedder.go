package embedding

import (
	"context"
	"fmt"
	"strings"

	"github.com/hyperjump/helpdesk/pkg/utils"
)

// MockEmbedder is a deterministic embedder for tests and offline runs. Each token is hashed
// into one of the dimensions and the counts are L2-normalized, so texts that share words
// score higher under cosine similarity. Text without tokens embeds to the zero vector.
type MockEmbedder struct {
	dimensions int
}

var _ Embedder = (*MockEmbedder)(nil)

// NewMockEmbedder returns an embedder that produces deterministic embeddings of the given dimensions.
func NewMockEmbedder(dimensions int) *MockEmbedder {
	if dimensions <= 0 {
		dimensions = DefaultDimensions
	}
	return &MockEmbedder{dimensions: dimensions}
}

// Embed returns the hashed bag-of-words embedding of text.
func (e *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	emb := make([]float32, e.dimensions)
	for _, tok := range Tokenize(text) {
		emb[HashString(tok)%e.dimensions]++
	}
	utils.NormalizeL2(emb)
	return emb, nil
}

// EmbedBatch calls Embed for each text.
func (e *MockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		emb, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		embeddings[i] = emb
	}
	return embeddings, nil
}

// Generate echoes the prompt so callers can exercise the generation path offline.
func (e *MockEmbedder) Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", fmt.Errorf("prompt cannot be empty")
	}
	return "echo: " + prompt, nil
}

// Status always reports the fake as alive.
func (e *MockEmbedder) Status(ctx context.Context) error {
	return nil
}

// Dimensions returns the embedding dimension.
func (e *MockEmbedder) Dimensions() int {
	return e.dimensions
}

// Model returns the fake model name.
func (e *MockEmbedder) Model() string {
	return "mock-bow"
}

// Close is a no-op for MockEmbedder.
func (e *MockEmbedder) Close() error {
	return nil
}
