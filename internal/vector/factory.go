package vector

import (
	"fmt"

	"github.com/hyperjump/helpdesk/internal/models"
	"go.uber.org/zap"
)

// IndexType represents the type of vector index to use.
type IndexType string

const (
	// IndexTypeQdrant talks to a Qdrant server. Used in production.
	IndexTypeQdrant IndexType = "qdrant"
	// IndexTypeMemory uses in-process brute-force search. Good for tests and small datasets.
	IndexTypeMemory IndexType = "memory"
)

// Options selects and configures a vector index.
type Options struct {
	Type   string
	Qdrant QdrantConfig
	Logger *zap.Logger
}

// NewVectorIndex creates a vector index of the specified type.
// Supported types: "qdrant" (default), "memory".
func NewVectorIndex(opts Options) (VectorIndex, error) {
	switch IndexType(opts.Type) {
	case IndexTypeQdrant, "":
		return NewQdrantIndex(opts.Qdrant, WithLogger(opts.Logger)), nil
	case IndexTypeMemory:
		return NewMemoryIndex(), nil
	default:
		return nil, fmt.Errorf("%w: unknown index type: %s (supported: qdrant, memory)", models.ErrConfiguration, opts.Type)
	}
}
