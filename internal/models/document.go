// Package models defines core data structures for documents, chunks, indexed points, and queries.
package models

// Document is a source document loaded for ingestion. Text is transient and never persisted.
type Document struct {
	ID       string `json:"id"` // sha256 hex of the raw bytes
	TenantID string `json:"tenant_id"`
	Source   string `json:"source"`
	Title    string `json:"title"`
	Text     string `json:"-"`
}

// Chunk is an ordered fragment of a document's text.
type Chunk struct {
	DocumentID string `json:"document_id"`
	Index      int    `json:"chunk_index"`
	Text       string `json:"text"`
	Length     int    `json:"length"` // in runes
}

// Payload is the metadata stored alongside every point in the vector index.
type Payload struct {
	TenantID   string `json:"tenant_id"`
	DocID      string `json:"doc_id"`
	ChunkIndex int    `json:"chunk_index"`
	Text       string `json:"text"`
}

// Point is the unit written to the vector index.
type Point struct {
	ID      string    `json:"id"`
	Vector  []float32 `json:"vector"`
	Payload Payload   `json:"payload"`
}

// ScoredPoint is a single search hit returned by the vector index.
type ScoredPoint struct {
	ID      string  `json:"id"`
	Score   float64 `json:"score"`
	Payload Payload `json:"payload"`
}
