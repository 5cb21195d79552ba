// Package store provides the persistence layer: the passage corpus (SQLite)
// and the vector store (HNSW).
package store

import (
	"context"
	"fmt"
	"time"
)

// Passage is the atomic retrievable unit.
// ID is unique within a corpus snapshot and stable across re-indexing of
// the same content.
type Passage struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

// ScoredPassage is a passage returned by a similarity lookup.
type ScoredPassage struct {
	ID      string  `json:"id"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// SourcedPassage is a passage with the document it was chunked from.
// The corpus store keeps the source so status output can group by file.
type SourcedPassage struct {
	Passage
	Source  string
	Ordinal int
}

// Unsourced strips source information, keeping order.
func Unsourced(in []SourcedPassage) []Passage {
	out := make([]Passage, len(in))
	for i, p := range in {
		out[i] = p.Passage
	}
	return out
}

// VectorResult represents a nearest-neighbour hit from the vector store.
type VectorResult struct {
	ID       string
	Distance float32
	Score    float32
}

// CorpusStats summarizes the persisted corpus.
type CorpusStats struct {
	Passages  int
	Sources   int
	IndexedAt time.Time
}

// VectorStoreConfig configures the vector store.
type VectorStoreConfig struct {
	// Dimensions is the vector dimension (256 for the static embedder).
	Dimensions int

	// Metric is the distance metric: "cos" (cosine) or "l2" (euclidean).
	Metric string

	// M is the HNSW max connections per layer.
	M int

	// EfSearch is the HNSW query-time search width.
	EfSearch int
}

// DefaultVectorStoreConfig returns sensible defaults for the vector store.
func DefaultVectorStoreConfig(dimensions int) VectorStoreConfig {
	return VectorStoreConfig{
		Dimensions: dimensions,
		Metric:     "cos",
		M:          16,
		EfSearch:   20,
	}
}

// VectorStore provides nearest-neighbour search over passage embeddings.
type VectorStore interface {
	// Add inserts vectors with their IDs. If an ID exists, it is replaced.
	Add(ctx context.Context, ids []string, vectors [][]float32) error

	// Search finds k nearest neighbors to query vector.
	Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error)

	// Reset drops every vector, keeping the configuration.
	Reset() error

	Count() int

	Save(path string) error
	Load(path string) error
	Close() error
}

// ErrDimensionMismatch indicates vector dimension mismatch.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d (run 'hybridrag index --force')", e.Expected, e.Got)
}
