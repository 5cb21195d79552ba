package embed

import (
	"context"
	"errors"
	"math"
	"time"
)

const (
	// DefaultBatchSize is the number of texts sent per embedding request.
	DefaultBatchSize = 32

	// MaxBatchSize caps batch requests.
	MaxBatchSize = 256

	// DefaultTimeout bounds a single embedding request.
	DefaultTimeout = 60 * time.Second

	// StaticDimensions is the default static embedder dimension.
	StaticDimensions = 256
)

// ErrEmbedderClosed is returned by embedders after Close.
var ErrEmbedderClosed = errors.New("embedder is closed")

// Embedder turns text into fixed-length unit vectors.
type Embedder interface {
	// Embed generates the embedding for one text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for texts, in order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimension.
	Dimensions() int

	// ModelName returns the model identifier persisted with the corpus.
	ModelName() string

	// Available reports whether the embedder can serve requests.
	Available(ctx context.Context) bool

	Close() error
}

// normalizeVector returns v scaled to unit length. A zero vector is returned
// unchanged.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}

	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}

	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}
