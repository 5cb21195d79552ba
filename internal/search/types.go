// Package search is the hybrid retrieval core. It fuses a dense vector signal
// with a sparse lexical signal per passage id and returns one ranked list.
package search

import (
	"context"
	"time"

	herrors "github.com/Aman-CERP/hybridrag/internal/errors"
	"github.com/Aman-CERP/hybridrag/internal/store"
)

// VectorSearcher is the dense-similarity collaborator. It returns up to topK
// passages ordered best-first, each with a similarity score. The retriever
// does not care how vectors are produced or stored.
type VectorSearcher interface {
	Search(ctx context.Context, query string, topK int) ([]store.ScoredPassage, error)
}

// Result is one fused retrieval result.
type Result struct {
	ID      string  `json:"id"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`

	// VectorScore is the raw similarity score, 0 if the vector signal missed.
	VectorScore float64 `json:"vector_score"`

	// LexicalScore is the lexical score normalized by the query's best
	// lexical score, so it lies in [0, 1] for non-negative scores.
	LexicalScore float64 `json:"lexical_score"`
}

// Stats describes the retriever's current state.
type Stats struct {
	Passages      int
	Generation    uint64
	BuildDuration time.Duration
	IndexedAt     time.Time
	Alpha         float64
	Fusion        string
	VectorEnabled bool
	BreakerState  string
}

// Observer receives one call per completed search.
type Observer interface {
	ObserveSearch(elapsed time.Duration, results int, degraded bool)
}

// Sentinels for errors.Is. Each matches any *errors.HybridError carrying the
// same code.
var (
	ErrAlphaOutOfRange = herrors.Sentinel(herrors.ErrCodeAlphaOutOfRange)
	ErrLengthMismatch  = herrors.Sentinel(herrors.ErrCodeLengthMismatch)
	ErrDuplicateID     = herrors.Sentinel(herrors.ErrCodeDuplicateID)
	ErrEmptyID         = herrors.Sentinel(herrors.ErrCodeEmptyID)
	ErrInvalidTopK     = herrors.Sentinel(herrors.ErrCodeInvalidTopK)
	ErrInvalidConfig   = herrors.Sentinel(herrors.ErrCodeConfigInvalid)
)

// Defaults.
const (
	DefaultAlpha               = 0.5
	DefaultCandidateMultiplier = 1
	DefaultVectorTimeout       = 5 * time.Second
)
