// Package lexical provides the keyword side of hybrid retrieval: immutable
// BM25 index snapshots built over a fixed passage corpus.
//
// An Index is never mutated after Build returns. Rebuilding produces a new
// Index which callers swap in atomically, so readers can keep scoring against
// the previous snapshot while a rebuild is in progress.
package lexical

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/Aman-CERP/hybridrag/internal/store"
)

// Backend names accepted by NewBuilder.
const (
	BackendOkapi = "okapi"
	BackendBleve = "bleve"
)

// ErrUnknownBackend is returned by NewBuilder for unsupported backends.
var ErrUnknownBackend = errors.New("unknown lexical backend")

// Index scores a query against every passage of one corpus snapshot.
type Index interface {
	// ScoreAll returns one raw score per passage, in build order.
	// An empty query scores every passage zero.
	ScoreAll(query string) []float64

	// Len returns the number of passages in the snapshot.
	Len() int
}

// Builder builds a new Index from an ordered passage sequence.
type Builder interface {
	Build(passages []store.Passage) (Index, error)
}

// BuilderFunc adapts a function to the Builder interface.
type BuilderFunc func(passages []store.Passage) (Index, error)

// Build implements Builder.
func (f BuilderFunc) Build(passages []store.Passage) (Index, error) {
	return f(passages)
}

// Config holds BM25 parameters.
type Config struct {
	// K1 controls term-frequency saturation.
	K1 float64
	// B controls document-length normalization.
	B float64
	// Epsilon is the floor applied to negative IDF values, as a fraction
	// of the mean IDF.
	Epsilon float64
}

// DefaultConfig returns the Okapi BM25 defaults.
func DefaultConfig() Config {
	return Config{K1: 1.5, B: 0.75, Epsilon: 0.25}
}

// Validate reports out-of-range parameters.
func (c Config) Validate() error {
	if c.K1 < 0 {
		return fmt.Errorf("k1 must be non-negative, got %f", c.K1)
	}
	if c.B < 0 || c.B > 1 {
		return fmt.Errorf("b must be between 0 and 1, got %f", c.B)
	}
	if c.Epsilon < 0 {
		return fmt.Errorf("epsilon must be non-negative, got %f", c.Epsilon)
	}
	return nil
}

// NewBuilder returns a Builder for the named backend.
// An empty name selects the okapi backend.
func NewBuilder(backend string, cfg Config) (Builder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch strings.ToLower(backend) {
	case "", BackendOkapi:
		return BuilderFunc(func(p []store.Passage) (Index, error) {
			return NewOkapiIndex(p, cfg), nil
		}), nil
	case BackendBleve:
		return BuilderFunc(func(p []store.Passage) (Index, error) {
			return NewBleveIndex(p)
		}), nil
	default:
		return nil, fmt.Errorf("%w: %q (use %s or %s)", ErrUnknownBackend, backend, BackendOkapi, BackendBleve)
	}
}

// Tokenize lower-cases text, splits it on whitespace and trims punctuation
// from both ends of each token, so "document." and "document" match.
// Tokens made only of punctuation are dropped. Index and query text go
// through the same function.
func Tokenize(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if t := strings.TrimFunc(f, unicode.IsPunct); t != "" {
			tokens = append(tokens, t)
		}
	}
	return tokens
}
