package search

import (
	"log/slog"
	"time"

	herrors "github.com/Aman-CERP/hybridrag/internal/errors"
	"github.com/Aman-CERP/hybridrag/internal/lexical"
)

// RetrieverOption configures a Retriever.
type RetrieverOption func(*Retriever)

// WithAlpha sets the fusion weight of the vector signal. The value is
// validated by NewRetriever and must lie in [0, 1].
func WithAlpha(alpha float64) RetrieverOption {
	return func(r *Retriever) {
		r.alpha = alpha
	}
}

// WithLexicalBuilder replaces the default okapi builder.
func WithLexicalBuilder(b lexical.Builder) RetrieverOption {
	return func(r *Retriever) {
		if b != nil {
			r.builder = b
		}
	}
}

// WithCandidateMultiplier asks the vector collaborator for topK*n candidates
// before fusion and truncation. n = 1 requests exactly topK.
func WithCandidateMultiplier(n int) RetrieverOption {
	return func(r *Retriever) {
		r.multiplier = n
	}
}

// WithVectorTimeout bounds each vector collaborator call. Zero disables the
// per-call timeout.
func WithVectorTimeout(d time.Duration) RetrieverOption {
	return func(r *Retriever) {
		r.vectorTimeout = d
	}
}

// WithFusion selects the fusion method. Linear fusion is the default.
func WithFusion(f Fusion) RetrieverOption {
	return func(r *Retriever) {
		if f != nil {
			r.fusion = f
		}
	}
}

// WithCircuitBreaker guards the vector collaborator with cb.
func WithCircuitBreaker(cb *herrors.CircuitBreaker) RetrieverOption {
	return func(r *Retriever) {
		r.breaker = cb
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) RetrieverOption {
	return func(r *Retriever) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithObserver registers an observer notified after every search.
func WithObserver(o Observer) RetrieverOption {
	return func(r *Retriever) {
		r.observer = o
	}
}
