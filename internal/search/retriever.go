package search

import (
	"context"
	"log/slog"
	"math"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	herrors "github.com/Aman-CERP/hybridrag/internal/errors"
	"github.com/Aman-CERP/hybridrag/internal/lexical"
	"github.com/Aman-CERP/hybridrag/internal/store"
)

// snapshot is one immutable lexical corpus. Searches load the current
// snapshot once and use it for the whole call.
type snapshot struct {
	passages      []store.Passage
	index         lexical.Index
	generation    uint64
	indexedAt     time.Time
	buildDuration time.Duration
}

// Retriever is the hybrid retrieval orchestrator. It owns the lexical
// snapshot and holds a reference to the vector collaborator.
//
// Search is safe for concurrent use, including while IndexDocuments runs:
// a rebuild constructs a new snapshot and swaps it in with one atomic store.
type Retriever struct {
	vector        VectorSearcher
	alpha         float64
	builder       lexical.Builder
	multiplier    int
	vectorTimeout time.Duration
	fusion        Fusion
	breaker       *herrors.CircuitBreaker
	logger        *slog.Logger
	observer      Observer

	current atomic.Pointer[snapshot]

	// buildMu serializes rebuilds so generations are swapped in order.
	buildMu    sync.Mutex
	generation uint64
}

// NewRetriever creates a retriever. vector may be nil, in which case every
// search is lexical-only.
func NewRetriever(vector VectorSearcher, opts ...RetrieverOption) (*Retriever, error) {
	r := &Retriever{
		vector:        vector,
		alpha:         DefaultAlpha,
		multiplier:    DefaultCandidateMultiplier,
		vectorTimeout: DefaultVectorTimeout,
		fusion:        LinearFusion{},
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}

	if math.IsNaN(r.alpha) || r.alpha < 0 || r.alpha > 1 {
		return nil, herrors.Newf(herrors.ErrCodeAlphaOutOfRange, "alpha must be in [0, 1], got %v", r.alpha).
			WithSuggestion("set search.alpha between 0 (lexical only) and 1 (vector only)")
	}
	if r.multiplier < 1 {
		return nil, herrors.Newf(herrors.ErrCodeConfigInvalid, "candidate multiplier must be at least 1, got %d", r.multiplier)
	}
	if r.vectorTimeout < 0 {
		return nil, herrors.Newf(herrors.ErrCodeConfigInvalid, "vector timeout must not be negative, got %s", r.vectorTimeout)
	}
	if r.builder == nil {
		b, err := lexical.NewBuilder(lexical.BackendOkapi, lexical.DefaultConfig())
		if err != nil {
			return nil, herrors.ConfigError("failed to create lexical builder", err)
		}
		r.builder = b
	}

	if vector == nil {
		r.logger.Info("vector_search_disabled", slog.String("reason", "no vector collaborator"))
	}
	return r, nil
}

// IndexDocuments replaces the lexical corpus with passages. Passage ids must
// be non-empty and unique. On error the previous snapshot stays in place.
// An empty slice is valid and clears the corpus.
func (r *Retriever) IndexDocuments(passages []store.Passage) error {
	if err := validatePassages(passages); err != nil {
		return err
	}

	r.buildMu.Lock()
	defer r.buildMu.Unlock()

	start := time.Now()
	owned := slices.Clone(passages)
	idx, err := r.builder.Build(owned)
	if err != nil {
		return herrors.New(herrors.ErrCodeIndexFailed, "failed to build lexical index", err)
	}

	r.generation++
	snap := &snapshot{
		passages:      owned,
		index:         idx,
		generation:    r.generation,
		indexedAt:     time.Now(),
		buildDuration: time.Since(start),
	}
	r.current.Store(snap)

	attrs := []slog.Attr{
		slog.Int("passages", len(owned)),
		slog.Uint64("generation", snap.generation),
		slog.Duration("build_duration", snap.buildDuration),
	}
	if a, ok := idx.(interface{ AverageLength() float64 }); ok {
		attrs = append(attrs, slog.Float64("avg_tokens", a.AverageLength()))
	}
	if m, ok := idx.(interface{ ScoringModel() string }); ok {
		attrs = append(attrs, slog.String("scoring_model", m.ScoringModel()))
	}
	r.logger.LogAttrs(context.Background(), slog.LevelInfo, "lexical_snapshot_swapped", attrs...)
	return nil
}

// IndexTexts is IndexDocuments for parallel text and id slices matched by
// position. Mismatched lengths fail before anything is indexed.
func (r *Retriever) IndexTexts(texts, ids []string) error {
	if len(texts) != len(ids) {
		return herrors.Newf(herrors.ErrCodeLengthMismatch,
			"texts and ids must have equal length, got %d texts and %d ids", len(texts), len(ids)).
			WithDetail("texts", strconv.Itoa(len(texts))).
			WithDetail("ids", strconv.Itoa(len(ids)))
	}
	passages := make([]store.Passage, len(texts))
	for i := range texts {
		passages[i] = store.Passage{ID: ids[i], Content: texts[i]}
	}
	return r.IndexDocuments(passages)
}

func validatePassages(passages []store.Passage) error {
	seen := make(map[string]int, len(passages))
	for i, p := range passages {
		if p.ID == "" {
			return herrors.Newf(herrors.ErrCodeEmptyID, "passage at position %d has an empty id", i)
		}
		if prev, dup := seen[p.ID]; dup {
			return herrors.Newf(herrors.ErrCodeDuplicateID,
				"passage id %q appears at positions %d and %d", p.ID, prev, i)
		}
		seen[p.ID] = i
	}
	return nil
}

// Search returns at most topK results ordered best-first.
//
// The vector and lexical signals run concurrently. If the vector collaborator
// fails, times out, or its circuit is open, the search degrades to
// lexical-only ranking and logs a warning instead of returning an error.
// Before any IndexDocuments call the lexical signal contributes zero.
func (r *Retriever) Search(ctx context.Context, query string, topK int) ([]Result, error) {
	if topK < 1 {
		return nil, herrors.Newf(herrors.ErrCodeInvalidTopK, "top_k must be at least 1, got %d", topK).
			WithSuggestion("request one or more results")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	snap := r.current.Load()

	var (
		vecHits []store.ScoredPassage
		vecErr  error
		scores  []float64
		corpus  []store.Passage
	)

	g, gctx := errgroup.WithContext(ctx)
	if r.vector != nil {
		g.Go(func() error {
			vecHits, vecErr = r.searchVector(gctx, query, topK*r.multiplier)
			return nil
		})
	}
	if snap != nil {
		corpus = snap.passages
		g.Go(func() error {
			scores = snap.index.ScoreAll(query)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	degraded := false
	if vecErr != nil {
		degraded = true
		vecHits = nil
		attrs := append([]slog.Attr{
			slog.String("query", truncate(query, 80)),
			slog.String("breaker", r.breakerState()),
		}, herrors.LogAttrs(vecErr)...)
		r.logger.LogAttrs(ctx, slog.LevelWarn, "vector_search_degraded", attrs...)
	}

	results := r.fusion.Fuse(vecHits, scores, corpus, r.alpha, topK)

	elapsed := time.Since(start)
	r.logger.Debug("search_completed",
		slog.Int("results", len(results)),
		slog.Int("vector_hits", len(vecHits)),
		slog.Int("corpus", len(corpus)),
		slog.Bool("degraded", degraded),
		slog.Duration("elapsed", elapsed))
	if r.observer != nil {
		r.observer.ObserveSearch(elapsed, len(results), degraded)
	}
	return results, nil
}

func (r *Retriever) searchVector(ctx context.Context, query string, k int) ([]store.ScoredPassage, error) {
	if r.vectorTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.vectorTimeout)
		defer cancel()
	}
	return herrors.Execute(r.breaker, func() ([]store.ScoredPassage, error) {
		hits, err := r.vector.Search(ctx, query, k)
		if err != nil {
			return nil, herrors.New(herrors.ErrCodeVectorUnavailable, "vector search failed", err)
		}
		return hits, nil
	})
}

// Stats reports the current snapshot and configuration.
func (r *Retriever) Stats() Stats {
	s := Stats{
		Alpha:         r.alpha,
		Fusion:        r.fusion.Name(),
		VectorEnabled: r.vector != nil,
		BreakerState:  r.breakerState(),
	}
	if snap := r.current.Load(); snap != nil {
		s.Passages = len(snap.passages)
		s.Generation = snap.generation
		s.BuildDuration = snap.buildDuration
		s.IndexedAt = snap.indexedAt
	}
	return s
}

// Alpha returns the configured fusion weight.
func (r *Retriever) Alpha() float64 {
	return r.alpha
}

// Passages returns the current lexical corpus in build order, or nil before
// the first IndexDocuments call. The slice is shared and must not be
// modified.
func (r *Retriever) Passages() []store.Passage {
	if snap := r.current.Load(); snap != nil {
		return snap.passages
	}
	return nil
}

func (r *Retriever) breakerState() string {
	if r.breaker == nil {
		return "none"
	}
	return r.breaker.State().String()
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
