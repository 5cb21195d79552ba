// Package index builds, persists and restores the hybrid index of a corpus
// directory. A Service owns every collaborator the retriever needs; a Runner
// performs one full rebuild.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	herrors "github.com/Aman-CERP/hybridrag/internal/errors"
	"github.com/Aman-CERP/hybridrag/internal/ingest"
	"github.com/Aman-CERP/hybridrag/internal/search"
	"github.com/Aman-CERP/hybridrag/internal/store"
	"github.com/Aman-CERP/hybridrag/internal/vector"
)

// Files inside the data directory.
const (
	CorpusFileName = "passages.db"
	VectorFileName = "vectors.hnsw"
)

// Stage names passed to a ProgressFunc.
const (
	StageLoad    = "load"
	StageEmbed   = "embed"
	StageLexical = "lexical"
	StagePersist = "persist"
)

var stages = []string{StageLoad, StageEmbed, StageLexical, StagePersist}

// ProgressFunc is called when a stage starts. step counts from 1.
type ProgressFunc func(stage string, step, total int)

// RunnerConfig configures one indexing run.
type RunnerConfig struct {
	// CorpusDir is the directory whose documents are indexed.
	CorpusDir string

	// DataDir receives the corpus database and the vector graph.
	DataDir string

	// Progress is optional.
	Progress ProgressFunc
}

// RunnerResult is the outcome of a run.
type RunnerResult struct {
	Documents int
	Passages  int
	Vectors   int
	Duration  time.Duration
	Timing    StageTiming
}

// StageTiming records how long each stage took.
type StageTiming struct {
	Load    time.Duration
	Embed   time.Duration
	Lexical time.Duration
	Persist time.Duration
}

// RunnerDependencies are the collaborators a Runner writes to.
type RunnerDependencies struct {
	Pipeline  *ingest.Pipeline
	Corpus    *store.CorpusStore
	Retriever *search.Retriever

	// Collection is nil when the vector side is disabled.
	Collection *vector.Collection

	Logger *slog.Logger
}

// Runner rebuilds the whole index from the corpus directory.
type Runner struct {
	pipeline   *ingest.Pipeline
	corpus     *store.CorpusStore
	retriever  *search.Retriever
	collection *vector.Collection
	logger     *slog.Logger
}

// NewRunner creates a Runner.
func NewRunner(deps RunnerDependencies) (*Runner, error) {
	if deps.Pipeline == nil {
		return nil, fmt.Errorf("pipeline is required")
	}
	if deps.Corpus == nil {
		return nil, fmt.Errorf("corpus store is required")
	}
	if deps.Retriever == nil {
		return nil, fmt.Errorf("retriever is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		pipeline:   deps.Pipeline,
		corpus:     deps.Corpus,
		retriever:  deps.Retriever,
		collection: deps.Collection,
		logger:     logger,
	}, nil
}

// Run ingests cfg.CorpusDir and replaces every index with the result.
//
// Passages are embedded before anything is swapped, so a failed embedding
// leaves the previous lexical snapshot, corpus and vectors in place. The
// data directory is locked for the duration of the run.
func (r *Runner) Run(ctx context.Context, cfg RunnerConfig) (*RunnerResult, error) {
	if cfg.DataDir == "" {
		return nil, herrors.Newf(herrors.ErrCodeConfigInvalid, "data directory is required")
	}
	start := time.Now()
	var timing StageTiming

	lock := NewDataDirLock(cfg.DataDir)
	if err := lock.TryLock(); err != nil {
		return nil, err
	}
	defer func() { _ = lock.Unlock() }()

	progress := func(stage string) time.Time {
		if cfg.Progress != nil {
			for i, s := range stages {
				if s == stage {
					cfg.Progress(stage, i+1, len(stages))
				}
			}
		}
		return time.Now()
	}

	t := progress(StageLoad)
	sourced, err := r.pipeline.Passages(ctx, cfg.CorpusDir)
	if err != nil {
		return nil, err
	}
	passages := store.Unsourced(sourced)
	timing.Load = time.Since(t)

	t = progress(StageEmbed)
	if r.collection != nil {
		if err := r.collection.Index(ctx, passages); err != nil {
			return nil, herrors.New(herrors.ErrCodeEmbeddingFailed, "failed to embed passages", err).
				WithSuggestion("check the embedding provider, or set embeddings.provider to none for lexical-only search")
		}
	}
	timing.Embed = time.Since(t)

	t = progress(StageLexical)
	if err := r.retriever.IndexDocuments(passages); err != nil {
		return nil, err
	}
	timing.Lexical = time.Since(t)

	t = progress(StagePersist)
	model := ""
	if r.collection != nil {
		model = r.collection.ModelName()
	}
	if err := r.corpus.Replace(ctx, sourced, model); err != nil {
		return nil, herrors.New(herrors.ErrCodeIndexFailed, "failed to persist corpus", err)
	}
	vectors := 0
	if r.collection != nil {
		if err := r.collection.Save(filepath.Join(cfg.DataDir, VectorFileName)); err != nil {
			return nil, herrors.New(herrors.ErrCodeIndexFailed, "failed to persist vectors", err)
		}
		vectors = r.collection.Count()
	}
	timing.Persist = time.Since(t)

	result := &RunnerResult{
		Documents: countSources(sourced),
		Passages:  len(passages),
		Vectors:   vectors,
		Duration:  time.Since(start),
		Timing:    timing,
	}
	r.logger.Info("index_completed",
		slog.String("corpus", cfg.CorpusDir),
		slog.Int("documents", result.Documents),
		slog.Int("passages", result.Passages),
		slog.Int("vectors", result.Vectors),
		slog.String("model", model),
		slog.Duration("duration", result.Duration))
	return result, nil
}

func countSources(passages []store.SourcedPassage) int {
	seen := make(map[string]struct{})
	for _, p := range passages {
		seen[p.Source] = struct{}{}
	}
	return len(seen)
}
