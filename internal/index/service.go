package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Aman-CERP/hybridrag/internal/config"
	"github.com/Aman-CERP/hybridrag/internal/embed"
	herrors "github.com/Aman-CERP/hybridrag/internal/errors"
	"github.com/Aman-CERP/hybridrag/internal/ingest"
	"github.com/Aman-CERP/hybridrag/internal/lexical"
	"github.com/Aman-CERP/hybridrag/internal/search"
	"github.com/Aman-CERP/hybridrag/internal/store"
	"github.com/Aman-CERP/hybridrag/internal/vector"
)

// Service is the hybrid index of one corpus directory. It wires the
// embedder, vector collection, corpus store and retriever from a Config
// and keeps them in step across reindexing.
type Service struct {
	cfg       *config.Config
	corpusDir string
	dataDir   string
	logger    *slog.Logger
	progress  ProgressFunc

	embedder   embed.Embedder
	ownedEmbed bool
	collection *vector.Collection
	corpus     *store.CorpusStore
	pipeline   *ingest.Pipeline
	retriever  *search.Retriever
	runner     *Runner

	// reindexMu serializes Reindex calls within the process; the data
	// directory lock covers other processes.
	reindexMu sync.Mutex
	closeOnce sync.Once
}

type serviceOptions struct {
	logger   *slog.Logger
	observer search.Observer
	embedder embed.Embedder
	progress ProgressFunc
}

// Option configures Open.
type Option func(*serviceOptions)

// WithLogger sets the logger for the service and everything it creates.
func WithLogger(l *slog.Logger) Option {
	return func(o *serviceOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithObserver registers a search observer, such as the metrics collector.
func WithObserver(obs search.Observer) Option {
	return func(o *serviceOptions) {
		o.observer = obs
	}
}

// WithEmbedder uses e instead of building one from the config. The caller
// keeps ownership of e.
func WithEmbedder(e embed.Embedder) Option {
	return func(o *serviceOptions) {
		o.embedder = e
	}
}

// WithProgress reports Reindex stages to fn.
func WithProgress(fn ProgressFunc) Option {
	return func(o *serviceOptions) {
		o.progress = fn
	}
}

// Open builds the service for corpusDir and restores any persisted index.
// An embedder that cannot be created is logged and the service runs
// lexical-only.
func Open(ctx context.Context, cfg *config.Config, corpusDir string, opts ...Option) (*Service, error) {
	o := serviceOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if cfg == nil {
		cfg = config.NewConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(corpusDir)
	if err != nil {
		return nil, fmt.Errorf("resolve corpus directory: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, herrors.New(herrors.ErrCodeCorpusNotFound, "corpus directory not found", err).
			WithDetail("path", abs)
	}
	if !info.IsDir() {
		return nil, herrors.Newf(herrors.ErrCodeCorpusNotFound, "corpus path is not a directory: %s", abs)
	}

	s := &Service{
		cfg:       cfg,
		corpusDir: abs,
		dataDir:   cfg.DataDir(abs),
		logger:    o.logger,
		progress:  o.progress,
	}
	if err := s.build(ctx, o); err != nil {
		_ = s.Close()
		return nil, err
	}
	if err := s.restore(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Service) build(ctx context.Context, o serviceOptions) error {
	cfg := s.cfg

	s.embedder = o.embedder
	if s.embedder == nil {
		e, err := embed.NewEmbedder(ctx, cfg.EmbedderConfig())
		if err != nil {
			attrs := append([]slog.Attr{slog.String("provider", cfg.Embeddings.Provider)}, herrors.LogAttrs(err)...)
			s.logger.LogAttrs(ctx, slog.LevelWarn, "embedder_unavailable", attrs...)
		}
		s.embedder = e
		s.ownedEmbed = e != nil
	}

	// A nil *vector.Collection must not reach the retriever as a non-nil
	// interface value.
	var vec search.VectorSearcher
	if s.embedder != nil {
		coll, err := vector.NewCollection(s.embedder,
			vector.WithBatchSize(cfg.Embeddings.BatchSize),
			vector.WithStoreConfig(store.VectorStoreConfig{
				Metric:   cfg.Vector.Metric,
				M:        cfg.Vector.M,
				EfSearch: cfg.Vector.EfSearch,
			}),
			vector.WithLogger(s.logger))
		if err != nil {
			return herrors.InternalError("failed to create vector collection", err)
		}
		s.collection = coll
		vec = coll
	}

	builder, err := lexical.NewBuilder(cfg.Lexical.Backend, cfg.LexicalParams())
	if err != nil {
		return herrors.New(herrors.ErrCodeUnknownBackend, "failed to create lexical builder", err)
	}
	fusion, err := search.NewFusion(cfg.Search.Fusion, cfg.Search.RRFConstant)
	if err != nil {
		return err
	}

	s.retriever, err = search.NewRetriever(vec,
		search.WithAlpha(cfg.Search.Alpha),
		search.WithLexicalBuilder(builder),
		search.WithCandidateMultiplier(cfg.Search.CandidateMultiplier),
		search.WithVectorTimeout(cfg.Search.VectorTimeout),
		search.WithFusion(fusion),
		search.WithCircuitBreaker(herrors.NewCircuitBreaker("vector",
			herrors.WithStateChange(func(name string, from, to herrors.State) {
				s.logger.Warn("circuit_state_changed",
					slog.String("breaker", name),
					slog.String("from", from.String()),
					slog.String("to", to.String()))
			}))),
		search.WithLogger(s.logger),
		search.WithObserver(o.observer))
	if err != nil {
		return err
	}

	s.corpus, err = store.NewCorpusStore(filepath.Join(s.dataDir, CorpusFileName))
	if err != nil {
		return herrors.New(herrors.ErrCodeCorruptIndex, "failed to open corpus store", err).
			WithSuggestion("delete " + s.dataDir + " and run index again")
	}

	s.pipeline, err = ingest.NewPipeline(cfg.IngestConfig(s.dataDir), ingest.WithLogger(s.logger))
	if err != nil {
		return err
	}

	s.runner, err = NewRunner(RunnerDependencies{
		Pipeline:   s.pipeline,
		Corpus:     s.corpus,
		Retriever:  s.retriever,
		Collection: s.collection,
		Logger:     s.logger,
	})
	return err
}

// restore loads the persisted corpus into the retriever. Vectors are loaded
// from disk when they were built by the current embedder model, otherwise
// the corpus is embedded again.
func (s *Service) restore(ctx context.Context) error {
	start := time.Now()
	sourced, err := s.corpus.Passages(ctx)
	if err != nil {
		return herrors.New(herrors.ErrCodeCorruptIndex, "failed to read corpus store", err)
	}
	if len(sourced) == 0 {
		s.logger.Debug("index_empty", slog.String("data_dir", s.dataDir))
		return nil
	}
	passages := store.Unsourced(sourced)
	if err := s.retriever.IndexDocuments(passages); err != nil {
		return err
	}

	reembedded := false
	if s.collection != nil {
		reembedded, err = s.restoreVectors(ctx, sourced, passages)
		if err != nil {
			attrs := append([]slog.Attr{slog.String("model", s.collection.ModelName())}, herrors.LogAttrs(err)...)
			s.logger.LogAttrs(ctx, slog.LevelWarn, "vector_restore_failed", attrs...)
		}
	}

	vectors := 0
	if s.collection != nil {
		vectors = s.collection.Count()
	}
	s.logger.Info("index_restored",
		slog.Int("passages", len(passages)),
		slog.Int("vectors", vectors),
		slog.Bool("reembedded", reembedded),
		slog.Duration("duration", time.Since(start)))
	return nil
}

func (s *Service) restoreVectors(ctx context.Context, sourced []store.SourcedPassage, passages []store.Passage) (bool, error) {
	model, err := s.corpus.EmbedderModel(ctx)
	if err != nil {
		return false, err
	}
	path := filepath.Join(s.dataDir, VectorFileName)
	if model == s.collection.ModelName() {
		if _, statErr := os.Stat(path); statErr == nil {
			loadErr := s.collection.Load(path, passages)
			if loadErr == nil {
				return false, nil
			}
			s.logger.Warn("vector_load_failed", slog.String("path", path), slog.String("error", loadErr.Error()))
		}
	} else {
		s.logger.Info("embedder_model_changed",
			slog.String("stored", model),
			slog.String("current", s.collection.ModelName()))
	}

	if err := s.collection.Index(ctx, passages); err != nil {
		return false, herrors.New(herrors.ErrCodeEmbeddingFailed, "failed to re-embed corpus", err)
	}

	lock := NewDataDirLock(s.dataDir)
	if err := lock.TryLock(); err != nil {
		s.logger.Info("vector_persist_skipped", slog.String("reason", "data directory locked"))
		return true, nil
	}
	defer func() { _ = lock.Unlock() }()

	if err := s.collection.Save(path); err != nil {
		return true, herrors.New(herrors.ErrCodeIndexFailed, "failed to persist vectors", err)
	}
	if err := s.corpus.Replace(ctx, sourced, s.collection.ModelName()); err != nil {
		return true, herrors.New(herrors.ErrCodeIndexFailed, "failed to record embedder model", err)
	}
	return true, nil
}

// Search runs a hybrid query.
func (s *Service) Search(ctx context.Context, query string, topK int) ([]search.Result, error) {
	return s.retriever.Search(ctx, query, topK)
}

// Reindex rebuilds every index from the corpus directory.
func (s *Service) Reindex(ctx context.Context) (*RunnerResult, error) {
	s.reindexMu.Lock()
	defer s.reindexMu.Unlock()

	return s.runner.Run(ctx, RunnerConfig{
		CorpusDir: s.corpusDir,
		DataDir:   s.dataDir,
		Progress:  s.progress,
	})
}

// Status describes the service for the status command and the API.
type Status struct {
	CorpusDir     string             `json:"corpus_dir"`
	DataDir       string             `json:"data_dir"`
	Passages      int                `json:"passages"`
	Sources       int                `json:"sources"`
	IndexedAt     time.Time          `json:"indexed_at"`
	Vectors       int                `json:"vectors"`
	Embedder      embed.EmbedderInfo `json:"embedder"`
	Retriever     search.Stats       `json:"retriever"`
	LexicalEngine string             `json:"lexical_backend"`
	Consistency   *CheckResult       `json:"consistency,omitempty"`
}

// Status reports corpus, vector and retriever state and runs a
// consistency check.
func (s *Service) Status(ctx context.Context) (*Status, error) {
	stats, err := s.corpus.Stats(ctx)
	if err != nil {
		return nil, err
	}
	st := &Status{
		CorpusDir:     s.corpusDir,
		DataDir:       s.dataDir,
		Passages:      stats.Passages,
		Sources:       stats.Sources,
		IndexedAt:     stats.IndexedAt,
		Embedder:      embed.GetInfo(ctx, s.embedder),
		Retriever:     s.retriever.Stats(),
		LexicalEngine: s.cfg.Lexical.Backend,
	}
	if s.collection != nil {
		st.Vectors = s.collection.Count()
	}

	check, err := NewConsistencyChecker(s.corpus, s.retriever, s.collection).Check(ctx)
	if err != nil {
		return nil, err
	}
	st.Consistency = check
	return st, nil
}

// Sources returns the corpus-relative paths of indexed documents, in index
// order.
func (s *Service) Sources(ctx context.Context) ([]string, error) {
	passages, err := s.corpus.Passages(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	sources := []string{}
	for _, p := range passages {
		if _, ok := seen[p.Source]; ok {
			continue
		}
		seen[p.Source] = struct{}{}
		sources = append(sources, p.Source)
	}
	return sources, nil
}

// Retriever returns the underlying retriever.
func (s *Service) Retriever() *search.Retriever {
	return s.retriever
}

// CorpusDir returns the absolute corpus directory.
func (s *Service) CorpusDir() string {
	return s.corpusDir
}

// DataDir returns the data directory.
func (s *Service) DataDir() string {
	return s.dataDir
}

// Close releases every resource the service created.
func (s *Service) Close() error {
	var errs []error
	s.closeOnce.Do(func() {
		if s.pipeline != nil {
			s.pipeline.Release()
		}
		if s.collection != nil {
			errs = append(errs, s.collection.Close())
		}
		if s.ownedEmbed {
			errs = append(errs, s.embedder.Close())
		}
		if s.corpus != nil {
			errs = append(errs, s.corpus.Close())
		}
	})
	return errors.Join(errs...)
}
