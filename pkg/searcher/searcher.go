package searcher

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/Aman-CERP/hybridrag/internal/config"
	"github.com/Aman-CERP/hybridrag/internal/index"
)

// Result is one retrieved passage.
type Result struct {
	ID     string `json:"id"`
	Source string `json:"source"`

	Content string  `json:"content"`
	Score   float64 `json:"score"`

	VectorScore  float64 `json:"vector_score"`
	LexicalScore float64 `json:"lexical_score"`
}

// Stats summarizes an indexing run.
type Stats struct {
	Documents int           `json:"documents"`
	Passages  int           `json:"passages"`
	Vectors   int           `json:"vectors"`
	Duration  time.Duration `json:"duration"`
}

// Option overrides a configuration value after files and environment are
// applied.
type Option func(*settings)

type settings struct {
	logger    *slog.Logger
	overrides []func(*config.Config)
}

// WithLogger sets the logger. Without it the index logs to slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(s *settings) { s.logger = l }
}

// WithAlpha sets the weight of the semantic signal, in [0, 1].
func WithAlpha(alpha float64) Option {
	return func(s *settings) {
		s.overrides = append(s.overrides, func(c *config.Config) { c.Search.Alpha = alpha })
	}
}

// WithFusion selects "linear" or "rrf" score fusion.
func WithFusion(method string) Option {
	return func(s *settings) {
		s.overrides = append(s.overrides, func(c *config.Config) { c.Search.Fusion = method })
	}
}

// WithEmbeddings selects the embedding provider and model, for example
// ("ollama", "nomic-embed-text") or ("static", "").
func WithEmbeddings(provider, model string) Option {
	return func(s *settings) {
		s.overrides = append(s.overrides, func(c *config.Config) {
			c.Embeddings.Provider = provider
			if model != "" {
				c.Embeddings.Model = model
			}
		})
	}
}

// WithDataDir stores the index outside the corpus directory.
func WithDataDir(dir string) Option {
	return func(s *settings) {
		s.overrides = append(s.overrides, func(c *config.Config) { c.Corpus.DataDir = dir })
	}
}

// Searcher is an opened corpus index.
type Searcher struct {
	svc *index.Service
}

// Open loads configuration for corpusDir, applies opts and opens the
// index. A corpus that was never indexed opens empty.
func Open(ctx context.Context, corpusDir string, opts ...Option) (*Searcher, error) {
	abs, err := filepath.Abs(corpusDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve corpus directory: %w", err)
	}

	st := settings{}
	for _, opt := range opts {
		opt(&st)
	}

	cfg, err := config.Load(abs)
	if err != nil {
		return nil, err
	}
	for _, o := range st.overrides {
		o(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var svcOpts []index.Option
	if st.logger != nil {
		svcOpts = append(svcOpts, index.WithLogger(st.logger))
	}
	svc, err := index.Open(ctx, cfg, abs, svcOpts...)
	if err != nil {
		return nil, err
	}
	return &Searcher{svc: svc}, nil
}

// Index rebuilds the index from the corpus directory.
func (s *Searcher) Index(ctx context.Context) (Stats, error) {
	res, err := s.svc.Reindex(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		Documents: res.Documents,
		Passages:  res.Passages,
		Vectors:   res.Vectors,
		Duration:  res.Duration,
	}, nil
}

// Empty reports whether nothing is indexed yet.
func (s *Searcher) Empty() bool {
	return s.svc.Retriever().Stats().Passages == 0
}

// Search returns up to topK passages, best first.
func (s *Searcher) Search(ctx context.Context, query string, topK int) ([]Result, error) {
	hits, err := s.svc.Search(ctx, query, topK)
	if err != nil {
		return nil, err
	}
	out := make([]Result, len(hits))
	for i, h := range hits {
		src, _, _ := strings.Cut(h.ID, "#")
		out[i] = Result{
			ID:           h.ID,
			Source:       src,
			Content:      h.Content,
			Score:        h.Score,
			VectorScore:  h.VectorScore,
			LexicalScore: h.LexicalScore,
		}
	}
	return out, nil
}

// Sources returns the indexed document paths, relative to the corpus.
func (s *Searcher) Sources(ctx context.Context) ([]string, error) {
	return s.svc.Sources(ctx)
}

// Close releases the index.
func (s *Searcher) Close() error {
	return s.svc.Close()
}
