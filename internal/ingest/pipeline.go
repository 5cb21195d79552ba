package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/Aman-CERP/hybridrag/internal/store"
)

// Config configures a Pipeline.
type Config struct {
	Load  LoadOptions
	Clean CleanOptions
	Chunk ChunkOptions

	// Workers is the pool size for cleaning and chunking. Zero uses half
	// the CPUs, minimum one.
	Workers int
}

// DefaultConfig returns the defaults for every stage.
func DefaultConfig() Config {
	return Config{
		Clean: DefaultCleanOptions(),
		Chunk: DefaultChunkOptions(),
	}
}

// Pipeline loads a directory and produces passages with stable ids.
type Pipeline struct {
	cfg     Config
	chunker Chunker
	pool    *ants.Pool
	logger  *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger. Default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewPipeline creates a pipeline. Release must be called when done.
func NewPipeline(cfg Config, opts ...Option) (*Pipeline, error) {
	chunker, err := NewChunker(cfg.Chunk)
	if err != nil {
		return nil, err
	}

	size := cfg.Workers
	if size <= 0 {
		size = runtime.NumCPU() / 2
	}
	if size < 1 {
		size = 1
	}
	pool, err := ants.NewPool(size)
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}

	p := &Pipeline{
		cfg:     cfg,
		chunker: chunker,
		pool:    pool,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Passages loads dir, then cleans and chunks every document on the worker
// pool. Output keeps document order, then chunk order.
func (p *Pipeline) Passages(ctx context.Context, dir string) ([]store.SourcedPassage, error) {
	start := time.Now()

	docs, err := LoadDir(ctx, dir, p.cfg.Load)
	if err != nil {
		return nil, err
	}

	perDoc := make([][]store.SourcedPassage, len(docs))
	var wg sync.WaitGroup
	for i, doc := range docs {
		wg.Add(1)
		task := func() {
			defer wg.Done()
			if ctx.Err() != nil {
				return
			}
			perDoc[i] = p.Split(doc)
		}
		if err := p.pool.Submit(task); err != nil {
			wg.Done()
			wg.Wait()
			return nil, fmt.Errorf("submit %s: %w", doc.Path, err)
		}
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	total := 0
	for _, ps := range perDoc {
		total += len(ps)
	}
	passages := make([]store.SourcedPassage, 0, total)
	for _, ps := range perDoc {
		passages = append(passages, ps...)
	}

	p.logger.Info("ingest_completed",
		slog.String("dir", dir),
		slog.Int("documents", len(docs)),
		slog.Int("passages", len(passages)),
		slog.Duration("duration", time.Since(start)))
	return passages, nil
}

// Split cleans and chunks one document.
func (p *Pipeline) Split(doc Document) []store.SourcedPassage {
	text := Clean(doc.Text, p.cfg.Clean)
	chunks := p.chunker.Chunk(text)

	out := make([]store.SourcedPassage, 0, len(chunks))
	for i, c := range chunks {
		out = append(out, store.SourcedPassage{
			Passage: store.Passage{ID: PassageID(doc.Path, i, c), Content: c},
			Source:  doc.Path,
			Ordinal: i,
		})
	}
	return out
}

// PassageID derives "<path>#<ordinal>-<hash>" where hash is the first 8 hex
// digits of the content's SHA-256. Re-indexing unchanged content yields the
// same id.
func PassageID(path string, ordinal int, content string) string {
	sum := sha256.Sum256([]byte(content))
	return fmt.Sprintf("%s#%d-%s", path, ordinal, hex.EncodeToString(sum[:])[:8])
}

// Release frees the worker pool.
func (p *Pipeline) Release() {
	p.pool.Release()
}
