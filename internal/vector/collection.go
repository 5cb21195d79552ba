// Package vector provides the semantic side of hybrid retrieval: passages are
// embedded and kept in an HNSW graph, and text queries are answered with
// cosine similarity scores.
package vector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/hybridrag/internal/embed"
	"github.com/Aman-CERP/hybridrag/internal/search"
	"github.com/Aman-CERP/hybridrag/internal/store"
)

// ErrNilEmbedder is returned when a Collection is created without an embedder.
var ErrNilEmbedder = errors.New("embedder is required")

// ErrCollectionClosed is returned after Close.
var ErrCollectionClosed = errors.New("vector collection is closed")

const (
	// DefaultParallelism is the number of embedding batches in flight.
	DefaultParallelism = 4
)

// Collection embeds passages into an HNSW store and serves text queries.
// Index builds a fresh graph and swaps it in, so searches keep using the
// previous graph until the new one is complete.
type Collection struct {
	embedder    embed.Embedder
	config      store.VectorStoreConfig
	batchSize   int
	parallelism int
	logger      *slog.Logger

	mu       sync.RWMutex
	store    *store.HNSWStore
	contents map[string]string
	closed   bool
}

var _ search.VectorSearcher = (*Collection)(nil)

// Option configures a Collection.
type Option func(*Collection)

// WithBatchSize sets how many passages are embedded per request.
func WithBatchSize(n int) Option {
	return func(c *Collection) {
		if n > 0 {
			c.batchSize = n
		}
	}
}

// WithParallelism sets how many embedding batches run concurrently.
func WithParallelism(n int) Option {
	return func(c *Collection) {
		if n > 0 {
			c.parallelism = n
		}
	}
}

// WithStoreConfig overrides the HNSW parameters. Dimensions always come
// from the embedder.
func WithStoreConfig(cfg store.VectorStoreConfig) Option {
	return func(c *Collection) {
		c.config = cfg
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Collection) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewCollection creates an empty collection over embedder.
func NewCollection(embedder embed.Embedder, opts ...Option) (*Collection, error) {
	if embedder == nil {
		return nil, ErrNilEmbedder
	}
	c := &Collection{
		embedder:    embedder,
		config:      store.DefaultVectorStoreConfig(embedder.Dimensions()),
		batchSize:   embed.DefaultBatchSize,
		parallelism: DefaultParallelism,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.config.Dimensions = embedder.Dimensions()

	s, err := store.NewHNSWStore(c.config)
	if err != nil {
		return nil, fmt.Errorf("create vector store: %w", err)
	}
	c.store = s
	c.contents = make(map[string]string)
	return c, nil
}

// Index embeds passages and replaces the collection contents. Passages whose
// text embeds to the zero vector are kept out of the graph; they can only
// be found lexically.
func (c *Collection) Index(ctx context.Context, passages []store.Passage) error {
	start := time.Now()

	vectors, err := c.embedAll(ctx, passages)
	if err != nil {
		return err
	}

	next, err := store.NewHNSWStore(c.config)
	if err != nil {
		return fmt.Errorf("create vector store: %w", err)
	}

	ids := make([]string, 0, len(passages))
	vecs := make([][]float32, 0, len(passages))
	var blank []string
	contents := make(map[string]string, len(passages))
	for i, p := range passages {
		contents[p.ID] = p.Content
		if isZero(vectors[i]) {
			blank = append(blank, p.ID)
			continue
		}
		ids = append(ids, p.ID)
		vecs = append(vecs, vectors[i])
	}
	if err := next.Add(ctx, ids, vecs); err != nil {
		_ = next.Close()
		return fmt.Errorf("vector store add: %w", err)
	}
	if err := next.MarkBlank(blank...); err != nil {
		_ = next.Close()
		return fmt.Errorf("vector store add: %w", err)
	}

	if err := c.swap(next, contents); err != nil {
		return err
	}

	c.logger.Info("vector_collection_indexed",
		slog.Int("passages", len(passages)),
		slog.Int("vectors", len(ids)),
		slog.String("model", c.embedder.ModelName()),
		slog.Duration("duration", time.Since(start)))
	return nil
}

// embedAll embeds passage texts in batches, running up to parallelism
// batches at once. Output order matches input order.
func (c *Collection) embedAll(ctx context.Context, passages []store.Passage) ([][]float32, error) {
	vectors := make([][]float32, len(passages))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.parallelism)

	for start := 0; start < len(passages); start += c.batchSize {
		end := min(start+c.batchSize, len(passages))
		g.Go(func() error {
			texts := make([]string, end-start)
			for i := range texts {
				texts[i] = passages[start+i].Content
			}
			batch, err := c.embedder.EmbedBatch(gctx, texts)
			if err != nil {
				return fmt.Errorf("vector embed %d-%d: %w", start, end, err)
			}
			if len(batch) != len(texts) {
				return fmt.Errorf("vector embed %d-%d: got %d vectors", start, end, len(batch))
			}
			copy(vectors[start:end], batch)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

// Load restores a graph saved with Save. passages supplies the text for
// each stored id; which ids are present is decided by the saved graph.
func (c *Collection) Load(path string, passages []store.Passage) error {
	next, err := store.NewHNSWStore(c.config)
	if err != nil {
		return fmt.Errorf("create vector store: %w", err)
	}
	if err := next.Load(path); err != nil {
		_ = next.Close()
		return err
	}

	contents := make(map[string]string, len(passages))
	for _, p := range passages {
		contents[p.ID] = p.Content
	}
	return c.swap(next, contents)
}

func (c *Collection) swap(next *store.HNSWStore, contents map[string]string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		_ = next.Close()
		return ErrCollectionClosed
	}
	old := c.store
	c.store = next
	c.contents = contents
	return old.Close()
}

// Save writes the current graph to path.
func (c *Collection) Save(path string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return ErrCollectionClosed
	}
	if err := c.store.Save(path); err != nil {
		return err
	}
	c.logger.Debug("vector_graph_saved",
		slog.String("path", path),
		slog.Int("vectors", c.store.Count()),
		slog.Int("orphans", c.store.Orphans()))
	return nil
}

// Search implements search.VectorSearcher. Scores are cosine similarities
// mapped to [0, 1]. A blank query returns no results.
func (c *Collection) Search(ctx context.Context, query string, topK int) ([]store.ScoredPassage, error) {
	if topK <= 0 || strings.TrimSpace(query) == "" {
		return []store.ScoredPassage{}, nil
	}

	vec, err := c.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if isZero(vec) {
		return []store.ScoredPassage{}, nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return nil, ErrCollectionClosed
	}
	hits, err := c.store.Search(ctx, vec, topK)
	if err != nil {
		return nil, err
	}

	out := make([]store.ScoredPassage, 0, len(hits))
	for _, h := range hits {
		out = append(out, store.ScoredPassage{
			ID:      h.ID,
			Content: c.contents[h.ID],
			Score:   float64(h.Score),
		})
	}
	return out, nil
}

// Missing returns the ids that were never indexed into the graph, in input
// order. Passages indexed without a vector are not missing.
func (c *Collection) Missing(ids []string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	missing := []string{}
	for _, id := range ids {
		if !c.store.Has(id) {
			missing = append(missing, id)
		}
	}
	return missing
}

// Unknown returns the sorted graph ids that are not in known.
func (c *Collection) Unknown(known []string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	set := make(map[string]struct{}, len(known))
	for _, id := range known {
		set[id] = struct{}{}
	}
	unknown := []string{}
	for _, id := range c.store.IDs() {
		if _, ok := set[id]; !ok {
			unknown = append(unknown, id)
		}
	}
	return unknown
}

// ModelName returns the embedder's model name.
func (c *Collection) ModelName() string {
	return c.embedder.ModelName()
}

// Count returns the number of vectors in the graph.
func (c *Collection) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return 0
	}
	return c.store.Count()
}

// Dimensions returns the vector dimension.
func (c *Collection) Dimensions() int {
	return c.config.Dimensions
}

// Close releases the graph. The embedder is owned by the caller.
func (c *Collection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	return c.store.Close()
}

func isZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
