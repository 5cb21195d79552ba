package store

import (
	"bufio"
	"cmp"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/coder/hnsw"
)

// ErrStoreClosed is returned by operations on a closed store.
var ErrStoreClosed = errors.New("store is closed")

// HNSWStore implements VectorStore on top of coder/hnsw.
// Passage IDs are mapped to sequential uint64 graph keys.
type HNSWStore struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	config VectorStoreConfig

	ids     map[string]uint64
	keys    map[uint64]string
	nextKey uint64

	// blank holds ids indexed without a vector.
	blank map[string]struct{}

	closed bool
}

// hnswMetadata is the gob sidecar written next to the exported graph.
type hnswMetadata struct {
	IDs     map[string]uint64
	NextKey uint64
	Config  VectorStoreConfig
	Blank   []string
}

// NewHNSWStore creates an empty HNSW-backed vector store.
func NewHNSWStore(cfg VectorStoreConfig) (*HNSWStore, error) {
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("vector dimensions must be positive, got %d", cfg.Dimensions)
	}
	if cfg.Metric == "" {
		cfg.Metric = "cos"
	}
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 20
	}

	return &HNSWStore{
		graph:  newGraph(cfg),
		config: cfg,
		ids:    make(map[string]uint64),
		keys:   make(map[uint64]string),
		blank:  make(map[string]struct{}),
	}, nil
}

func newGraph(cfg VectorStoreConfig) *hnsw.Graph[uint64] {
	g := hnsw.NewGraph[uint64]()
	if cfg.Metric == "l2" {
		g.Distance = hnsw.EuclideanDistance
	} else {
		g.Distance = hnsw.CosineDistance
	}
	g.M = cfg.M
	g.EfSearch = cfg.EfSearch
	g.Ml = 0.25
	return g
}

// Add inserts vectors. A re-added ID is remapped to a fresh key and the old
// node is orphaned rather than deleted from the graph.
func (s *HNSWStore) Add(ctx context.Context, ids []string, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch: %d vs %d", len(ids), len(vectors))
	}
	if len(ids) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	for _, v := range vectors {
		if len(v) != s.config.Dimensions {
			return ErrDimensionMismatch{Expected: s.config.Dimensions, Got: len(v)}
		}
	}

	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		if old, ok := s.ids[id]; ok {
			delete(s.keys, old)
		}

		key := s.nextKey
		s.nextKey++

		s.graph.Add(hnsw.MakeNode(key, s.prepare(vectors[i])))
		s.ids[id] = key
		s.keys[key] = id
		delete(s.blank, id)
	}

	return nil
}

// MarkBlank records ids that were indexed but have no vector, such as
// passages that embed to zero. A previously added vector for the id is
// orphaned.
func (s *HNSWStore) MarkBlank(ids ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	for _, id := range ids {
		if key, ok := s.ids[id]; ok {
			delete(s.keys, key)
			delete(s.ids, id)
		}
		s.blank[id] = struct{}{}
	}
	return nil
}

// Has reports whether id was indexed, with or without a vector.
func (s *HNSWStore) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return false
	}
	if _, ok := s.ids[id]; ok {
		return true
	}
	_, ok := s.blank[id]
	return ok
}

// IDs returns every indexed id, blank ones included, sorted.
func (s *HNSWStore) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil
	}
	out := make([]string, 0, len(s.ids)+len(s.blank))
	for id := range s.ids {
		out = append(out, id)
	}
	for id := range s.blank {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// Search returns up to k passage IDs nearest to query, best first.
func (s *HNSWStore) Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}
	if len(query) != s.config.Dimensions {
		return nil, ErrDimensionMismatch{Expected: s.config.Dimensions, Got: len(query)}
	}
	if k <= 0 || s.graph.Len() == 0 {
		return []*VectorResult{}, nil
	}

	q := s.prepare(query)

	// Orphaned nodes can occupy result slots, so over-fetch by their count.
	fetch := k + (s.graph.Len() - len(s.ids))
	nodes := s.graph.Search(q, fetch)

	// The graph returns candidates in heap order, not by distance.
	results := make([]*VectorResult, 0, len(nodes))
	for _, node := range nodes {
		id, ok := s.keys[node.Key]
		if !ok {
			continue
		}
		d := s.graph.Distance(q, node.Value)
		results = append(results, &VectorResult{
			ID:       id,
			Distance: d,
			Score:    distanceToScore(d, s.config.Metric),
		})
	}
	slices.SortStableFunc(results, func(a, b *VectorResult) int {
		return cmp.Compare(a.Distance, b.Distance)
	})
	if len(results) > k {
		results = results[:k]
	}

	return results, nil
}

// prepare copies v and unit-normalizes the copy for the cosine metric.
func (s *HNSWStore) prepare(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	if s.config.Metric == "cos" {
		normalizeVectorInPlace(out)
	}
	return out
}

// Reset drops the graph and every ID mapping.
func (s *HNSWStore) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	s.graph = newGraph(s.config)
	s.ids = make(map[string]uint64)
	s.keys = make(map[uint64]string)
	s.blank = make(map[string]struct{})
	s.nextKey = 0
	return nil
}

// Count returns the number of live vectors.
func (s *HNSWStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0
	}
	return len(s.ids)
}

// Orphans returns the number of graph nodes left behind by re-added IDs.
func (s *HNSWStore) Orphans() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0
	}
	return s.graph.Len() - len(s.ids)
}

// Dimensions returns the configured vector dimension.
func (s *HNSWStore) Dimensions() int {
	return s.config.Dimensions
}

// Save writes the graph to path and the ID map to path+".meta".
// Both files are written to a temp file and renamed into place.
func (s *HNSWStore) Save(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrStoreClosed
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	if err := writeAtomic(path, func(w io.Writer) error {
		return s.graph.Export(w)
	}); err != nil {
		return fmt.Errorf("failed to export graph: %w", err)
	}

	meta := hnswMetadata{IDs: s.ids, NextKey: s.nextKey, Config: s.config}
	for id := range s.blank {
		meta.Blank = append(meta.Blank, id)
	}
	if err := writeAtomic(path+".meta", func(w io.Writer) error {
		return gob.NewEncoder(w).Encode(meta)
	}); err != nil {
		return fmt.Errorf("failed to save metadata: %w", err)
	}

	return nil
}

// Load replaces the store contents with the graph saved at path.
func (s *HNSWStore) Load(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	meta, err := readMetadata(path + ".meta")
	if err != nil {
		return fmt.Errorf("failed to load metadata: %w", err)
	}
	if meta.Config.Dimensions != s.config.Dimensions {
		return ErrDimensionMismatch{Expected: s.config.Dimensions, Got: meta.Config.Dimensions}
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open index file: %w", err)
	}
	defer func() { _ = f.Close() }()

	graph := newGraph(meta.Config)
	// Import needs an io.ByteReader.
	if err := graph.Import(bufio.NewReader(f)); err != nil {
		return fmt.Errorf("failed to import graph: %w", err)
	}

	s.graph = graph
	s.config = meta.Config
	s.ids = meta.IDs
	s.nextKey = meta.NextKey
	s.keys = make(map[uint64]string, len(meta.IDs))
	for id, key := range meta.IDs {
		s.keys[key] = id
	}
	s.blank = make(map[string]struct{}, len(meta.Blank))
	for _, id := range meta.Blank {
		s.blank[id] = struct{}{}
	}

	return nil
}

// Close releases the graph. Safe to call multiple times.
func (s *HNSWStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.graph = nil
	return nil
}

// ReadVectorDimensions reads the dimension recorded in a saved store's
// metadata. Returns 0 when nothing has been saved yet.
func ReadVectorDimensions(path string) (int, error) {
	meta, err := readMetadata(path + ".meta")
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return meta.Config.Dimensions, nil
}

func readMetadata(path string) (*hnswMetadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := f.Close(); err != nil {
			slog.Warn("failed to close hnsw metadata file", slog.String("error", err.Error()))
		}
	}()

	var meta hnswMetadata
	if err := gob.NewDecoder(f).Decode(&meta); err != nil {
		return nil, fmt.Errorf("decode hnsw metadata: %w", err)
	}
	if meta.IDs == nil {
		meta.IDs = make(map[string]uint64)
	}
	return &meta, nil
}

// writeAtomic streams into path+".tmp" and renames it over path.
func writeAtomic(path string, write func(io.Writer) error) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

var _ VectorStore = (*HNSWStore)(nil)

// normalizeVectorInPlace scales v to unit length. Zero vectors are left alone.
func normalizeVectorInPlace(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
}

// distanceToScore maps a distance onto a similarity in [0, 1].
// Cosine distance spans [0, 2]; L2 spans [0, inf).
func distanceToScore(distance float32, metric string) float32 {
	if metric == "l2" {
		return 1 / (1 + distance)
	}
	return 1 - distance/2
}
