package preflight

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Aman-CERP/hybridrag/internal/config"
	"github.com/Aman-CERP/hybridrag/internal/embed"
	herrors "github.com/Aman-CERP/hybridrag/internal/errors"
	"github.com/Aman-CERP/hybridrag/internal/index"
	"github.com/Aman-CERP/hybridrag/internal/ingest"
	"github.com/Aman-CERP/hybridrag/internal/store"
)

// Status is the outcome of one check.
type Status int

const (
	StatusPass Status = iota
	StatusWarn
	StatusFail
)

func (s Status) String() string {
	switch s {
	case StatusPass:
		return "pass"
	case StatusWarn:
		return "warn"
	case StatusFail:
		return "fail"
	default:
		return "unknown"
	}
}

// MarshalText encodes the status by name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Result is the outcome of one named check.
type Result struct {
	Name     string `json:"name"`
	Status   Status `json:"status"`
	Message  string `json:"message"`
	Details  string `json:"details,omitempty"`
	Required bool   `json:"required"`
}

// Critical reports a failed required check.
func (r Result) Critical() bool {
	return r.Required && r.Status == StatusFail
}

// Report collects every check.
type Report struct {
	Results []Result `json:"results"`
	Summary string   `json:"summary"`
}

// Critical reports whether any required check failed.
func (r Report) Critical() bool {
	for _, res := range r.Results {
		if res.Critical() {
			return true
		}
	}
	return false
}

func summarize(results []Result) string {
	warn := false
	for _, r := range results {
		if r.Critical() {
			return "failed"
		}
		if r.Status != StatusPass {
			warn = true
		}
	}
	if warn {
		return "ready_with_warnings"
	}
	return "ready"
}

// EmbedderFactory builds the configured embedder.
type EmbedderFactory func(ctx context.Context, cfg embed.Config) (embed.Embedder, error)

// Checker runs the checks for one corpus.
type Checker struct {
	cfg         *config.Config
	corpusDir   string
	dataDir     string
	newEmbedder EmbedderFactory
	timeout     time.Duration
}

// Option configures a Checker.
type Option func(*Checker)

// WithEmbedderFactory replaces embed.NewEmbedder.
func WithEmbedderFactory(f EmbedderFactory) Option {
	return func(c *Checker) { c.newEmbedder = f }
}

// WithEmbedderTimeout bounds the embedder check. Default 10s.
func WithEmbedderTimeout(d time.Duration) Option {
	return func(c *Checker) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// New creates a Checker for corpusDir using cfg.
func New(cfg *config.Config, corpusDir string, opts ...Option) *Checker {
	c := &Checker{
		cfg:         cfg,
		corpusDir:   corpusDir,
		dataDir:     cfg.DataDir(corpusDir),
		newEmbedder: embed.NewEmbedder,
		timeout:     10 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run executes every check in order.
func (c *Checker) Run(ctx context.Context) Report {
	results := []Result{
		c.CheckConfig(),
		c.CheckCorpus(ctx),
		c.CheckDataDir(),
		CheckDiskSpace(c.dataDir),
		CheckFileDescriptors(),
		c.CheckEmbedder(ctx),
		c.CheckIndex(),
	}
	return Report{Results: results, Summary: summarize(results)}
}

// CheckConfig validates the merged configuration.
func (c *Checker) CheckConfig() Result {
	r := Result{Name: "config", Required: true}
	if err := c.cfg.Validate(); err != nil {
		r.Status = StatusFail
		r.Message = err.Error()
		var he *herrors.HybridError
		if errors.As(err, &he) {
			r.Details = he.Suggestion
		}
		return r
	}
	r.Message = "valid"
	return r
}

// CheckCorpus counts the documents that would be loaded.
func (c *Checker) CheckCorpus(ctx context.Context) Result {
	r := Result{Name: "corpus", Required: true}
	docs, err := ingest.LoadDir(ctx, c.corpusDir, c.cfg.IngestConfig(c.dataDir).Load)
	if err != nil {
		r.Status = StatusFail
		r.Message = err.Error()
		return r
	}
	if len(docs) == 0 {
		r.Status = StatusWarn
		r.Message = "no documents found"
		r.Details = fmt.Sprintf("looking for %v files in %s", c.cfg.Corpus.Extensions, c.corpusDir)
		return r
	}
	r.Message = fmt.Sprintf("%d documents", len(docs))
	return r
}

// CheckDataDir verifies the data directory can be created and written.
func (c *Checker) CheckDataDir() Result {
	r := Result{Name: "data_dir", Required: true, Details: c.dataDir}
	if err := os.MkdirAll(c.dataDir, 0o755); err != nil {
		r.Status = StatusFail
		r.Message = fmt.Sprintf("cannot create: %v", err)
		return r
	}
	f, err := os.CreateTemp(c.dataDir, ".preflight-*")
	if err != nil {
		r.Status = StatusFail
		r.Message = fmt.Sprintf("not writable: %v", err)
		return r
	}
	_ = f.Close()
	_ = os.Remove(f.Name())
	r.Message = "writable"
	return r
}

// CheckEmbedder builds the configured embedder and probes it. A missing
// embedder is a warning: search falls back to the lexical signal.
func (c *Checker) CheckEmbedder(ctx context.Context) Result {
	r := Result{Name: "embedder"}
	ecfg := c.cfg.EmbedderConfig()
	if ecfg.Provider == embed.ProviderNone {
		r.Message = "disabled, keyword search only"
		return r
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	e, err := c.newEmbedder(ctx, ecfg)
	if err != nil {
		r.Status = StatusWarn
		r.Message = fmt.Sprintf("%s unavailable", ecfg.Provider)
		r.Details = err.Error()
		return r
	}
	if e == nil {
		r.Message = "disabled, keyword search only"
		return r
	}
	defer func() { _ = e.Close() }()

	info := embed.GetInfo(ctx, e)
	if !info.Available {
		r.Status = StatusWarn
		r.Message = fmt.Sprintf("%s %s not responding", info.Provider, info.Model)
		return r
	}
	r.Message = fmt.Sprintf("%s %s, %d dimensions", info.Provider, info.Model, info.Dimensions)
	return r
}

// CheckIndex reports whether an index exists and whether another process
// is rewriting it.
func (c *Checker) CheckIndex() Result {
	r := Result{Name: "index"}
	corpusFile := filepath.Join(c.dataDir, index.CorpusFileName)
	info, err := os.Stat(corpusFile)
	if err != nil {
		r.Status = StatusWarn
		r.Message = "not indexed"
		r.Details = "run 'hybridrag index' to build it"
		return r
	}

	lock := index.NewDataDirLock(c.dataDir)
	if err := lock.TryLock(); err != nil {
		r.Status = StatusWarn
		if herrors.GetCode(err) == herrors.ErrCodeIndexLocked {
			r.Message = "locked, indexing in progress"
		} else {
			r.Message = err.Error()
		}
		return r
	}
	_ = lock.Unlock()

	r.Message = fmt.Sprintf("%s, modified %s", formatBytes(uint64(info.Size())), info.ModTime().Format(time.RFC3339))
	vectorFile := filepath.Join(c.dataDir, index.VectorFileName)
	if _, err := os.Stat(vectorFile); errors.Is(err, os.ErrNotExist) {
		r.Details = "no vector graph, search is keyword only"
		return r
	}
	dims, err := store.ReadVectorDimensions(vectorFile)
	switch {
	case err != nil:
		r.Status = StatusWarn
		r.Details = "vector graph unreadable, run 'hybridrag index' to rebuild: " + err.Error()
	case c.cfg.Embeddings.Dimensions > 0 && dims > 0 && dims != c.cfg.Embeddings.Dimensions:
		r.Status = StatusWarn
		r.Details = fmt.Sprintf("vector graph has %d dimensions, embeddings.dimensions is %d; re-index", dims, c.cfg.Embeddings.Dimensions)
	case dims > 0:
		r.Details = fmt.Sprintf("vector graph, %d dimensions", dims)
	}
	return r
}

func formatBytes(bytes uint64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
	)
	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/GB)
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/MB)
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/KB)
	default:
		return fmt.Sprintf("%d bytes", bytes)
	}
}
