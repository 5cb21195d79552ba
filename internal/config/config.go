// Package config loads hybridrag settings from defaults, YAML files, .env
// files and HYBRIDRAG_* environment variables.
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/hybridrag/internal/embed"
	herrors "github.com/Aman-CERP/hybridrag/internal/errors"
	"github.com/Aman-CERP/hybridrag/internal/ingest"
	"github.com/Aman-CERP/hybridrag/internal/lexical"
	"github.com/Aman-CERP/hybridrag/internal/search"
)

const (
	// ProjectConfigName is the per-corpus config file. ".hybridrag.yml" is
	// read when it is absent.
	ProjectConfigName    = ".hybridrag.yaml"
	projectConfigNameAlt = ".hybridrag.yml"

	// DefaultDataDirName is created inside the corpus directory.
	DefaultDataDirName = ".hybridrag"

	// EnvPrefix prefixes every environment override.
	EnvPrefix = "HYBRIDRAG_"
)

// Config is the complete hybridrag configuration.
type Config struct {
	Version    int              `yaml:"version"`
	Corpus     CorpusConfig     `yaml:"corpus"`
	Chunking   ChunkingConfig   `yaml:"chunking"`
	Lexical    LexicalConfig    `yaml:"lexical"`
	Search     SearchConfig     `yaml:"search"`
	Embeddings EmbeddingsConfig `yaml:"embeddings"`
	Vector     VectorConfig     `yaml:"vector"`
	Server     ServerConfig     `yaml:"server"`
}

// CorpusConfig controls which files are ingested and how they are cleaned.
type CorpusConfig struct {
	// DataDir holds passages.db and the vector graph. Relative paths are
	// resolved against the corpus directory.
	DataDir     string              `yaml:"data_dir"`
	Extensions  []string            `yaml:"extensions"`
	MaxFileSize int64               `yaml:"max_file_size"`
	Workers     int                 `yaml:"workers"`
	Preprocess  ingest.CleanOptions `yaml:"preprocess"`
}

// ChunkingConfig mirrors ingest.ChunkOptions.
type ChunkingConfig = ingest.ChunkOptions

// LexicalConfig selects the lexical backend and its BM25 parameters.
type LexicalConfig struct {
	Backend string  `yaml:"backend"`
	K1      float64 `yaml:"k1"`
	B       float64 `yaml:"b"`
	Epsilon float64 `yaml:"epsilon"`
}

// SearchConfig controls fusion.
type SearchConfig struct {
	// Alpha weights the vector signal; 1-Alpha weights the lexical signal.
	Alpha               float64       `yaml:"alpha"`
	TopK                int           `yaml:"top_k"`
	CandidateMultiplier int           `yaml:"candidate_multiplier"`
	Fusion              string        `yaml:"fusion"`
	RRFConstant         int           `yaml:"rrf_constant"`
	VectorTimeout       time.Duration `yaml:"vector_timeout"`
}

// EmbeddingsConfig selects the embedder.
type EmbeddingsConfig struct {
	Provider          string        `yaml:"provider"`
	Model             string        `yaml:"model"`
	OllamaHost        string        `yaml:"ollama_host"`
	Dimensions        int           `yaml:"dimensions"`
	BatchSize         int           `yaml:"batch_size"`
	Timeout           time.Duration `yaml:"timeout"`
	CacheSize         int           `yaml:"cache_size"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
}

// VectorConfig holds HNSW parameters.
type VectorConfig struct {
	Metric   string `yaml:"metric"`
	M        int    `yaml:"m"`
	EfSearch int    `yaml:"ef_search"`
}

// ServerConfig controls logging and the serving adapters.
type ServerConfig struct {
	LogLevel      string        `yaml:"log_level"`
	HTTPAddr      string        `yaml:"http_addr"`
	Metrics       bool          `yaml:"metrics"`
	WatchDebounce time.Duration `yaml:"watch_debounce"`
}

// NewConfig returns the defaults.
func NewConfig() *Config {
	lex := lexical.DefaultConfig()
	return &Config{
		Version: 1,
		Corpus: CorpusConfig{
			DataDir:     DefaultDataDirName,
			Extensions:  []string{".txt"},
			MaxFileSize: ingest.DefaultMaxFileSize,
			Preprocess:  ingest.DefaultCleanOptions(),
		},
		Chunking: ingest.DefaultChunkOptions(),
		Lexical: LexicalConfig{
			Backend: lexical.BackendOkapi,
			K1:      lex.K1,
			B:       lex.B,
			Epsilon: lex.Epsilon,
		},
		Search: SearchConfig{
			Alpha:               search.DefaultAlpha,
			TopK:                5,
			CandidateMultiplier: search.DefaultCandidateMultiplier,
			Fusion:              search.FusionLinear,
			RRFConstant:         search.DefaultRRFConstant,
			VectorTimeout:       search.DefaultVectorTimeout,
		},
		Embeddings: EmbeddingsConfig{
			Provider:   string(embed.ProviderStatic),
			Model:      embed.DefaultOllamaModel,
			OllamaHost: embed.DefaultOllamaHost,
			BatchSize:  embed.DefaultBatchSize,
			Timeout:    embed.DefaultTimeout,
			CacheSize:  embed.DefaultEmbeddingCacheSize,
		},
		Vector: VectorConfig{
			Metric:   "cos",
			M:        16,
			EfSearch: 20,
		},
		Server: ServerConfig{
			LogLevel:      "info",
			HTTPAddr:      ":8080",
			Metrics:       true,
			WatchDebounce: 500 * time.Millisecond,
		},
	}
}

// GetUserConfigPath returns $XDG_CONFIG_HOME/hybridrag/config.yaml, falling
// back to ~/.config/hybridrag/config.yaml.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "hybridrag", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "hybridrag", "config.yaml")
	}
	return filepath.Join(home, ".config", "hybridrag", "config.yaml")
}

// UserConfigExists reports whether the user config file is present.
func UserConfigExists() bool {
	_, err := os.Stat(GetUserConfigPath())
	return err == nil
}

// ProjectConfigPath returns the project config in dir, preferring .yaml
// over .yml. The .yaml path is returned when neither exists.
func ProjectConfigPath(dir string) string {
	primary := filepath.Join(dir, ProjectConfigName)
	if _, err := os.Stat(primary); err == nil {
		return primary
	}
	alt := filepath.Join(dir, projectConfigNameAlt)
	if _, err := os.Stat(alt); err == nil {
		return alt
	}
	return primary
}

// Load builds the configuration for the corpus in dir. Later layers win:
//  1. Defaults
//  2. User config (GetUserConfigPath)
//  3. Project config (dir/.hybridrag.yaml)
//  4. dir/.env then dir/.env.local
//  5. Process environment (HYBRIDRAG_*)
func Load(dir string) (*Config, error) {
	cfg, err := Resolve(dir)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Resolve merges every layer like Load but does not validate the result.
// Malformed files and environment values are still errors.
func Resolve(dir string) (*Config, error) {
	cfg := NewConfig()

	if err := cfg.loadYAMLIfExists(GetUserConfigPath()); err != nil {
		return nil, err
	}
	if err := cfg.loadYAMLIfExists(ProjectConfigPath(dir)); err != nil {
		return nil, err
	}

	env, err := readDotEnv(dir)
	if err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := env[key]
		return v, ok
	}); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadYAMLIfExists decodes path over the current values. Keys missing from
// the file keep their current value, so an explicit zero (alpha: 0) is
// distinguishable from an absent key.
func (c *Config) loadYAMLIfExists(path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return herrors.IOError("failed to read config file", err).WithDetail("path", path)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return herrors.New(herrors.ErrCodeConfigInvalid, "failed to parse config file", err).
			WithDetail("path", path)
	}
	return nil
}

// readDotEnv merges dir/.env and dir/.env.local; .env.local wins.
func readDotEnv(dir string) (map[string]string, error) {
	merged := map[string]string{}
	for _, name := range []string{".env", ".env.local"} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		vals, err := godotenv.Read(path)
		if err != nil {
			return nil, herrors.New(herrors.ErrCodeConfigInvalid, "failed to parse "+name, err).
				WithDetail("path", path)
		}
		for k, v := range vals {
			merged[k] = v
		}
	}
	return merged, nil
}

// envOverride binds one HYBRIDRAG_* variable to a config field.
type envOverride struct {
	key   string
	apply func(c *Config, v string) error
}

var envOverrides = []envOverride{
	{"ALPHA", floatField(func(c *Config) *float64 { return &c.Search.Alpha })},
	{"TOP_K", intField(func(c *Config) *int { return &c.Search.TopK })},
	{"CANDIDATE_MULTIPLIER", intField(func(c *Config) *int { return &c.Search.CandidateMultiplier })},
	{"FUSION", stringField(func(c *Config) *string { return &c.Search.Fusion })},
	{"RRF_CONSTANT", intField(func(c *Config) *int { return &c.Search.RRFConstant })},
	{"VECTOR_TIMEOUT", durationField(func(c *Config) *time.Duration { return &c.Search.VectorTimeout })},
	{"LEXICAL_BACKEND", stringField(func(c *Config) *string { return &c.Lexical.Backend })},
	{"EMBEDDINGS_PROVIDER", stringField(func(c *Config) *string { return &c.Embeddings.Provider })},
	{"EMBEDDINGS_MODEL", stringField(func(c *Config) *string { return &c.Embeddings.Model })},
	{"OLLAMA_HOST", stringField(func(c *Config) *string { return &c.Embeddings.OllamaHost })},
	{"EMBEDDINGS_TIMEOUT", durationField(func(c *Config) *time.Duration { return &c.Embeddings.Timeout })},
	{"REQUESTS_PER_SECOND", floatField(func(c *Config) *float64 { return &c.Embeddings.RequestsPerSecond })},
	{"CHUNK_STRATEGY", stringField(func(c *Config) *string { return &c.Chunking.Strategy })},
	{"CHUNK_SIZE", intField(func(c *Config) *int { return &c.Chunking.ChunkSize })},
	{"DATA_DIR", stringField(func(c *Config) *string { return &c.Corpus.DataDir })},
	{"LOG_LEVEL", stringField(func(c *Config) *string { return &c.Server.LogLevel })},
	{"HTTP_ADDR", stringField(func(c *Config) *string { return &c.Server.HTTPAddr })},
}

// applyEnv applies HYBRIDRAG_* overrides. A value that does not parse is a
// configuration error rather than silently ignored.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	for _, o := range envOverrides {
		key := EnvPrefix + o.key
		v, ok := lookup(key)
		if !ok || v == "" {
			continue
		}
		if err := o.apply(c, strings.TrimSpace(v)); err != nil {
			return herrors.New(herrors.ErrCodeConfigInvalid, "invalid value for "+key, err).
				WithDetail("value", v)
		}
	}
	return nil
}

func stringField(f func(*Config) *string) func(*Config, string) error {
	return func(c *Config, v string) error {
		*f(c) = v
		return nil
	}
}

func intField(f func(*Config) *int) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*f(c) = n
		return nil
	}
}

func floatField(f func(*Config) *float64) func(*Config, string) error {
	return func(c *Config, v string) error {
		x, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		*f(c) = x
		return nil
	}
}

func durationField(f func(*Config) *time.Duration) func(*Config, string) error {
	return func(c *Config, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*f(c) = d
		return nil
	}
}

// Validate checks every section. Alpha out of range is reported with its
// own code so callers can match it.
func (c *Config) Validate() error {
	if math.IsNaN(c.Search.Alpha) || c.Search.Alpha < 0 || c.Search.Alpha > 1 {
		return herrors.Newf(herrors.ErrCodeAlphaOutOfRange, "search.alpha must be between 0 and 1, got %v", c.Search.Alpha)
	}

	invalid := func(format string, args ...any) error {
		return herrors.Newf(herrors.ErrCodeConfigInvalid, format, args...)
	}
	if c.Search.TopK < 1 {
		return invalid("search.top_k must be at least 1, got %d", c.Search.TopK)
	}
	if c.Search.CandidateMultiplier < 1 {
		return invalid("search.candidate_multiplier must be at least 1, got %d", c.Search.CandidateMultiplier)
	}
	switch strings.ToLower(c.Search.Fusion) {
	case search.FusionLinear, search.FusionRRF:
	default:
		return invalid("search.fusion must be %q or %q, got %q", search.FusionLinear, search.FusionRRF, c.Search.Fusion)
	}
	if c.Search.RRFConstant < 1 {
		return invalid("search.rrf_constant must be positive, got %d", c.Search.RRFConstant)
	}
	if c.Search.VectorTimeout < 0 {
		return invalid("search.vector_timeout must not be negative, got %s", c.Search.VectorTimeout)
	}

	switch strings.ToLower(c.Lexical.Backend) {
	case lexical.BackendOkapi, lexical.BackendBleve:
	default:
		return herrors.Newf(herrors.ErrCodeUnknownBackend, "lexical.backend must be %q or %q, got %q",
			lexical.BackendOkapi, lexical.BackendBleve, c.Lexical.Backend)
	}
	if err := c.LexicalParams().Validate(); err != nil {
		return herrors.New(herrors.ErrCodeConfigInvalid, "invalid lexical parameters", err)
	}

	if !embed.IsValidProvider(c.Embeddings.Provider) {
		return herrors.Newf(herrors.ErrCodeUnknownBackend, "embeddings.provider must be one of %s, got %q",
			strings.Join(embed.ValidProviders(), ", "), c.Embeddings.Provider)
	}
	if c.Embeddings.Dimensions < 0 || c.Embeddings.BatchSize < 0 || c.Embeddings.RequestsPerSecond < 0 {
		return invalid("embeddings dimensions, batch_size and requests_per_second must not be negative")
	}

	if err := c.Chunking.Validate(); err != nil {
		return herrors.New(herrors.ErrCodeConfigInvalid, "invalid chunking", err)
	}
	if c.Corpus.Workers < 0 {
		return invalid("corpus.workers must not be negative, got %d", c.Corpus.Workers)
	}

	switch c.Vector.Metric {
	case "cos", "l2":
	default:
		return invalid("vector.metric must be \"cos\" or \"l2\", got %q", c.Vector.Metric)
	}

	switch strings.ToLower(c.Server.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return invalid("server.log_level must be debug, info, warn or error, got %q", c.Server.LogLevel)
	}
	return nil
}

// LexicalParams returns the BM25 parameters.
func (c *Config) LexicalParams() lexical.Config {
	return lexical.Config{K1: c.Lexical.K1, B: c.Lexical.B, Epsilon: c.Lexical.Epsilon}
}

// EmbedderConfig returns the embed factory settings.
func (c *Config) EmbedderConfig() embed.Config {
	return embed.Config{
		Provider:          embed.ParseProvider(c.Embeddings.Provider),
		Model:             c.Embeddings.Model,
		Host:              c.Embeddings.OllamaHost,
		Dimensions:        c.Embeddings.Dimensions,
		BatchSize:         c.Embeddings.BatchSize,
		Timeout:           c.Embeddings.Timeout,
		RequestsPerSecond: c.Embeddings.RequestsPerSecond,
		CacheSize:         c.Embeddings.CacheSize,
	}
}

// IngestConfig returns the ingestion pipeline settings. dataDir is skipped
// while loading.
func (c *Config) IngestConfig(dataDir string) ingest.Config {
	return ingest.Config{
		Load: ingest.LoadOptions{
			Extensions:  c.Corpus.Extensions,
			MaxFileSize: c.Corpus.MaxFileSize,
			SkipDirs:    []string{dataDir},
		},
		Clean:   c.Corpus.Preprocess,
		Chunk:   c.Chunking,
		Workers: c.Corpus.Workers,
	}
}

// DataDir resolves Corpus.DataDir against corpusDir.
func (c *Config) DataDir(corpusDir string) string {
	if filepath.IsAbs(c.Corpus.DataDir) {
		return c.Corpus.DataDir
	}
	return filepath.Join(corpusDir, c.Corpus.DataDir)
}

// WriteYAML writes the configuration to path.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
