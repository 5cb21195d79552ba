package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
)

const corpusSchema = `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER PRIMARY KEY
);

-- position preserves build order so the lexical index can be rebuilt
-- with the same passage ordering after a restart.
CREATE TABLE IF NOT EXISTS passages (
	position INTEGER PRIMARY KEY,
	id       TEXT NOT NULL UNIQUE,
	source   TEXT NOT NULL DEFAULT '',
	ordinal  INTEGER NOT NULL DEFAULT 0,
	content  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS corpus_state (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

INSERT OR IGNORE INTO schema_version (version) VALUES (1);
`

const (
	stateKeyIndexedAt     = "indexed_at"
	stateKeyEmbedderModel = "embedder_model"
)

// CorpusStore persists the passage corpus in SQLite.
// The whole corpus is replaced on each index run; there are no partial updates.
type CorpusStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
}

// NewCorpusStore opens or creates the corpus database at path.
// An empty path opens an in-memory database.
func NewCorpusStore(path string) (*CorpusStore, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
		dsn = path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single connection: an in-memory database exists per connection, and a
	// single writer avoids lock contention on disk.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// modernc.org/sqlite ignores most DSN params, so set pragmas explicitly.
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	if path == "" {
		pragmas = pragmas[1:]
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(corpusSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	var check string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&check); err != nil || check != "ok" {
		_ = db.Close()
		if err == nil {
			err = fmt.Errorf("integrity check: %s", check)
		}
		slog.Warn("corpus_store_corrupted", slog.String("path", path), slog.String("error", err.Error()))
		return nil, fmt.Errorf("corpus database is corrupted, delete %s and reindex: %w", path, err)
	}

	return &CorpusStore{db: db, path: path}, nil
}

// Replace atomically swaps the stored corpus for passages, preserving order.
func (s *CorpusStore) Replace(ctx context.Context, passages []SourcedPassage, embedderModel string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM passages"); err != nil {
		return fmt.Errorf("failed to clear passages: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO passages (position, id, source, ordinal, content) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i, p := range passages {
		if _, err := stmt.ExecContext(ctx, i, p.ID, p.Source, p.Ordinal, p.Content); err != nil {
			return fmt.Errorf("failed to insert passage %s: %w", p.ID, err)
		}
	}

	state := map[string]string{
		stateKeyIndexedAt:     time.Now().UTC().Format(time.RFC3339),
		stateKeyEmbedderModel: embedderModel,
	}
	for k, v := range state {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO corpus_state (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
			k, v); err != nil {
			return fmt.Errorf("failed to write corpus state: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit corpus: %w", err)
	}
	return nil
}

// Passages returns the stored corpus in build order.
func (s *CorpusStore) Passages(ctx context.Context) ([]SourcedPassage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	rows, err := s.db.QueryContext(ctx, "SELECT id, source, ordinal, content FROM passages ORDER BY position")
	if err != nil {
		return nil, fmt.Errorf("failed to query passages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	passages := make([]SourcedPassage, 0)
	for rows.Next() {
		var p SourcedPassage
		if err := rows.Scan(&p.ID, &p.Source, &p.Ordinal, &p.Content); err != nil {
			return nil, fmt.Errorf("failed to scan passage: %w", err)
		}
		passages = append(passages, p)
	}
	return passages, rows.Err()
}

// Stats summarizes the stored corpus.
func (s *CorpusStore) Stats(ctx context.Context) (CorpusStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return CorpusStats{}, ErrStoreClosed
	}

	var stats CorpusStats
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COUNT(DISTINCT source) FROM passages").Scan(&stats.Passages, &stats.Sources)
	if err != nil {
		return CorpusStats{}, fmt.Errorf("failed to count passages: %w", err)
	}

	if v, err := s.state(ctx, stateKeyIndexedAt); err == nil && v != "" {
		if t, perr := time.Parse(time.RFC3339, v); perr == nil {
			stats.IndexedAt = t
		}
	}
	return stats, nil
}

// EmbedderModel returns the embedder model recorded by the last Replace.
func (s *CorpusStore) EmbedderModel(ctx context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return "", ErrStoreClosed
	}
	return s.state(ctx, stateKeyEmbedderModel)
}

func (s *CorpusStore) state(ctx context.Context, key string) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM corpus_state WHERE key = ?", key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", key, err)
	}
	return v, nil
}

// Close checkpoints the WAL and closes the database.
func (s *CorpusStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if s.path != "" {
		if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
			slog.Debug("wal_checkpoint_failed", slog.String("error", err.Error()))
		}
	}
	return s.db.Close()
}

// String implements fmt.Stringer for log output.
func (s CorpusStats) String() string {
	return strconv.Itoa(s.Passages) + " passages from " + strconv.Itoa(s.Sources) + " sources"
}
