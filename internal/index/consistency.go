package index

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Aman-CERP/hybridrag/internal/search"
	"github.com/Aman-CERP/hybridrag/internal/store"
	"github.com/Aman-CERP/hybridrag/internal/vector"
)

// InconsistencyType categorizes detected issues.
type InconsistencyType int

const (
	// InconsistencyMissingLexical is a stored passage absent from the
	// lexical snapshot.
	InconsistencyMissingLexical InconsistencyType = iota
	// InconsistencyOrphanLexical is a lexical passage absent from the store.
	InconsistencyOrphanLexical
	// InconsistencyMissingVector is a stored passage the vector collection
	// does not know.
	InconsistencyMissingVector
	// InconsistencyModelMismatch means the vectors were built by a
	// different embedder model than the one in use.
	InconsistencyModelMismatch
	// InconsistencyOrphanVector is a graph id absent from the store.
	InconsistencyOrphanVector
)

// String returns the snake_case name used in logs and JSON.
func (t InconsistencyType) String() string {
	switch t {
	case InconsistencyMissingLexical:
		return "missing_lexical"
	case InconsistencyOrphanLexical:
		return "orphan_lexical"
	case InconsistencyMissingVector:
		return "missing_vector"
	case InconsistencyModelMismatch:
		return "model_mismatch"
	case InconsistencyOrphanVector:
		return "orphan_vector"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (t InconsistencyType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// Inconsistency is one detected cross-store issue.
type Inconsistency struct {
	Type      InconsistencyType `json:"type"`
	PassageID string            `json:"passage_id,omitempty"`
	Details   string            `json:"details"`
}

// CheckResult is the outcome of a consistency check.
type CheckResult struct {
	// Checked is the number of stored passages verified.
	Checked         int             `json:"checked"`
	Inconsistencies []Inconsistency `json:"inconsistencies"`
	Duration        time.Duration   `json:"duration"`
}

// Consistent reports whether no issue was found.
func (r *CheckResult) Consistent() bool {
	return len(r.Inconsistencies) == 0
}

// Count returns the number of issues of type t.
func (r *CheckResult) Count(t InconsistencyType) int {
	n := 0
	for _, inc := range r.Inconsistencies {
		if inc.Type == t {
			n++
		}
	}
	return n
}

// ConsistencyChecker compares the corpus store, which is the source of
// truth, with the in-memory lexical snapshot and vector collection.
type ConsistencyChecker struct {
	corpus     *store.CorpusStore
	retriever  *search.Retriever
	collection *vector.Collection
}

// NewConsistencyChecker creates a checker. collection may be nil, in which
// case vectors are not checked.
func NewConsistencyChecker(corpus *store.CorpusStore, retriever *search.Retriever, collection *vector.Collection) *ConsistencyChecker {
	return &ConsistencyChecker{
		corpus:     corpus,
		retriever:  retriever,
		collection: collection,
	}
}

// Check scans every store for inconsistencies.
func (c *ConsistencyChecker) Check(ctx context.Context) (*CheckResult, error) {
	start := time.Now()

	stored, err := c.corpus.Passages(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(stored))
	storedSet := make(map[string]struct{}, len(stored))
	for i, p := range stored {
		ids[i] = p.ID
		storedSet[p.ID] = struct{}{}
	}

	issues := []Inconsistency{}

	lexicalSet := make(map[string]struct{})
	for _, p := range c.retriever.Passages() {
		lexicalSet[p.ID] = struct{}{}
		if _, ok := storedSet[p.ID]; !ok {
			issues = append(issues, Inconsistency{
				Type:      InconsistencyOrphanLexical,
				PassageID: p.ID,
				Details:   "lexical passage without a stored passage",
			})
		}
	}
	for _, id := range ids {
		if _, ok := lexicalSet[id]; !ok {
			issues = append(issues, Inconsistency{
				Type:      InconsistencyMissingLexical,
				PassageID: id,
				Details:   "stored passage missing from the lexical index",
			})
		}
	}

	if c.collection != nil {
		for _, id := range c.collection.Unknown(ids) {
			issues = append(issues, Inconsistency{
				Type:      InconsistencyOrphanVector,
				PassageID: id,
				Details:   "vector without a stored passage",
			})
		}
	}

	if c.collection != nil && len(ids) > 0 {
		for _, id := range c.collection.Missing(ids) {
			issues = append(issues, Inconsistency{
				Type:      InconsistencyMissingVector,
				PassageID: id,
				Details:   "stored passage missing from the vector collection",
			})
		}
		model, err := c.corpus.EmbedderModel(ctx)
		if err != nil {
			return nil, err
		}
		if model != c.collection.ModelName() {
			issues = append(issues, Inconsistency{
				Type:    InconsistencyModelMismatch,
				Details: fmt.Sprintf("corpus was embedded with %q, current model is %q", model, c.collection.ModelName()),
			})
		}
	}

	result := &CheckResult{
		Checked:         len(ids),
		Inconsistencies: issues,
		Duration:        time.Since(start),
	}
	if !result.Consistent() {
		slog.Warn("index_inconsistent",
			slog.Int("checked", result.Checked),
			slog.Int("issues", len(issues)))
	}
	return result, nil
}
