package search

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Aman-CERP/hybridrag/internal/store"
)

// Fusion method names.
const (
	FusionLinear = "linear"
	FusionRRF    = "rrf"
)

// Fusion merges the two signals for one query.
//
// vector holds the collaborator's hits best-first. lexical holds one raw score
// per corpus position. The returned slice is ordered best-first and holds at
// most topK results.
type Fusion interface {
	Name() string
	Fuse(vector []store.ScoredPassage, lexical []float64, corpus []store.Passage, alpha float64, topK int) []Result
}

// NewFusion returns the fusion method for name. An empty name selects linear.
func NewFusion(name string, rrfConstant int) (Fusion, error) {
	switch strings.ToLower(name) {
	case "", FusionLinear:
		return LinearFusion{}, nil
	case FusionRRF:
		return NewRRFFusionWithK(rrfConstant), nil
	default:
		return nil, fmt.Errorf("unknown fusion method %q (use %s or %s)", name, FusionLinear, FusionRRF)
	}
}

// LinearFusion interpolates normalized scores:
//
//	score = alpha*vector + (1-alpha)*lexical/max(lexical)
type LinearFusion struct{}

var _ Fusion = LinearFusion{}

// Name implements Fusion.
func (LinearFusion) Name() string { return FusionLinear }

// Fuse implements Fusion.
func (LinearFusion) Fuse(vector []store.ScoredPassage, lexical []float64, corpus []store.Passage, alpha float64, topK int) []Result {
	return Fuse(vector, lexical, corpus, alpha, topK)
}

// Fuse is the linear score fusion.
//
// Candidates are the union of the vector hits and every corpus passage. A
// passage missed by one signal scores zero on it. Vector scores are used as
// returned; lexical scores are divided by the best lexical score of the query,
// or by 1 when that best score is not positive. Equal scores keep insertion
// order: vector hits in collaborator order, then lexical-only passages in
// corpus order.
func Fuse(vector []store.ScoredPassage, lexical []float64, corpus []store.Passage, alpha float64, topK int) []Result {
	if topK < 1 {
		return []Result{}
	}

	entries, byID := collectVector(vector, len(corpus))

	denom := 1.0
	if m := maxScore(lexical, len(corpus)); m > 0 {
		denom = m
	}

	lexSeen := make(map[string]bool, len(corpus))
	for i, p := range corpus {
		var norm float64
		if i < len(lexical) {
			norm = lexical[i] / denom
		}
		r, ok := byID[p.ID]
		if !ok {
			r = &Result{ID: p.ID, Content: p.Content}
			byID[p.ID] = r
			entries = append(entries, r)
		} else if r.Content == "" {
			r.Content = p.Content
		}
		// A repeated corpus id keeps its best lexical score.
		if !lexSeen[p.ID] || norm > r.LexicalScore {
			r.LexicalScore = norm
			lexSeen[p.ID] = true
		}
	}

	for _, r := range entries {
		r.Score = alpha*r.VectorScore + (1-alpha)*r.LexicalScore
	}

	return rank(entries, topK)
}

// collectVector keys hits by id in first-seen order. A repeated id keeps its
// first entry.
func collectVector(vector []store.ScoredPassage, extra int) ([]*Result, map[string]*Result) {
	entries := make([]*Result, 0, len(vector)+extra)
	byID := make(map[string]*Result, len(vector)+extra)
	for _, v := range vector {
		if _, seen := byID[v.ID]; seen {
			continue
		}
		r := &Result{ID: v.ID, Content: v.Content, VectorScore: v.Score}
		byID[v.ID] = r
		entries = append(entries, r)
	}
	return entries, byID
}

// maxScore returns the largest of the first n scores, 0 if there are none.
func maxScore(scores []float64, n int) float64 {
	if n > len(scores) {
		n = len(scores)
	}
	if n == 0 {
		return 0
	}
	m := scores[0]
	for _, s := range scores[1:n] {
		if s > m {
			m = s
		}
	}
	return m
}

// rank stable-sorts entries by score descending and copies out the first topK.
func rank(entries []*Result, topK int) []Result {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Score > entries[j].Score
	})
	if len(entries) > topK {
		entries = entries[:topK]
	}
	out := make([]Result, len(entries))
	for i, r := range entries {
		out[i] = *r
	}
	return out
}
