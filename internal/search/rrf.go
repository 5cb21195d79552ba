package search

import (
	"sort"

	"github.com/Aman-CERP/hybridrag/internal/store"
)

// DefaultRRFConstant is the standard RRF smoothing parameter.
const DefaultRRFConstant = 60

// RRFFusion combines the signals by rank instead of by score:
//
//	score(d) = alpha/(k + rank_vector(d)) + (1-alpha)/(k + rank_lexical(d))
//
// Ranks are 1-indexed. A passage missing from one list takes
// rank max(len(vector), len(lexical)) + 1 there. Lexical ranks cover only
// passages with a positive lexical score. Scores are scaled so the best
// result is 1.
type RRFFusion struct {
	K int
}

var _ Fusion = (*RRFFusion)(nil)

// NewRRFFusion creates an RRF fusion with k=60.
func NewRRFFusion() *RRFFusion {
	return &RRFFusion{K: DefaultRRFConstant}
}

// NewRRFFusionWithK creates an RRF fusion with a custom k. k <= 0 uses 60.
func NewRRFFusionWithK(k int) *RRFFusion {
	if k <= 0 {
		k = DefaultRRFConstant
	}
	return &RRFFusion{K: k}
}

// Name implements Fusion.
func (f *RRFFusion) Name() string { return FusionRRF }

// Fuse implements Fusion.
func (f *RRFFusion) Fuse(vector []store.ScoredPassage, lexical []float64, corpus []store.Passage, alpha float64, topK int) []Result {
	if topK < 1 {
		return []Result{}
	}

	entries, byID := collectVector(vector, len(corpus))
	vecRank := make(map[string]int, len(entries))
	for i, r := range entries {
		vecRank[r.ID] = i + 1
	}

	denom := 1.0
	if m := maxScore(lexical, len(corpus)); m > 0 {
		denom = m
	}

	positions := make([]int, 0, len(corpus))
	for i := range corpus {
		if i < len(lexical) && lexical[i] > 0 {
			positions = append(positions, i)
		}
	}
	sort.SliceStable(positions, func(a, b int) bool {
		return lexical[positions[a]] > lexical[positions[b]]
	})

	lexRank := make(map[string]int, len(positions))
	for rank, i := range positions {
		p := corpus[i]
		if _, ok := lexRank[p.ID]; ok {
			continue
		}
		lexRank[p.ID] = rank + 1
		r, ok := byID[p.ID]
		if !ok {
			r = &Result{ID: p.ID, Content: p.Content}
			byID[p.ID] = r
			entries = append(entries, r)
		} else if r.Content == "" {
			r.Content = p.Content
		}
		r.LexicalScore = lexical[i] / denom
	}

	missing := len(vecRank)
	if len(lexRank) > missing {
		missing = len(lexRank)
	}
	missing++

	var best float64
	for _, r := range entries {
		vr, ok := vecRank[r.ID]
		if !ok {
			vr = missing
		}
		lr, ok := lexRank[r.ID]
		if !ok {
			lr = missing
		}
		r.Score = alpha/float64(f.K+vr) + (1-alpha)/float64(f.K+lr)
		if r.Score > best {
			best = r.Score
		}
	}
	if best > 0 {
		for _, r := range entries {
			r.Score /= best
		}
	}

	return rank(entries, topK)
}
