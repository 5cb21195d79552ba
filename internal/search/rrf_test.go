package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/hybridrag/internal/store"
)

func TestRRFFusion_AgreementRanksFirst(t *testing.T) {
	// Given: "b" is second in both lists, "a" first in vector only,
	// "c" first in lexical only
	corpus := []store.Passage{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	vector := []store.ScoredPassage{{ID: "a", Score: 0.9}, {ID: "b", Score: 0.8}}
	lexical := []float64{0, 2, 3}

	// When: fusing by rank
	results := NewRRFFusion().Fuse(vector, lexical, corpus, 0.5, 10)

	// Then: all three appear and the best is scaled to 1
	require.Len(t, results, 3)
	assert.Equal(t, 1.0, results[0].Score)
	for i := 1; i < len(results); i++ {
		assert.LessOrEqual(t, results[i].Score, results[i-1].Score)
	}
}

func TestRRFFusion_ScoresFollowFormula(t *testing.T) {
	corpus := []store.Passage{{ID: "a"}, {ID: "b"}}
	vector := []store.ScoredPassage{{ID: "a", Score: 0.9}}
	lexical := []float64{1, 2}

	results := NewRRFFusionWithK(10).Fuse(vector, lexical, corpus, 0.5, 10)

	// a: vector rank 1, lexical rank 2; b: vector missing (rank 3), lexical rank 1
	a := 0.5/11 + 0.5/12
	b := 0.5/13 + 0.5/11
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].ID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-9)
	assert.InDelta(t, b/a, results[1].Score, 1e-9)
	assert.Equal(t, 0.5, results[0].LexicalScore)
}

func TestRRFFusion_ZeroLexicalNotRanked(t *testing.T) {
	corpus := []store.Passage{{ID: "a"}, {ID: "b"}}

	results := NewRRFFusion().Fuse(nil, []float64{0, 0}, corpus, 0.5, 10)

	assert.NotNil(t, results)
	assert.Empty(t, results)
}

func TestRRFFusion_DefaultK(t *testing.T) {
	assert.Equal(t, DefaultRRFConstant, NewRRFFusionWithK(0).K)
	assert.Equal(t, DefaultRRFConstant, NewRRFFusionWithK(-5).K)
}
