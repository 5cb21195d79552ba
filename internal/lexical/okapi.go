package lexical

import (
	"math"

	"github.com/Aman-CERP/hybridrag/internal/store"
)

// OkapiIndex is an in-memory BM25 Okapi snapshot.
//
//	idf(t)   = ln((N - n(t) + 0.5) / (n(t) + 0.5))
//	score(d) = sum over query terms of idf(t) * tf*(k1+1) / (tf + k1*(1 - b + b*|d|/avgdl))
//
// Terms whose idf is negative (present in more than half the corpus) use
// epsilon times the mean idf instead.
type OkapiIndex struct {
	cfg   Config
	freqs []map[string]int
	lens  []int
	avgdl float64
	idf   map[string]float64
}

var _ Index = (*OkapiIndex)(nil)

// NewOkapiIndex builds a snapshot over passages. Passages with empty text
// become zero-term documents.
func NewOkapiIndex(passages []store.Passage, cfg Config) *OkapiIndex {
	idx := &OkapiIndex{
		cfg:   cfg,
		freqs: make([]map[string]int, len(passages)),
		lens:  make([]int, len(passages)),
		idf:   make(map[string]float64),
	}
	if len(passages) == 0 {
		return idx
	}

	docFreq := make(map[string]int)
	total := 0
	for i, p := range passages {
		tokens := Tokenize(p.Content)
		tf := make(map[string]int, len(tokens))
		for _, tok := range tokens {
			tf[tok]++
		}
		for term := range tf {
			docFreq[term]++
		}
		idx.freqs[i] = tf
		idx.lens[i] = len(tokens)
		total += len(tokens)
	}
	idx.avgdl = float64(total) / float64(len(passages))

	n := float64(len(passages))
	var idfSum float64
	var negative []string
	for term, df := range docFreq {
		v := math.Log((n - float64(df) + 0.5) / (float64(df) + 0.5))
		idx.idf[term] = v
		idfSum += v
		if v < 0 {
			negative = append(negative, term)
		}
	}
	floor := cfg.Epsilon * idfSum / float64(len(docFreq))
	for _, term := range negative {
		idx.idf[term] = floor
	}

	return idx
}

// ScoreAll implements Index.
func (x *OkapiIndex) ScoreAll(query string) []float64 {
	scores := make([]float64, len(x.freqs))
	if len(scores) == 0 || x.avgdl == 0 {
		return scores
	}

	k1, b := x.cfg.K1, x.cfg.B
	for _, term := range Tokenize(query) {
		idf, ok := x.idf[term]
		if !ok {
			continue
		}
		for i, tf := range x.freqs {
			f := float64(tf[term])
			if f == 0 {
				continue
			}
			norm := k1 * (1 - b + b*float64(x.lens[i])/x.avgdl)
			scores[i] += idf * f * (k1 + 1) / (f + norm)
		}
	}
	return scores
}

// Len implements Index.
func (x *OkapiIndex) Len() int {
	return len(x.freqs)
}

// AverageLength returns the mean passage length in tokens.
func (x *OkapiIndex) AverageLength() float64 {
	return x.avgdl
}
