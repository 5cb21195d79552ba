package lexical

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"unicode"
	"unicode/utf8"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/registry"
	index "github.com/blevesearch/bleve_index_api"

	"github.com/Aman-CERP/hybridrag/internal/store"
)

const (
	// PassageTokenizerName is the bleve registry name of the whitespace tokenizer.
	PassageTokenizerName = "passage_tokenizer"

	// PassageAnalyzerName is the bleve analyzer combining the tokenizer with lowercasing.
	PassageAnalyzerName = "passage_analyzer"

	contentField = "content"
)

func init() {
	_ = registry.RegisterTokenizer(PassageTokenizerName, passageTokenizerConstructor)
}

// BleveIndex is a lexical snapshot backed by an in-memory bleve index using
// bleve's BM25 scoring model. Bleve's BM25 has no idf epsilon floor, so
// scores differ numerically from OkapiIndex on very common terms.
type BleveIndex struct {
	index bleve.Index
	size  int
}

var _ Index = (*BleveIndex)(nil)

type bleveDocument struct {
	Content string `json:"content"`
}

// NewBleveIndex indexes passages into a fresh in-memory bleve index.
// Bleve document IDs are build positions, so duplicate passage IDs cannot
// collide inside bleve.
func NewBleveIndex(passages []store.Passage) (*BleveIndex, error) {
	m, err := createIndexMapping()
	if err != nil {
		return nil, fmt.Errorf("failed to create index mapping: %w", err)
	}

	idx, err := bleve.NewMemOnly(m)
	if err != nil {
		return nil, fmt.Errorf("failed to create bleve index: %w", err)
	}

	batch := idx.NewBatch()
	for i, p := range passages {
		if err := batch.Index(strconv.Itoa(i), bleveDocument{Content: p.Content}); err != nil {
			_ = idx.Close()
			return nil, fmt.Errorf("failed to index passage %s: %w", p.ID, err)
		}
	}
	if err := idx.Batch(batch); err != nil {
		_ = idx.Close()
		return nil, fmt.Errorf("failed to execute batch: %w", err)
	}

	return &BleveIndex{index: idx, size: len(passages)}, nil
}

func createIndexMapping() (*mapping.IndexMappingImpl, error) {
	m := bleve.NewIndexMapping()
	err := m.AddCustomAnalyzer(PassageAnalyzerName, map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     PassageTokenizerName,
		"token_filters": []string{lowercase.Name},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add custom analyzer: %w", err)
	}
	m.DefaultAnalyzer = PassageAnalyzerName
	m.ScoringModel = index.BM25Scoring
	return m, nil
}

// ScoreAll implements Index. Passages bleve does not return score zero.
func (x *BleveIndex) ScoreAll(query string) []float64 {
	scores := make([]float64, x.size)
	if x.size == 0 || len(Tokenize(query)) == 0 {
		return scores
	}

	q := bleve.NewMatchQuery(query)
	q.SetField(contentField)

	req := bleve.NewSearchRequest(q)
	req.Size = x.size

	res, err := x.index.SearchInContext(context.Background(), req)
	if err != nil {
		slog.Warn("bleve_search_failed", slog.String("error", err.Error()))
		return scores
	}

	for _, hit := range res.Hits {
		pos, err := strconv.Atoi(hit.ID)
		if err != nil || pos < 0 || pos >= x.size {
			continue
		}
		scores[pos] = hit.Score
	}
	return scores
}

// Len implements Index.
func (x *BleveIndex) Len() int {
	return x.size
}

// ScoringModel returns the scoring model the underlying mapping uses.
func (x *BleveIndex) ScoringModel() string {
	if m, ok := x.index.Mapping().(*mapping.IndexMappingImpl); ok && m.ScoringModel != "" {
		return m.ScoringModel
	}
	return index.DefaultScoringModel
}

func passageTokenizerConstructor(config map[string]interface{}, cache *registry.Cache) (analysis.Tokenizer, error) {
	return &passageTokenizer{}, nil
}

// passageTokenizer splits on whitespace and trims surrounding punctuation,
// mirroring Tokenize. Lowercasing is left to the lowercase token filter.
type passageTokenizer struct{}

// Tokenize implements analysis.Tokenizer.
func (t *passageTokenizer) Tokenize(input []byte) analysis.TokenStream {
	stream := make(analysis.TokenStream, 0)
	pos := 1
	for _, span := range wordSpans(input) {
		stream = append(stream, &analysis.Token{
			Term:     input[span[0]:span[1]],
			Start:    span[0],
			End:      span[1],
			Position: pos,
			Type:     analysis.AlphaNumeric,
		})
		pos++
	}
	return stream
}

// wordSpans returns byte ranges of whitespace-separated words with leading
// and trailing punctuation removed.
func wordSpans(input []byte) [][2]int {
	var spans [][2]int
	start := -1
	emit := func(end int) {
		s, e := start, end
		for s < e {
			r, n := utf8.DecodeRune(input[s:e])
			if !unicode.IsPunct(r) {
				break
			}
			s += n
		}
		for e > s {
			r, n := utf8.DecodeLastRune(input[s:e])
			if !unicode.IsPunct(r) {
				break
			}
			e -= n
		}
		if e > s {
			spans = append(spans, [2]int{s, e})
		}
	}

	for i := 0; i < len(input); {
		r, n := utf8.DecodeRune(input[i:])
		if unicode.IsSpace(r) {
			if start >= 0 {
				emit(i)
				start = -1
			}
		} else if start < 0 {
			start = i
		}
		i += n
	}
	if start >= 0 {
		emit(len(input))
	}
	return spans
}
