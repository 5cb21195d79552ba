package ingest

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestChunker(t *testing.T, opts ChunkOptions) Chunker {
	t.Helper()
	c, err := NewChunker(opts)
	require.NoError(t, err)
	return c
}

func numberedWords(n int) string {
	words := make([]string, n)
	for i := range words {
		words[i] = "w" + strings.Repeat("x", i%3) // 1 to 3 runes
	}
	return strings.Join(words, " ")
}

func TestNewChunker_Strategies(t *testing.T) {
	tests := []struct {
		strategy string
		want     Chunker
	}{
		{"", &SlidingWindowChunker{}},
		{StrategySlidingWindow, &SlidingWindowChunker{}},
		{StrategyParagraph, &ParagraphChunker{}},
		{StrategySentence, &SentenceChunker{}},
	}
	for _, tt := range tests {
		t.Run(tt.strategy, func(t *testing.T) {
			c, err := NewChunker(ChunkOptions{Strategy: tt.strategy})
			require.NoError(t, err)
			assert.IsType(t, tt.want, c)
		})
	}
}

func TestChunkOptions_Validate(t *testing.T) {
	tests := []struct {
		name string
		opts ChunkOptions
	}{
		{"unknown strategy", ChunkOptions{Strategy: "semantic", ChunkSize: 100}},
		{"zero size", ChunkOptions{Strategy: StrategySentence}},
		{"overlap too large", ChunkOptions{Strategy: StrategySentence, ChunkSize: 10, Overlap: 10}},
		{"negative overlap", ChunkOptions{Strategy: StrategySentence, ChunkSize: 10, Overlap: -1}},
		{"min above size", ChunkOptions{Strategy: StrategySentence, ChunkSize: 10, MinChunkSize: 11}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.opts.Validate())
		})
	}
	assert.NoError(t, DefaultChunkOptions().Validate())
}

func TestSlidingWindow_RespectsSizeAndOverlap(t *testing.T) {
	// Given: a 40-rune window with 10 runes of overlap
	c := newTestChunker(t, ChunkOptions{Strategy: StrategySlidingWindow, ChunkSize: 40, Overlap: 10})
	text := numberedWords(60)

	// When: chunked
	chunks := c.Chunk(text)

	// Then: every chunk fits and consecutive chunks share a word boundary
	require.Greater(t, len(chunks), 1)
	for i, ch := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(ch), 40, "chunk %d", i)
		if i > 0 {
			prevWords := strings.Fields(chunks[i-1])
			first := strings.Fields(ch)[0]
			assert.Contains(t, prevWords, first, "chunk %d should start inside the overlap", i)
		}
	}

	// And: every word of the input is covered
	last := strings.Fields(chunks[len(chunks)-1])
	all := strings.Fields(text)
	assert.Equal(t, all[len(all)-1], last[len(last)-1])
}

func TestSlidingWindow_ExactOverlap(t *testing.T) {
	c := newTestChunker(t, ChunkOptions{Strategy: StrategySlidingWindow, ChunkSize: 11, Overlap: 4})

	chunks := c.Chunk("aaa bbb ccc ddd eee")

	assert.Equal(t, []string{"aaa bbb ccc", "ccc ddd eee"}, chunks)
}

func TestSlidingWindow_LongWordIsOwnChunk(t *testing.T) {
	c := newTestChunker(t, ChunkOptions{Strategy: StrategySlidingWindow, ChunkSize: 5})

	chunks := c.Chunk("ab supercalifragilistic cd")

	assert.Equal(t, []string{"ab", "supercalifragilistic", "cd"}, chunks)
}

func TestChunkers_EmptyText(t *testing.T) {
	for _, s := range []string{StrategySlidingWindow, StrategyParagraph, StrategySentence} {
		c := newTestChunker(t, ChunkOptions{Strategy: s})
		assert.Empty(t, c.Chunk("   \n\n "), s)
	}
}

func TestChunkers_ShortDocumentYieldsOneChunk(t *testing.T) {
	for _, s := range []string{StrategySlidingWindow, StrategyParagraph, StrategySentence} {
		c := newTestChunker(t, ChunkOptions{Strategy: s, ChunkSize: 500, MinChunkSize: 100})
		assert.Equal(t, []string{"Tiny note."}, c.Chunk("Tiny note."), s)
	}
}

func TestParagraphChunker_PacksParagraphs(t *testing.T) {
	// Given: three paragraphs where the first two fit together
	c := newTestChunker(t, ChunkOptions{Strategy: StrategyParagraph, ChunkSize: 30})
	text := "First para here.\n\nSecond one.\n  \nThird paragraph is longer."

	chunks := c.Chunk(text)

	assert.Equal(t, []string{
		"First para here.\n\nSecond one.",
		"Third paragraph is longer.",
	}, chunks)
}

func TestParagraphChunker_SplitsOversizedParagraph(t *testing.T) {
	c := newTestChunker(t, ChunkOptions{Strategy: StrategyParagraph, ChunkSize: 20})

	chunks := c.Chunk(numberedWords(30))

	require.Greater(t, len(chunks), 1)
	for _, ch := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(ch), 20)
	}
}

func TestSentenceChunker_KeepsSentencesWhole(t *testing.T) {
	c := newTestChunker(t, ChunkOptions{Strategy: StrategySentence, ChunkSize: 40})
	text := "One short sentence. Another one here! Is this the third? Yes."

	chunks := c.Chunk(text)

	assert.Equal(t, []string{
		"One short sentence. Another one here!",
		"Is this the third? Yes.",
	}, chunks)
}

func TestSplitSentences(t *testing.T) {
	got := SplitSentences("Version 1.5 shipped.  It works!\nDoes it?No space")

	assert.Equal(t, []string{"Version 1.5 shipped.", "It works!", "Does it?No space"}, got)
}

func TestMergeSmall(t *testing.T) {
	b := baseChunker{size: 100, minSize: 5}

	assert.Equal(t, []string{"long enough tiny", "another long"}, b.mergeSmall([]string{"long enough", "tiny", "another long"}, " "))
	assert.Equal(t, []string{"ab long enough"}, b.mergeSmall([]string{"ab", "long enough"}, " "))
	assert.Equal(t, []string{"ab"}, b.mergeSmall([]string{"ab"}, " "))
}
