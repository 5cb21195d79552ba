package ingest

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Chunking strategies.
const (
	StrategySlidingWindow = "sliding_window"
	StrategyParagraph     = "paragraph"
	StrategySentence      = "sentence"
)

// Chunk size defaults, in runes.
const (
	DefaultChunkSize    = 500
	DefaultChunkOverlap = 50
	DefaultMinChunkSize = 100
)

// ChunkOptions configures a Chunker.
type ChunkOptions struct {
	Strategy     string `yaml:"strategy"`
	ChunkSize    int    `yaml:"chunk_size"`
	Overlap      int    `yaml:"overlap"`
	MinChunkSize int    `yaml:"min_chunk_size"`
}

// DefaultChunkOptions returns the sliding-window defaults.
func DefaultChunkOptions() ChunkOptions {
	return ChunkOptions{
		Strategy:     StrategySlidingWindow,
		ChunkSize:    DefaultChunkSize,
		Overlap:      DefaultChunkOverlap,
		MinChunkSize: DefaultMinChunkSize,
	}
}

// Validate checks sizes and the strategy name.
func (o ChunkOptions) Validate() error {
	switch o.Strategy {
	case StrategySlidingWindow, StrategyParagraph, StrategySentence:
	default:
		return fmt.Errorf("unknown chunking strategy %q", o.Strategy)
	}
	if o.ChunkSize <= 0 {
		return fmt.Errorf("chunk_size must be positive, got %d", o.ChunkSize)
	}
	if o.Overlap < 0 || o.Overlap >= o.ChunkSize {
		return fmt.Errorf("overlap must be in [0, chunk_size), got %d", o.Overlap)
	}
	if o.MinChunkSize < 0 || o.MinChunkSize > o.ChunkSize {
		return fmt.Errorf("min_chunk_size must be in [0, chunk_size], got %d", o.MinChunkSize)
	}
	return nil
}

// Chunker splits cleaned text into passages.
type Chunker interface {
	Chunk(text string) []string
}

// NewChunker returns the chunker for opts.Strategy. Zero sizes take the
// defaults.
func NewChunker(opts ChunkOptions) (Chunker, error) {
	if opts.Strategy == "" {
		opts.Strategy = StrategySlidingWindow
	}
	if opts.ChunkSize == 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	base := baseChunker{size: opts.ChunkSize, overlap: opts.Overlap, minSize: opts.MinChunkSize}
	switch opts.Strategy {
	case StrategyParagraph:
		return &ParagraphChunker{base}, nil
	case StrategySentence:
		return &SentenceChunker{base}, nil
	default:
		return &SlidingWindowChunker{base}, nil
	}
}

type baseChunker struct {
	size    int
	overlap int
	minSize int
}

// window packs words into chunks of at most size runes. Each chunk after
// the first repeats trailing words of its predecessor totalling at most
// overlap runes. A single word longer than size becomes its own chunk.
func (b baseChunker) window(text string) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	var chunks []string
	start := 0
	for start < len(words) {
		end := start
		length := 0
		for end < len(words) {
			n := utf8.RuneCountInString(words[end])
			if end > start {
				n++ // joining space
			}
			if end > start && length+n > b.size {
				break
			}
			length += n
			end++
		}
		chunks = append(chunks, strings.Join(words[start:end], " "))
		if end == len(words) {
			break
		}

		// Step back over trailing words that fit in the overlap, always
		// moving forward by at least one word.
		next := end
		overlap := 0
		for next-1 > start {
			n := utf8.RuneCountInString(words[next-1]) + 1
			if overlap+n > b.overlap {
				break
			}
			overlap += n
			next--
		}
		start = next
	}
	return chunks
}

// pack joins units with sep into chunks of at most size runes. Units longer
// than size are split with window.
func (b baseChunker) pack(units []string, sep string) []string {
	var chunks []string
	var current strings.Builder
	currentLen := 0
	sepLen := utf8.RuneCountInString(sep)

	flush := func() {
		if currentLen > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
			currentLen = 0
		}
	}

	for _, u := range units {
		n := utf8.RuneCountInString(u)
		if n > b.size {
			flush()
			chunks = append(chunks, b.window(u)...)
			continue
		}
		if currentLen > 0 && currentLen+sepLen+n > b.size {
			flush()
		}
		if currentLen > 0 {
			current.WriteString(sep)
			currentLen += sepLen
		}
		current.WriteString(u)
		currentLen += n
	}
	flush()
	return chunks
}

// mergeSmall folds chunks shorter than minSize into their predecessor. A
// short first chunk is folded into its successor.
func (b baseChunker) mergeSmall(chunks []string, sep string) []string {
	if b.minSize <= 0 || len(chunks) < 2 {
		return chunks
	}
	out := make([]string, 0, len(chunks))
	for _, c := range chunks {
		if len(out) > 0 && utf8.RuneCountInString(c) < b.minSize {
			out[len(out)-1] += sep + c
			continue
		}
		out = append(out, c)
	}
	if len(out) > 1 && utf8.RuneCountInString(out[0]) < b.minSize {
		out[1] = out[0] + sep + out[1]
		out = out[1:]
	}
	return out
}

// SlidingWindowChunker cuts fixed-size overlapping windows on word
// boundaries.
type SlidingWindowChunker struct {
	baseChunker
}

// Chunk implements Chunker.
func (c *SlidingWindowChunker) Chunk(text string) []string {
	return c.mergeSmall(c.window(text), " ")
}

// ParagraphChunker keeps paragraphs (separated by blank lines) together,
// packing consecutive paragraphs up to the chunk size.
type ParagraphChunker struct {
	baseChunker
}

var paragraphBreak = regexp.MustCompile(`\n\s*\n`)

// Chunk implements Chunker.
func (c *ParagraphChunker) Chunk(text string) []string {
	var paragraphs []string
	for _, p := range paragraphBreak.Split(text, -1) {
		if p = strings.TrimSpace(p); p != "" {
			paragraphs = append(paragraphs, p)
		}
	}
	return c.mergeSmall(c.pack(paragraphs, "\n\n"), "\n\n")
}

// SentenceChunker packs whole sentences up to the chunk size.
type SentenceChunker struct {
	baseChunker
}

// Chunk implements Chunker.
func (c *SentenceChunker) Chunk(text string) []string {
	return c.mergeSmall(c.pack(SplitSentences(text), " "), " ")
}

// SplitSentences splits after '.', '!' or '?' when followed by whitespace.
// Whitespace inside a sentence is collapsed to single spaces.
func SplitSentences(text string) []string {
	var sentences []string
	runes := []rune(text)
	begin := 0
	for i, r := range runes {
		if (r == '.' || r == '!' || r == '?') && i+1 < len(runes) && unicode.IsSpace(runes[i+1]) {
			if s := strings.Join(strings.Fields(string(runes[begin:i+1])), " "); s != "" {
				sentences = append(sentences, s)
			}
			begin = i + 1
		}
	}
	if s := strings.Join(strings.Fields(string(runes[begin:])), " "); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}
