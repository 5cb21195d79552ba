package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriter_StatusLines(t *testing.T) {
	// Given: a writer on a buffer, which is never a terminal
	buf := &bytes.Buffer{}
	w := New(buf)

	// When: printing each kind of status
	w.Status("", "indented")
	w.Success("Index complete")
	w.Warningf("vector search %s", "degraded")
	w.Errorf("failed: %d", 3)

	// Then: plain icons precede each message
	assert.Equal(t, "   indented\n✓ Index complete\n! vector search degraded\n✗ failed: 3\n", buf.String())
}

func TestWriter_KeyValueAligns(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf)

	w.KeyValue("Passages", 12)
	w.KeyValue("Embedder", "static-256")

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, strings.Index(lines[0], "12"), strings.Index(lines[1], "static-256"))
}

func TestWriter_Results(t *testing.T) {
	// Given: two hits, one with long content
	buf := &bytes.Buffer{}
	w := New(buf)
	hits := []Hit{
		{ID: "p1", Content: "Paris is\n the capital of France.", Score: 0.9, Vector: 0.8, Lexical: 1},
		{ID: "p2", Content: strings.Repeat("word ", 40), Score: 0.1234},
	}

	// When: printing with a 20 rune snippet
	w.Results("capital", hits, 20)

	// Then: rank, score, id, breakdown and snippet appear
	out := buf.String()
	assert.Contains(t, out, `2 results for "capital"`)
	assert.Contains(t, out, " 1. 0.9000 p1")
	assert.Contains(t, out, "vector 0.8000  lexical 1.0000")
	assert.Contains(t, out, "Paris is the capital")
	assert.Contains(t, out, " 2. 0.1234 p2")
	assert.Contains(t, out, "word word word word ...")
}

func TestWriter_ResultsEmpty(t *testing.T) {
	buf := &bytes.Buffer{}

	New(buf).Results("nothing", nil, 0)

	assert.Contains(t, buf.String(), `No results for "nothing"`)
}

func TestWriter_ProgressSkippedWhenNotTTY(t *testing.T) {
	buf := &bytes.Buffer{}

	New(buf).Progress(5, 10, "embedding")

	assert.Empty(t, buf.String())
}

func TestRenderProgressBar(t *testing.T) {
	tests := []struct {
		current, total int
		want           string
	}{
		{0, 10, "░░░░░░░░░░"},
		{5, 10, "█████░░░░░"},
		{10, 10, "██████████"},
		{15, 10, "██████████"},
		{1, 0, "░░░░░░░░░░"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, renderProgressBar(tt.current, tt.total, 10))
	}
}

func TestIsTTY_NonFile(t *testing.T) {
	assert.False(t, IsTTY(&bytes.Buffer{}))
	assert.False(t, IsTTY(nil))
}

func TestDetectNoColor(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	assert.True(t, DetectNoColor())
}
