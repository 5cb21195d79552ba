package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/hybridrag/internal/index"
	"github.com/Aman-CERP/hybridrag/internal/logging"
	"github.com/Aman-CERP/hybridrag/internal/search"
)

func TestIndexCmd_JSONSummary(t *testing.T) {
	// Given: a corpus of three documents
	dir := testCorpus(t)

	// When: indexing with --json
	out, err := run(t, "index", "-C", dir, "--json")

	// Then: the summary counts every document and the files exist
	require.NoError(t, err)
	var summary indexSummary
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.Equal(t, 3, summary.Documents)
	assert.Equal(t, 3, summary.Passages)
	assert.Equal(t, 3, summary.Vectors)
	assert.FileExists(t, filepath.Join(dir, ".hybridrag", index.CorpusFileName))
	assert.FileExists(t, filepath.Join(dir, ".hybridrag", index.VectorFileName))
}

func TestIndexCmd_TextSummary(t *testing.T) {
	dir := testCorpus(t)

	out, err := run(t, "index", "-C", dir)

	require.NoError(t, err)
	assert.Contains(t, out, "Indexed 3 documents into 3 passages")
	assert.Contains(t, out, "Vectors:")
}

func TestIndexCmd_WritesLogFile(t *testing.T) {
	dir := testCorpus(t)

	_, err := run(t, "index", "-C", dir, "--json")

	require.NoError(t, err)
	data, err := os.ReadFile(logging.LogPath(filepath.Join(dir, ".hybridrag")))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"index_completed"`)
}

func TestIndexCmd_MissingCorpus(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	_, err := run(t, "index", "-C", filepath.Join(t.TempDir(), "missing"))

	require.Error(t, err)
}

func TestSearchCmd_RequiresIndex(t *testing.T) {
	// Given: a corpus that was never indexed
	dir := testCorpus(t)

	// When: searching
	_, err := run(t, "search", "-C", dir, "capital")

	// Then: error about missing index
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no index found")
}

func TestSearchCmd_RequiresQuery(t *testing.T) {
	_, err := run(t, "search")

	require.Error(t, err)
}

func TestSearchCmd_RejectsUnknownFormat(t *testing.T) {
	_, err := run(t, "search", "--format", "xml", "q")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown format")
}

func TestSearchCmd_AfterIndex(t *testing.T) {
	// Given: an indexed corpus
	dir := testCorpus(t)
	_, err := run(t, "index", "-C", dir, "--json")
	require.NoError(t, err)

	// When: searching for a keyword in one document as JSON
	out, err := run(t, "search", "-C", dir, "--format", "json", "-k", "2", "diesel", "engines")

	// Then: that document ranks first
	require.NoError(t, err)
	var results []search.Result
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 2)
	assert.Contains(t, results[0].ID, "engines.txt#")
	assert.Greater(t, results[0].LexicalScore, 0.0)

	// And: text output shows the same ranking
	out, err = run(t, "search", "-C", dir, "diesel engines")
	require.NoError(t, err)
	assert.Contains(t, out, "engines.txt#")
	assert.Contains(t, out, `results for "diesel engines"`)
}

func TestStatusCmd(t *testing.T) {
	// Given: an indexed corpus
	dir := testCorpus(t)
	_, err := run(t, "index", "-C", dir, "--json")
	require.NoError(t, err)

	// When: reading status as JSON
	out, err := run(t, "status", "-C", dir, "--json")

	// Then: counts and a clean consistency check are reported
	require.NoError(t, err)
	var st index.Status
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.Equal(t, 3, st.Passages)
	assert.Equal(t, 3, st.Sources)
	require.NotNil(t, st.Consistency)
	assert.Empty(t, st.Consistency.Inconsistencies)

	// And: the text form summarizes the same
	out, err = run(t, "status", "-C", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Passages:")
	assert.Contains(t, out, "match the corpus")
}

func TestIndexCmd_WritesProfiles(t *testing.T) {
	// Given: a corpus and profile destinations
	dir := testCorpus(t)
	profDir := t.TempDir()
	cpu := filepath.Join(profDir, "cpu.prof")
	heap := filepath.Join(profDir, "heap.prof")

	// When: indexing with profiling flags
	_, err := run(t, "index", "-C", dir, "--json", "--cpuprofile", cpu, "--memprofile", heap)

	// Then: both profiles are written
	require.NoError(t, err)
	assert.FileExists(t, cpu)
	assert.FileExists(t, heap)
}

func TestIndexCmd_RespectsIgnoreFile(t *testing.T) {
	// Given: an ignore file excluding one document
	dir := testCorpus(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hybridragignore"), []byte("japan.txt\n"), 0o644))

	// When: indexing
	out, err := run(t, "index", "-C", dir, "--json")

	// Then: only the remaining documents are indexed
	require.NoError(t, err)
	var summary indexSummary
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.Equal(t, 2, summary.Documents)
}
