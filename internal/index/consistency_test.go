package index

import (
	"context"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/hybridrag/internal/embed"
	"github.com/Aman-CERP/hybridrag/internal/search"
	"github.com/Aman-CERP/hybridrag/internal/store"
	"github.com/Aman-CERP/hybridrag/internal/vector"
)

type checkFixture struct {
	corpus     *store.CorpusStore
	retriever  *search.Retriever
	collection *vector.Collection
}

func newCheckFixture(t *testing.T) *checkFixture {
	t.Helper()
	corpus, err := store.NewCorpusStore("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = corpus.Close() })

	coll, err := vector.NewCollection(embed.NewStaticEmbedder(32), vector.WithLogger(slog.New(slog.DiscardHandler)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = coll.Close() })

	r, err := search.NewRetriever(coll, search.WithLogger(slog.New(slog.DiscardHandler)))
	require.NoError(t, err)
	return &checkFixture{corpus: corpus, retriever: r, collection: coll}
}

func sourced(ids ...string) []store.SourcedPassage {
	out := make([]store.SourcedPassage, len(ids))
	for i, id := range ids {
		out[i] = store.SourcedPassage{
			Passage: store.Passage{ID: id, Content: "passage " + id},
			Source:  "doc.txt",
			Ordinal: i,
		}
	}
	return out
}

// index writes ps to every store the way a Runner does.
func (f *checkFixture) index(t *testing.T, ps []store.SourcedPassage) {
	t.Helper()
	ctx := context.Background()
	passages := store.Unsourced(ps)
	require.NoError(t, f.collection.Index(ctx, passages))
	require.NoError(t, f.retriever.IndexDocuments(passages))
	require.NoError(t, f.corpus.Replace(ctx, ps, f.collection.ModelName()))
}

func (f *checkFixture) check(t *testing.T) *CheckResult {
	t.Helper()
	res, err := NewConsistencyChecker(f.corpus, f.retriever, f.collection).Check(context.Background())
	require.NoError(t, err)
	return res
}

func TestConsistency_Consistent(t *testing.T) {
	f := newCheckFixture(t)
	f.index(t, sourced("a", "b", "c"))

	res := f.check(t)

	assert.True(t, res.Consistent())
	assert.Equal(t, 3, res.Checked)
}

func TestConsistency_EmptyStores(t *testing.T) {
	f := newCheckFixture(t)

	res := f.check(t)

	assert.True(t, res.Consistent())
	assert.Zero(t, res.Checked)
}

func TestConsistency_LexicalDrift(t *testing.T) {
	// Given: the lexical snapshot rebuilt from a different passage set
	f := newCheckFixture(t)
	f.index(t, sourced("a", "b"))
	require.NoError(t, f.retriever.IndexDocuments(store.Unsourced(sourced("b", "c"))))

	// When: checking
	res := f.check(t)

	// Then: "a" is missing lexically and "c" is an orphan
	assert.Equal(t, 1, res.Count(InconsistencyMissingLexical))
	assert.Equal(t, 1, res.Count(InconsistencyOrphanLexical))
	assert.Zero(t, res.Count(InconsistencyMissingVector))
}

func TestConsistency_MissingVectors(t *testing.T) {
	// Given: the store holds a passage the vector collection never saw
	f := newCheckFixture(t)
	f.index(t, sourced("a", "b"))
	require.NoError(t, f.corpus.Replace(context.Background(), sourced("a", "b", "z"), f.collection.ModelName()))
	require.NoError(t, f.retriever.IndexDocuments(store.Unsourced(sourced("a", "b", "z"))))

	res := f.check(t)

	require.Len(t, res.Inconsistencies, 1)
	assert.Equal(t, InconsistencyMissingVector, res.Inconsistencies[0].Type)
	assert.Equal(t, "z", res.Inconsistencies[0].PassageID)
}

func TestConsistency_SavedGraphBehindCorpus(t *testing.T) {
	// Given: a graph saved for {a,b} while the store moved on to {a,b,c}
	f := newCheckFixture(t)
	f.index(t, sourced("a", "b"))
	path := filepath.Join(t.TempDir(), "vectors.hnsw")
	require.NoError(t, f.collection.Save(path))
	all := sourced("a", "b", "c")
	require.NoError(t, f.corpus.Replace(context.Background(), all, f.collection.ModelName()))
	require.NoError(t, f.retriever.IndexDocuments(store.Unsourced(all)))

	// When: the graph is reloaded with the stored passages
	require.NoError(t, f.collection.Load(path, store.Unsourced(all)))
	res := f.check(t)

	// Then: "c" is reported as missing its vector
	require.Len(t, res.Inconsistencies, 1)
	assert.Equal(t, InconsistencyMissingVector, res.Inconsistencies[0].Type)
	assert.Equal(t, "c", res.Inconsistencies[0].PassageID)
}

func TestConsistency_OrphanVectors(t *testing.T) {
	// Given: vectors for {a,b,c} but only {a,b} stored
	f := newCheckFixture(t)
	f.index(t, sourced("a", "b", "c"))
	kept := sourced("a", "b")
	require.NoError(t, f.corpus.Replace(context.Background(), kept, f.collection.ModelName()))
	require.NoError(t, f.retriever.IndexDocuments(store.Unsourced(kept)))

	res := f.check(t)

	require.Len(t, res.Inconsistencies, 1)
	assert.Equal(t, InconsistencyOrphanVector, res.Inconsistencies[0].Type)
	assert.Equal(t, "c", res.Inconsistencies[0].PassageID)
}

func TestConsistency_ModelMismatch(t *testing.T) {
	f := newCheckFixture(t)
	f.index(t, sourced("a"))
	require.NoError(t, f.corpus.Replace(context.Background(), sourced("a"), "other-model"))

	res := f.check(t)

	assert.Equal(t, 1, res.Count(InconsistencyModelMismatch))
	assert.Contains(t, res.Inconsistencies[0].Details, "other-model")
}

func TestConsistency_NoCollection(t *testing.T) {
	// Given: a lexical-only setup
	f := newCheckFixture(t)
	f.index(t, sourced("a"))

	// When: checking without a collection
	res, err := NewConsistencyChecker(f.corpus, f.retriever, nil).Check(context.Background())

	// Then: vectors and models are not considered
	require.NoError(t, err)
	assert.True(t, res.Consistent())
}

func TestInconsistencyType_JSON(t *testing.T) {
	data, err := json.Marshal(Inconsistency{Type: InconsistencyMissingVector, PassageID: "x", Details: "d"})
	require.NoError(t, err)

	assert.JSONEq(t, `{"type":"missing_vector","passage_id":"x","details":"d"}`, string(data))
	assert.Equal(t, "unknown", InconsistencyType(99).String())
}
