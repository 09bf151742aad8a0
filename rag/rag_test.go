package rag

import (
	"context"
	"errors"
	"hash/fnv"
	"strconv"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/mediaforge/media-rag/chunker"
	"github.com/mediaforge/media-rag/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// hashEmbedder maps token counts into a fixed-width vector so related texts
// have positive cosine similarity without any model dependency.
type hashEmbedder struct{}

func (hashEmbedder) EmbeddingModel() string { return "hash-test" }

func (hashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, 32)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(tok))
		vec[h.Sum32()%32]++
	}
	return vec, nil
}

type failingEmbedder struct{}

func (failingEmbedder) EmbeddingModel() string { return "broken" }

func (failingEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, errors.New("embedding backend down")
}

type stubGenerator struct {
	reply  string
	err    error
	prompt string
}

func (g *stubGenerator) GenerateModel() string { return "stub-model" }

func (g *stubGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.prompt = prompt
	return g.reply, g.err
}

// captureStore records upserted entries for inspection.
type captureStore struct {
	*vectorstore.Memory
	entries []vectorstore.Entry
}

func (c *captureStore) Upsert(ctx context.Context, entries []vectorstore.Entry) error {
	c.entries = append(c.entries, entries...)
	return c.Memory.Upsert(ctx, entries)
}

func newCaptureStore() *captureStore {
	return &captureStore{Memory: vectorstore.NewMemory()}
}

func TestIndexDocumentEmptyTextIsNoOp(t *testing.T) {
	store := newCaptureStore()
	ix := NewIndexer(chunker.NewSplitter(100, 10), hashEmbedder{}, store)

	count, err := ix.IndexDocument(context.Background(), "   \n ", "doc1", nil)
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Empty(t, store.entries)
}

func TestIndexDocumentDeterministicIDs(t *testing.T) {
	store := newCaptureStore()
	ix := NewIndexer(chunker.NewSplitter(40, 0), hashEmbedder{}, store)

	text := strings.Repeat("alpha beta gamma delta. ", 10)
	count, err := ix.IndexDocument(context.Background(), text, "media_42", nil)
	require.NoError(t, err)
	require.Greater(t, count, 1)

	for i, e := range store.entries {
		assert.Equal(t, "media_42", e.DocumentID)
		assert.Equal(t, i, e.ChunkIndex)
		assert.Equal(t, "media_42_"+strconv.Itoa(i), e.ID)
		assert.Equal(t, "hash-test", e.Model)
	}
}

func TestIndexDocumentMetadataMergeCallerWins(t *testing.T) {
	store := newCaptureStore()
	ix := NewIndexer(chunker.NewSplitter(100, 0), hashEmbedder{}, store)

	_, err := ix.IndexDocument(context.Background(), "short text", "d", map[string]any{
		"media_id":   "m1",
		"chunk_size": "overridden",
	})
	require.NoError(t, err)
	require.Len(t, store.entries, 1)

	meta := store.entries[0].Metadata
	assert.Equal(t, "m1", meta["media_id"])
	assert.Equal(t, "overridden", meta["chunk_size"])
	assert.Equal(t, 0, meta["chunk_index"])
	assert.Equal(t, len("short text"), meta["original_length"])
}

func TestIndexDocumentMetadataCountsRunes(t *testing.T) {
	store := newCaptureStore()
	ix := NewIndexer(chunker.NewSplitter(100, 0), hashEmbedder{}, store)

	text := "日本語のテキストです。"
	_, err := ix.IndexDocument(context.Background(), text, "d", nil)
	require.NoError(t, err)
	require.Len(t, store.entries, 1)

	meta := store.entries[0].Metadata
	runes := utf8.RuneCountInString(text)
	assert.Equal(t, runes, meta["chunk_size"])
	assert.Equal(t, runes, meta["original_length"])
	assert.NotEqual(t, runes, len(text), "test text must be multi-byte")
}

func TestIndexDocumentEmbeddingFailure(t *testing.T) {
	store := newCaptureStore()
	ix := NewIndexer(chunker.NewSplitter(100, 0), failingEmbedder{}, store)

	_, err := ix.IndexDocument(context.Background(), "some text", "d", nil)
	require.Error(t, err)
	assert.Empty(t, store.entries)
}

func TestSearchEmptyIndexReturnsEmpty(t *testing.T) {
	r := NewRetriever(hashEmbedder{}, vectorstore.NewMemory())

	results, err := r.Search(context.Background(), "anything at all", 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchRanksAndClampsSimilarity(t *testing.T) {
	store := vectorstore.NewMemory()
	ix := NewIndexer(chunker.NewSplitter(200, 0), hashEmbedder{}, store)
	ctx := context.Background()

	_, err := ix.IndexDocument(ctx, "the launch window opens at dawn", "d1", nil)
	require.NoError(t, err)
	_, err = ix.IndexDocument(ctx, "completely unrelated cooking recipe", "d2", nil)
	require.NoError(t, err)

	r := NewRetriever(hashEmbedder{}, store)
	results, err := r.Search(ctx, "launch window dawn", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "d1", results[0].DocumentID)
	assert.Greater(t, results[0].Similarity, 0.0)
	for _, res := range results {
		assert.GreaterOrEqual(t, res.Similarity, 0.0)
		assert.LessOrEqual(t, res.Similarity, 1.0)
	}
	assert.GreaterOrEqual(t, results[0].Similarity, results[1].Similarity)
}

// fixedStore returns preset distances regardless of the query vector.
type fixedStore struct {
	results []vectorstore.Result
}

func (f *fixedStore) Upsert(context.Context, []vectorstore.Entry) error { return nil }

func (f *fixedStore) Query(context.Context, []float32, int) ([]vectorstore.Result, error) {
	return f.results, nil
}

func (f *fixedStore) DeleteByDocument(context.Context, string) error { return nil }

func threeSourceStore() *fixedStore {
	return &fixedStore{results: []vectorstore.Result{
		{ID: "a_0", DocumentID: "a", Text: "chunk one", Distance: 0.08},
		{ID: "b_0", DocumentID: "b", Text: "chunk two", Distance: 0.19},
		{ID: "c_0", DocumentID: "c", Text: "chunk three", Distance: 0.36},
	}}
}

func TestAnswerEmptyRetrieval(t *testing.T) {
	gen := &stubGenerator{reply: "should never be called"}
	composer := NewComposer(NewRetriever(hashEmbedder{}, vectorstore.NewMemory()), gen)

	ans := composer.Answer(context.Background(), "any question", 5)
	assert.Equal(t, NoInformationAnswer, ans.Answer)
	assert.Empty(t, ans.Sources)
	assert.Zero(t, ans.Confidence)
	assert.Empty(t, ans.Error)
	assert.Empty(t, gen.prompt, "generator must not be invoked without sources")
}

func TestAnswerConfidenceIsMinimumSimilarity(t *testing.T) {
	gen := &stubGenerator{reply: "  grounded answer  "}
	composer := NewComposer(NewRetriever(hashEmbedder{}, threeSourceStore()), gen)

	ans := composer.Answer(context.Background(), "question", 3)
	require.Empty(t, ans.Error)
	assert.Equal(t, "grounded answer", ans.Answer)
	assert.Equal(t, "stub-model", ans.Model)
	require.Len(t, ans.Sources, 3)
	// similarities 0.92, 0.81, 0.64 -> confidence is the minimum
	assert.InDelta(t, 0.64, ans.Confidence, 1e-9)
}

func TestAnswerPromptIsGrounded(t *testing.T) {
	gen := &stubGenerator{reply: "ok"}
	composer := NewComposer(NewRetriever(hashEmbedder{}, threeSourceStore()), gen)

	composer.Answer(context.Background(), "what is in the chunks?", 3)
	assert.Contains(t, gen.prompt, "chunk one")
	assert.Contains(t, gen.prompt, "chunk three")
	assert.Contains(t, gen.prompt, "what is in the chunks?")
	assert.Contains(t, gen.prompt, "insufficient information")
}

func TestAnswerGenerationFailureKeepsSources(t *testing.T) {
	gen := &stubGenerator{err: errors.New("model unavailable")}
	composer := NewComposer(NewRetriever(hashEmbedder{}, threeSourceStore()), gen)

	ans := composer.Answer(context.Background(), "question", 3)
	assert.NotEmpty(t, ans.Error)
	assert.Empty(t, ans.Answer)
	assert.Len(t, ans.Sources, 3)
	assert.InDelta(t, 0.64, ans.Confidence, 1e-9)
}

func TestAnswerRetrievalFailureIsStructured(t *testing.T) {
	gen := &stubGenerator{reply: "unused"}
	composer := NewComposer(NewRetriever(failingEmbedder{}, vectorstore.NewMemory()), gen)

	ans := composer.Answer(context.Background(), "question", 3)
	assert.NotEmpty(t, ans.Error)
	assert.Empty(t, ans.Sources)
}
