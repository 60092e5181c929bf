package chromemdb

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mindpages/internal/embedding"
	"mindpages/internal/models"
	"mindpages/internal/ragerr"
	"mindpages/internal/testutil"
)

func sampleChunks() []models.Chunk {
	return []models.Chunk{
		{Content: "Paris is the capital of France.", SourceFilename: "capitals.pdf", PageNumber: 1, ChunkID: 1},
		{Content: "Berlin is the capital of Germany.", SourceFilename: "capitals.pdf", PageNumber: 2, ChunkID: 2},
		{Content: "Madrid is the capital of Spain.", SourceFilename: "capitals.pdf", PageNumber: 2, ChunkID: 3},
	}
}

func newClient(e *testutil.HashEmbedder) *embedding.Client {
	return embedding.NewClient("embed-model", embedding.Params{}, e, nil)
}

func TestCollectionName_Deterministic(t *testing.T) {
	m, err := NewVectorDBManager("", false, "")
	require.NoError(t, err)

	a := m.CollectionName(sampleChunks(), "embed-model")
	b := m.CollectionName(sampleChunks(), "embed-model")
	assert.Equal(t, a, b)
	assert.True(t, strings.HasPrefix(a, DefaultPrefix))
	assert.Len(t, a, len(DefaultPrefix)+16)
}

func TestCollectionName_SensitiveToContent(t *testing.T) {
	m, err := NewVectorDBManager("", false, "doc_")
	require.NoError(t, err)
	base := m.CollectionName(sampleChunks(), "embed-model")
	assert.True(t, strings.HasPrefix(base, "doc_"))

	reordered := sampleChunks()
	reordered[0], reordered[1] = reordered[1], reordered[0]

	edited := sampleChunks()
	edited[2].Content = "Madrid is the capital of Spain!"

	otherPage := sampleChunks()
	otherPage[0].PageNumber = 3

	otherSource := sampleChunks()
	otherSource[1].SourceFilename = "other.pdf"

	// moving text across a chunk boundary must not collide
	shifted := sampleChunks()
	shifted[0].Content = "Paris is the capital of France. Berlin"
	shifted[1].Content = " is the capital of Germany."

	names := map[string]string{"base": base}
	for label, chunks := range map[string][]models.Chunk{
		"reordered":   reordered,
		"edited":      edited,
		"otherPage":   otherPage,
		"otherSource": otherSource,
		"shifted":     shifted,
		"fewer":       sampleChunks()[:2],
	} {
		name := m.CollectionName(chunks, "embed-model")
		for prev, prevName := range names {
			assert.NotEqual(t, prevName, name, "%s collides with %s", label, prev)
		}
		names[label] = name
	}

	assert.NotEqual(t, base, m.CollectionName(sampleChunks(), "other-model"))
}

func TestIndex_StoresAndRetrieves(t *testing.T) {
	m, err := NewVectorDBManager(filepath.Join(t.TempDir(), "db"), false, "")
	require.NoError(t, err)
	embedder := &testutil.HashEmbedder{}
	client := newClient(embedder)

	collection, err := m.Index(context.Background(), sampleChunks(), "", client)
	require.NoError(t, err)
	assert.Equal(t, m.CollectionName(sampleChunks(), "embed-model"), collection.Name)
	assert.Equal(t, 3, collection.Count())

	chunks, err := NewRetriever(collection, 1).Retrieve(context.Background(), "What is the capital of France?")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "Paris is the capital of France.", chunks[0].Content)
	assert.Equal(t, "capitals.pdf", chunks[0].SourceFilename)
	assert.Equal(t, 1, chunks[0].PageNumber)
	assert.Equal(t, 1, chunks[0].ChunkID)
}

func TestIndex_ReusesPersistedCollection(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "db")
	first, err := NewVectorDBManager(dir, false, "")
	require.NoError(t, err)
	_, err = first.Index(context.Background(), sampleChunks(), "", newClient(&testutil.HashEmbedder{}))
	require.NoError(t, err)

	// a fresh manager stands in for a process restart
	reopened, err := NewVectorDBManager(dir, false, "")
	require.NoError(t, err)
	embedder := &testutil.HashEmbedder{}
	collection, err := reopened.Index(context.Background(), sampleChunks(), "", newClient(embedder))
	require.NoError(t, err)

	assert.Equal(t, 3, collection.Count())
	assert.Zero(t, embedder.DocumentCalls.Load(), "persisted collection should not be re-embedded")

	chunks, err := NewRetriever(collection, 4).Retrieve(context.Background(), "capital of Germany")
	require.NoError(t, err)
	assert.Len(t, chunks, 3)
	assert.Equal(t, "Berlin is the capital of Germany.", chunks[0].Content)
}

func TestIndex_ExplicitNameIsRebuilt(t *testing.T) {
	m, err := NewVectorDBManager("", false, "")
	require.NoError(t, err)
	client := newClient(&testutil.HashEmbedder{})

	_, err = m.Index(context.Background(), sampleChunks(), "manual", client)
	require.NoError(t, err)
	collection, err := m.Index(context.Background(), sampleChunks()[:1], "manual", client)
	require.NoError(t, err)

	assert.Equal(t, "manual", collection.Name)
	assert.Equal(t, 1, collection.Count())
}

func TestIndex_ConcurrentWritesShareOneRun(t *testing.T) {
	m, err := NewVectorDBManager(filepath.Join(t.TempDir(), "db"), false, "")
	require.NoError(t, err)
	embedder := &testutil.HashEmbedder{}
	client := newClient(embedder)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := m.Index(context.Background(), sampleChunks(), "", client)
			if assert.NoError(t, err) {
				assert.Equal(t, 3, c.Count())
			}
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, embedder.DocumentCalls.Load(), int32(8))
	assert.GreaterOrEqual(t, embedder.DocumentCalls.Load(), int32(1))
	assert.Equal(t, 3, m.Collection(m.CollectionName(sampleChunks(), "embed-model"), client).Count())
}

func TestIndex_Errors(t *testing.T) {
	m, err := NewVectorDBManager("", false, "")
	require.NoError(t, err)

	_, err = m.Index(context.Background(), nil, "", newClient(&testutil.HashEmbedder{}))
	assert.ErrorIs(t, err, ragerr.ErrDocument)

	_, err = m.Index(context.Background(), sampleChunks(), "", newClient(&testutil.HashEmbedder{Err: testutil.ErrFake}))
	assert.ErrorIs(t, err, ragerr.ErrDocument)
	assert.ErrorIs(t, err, testutil.ErrFake)
	assert.Contains(t, err.Error(), "vector database creation failed")
}

func TestIndex_MarksTruncatedChunks(t *testing.T) {
	m, err := NewVectorDBManager("", false, "")
	require.NoError(t, err)
	client := embedding.NewClient("embed-model", embedding.Params{TruncateInputTokens: 3, ReturnInputText: true}, &testutil.HashEmbedder{}, &testutil.WordTokenizer{})

	collection, err := m.Index(context.Background(), sampleChunks(), "", client)
	require.NoError(t, err)

	docs, err := NewRetriever(collection, 3).GetRelevantDocuments(context.Background(), "capital")
	require.NoError(t, err)
	for _, d := range docs {
		assert.Equal(t, "true", d.Metadata[models.MetaTruncated])
		input, _ := d.Metadata[models.MetaEmbeddedInput].(string)
		assert.Len(t, strings.Fields(input), 3)
		assert.True(t, strings.HasPrefix(d.PageContent, input), "%q is not a prefix of %q", input, d.PageContent)
	}
}

func TestExportImport(t *testing.T) {
	src, err := NewVectorDBManager("", false, "")
	require.NoError(t, err)
	client := newClient(&testutil.HashEmbedder{})
	collection, err := src.Index(context.Background(), sampleChunks(), "", client)
	require.NoError(t, err)

	file := filepath.Join(t.TempDir(), "backup.gob")
	key := strings.Repeat("k", 32)
	require.NoError(t, src.Export(file, key, collection.Name))

	dst, err := NewVectorDBManager("", false, "")
	require.NoError(t, err)
	require.NoError(t, dst.Import(file, key))

	imported := dst.Collection(collection.Name, client)
	require.NotNil(t, imported)
	assert.Equal(t, 3, imported.Count())

	assert.Error(t, src.Export("", key))
}

func TestDeleteCollection(t *testing.T) {
	m, err := NewVectorDBManager(filepath.Join(t.TempDir(), "db"), false, "")
	require.NoError(t, err)
	client := newClient(&testutil.HashEmbedder{})
	collection, err := m.Index(context.Background(), sampleChunks(), "", client)
	require.NoError(t, err)

	require.NoError(t, m.DeleteCollection(collection.Name))
	assert.Nil(t, m.Collection(collection.Name, client))
}

func TestCreateMetadata(t *testing.T) {
	c := models.Chunk{Content: "Paris is the capital of France.", SourceFilename: "capitals.pdf", PageNumber: 1, ChunkID: 1}

	meta := CreateMetadata(c, embedding.Vector{Input: c.Content})
	assert.Equal(t, map[string]string{
		models.MetaSource:  "capitals.pdf",
		models.MetaPage:    "1",
		models.MetaChunkID: "1",
	}, meta)

	meta = CreateMetadata(c, embedding.Vector{Input: "Paris is the", Truncated: true})
	assert.Equal(t, "true", meta[models.MetaTruncated])
	assert.Equal(t, "Paris is the", meta[models.MetaEmbeddedInput])

	meta = CreateMetadata(c, embedding.Vector{Truncated: true})
	assert.NotContains(t, meta, models.MetaEmbeddedInput)
}
