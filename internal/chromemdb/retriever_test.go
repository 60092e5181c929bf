package chromemdb

import (
	"context"
	"testing"

	"github.com/philippgille/chromem-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mindpages/internal/models"
	"mindpages/internal/testutil"
)

func TestRetriever_ClampsToCollectionSize(t *testing.T) {
	m, err := NewVectorDBManager("", false, "")
	require.NoError(t, err)
	collection, err := m.Index(context.Background(), sampleChunks()[:2], "", newClient(&testutil.HashEmbedder{}))
	require.NoError(t, err)

	docs, err := NewRetriever(collection, 0).GetRelevantDocuments(context.Background(), "capital of France")
	require.NoError(t, err)
	require.Len(t, docs, 2)

	assert.Equal(t, "Paris is the capital of France.", docs[0].PageContent)
	assert.Equal(t, "capitals.pdf", docs[0].Metadata[models.MetaSource])
	assert.Equal(t, "1", docs[0].Metadata[models.MetaPage])
	assert.GreaterOrEqual(t, docs[0].Score, docs[1].Score)

	chunks := ChunksFromDocuments(docs)
	assert.Equal(t, 1, chunks[0].PageNumber)
	assert.Equal(t, 1, chunks[0].ChunkID)
	assert.Equal(t, "capitals.pdf", chunks[0].SourceFilename)
}

func TestRetriever_EmptyCollection(t *testing.T) {
	db := chromem.NewDB()
	embedder := &testutil.HashEmbedder{}
	collection, err := db.CreateCollection("empty", nil, func(ctx context.Context, text string) ([]float32, error) {
		return embedder.EmbedQuery(ctx, text)
	})
	require.NoError(t, err)

	docs, err := NewRetriever(collection, 4).GetRelevantDocuments(context.Background(), "anything")
	require.NoError(t, err)
	assert.Empty(t, docs)
	assert.Zero(t, embedder.QueryCalls.Load())
}

func TestRetriever_QueryErrorIsTagged(t *testing.T) {
	m, err := NewVectorDBManager("", false, "")
	require.NoError(t, err)
	embedder := &testutil.HashEmbedder{}
	collection, err := m.Index(context.Background(), sampleChunks(), "", newClient(embedder))
	require.NoError(t, err)

	embedder.QueryErr = testutil.ErrFake
	_, err = NewRetriever(collection, 2).Retrieve(context.Background(), "capital")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRetrieval)
}
