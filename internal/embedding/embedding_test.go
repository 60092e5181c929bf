package embedding

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mindpages/internal/testutil"
)

func TestClient_EmbedDocuments_TruncatesAndEchoes(t *testing.T) {
	embedder := &testutil.HashEmbedder{}
	client := NewClient("embed-model", Params{TruncateInputTokens: 3, ReturnInputText: true}, embedder, &testutil.WordTokenizer{})

	vectors, err := client.EmbedDocuments(context.Background(), []string{
		"one two",
		"one two three four five",
	})
	require.NoError(t, err)
	require.Len(t, vectors, 2)

	assert.False(t, vectors[0].Truncated)
	assert.Equal(t, "one two", vectors[0].Input)
	assert.True(t, vectors[1].Truncated)
	assert.Equal(t, "one two three", vectors[1].Input)
	assert.NotEmpty(t, vectors[1].Values)
	assert.Equal(t, int32(1), embedder.DocumentCalls.Load())
}

func TestClient_EmbedDocuments_NoEcho(t *testing.T) {
	client := NewClient("embed-model", Params{}, &testutil.HashEmbedder{}, nil)

	vectors, err := client.EmbedDocuments(context.Background(), []string{"a b c d"})
	require.NoError(t, err)
	require.Len(t, vectors, 1)
	assert.Empty(t, vectors[0].Input)
	assert.False(t, vectors[0].Truncated)
}

func TestClient_EmbedQuery(t *testing.T) {
	embedder := &testutil.HashEmbedder{}
	client := NewClient("embed-model", Params{TruncateInputTokens: 2}, embedder, &testutil.WordTokenizer{})

	long, err := client.EmbedQuery(context.Background(), "capital france paris berlin")
	require.NoError(t, err)
	short, err := client.EmbedQuery(context.Background(), "capital france")
	require.NoError(t, err)

	assert.Equal(t, short, long)
	assert.Equal(t, int32(2), embedder.QueryCalls.Load())
}

func TestClient_EmbedderError(t *testing.T) {
	client := NewClient("embed-model", Params{}, &testutil.HashEmbedder{Err: testutil.ErrFake}, nil)

	_, err := client.EmbedDocuments(context.Background(), []string{"text"})
	assert.ErrorIs(t, err, testutil.ErrFake)

	_, err = client.EmbedQuery(context.Background(), "text")
	assert.ErrorIs(t, err, testutil.ErrFake)
}
