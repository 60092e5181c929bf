package chromemdb

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/philippgille/chromem-go"
	"github.com/tmc/langchaingo/schema"

	"mindpages/internal/models"
)

// DefaultTopK is the number of chunks returned per query.
const DefaultTopK = 4

// ErrRetrieval wraps every query failure, including failures to embed the query.
var ErrRetrieval = errors.New("retrieval failed")

// Retriever queries one collection by similarity. It implements schema.Retriever.
type Retriever struct {
	collection *chromem.Collection
	topK       int
}

var _ schema.Retriever = (*Retriever)(nil)

func NewRetriever(collection *chromem.Collection, topK int) *Retriever {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Retriever{collection: collection, topK: topK}
}

// Retrieve returns up to topK chunks, most similar first.
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]models.Chunk, error) {
	results, err := r.query(ctx, query)
	if err != nil {
		return nil, err
	}
	chunks := make([]models.Chunk, len(results))
	for i, res := range results {
		chunks[i] = chunkFromResult(res)
	}
	return chunks, nil
}

// GetRelevantDocuments returns the same results as Retrieve in langchaingo form.
func (r *Retriever) GetRelevantDocuments(ctx context.Context, query string) ([]schema.Document, error) {
	results, err := r.query(ctx, query)
	if err != nil {
		return nil, err
	}
	docs := make([]schema.Document, len(results))
	for i, res := range results {
		meta := make(map[string]any, len(res.Metadata))
		for k, v := range res.Metadata {
			meta[k] = v
		}
		docs[i] = schema.Document{
			PageContent: res.Content,
			Metadata:    meta,
			Score:       res.Similarity,
		}
	}
	return docs, nil
}

func (r *Retriever) query(ctx context.Context, query string) ([]chromem.Result, error) {
	n := min(r.topK, r.collection.Count())
	if n == 0 {
		return nil, nil
	}
	results, err := r.collection.Query(ctx, query, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query by similarity: %w", ErrRetrieval, err)
	}
	return results, nil
}

func chunkFromResult(res chromem.Result) models.Chunk {
	page, _ := strconv.Atoi(res.Metadata[models.MetaPage])
	id, _ := strconv.Atoi(res.Metadata[models.MetaChunkID])
	return models.Chunk{
		Content:        res.Content,
		SourceFilename: res.Metadata[models.MetaSource],
		PageNumber:     page,
		ChunkID:        id,
	}
}

// ChunksFromDocuments converts retrieved langchaingo documents back to chunks.
func ChunksFromDocuments(docs []schema.Document) []models.Chunk {
	chunks := make([]models.Chunk, len(docs))
	for i, d := range docs {
		source, _ := d.Metadata[models.MetaSource].(string)
		pageStr, _ := d.Metadata[models.MetaPage].(string)
		idStr, _ := d.Metadata[models.MetaChunkID].(string)
		page, _ := strconv.Atoi(pageStr)
		id, _ := strconv.Atoi(idStr)
		chunks[i] = models.Chunk{
			Content:        d.PageContent,
			SourceFilename: source,
			PageNumber:     page,
			ChunkID:        id,
		}
	}
	return chunks
}
