package chromemdb

import (
	"context"
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"runtime"
	"strconv"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"mindpages/internal/embedding"
	"mindpages/internal/models"
	"mindpages/internal/ragerr"
)

// DefaultPrefix is prepended to derived collection names.
const DefaultPrefix = "mindpages_"

// VectorDBManager owns the persistent chromem-go database.
type VectorDBManager struct {
	db       *chromem.DB
	dbPath   string
	compress bool
	prefix   string
	writes   singleflight.Group
}

// NewVectorDBManager opens (or creates) the database under dbPath.
// An empty dbPath gives an in-memory database.
func NewVectorDBManager(dbPath string, compress bool, prefix string) (*VectorDBManager, error) {
	var db *chromem.DB
	if dbPath == "" {
		db = chromem.NewDB()
	} else {
		var err error
		db, err = chromem.NewPersistentDB(dbPath, compress)
		if err != nil {
			return nil, fmt.Errorf("failed to create database: %w", err)
		}
	}
	if prefix == "" {
		prefix = DefaultPrefix
	}
	log.Debug().Str("path", dbPath).Bool("compress", compress).Msg("Opened vector database")

	return &VectorDBManager{
		db:       db,
		dbPath:   dbPath,
		compress: compress,
		prefix:   prefix,
	}, nil
}

// Path returns the storage directory, empty for an in-memory database.
func (m *VectorDBManager) Path() string {
	return m.dbPath
}

// CollectionName derives a stable name from the embedding model and the chunk sequence.
// FNV-1a collisions are acceptable here: the name deduplicates uploads and guards nothing.
func (m *VectorDBManager) CollectionName(chunks []models.Chunk, embeddingModelID string) string {
	h := fnv.New64a()
	writeField(h, embeddingModelID)
	for i, c := range chunks {
		writeField(h, strconv.Itoa(i))
		writeField(h, c.Content)
		writeField(h, c.SourceFilename)
		writeField(h, strconv.Itoa(c.PageNumber))
	}
	return fmt.Sprintf("%s%016x", m.prefix, h.Sum64())
}

// writeField length-prefixes s so that field boundaries are part of the hash.
func writeField(h interface{ Write([]byte) (int, error) }, s string) {
	var n [8]byte
	binary.LittleEndian.PutUint64(n[:], uint64(len(s)))
	_, _ = h.Write(n[:])
	_, _ = h.Write([]byte(s))
}

// Index embeds chunks and stores them under collectionName, or under a derived
// name when collectionName is empty.
//
// A derived collection that already holds every chunk is reused without embedding.
// An explicit name is rebuilt from scratch. Concurrent writes to one name in this
// process share a single run.
func (m *VectorDBManager) Index(ctx context.Context, chunks []models.Chunk, collectionName string, embedder *embedding.Client) (*chromem.Collection, error) {
	if len(chunks) == 0 {
		return nil, ragerr.Document("vector database creation failed", fmt.Errorf("no chunks to index"))
	}
	derived := collectionName == ""
	if derived {
		collectionName = m.CollectionName(chunks, embedder.ModelID)
	}

	v, err, shared := m.writes.Do(collectionName, func() (any, error) {
		return m.index(ctx, chunks, collectionName, derived, embedder)
	})
	if err != nil {
		log.Error().Err(err).Str("collection", collectionName).Msg("Error creating vector database")
		return nil, ragerr.Document("vector database creation failed", err)
	}
	if shared {
		log.Debug().Str("collection", collectionName).Msg("Joined in-flight indexing")
	}
	return v.(*chromem.Collection), nil
}

func (m *VectorDBManager) index(ctx context.Context, chunks []models.Chunk, name string, derived bool, embedder *embedding.Client) (*chromem.Collection, error) {
	embed := embeddingFunc(embedder)

	if existing := m.db.GetCollection(name, embed); existing != nil {
		if derived && existing.Count() >= len(chunks) {
			log.Info().Str("collection", name).Int("documents", existing.Count()).Msg("Reusing existing collection")
			return existing, nil
		}
		if err := m.db.DeleteCollection(name); err != nil {
			return nil, fmt.Errorf("failed to drop collection: %w", err)
		}
	}

	log.Info().Str("collection", name).Int("chunks", len(chunks)).Msg("Creating vector database")
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	vectors, err := embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, err
	}

	docs := make([]chromem.Document, len(chunks))
	for i, c := range chunks {
		docs[i] = chromem.Document{
			ID:        strconv.Itoa(c.ChunkID),
			Content:   c.Content,
			Metadata:  CreateMetadata(c, vectors[i]),
			Embedding: vectors[i].Values,
		}
	}

	collection, err := m.db.GetOrCreateCollection(name, map[string]string{"embedding_model": embedder.ModelID}, embed)
	if err != nil {
		return nil, fmt.Errorf("failed to create/get collection: %w", err)
	}
	if err := collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return nil, fmt.Errorf("failed to add documents: %w", err)
	}
	log.Info().Str("collection", name).Int("documents", collection.Count()).Msg("Vector database created and persisted successfully")
	return collection, nil
}

// Collection returns an existing collection bound to embedder for queries, or nil.
func (m *VectorDBManager) Collection(name string, embedder *embedding.Client) *chromem.Collection {
	return m.db.GetCollection(name, embeddingFunc(embedder))
}

// CreateMetadata builds the stored metadata of a chunk. A truncated chunk also
// keeps the echoed input, when the embedding client returns it.
func CreateMetadata(c models.Chunk, v embedding.Vector) map[string]string {
	meta := map[string]string{
		models.MetaSource:  c.SourceFilename,
		models.MetaPage:    strconv.Itoa(c.PageNumber),
		models.MetaChunkID: strconv.Itoa(c.ChunkID),
	}
	if v.Truncated {
		meta[models.MetaTruncated] = "true"
		if v.Input != "" {
			meta[models.MetaEmbeddedInput] = v.Input
		}
	}
	return meta
}

// DeleteCollection drops a collection and its files.
func (m *VectorDBManager) DeleteCollection(name string) error {
	if err := m.db.DeleteCollection(name); err != nil {
		return fmt.Errorf("failed to drop collection: %w", err)
	}
	return nil
}

// Export writes the named collections, or all of them, to a single file.
// A non-empty encryptionKey must be 32 bytes long.
func (m *VectorDBManager) Export(filePath, encryptionKey string, collections ...string) error {
	if filePath == "" {
		return fmt.Errorf("file path is required")
	}
	log.Debug().Str("file", filePath).Strs("collections", collections).Bool("compress", m.compress).Msg("Exporting collections")
	if err := m.db.ExportToFile(filePath, m.compress, encryptionKey, collections...); err != nil {
		return fmt.Errorf("failed to export database: %w", err)
	}
	return nil
}

// Import loads collections from a file written by Export.
func (m *VectorDBManager) Import(filePath, encryptionKey string, collections ...string) error {
	if err := m.db.ImportFromFile(filePath, encryptionKey, collections...); err != nil {
		return fmt.Errorf("failed to import database: %w", err)
	}
	return nil
}

func embeddingFunc(embedder *embedding.Client) chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return embedder.EmbedQuery(ctx, text)
	}
}
