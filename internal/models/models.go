package models

import (
	"io"
	"time"
)

// Upload is a file payload handed to the pipeline by a transport.
type Upload struct {
	Name string
	// Size is the declared size in bytes, 0 when unknown.
	Size    int64
	Content io.Reader
}

// Page is the extracted text of one PDF page
type Page struct {
	Content        string
	SourceFilename string
	PageNumber     int
}

// Chunk represents a parsed chunk with metadata
type Chunk struct {
	Content        string
	SourceFilename string
	PageNumber     int
	// ChunkID is the 1-based position of the chunk within its document.
	ChunkID int
}

// QueryResult is the outcome of one answered question.
type QueryResult struct {
	Question    string  `json:"question"`
	Answer      string  `json:"answer"`
	Sources     []Chunk `json:"sources"`
	SourceCount int     `json:"source_count"`
	Collection  string  `json:"collection"`
}

// Health describes whether the model clients can be built.
type Health struct {
	Status            string `json:"status"`
	GenerationModelID string `json:"generation_model_id,omitempty"`
	EmbeddingModelID  string `json:"embedding_model_id,omitempty"`
	IndexStoragePath  string `json:"index_storage_path,omitempty"`
	Error             string `json:"error,omitempty"`
}

// Ingestion summarizes one answered request for the history log.
type Ingestion struct {
	RequestID  string
	Collection string
	Filename   string
	Pages      int
	Chunks     int
	Sources    int
	CreatedAt  time.Time
}
