package models

const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"

	// metadata keys stored with every indexed chunk
	MetaSource    = "source"
	MetaPage      = "page"
	MetaChunkID   = "chunk_id"
	MetaTruncated = "truncated"
	// MetaEmbeddedInput holds the text actually embedded for a truncated chunk.
	MetaEmbeddedInput = "embedded_input"

	ThinkTag = `(?s)<think>.*?</think>`
)

var (
	// SourceAnnotation is appended to answers backed by retrieved sections.
	SourceAnnotation = "\n\n*Based on %d relevant document sections*"
)
