package parser

import (
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/textsplitter"

	"mindpages/internal/models"
	"mindpages/internal/ragerr"
)

const (
	defaultChunkSize    = 1000 // characters
	defaultChunkOverlap = 200  // characters
)

// separators in order of preference: paragraph, line, word, character
var separators = []string{"\n\n", "\n", " ", ""}

// Splitter cuts page text into overlapping chunks.
type Splitter struct {
	chunkSize int
	overlap   int
}

// SplitterOption configures a Splitter.
type SplitterOption func(*Splitter)

// WithChunkSize sets the chunk size in characters.
func WithChunkSize(size int) SplitterOption {
	return func(s *Splitter) {
		if size > 0 {
			s.chunkSize = size
		}
	}
}

// WithChunkOverlap sets the overlap between chunks in characters.
func WithChunkOverlap(overlap int) SplitterOption {
	return func(s *Splitter) {
		if overlap >= 0 {
			s.overlap = overlap
		}
	}
}

func NewSplitter(opts ...SplitterOption) *Splitter {
	s := &Splitter{
		chunkSize: defaultChunkSize,
		overlap:   defaultChunkOverlap,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.overlap >= s.chunkSize {
		s.overlap = s.chunkSize / 4
	}
	return s
}

// Split returns the chunks of every page in order. Chunk IDs run from 1 across
// the whole document.
func (s *Splitter) Split(pages []models.Page) ([]models.Chunk, error) {
	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(s.chunkSize),
		textsplitter.WithChunkOverlap(s.overlap),
		textsplitter.WithSeparators(separators),
	)

	var chunks []models.Chunk
	for _, page := range pages {
		texts, err := splitter.SplitText(page.Content)
		if err != nil {
			log.Error().Err(err).Int("page", page.PageNumber).Msg("Error splitting text")
			return nil, ragerr.Document("text splitting failed", err)
		}
		for _, text := range s.bound(texts) {
			if text == "" {
				continue
			}
			chunks = append(chunks, models.Chunk{
				Content:        text,
				SourceFilename: page.SourceFilename,
				PageNumber:     page.PageNumber,
				ChunkID:        len(chunks) + 1,
			})
		}
	}

	log.Info().Int("pages", len(pages)).Int("chunks", len(chunks)).Msg("Split documents into chunks")
	return chunks, nil
}

// bound re-splits chunks longer than chunkSize. RecursiveCharacter can emit
// them when merged pieces and their separator add up past the limit.
func (s *Splitter) bound(texts []string) []string {
	var out []string
	var resplit *textsplitter.RecursiveCharacter
	for _, text := range texts {
		if utf8.RuneCountInString(text) <= s.chunkSize {
			out = append(out, text)
			continue
		}
		if resplit == nil {
			resplit = s.tighter()
		}
		parts, err := resplit.SplitText(text)
		if err != nil {
			parts = []string{text}
		}
		for _, p := range parts {
			out = append(out, clamp(p, s.chunkSize)...)
		}
	}
	return out
}

// tighter leaves room for the longest separator.
func (s *Splitter) tighter() *textsplitter.RecursiveCharacter {
	size := max(s.chunkSize-len(separators[0]), 1)
	rc := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(size),
		textsplitter.WithChunkOverlap(min(s.overlap, size/4)),
		textsplitter.WithSeparators(separators),
	)
	return &rc
}

// clamp cuts text into consecutive pieces of at most n runes.
func clamp(text string, n int) []string {
	runes := []rune(text)
	if len(runes) <= n {
		return []string{text}
	}
	var out []string
	for len(runes) > 0 {
		k := min(len(runes), n)
		out = append(out, string(runes[:k]))
		runes = runes[k:]
	}
	return out
}
