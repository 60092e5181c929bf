package llmservice

import (
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"mindpages/internal/config"
	"mindpages/internal/embedding"
	"mindpages/internal/ragerr"
)

// GenerationFactory builds a generation handle from validated credentials.
type GenerationFactory func(config.Credentials) (*Generator, error)

// EmbeddingFactory builds an embedding handle from validated credentials.
type EmbeddingFactory func(config.Credentials) (*embedding.Client, error)

const (
	keyGeneration = "generation"
	keyEmbedding  = "embedding"
)

// Clients lazily builds and memoizes the model handles.
// Build one per process and share it; a handle is never rebuilt once it exists.
// Failed constructions are not memoized.
type Clients struct {
	newGeneration GenerationFactory
	newEmbedding  EmbeddingFactory
	lookup        func(string) string

	group singleflight.Group

	mu        sync.RWMutex
	generator *Generator
	embedder  *embedding.Client
}

// Option configures Clients.
type Option func(*Clients)

// WithLookup replaces os.Getenv as the credential source.
func WithLookup(lookup func(string) string) Option {
	return func(c *Clients) {
		c.lookup = lookup
	}
}

func NewClients(gen GenerationFactory, emb EmbeddingFactory, opts ...Option) *Clients {
	c := &Clients{
		newGeneration: gen,
		newEmbedding:  emb,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GenerationClient returns the shared generation handle, building it on first use.
func (c *Clients) GenerationClient() (*Generator, error) {
	c.mu.RLock()
	g := c.generator
	c.mu.RUnlock()
	if g != nil {
		return g, nil
	}

	v, err, _ := c.group.Do(keyGeneration, func() (any, error) {
		c.mu.RLock()
		existing := c.generator
		c.mu.RUnlock()
		if existing != nil {
			return existing, nil
		}

		creds, err := config.ValidateEnvironment(c.lookup)
		if err != nil {
			return nil, err
		}
		g, err := c.newGeneration(creds)
		if err != nil {
			log.Error().Err(err).Msg("Failed to initialize LLM")
			return nil, ragerr.ModelConfig("LLM initialization failed", err)
		}

		c.mu.Lock()
		c.generator = g
		c.mu.Unlock()
		return g, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Generator), nil
}

// EmbeddingClient returns the shared embedding handle, building it on first use.
func (c *Clients) EmbeddingClient() (*embedding.Client, error) {
	c.mu.RLock()
	e := c.embedder
	c.mu.RUnlock()
	if e != nil {
		return e, nil
	}

	v, err, _ := c.group.Do(keyEmbedding, func() (any, error) {
		c.mu.RLock()
		existing := c.embedder
		c.mu.RUnlock()
		if existing != nil {
			return existing, nil
		}

		creds, err := config.ValidateEnvironment(c.lookup)
		if err != nil {
			return nil, err
		}
		e, err := c.newEmbedding(creds)
		if err != nil {
			log.Error().Err(err).Msg("Failed to initialize embeddings")
			return nil, ragerr.ModelConfig("embeddings initialization failed", err)
		}

		c.mu.Lock()
		c.embedder = e
		c.mu.Unlock()
		return e, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*embedding.Client), nil
}
