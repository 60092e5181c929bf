package embedding

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/pkoukk/tiktoken-go"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"

	"mindpages/internal/config"
)

// Params are the fixed embedding settings bound to a Client.
type Params struct {
	// TruncateInputTokens cuts every input to this many tokens. 0 disables truncation.
	TruncateInputTokens int
	// ReturnInputText echoes the embedded input back with each vector.
	ReturnInputText bool
}

// Tokenizer is satisfied by *tiktoken.Tiktoken.
type Tokenizer interface {
	Encode(text string, allowedSpecial []string, disallowedSpecial []string) []int
	Decode(tokens []int) string
}

// Vector is the embedding of one input.
type Vector struct {
	Values []float32
	// Input is the text that was embedded, set only when ReturnInputText is on.
	Input     string
	Truncated bool
}

// Client is an embedding model handle. It is safe for concurrent use.
type Client struct {
	ModelID   string
	Params    Params
	embedder  embeddings.Embedder
	tokenizer Tokenizer
}

// NewClient binds an embedder to a model id and params. tokenizer may be nil,
// in which case inputs are never truncated.
func NewClient(modelID string, params Params, embedder embeddings.Embedder, tokenizer Tokenizer) *Client {
	return &Client{
		ModelID:   modelID,
		Params:    params,
		embedder:  embedder,
		tokenizer: tokenizer,
	}
}

// OpenAIFactory returns a constructor for an OpenAI-compatible embedding client.
func OpenAIFactory(cfg config.EmbeddingConfig) func(config.Credentials) (*Client, error) {
	return func(creds config.Credentials) (*Client, error) {
		log.Info().Str("model", cfg.ModelID).Msg("Initializing embeddings")

		llm, err := openai.New(
			openai.WithBaseURL(creds.ServiceURL),
			openai.WithToken(strings.TrimPrefix(creds.APIKey, "Bearer ")),
			openai.WithOrganization(creds.ProjectID),
			openai.WithEmbeddingModel(cfg.ModelID),
			openai.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.TimeoutSecs) * time.Second}),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create embedding client: %w", err)
		}
		embedder, err := embeddings.NewEmbedder(llm, embeddings.WithBatchSize(cfg.BatchSize))
		if err != nil {
			return nil, fmt.Errorf("failed to create embedder: %w", err)
		}

		var tokenizer Tokenizer
		if cfg.TruncateInputTokens > 0 {
			enc, err := tiktoken.GetEncoding(cfg.TokenizerEncoding)
			if err != nil {
				return nil, fmt.Errorf("failed to load tokenizer %s: %w", cfg.TokenizerEncoding, err)
			}
			tokenizer = enc
		}

		params := Params{TruncateInputTokens: cfg.TruncateInputTokens}
		if cfg.ReturnInputText != nil {
			params.ReturnInputText = *cfg.ReturnInputText
		}
		log.Info().Msg("Embeddings initialized successfully")
		return NewClient(cfg.ModelID, params, embedder, tokenizer), nil
	}
}

// EmbedDocuments embeds texts in order, one vector per text.
func (c *Client) EmbedDocuments(ctx context.Context, texts []string) ([]Vector, error) {
	inputs := make([]string, len(texts))
	truncated := make([]bool, len(texts))
	for i, text := range texts {
		inputs[i], truncated[i] = c.truncate(text)
	}

	values, err := c.embedder.EmbedDocuments(ctx, inputs)
	if err != nil {
		return nil, fmt.Errorf("failed to embed documents: %w", err)
	}
	if len(values) != len(texts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d inputs", len(values), len(texts))
	}

	vectors := make([]Vector, len(values))
	for i, v := range values {
		vectors[i] = Vector{Values: v, Truncated: truncated[i]}
		if c.Params.ReturnInputText {
			vectors[i].Input = inputs[i]
		}
	}
	return vectors, nil
}

// EmbedQuery embeds a single query text.
func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	input, _ := c.truncate(text)
	v, err := c.embedder.EmbedQuery(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	return v, nil
}

func (c *Client) truncate(text string) (string, bool) {
	limit := c.Params.TruncateInputTokens
	if c.tokenizer == nil || limit <= 0 {
		return text, false
	}
	tokens := c.tokenizer.Encode(text, nil, nil)
	if len(tokens) <= limit {
		return text, false
	}
	return c.tokenizer.Decode(tokens[:limit]), true
}
