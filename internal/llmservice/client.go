package llmservice

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/chains"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"mindpages/internal/config"
)

// Params are the fixed generation settings bound to a Generator.
type Params struct {
	MaxTokens         int
	Temperature       float64
	TopP              float64
	RepetitionPenalty float64
}

// Generator is a text generation model handle.
type Generator struct {
	ModelID string
	Params  Params
	Model   llms.Model
}

// ParamsFrom extracts the generation params from config.
func ParamsFrom(cfg config.GenerationConfig) Params {
	return Params{
		MaxTokens:         cfg.MaxTokens,
		Temperature:       cfg.Temperature,
		TopP:              cfg.TopP,
		RepetitionPenalty: cfg.RepetitionPenalty,
	}
}

// CallOptions returns the params as chain call options.
func (g *Generator) CallOptions() []chains.ChainCallOption {
	return []chains.ChainCallOption{
		chains.WithMaxTokens(g.Params.MaxTokens),
		chains.WithTemperature(g.Params.Temperature),
		chains.WithTopP(g.Params.TopP),
		chains.WithRepetitionPenalty(g.Params.RepetitionPenalty),
	}
}

// OpenAIGenerator returns a constructor for an OpenAI-compatible generation client.
func OpenAIGenerator(cfg config.GenerationConfig) func(config.Credentials) (*Generator, error) {
	return func(creds config.Credentials) (*Generator, error) {
		log.Info().Str("model", cfg.ModelID).Msg("Initializing LLM")

		llm, err := openai.New(
			openai.WithBaseURL(creds.ServiceURL),
			openai.WithToken(strings.TrimPrefix(creds.APIKey, "Bearer ")),
			openai.WithOrganization(creds.ProjectID),
			openai.WithModel(cfg.ModelID),
			openai.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.TimeoutSecs) * time.Second}),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create llm client: %w", err)
		}

		log.Info().Msg("LLM initialized successfully")
		return &Generator{
			ModelID: cfg.ModelID,
			Params:  ParamsFrom(cfg),
			Model:   llm,
		}, nil
	}
}
