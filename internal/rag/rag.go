package rag

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/chains"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/prompts"
	"github.com/tmc/langchaingo/schema"

	"mindpages/internal/chromemdb"
	"mindpages/internal/config"
	"mindpages/internal/helper"
	"mindpages/internal/llmservice"
	"mindpages/internal/models"
	"mindpages/internal/parser"
	"mindpages/internal/ragerr"
)

// stage names a step of one request, logged on every transition.
type stage string

const (
	stageValidating   stage = "validating"
	stageLoading      stage = "loading"
	stageChunking     stage = "chunking"
	stageIndexing     stage = "indexing"
	stageRetrieving   stage = "retrieving"
	stageSynthesizing stage = "synthesizing"
	stageDone         stage = "done"
	stageFailed       stage = "failed"
)

const (
	queryKey       = "query"
	textKey        = "text"
	sourceDocsKey  = "source_documents"
	errNoAnswerMsg = "failed to generate response from AI model"
	errRetrieveMsg = "failed to retrieve relevant document sections"
)

var thinkTag = regexp.MustCompile(models.ThinkTag)

// Recorder stores a summary of each answered request.
type Recorder interface {
	Record(ctx context.Context, entry models.Ingestion) error
}

// Pipeline answers questions about uploaded PDFs.
type Pipeline struct {
	cfg      *config.Config
	clients  *llmservice.Clients
	index    *chromemdb.VectorDBManager
	loader   *parser.Loader
	splitter *parser.Splitter
	prompt   *prompts.PromptTemplate
	recorder Recorder
	lookup   func(string) string
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithRecorder enables the ingestion history.
func WithRecorder(r Recorder) Option {
	return func(p *Pipeline) {
		p.recorder = r
	}
}

// WithLookup replaces os.Getenv as the credential source of health checks.
func WithLookup(lookup func(string) string) Option {
	return func(p *Pipeline) {
		p.lookup = lookup
	}
}

// WithLoader replaces the loader built from config.
func WithLoader(l *parser.Loader) Option {
	return func(p *Pipeline) {
		p.loader = l
	}
}

// New builds a pipeline. A custom prompt template must render with the
// context and question variables or New returns a config error.
func New(cfg *config.Config, clients *llmservice.Clients, index *chromemdb.VectorDBManager, opts ...Option) (*Pipeline, error) {
	p := &Pipeline{
		cfg:     cfg,
		clients: clients,
		index:   index,
		loader: parser.NewLoader(
			parser.WithMaxBytes(cfg.Upload.MaxBytes),
			parser.WithTempDir(cfg.Upload.TempDir),
		),
		splitter: parser.NewSplitter(
			parser.WithChunkSize(cfg.RAG.ChunkSize),
			parser.WithChunkOverlap(*cfg.RAG.ChunkOverlap),
		),
	}
	for _, opt := range opts {
		opt(p)
	}

	if tmpl := strings.TrimSpace(cfg.RAG.PromptTemplate); tmpl != "" {
		prompt, err := parsePrompt(tmpl)
		if err != nil {
			return nil, err
		}
		p.prompt = prompt
	}
	return p, nil
}

func parsePrompt(tmpl string) (*prompts.PromptTemplate, error) {
	prompt := prompts.NewPromptTemplate(tmpl, []string{"context", "question"})
	out, err := prompt.Format(map[string]any{"context": "<context>", "question": "<question>"})
	if err != nil {
		return nil, &ragerr.Error{Kind: ragerr.KindConfig, Message: "invalid prompt template", Keys: []string{"rag.prompt_template"}, Err: err}
	}
	if !strings.Contains(out, "<context>") || !strings.Contains(out, "<question>") {
		return nil, &ragerr.Error{
			Kind:    ragerr.KindConfig,
			Message: "prompt template must use {{.context}} and {{.question}}",
			Keys:    []string{"rag.prompt_template"},
		}
	}
	return &prompt, nil
}

// Answer runs one upload and question through the whole pipeline.
func (p *Pipeline) Answer(ctx context.Context, upload *models.Upload, question string) (*models.QueryResult, error) {
	requestID, err := helper.GenerateUUID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate request id: %w", err)
	}
	logger := log.With().Str("request_id", requestID).Logger()
	current := stageValidating
	enter := func(s stage) {
		current = s
		logger.Info().Str("stage", string(s)).Msg("Pipeline stage")
	}
	fail := func(err error) error {
		logger.Error().Err(err).Str("stage", string(stageFailed)).Str("failed_at", string(current)).Msg("Pipeline failed")
		return err
	}

	enter(stageValidating)
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fail(ragerr.Validation("query cannot be empty"))
	}
	gen, err := p.clients.GenerationClient()
	if err != nil {
		return nil, fail(err)
	}

	enter(stageLoading)
	pages, err := p.loader.Load(upload)
	if err != nil {
		return nil, fail(err)
	}

	enter(stageChunking)
	chunks, err := p.splitter.Split(pages)
	if err != nil {
		return nil, fail(err)
	}
	logger.Debug().Int("pages", len(pages)).Int("chunks", len(chunks)).Msg("Split document")

	enter(stageIndexing)
	embedder, err := p.clients.EmbeddingClient()
	if err != nil {
		return nil, fail(err)
	}
	collection, err := p.index.Index(ctx, chunks, "", embedder)
	if err != nil {
		return nil, fail(err)
	}

	enter(stageRetrieving)
	retriever := chromemdb.NewRetriever(collection, p.cfg.RAG.TopK)

	enter(stageSynthesizing)
	answer, docs, err := p.synthesize(ctx, gen, retriever, question)
	if err != nil {
		// retrieval runs inside the QA chain
		if errors.Is(err, chromemdb.ErrRetrieval) {
			current = stageRetrieving
		}
		return nil, fail(err)
	}

	result := &models.QueryResult{
		Question:    question,
		Answer:      answer,
		Sources:     chromemdb.ChunksFromDocuments(docs),
		SourceCount: len(docs),
		Collection:  collection.Name,
	}
	p.record(ctx, logger, models.Ingestion{
		RequestID:  requestID,
		Collection: collection.Name,
		Filename:   pages[0].SourceFilename,
		Pages:      len(pages),
		Chunks:     len(chunks),
		Sources:    len(docs),
		CreatedAt:  time.Now().UTC(),
	})

	enter(stageDone)
	return result, nil
}

func (p *Pipeline) synthesize(ctx context.Context, gen *llmservice.Generator, retriever schema.Retriever, question string) (string, []schema.Document, error) {
	qa := chains.NewRetrievalQA(p.combineChain(gen.Model), retriever)
	qa.ReturnSourceDocuments = true

	out, err := chains.Call(ctx, qa, map[string]any{queryKey: question}, gen.CallOptions()...)
	if errors.Is(err, chromemdb.ErrRetrieval) {
		return "", nil, ragerr.Document(errRetrieveMsg, err)
	}
	if err != nil {
		return "", nil, ragerr.Document(errNoAnswerMsg, err)
	}

	text, _ := out[textKey].(string)
	text = strings.TrimSpace(thinkTag.ReplaceAllString(text, ""))
	if text == "" {
		return "", nil, ragerr.Document(errNoAnswerMsg, nil)
	}

	docs, _ := out[sourceDocsKey].([]schema.Document)
	if len(docs) > 0 {
		text += fmt.Sprintf(models.SourceAnnotation, len(docs))
	}
	return text, docs, nil
}

func (p *Pipeline) combineChain(llm llms.Model) chains.Chain {
	if p.prompt == nil {
		return chains.LoadStuffQA(llm)
	}
	return chains.NewStuffDocuments(chains.NewLLMChain(llm, *p.prompt))
}

func (p *Pipeline) record(ctx context.Context, logger zerolog.Logger, entry models.Ingestion) {
	if p.recorder == nil {
		return
	}
	if err := p.recorder.Record(ctx, entry); err != nil {
		logger.Warn().Err(err).Msg("Failed to record ingestion")
	}
}

// CheckHealth reports whether both model clients can be built.
func (p *Pipeline) CheckHealth(ctx context.Context) models.Health {
	unhealthy := func(err error) models.Health {
		log.Warn().Err(err).Msg("Health check failed")
		return models.Health{Status: models.StatusUnhealthy, Error: err.Error()}
	}

	if _, err := config.ValidateEnvironment(p.lookup); err != nil {
		return unhealthy(err)
	}
	gen, err := p.clients.GenerationClient()
	if err != nil {
		return unhealthy(err)
	}
	embedder, err := p.clients.EmbeddingClient()
	if err != nil {
		return unhealthy(err)
	}
	if err := ctx.Err(); err != nil {
		return unhealthy(err)
	}

	return models.Health{
		Status:            models.StatusHealthy,
		GenerationModelID: gen.ModelID,
		EmbeddingModelID:  embedder.ModelID,
		IndexStoragePath:  p.index.Path(),
	}
}
