package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	defaultGenerationModel   = "ibm/granite-13b-instruct-v2"
	defaultEmbeddingModel    = "ibm/slate-125m-english-rtrvr"
	defaultTokenizerEncoding = "cl100k_base"
	defaultIndexDir          = "./chromem_store"
	defaultCollectionPrefix  = "mindpages_"
	defaultServerAddr        = ":8000"
	defaultLogLevel          = "info"

	defaultChunkSize    = 1000
	defaultChunkOverlap = 200
	defaultTopK         = 4
	defaultMaxBytes     = 50 * 1024 * 1024
	defaultTimeoutSecs  = 60
	defaultBatchSize    = 32
)

type Config struct {
	Generation GenerationConfig `yaml:"generation"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	RAG        RAGConfig        `yaml:"rag"`
	Index      IndexConfig      `yaml:"index"`
	Upload     UploadConfig     `yaml:"upload"`
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	LogLevel   string           `yaml:"log_level"`
}

// GenerationConfig holds the fixed text generation settings.
type GenerationConfig struct {
	ModelID           string  `yaml:"model_id"`
	MaxTokens         int     `yaml:"max_tokens"`
	Temperature       float64 `yaml:"temperature"`
	TopP              float64 `yaml:"top_p"`
	RepetitionPenalty float64 `yaml:"repetition_penalty"`
	TimeoutSecs       int     `yaml:"timeout_secs"`
}

// EmbeddingConfig holds the fixed embedding settings.
type EmbeddingConfig struct {
	ModelID             string `yaml:"model_id"`
	TruncateInputTokens int    `yaml:"truncate_input_tokens"`
	ReturnInputText     *bool  `yaml:"return_input_text"`
	TokenizerEncoding   string `yaml:"tokenizer_encoding"`
	BatchSize           int    `yaml:"batch_size"`
	TimeoutSecs         int    `yaml:"timeout_secs"`
}

type RAGConfig struct {
	ChunkSize        int    `yaml:"chunk_size"`
	// ChunkOverlap is nil when unset; 0 disables overlap.
	ChunkOverlap     *int   `yaml:"chunk_overlap"`
	TopK             int    `yaml:"top_k"`
	CollectionPrefix string `yaml:"collection_prefix"`
	// PromptTemplate is a Go template using {{.context}} and {{.question}}.
	// Empty means the default stuff QA prompt.
	PromptTemplate string `yaml:"prompt_template"`
}

type IndexConfig struct {
	Dir      string `yaml:"dir"`
	Compress bool   `yaml:"compress"`
}

type UploadConfig struct {
	MaxBytes int64  `yaml:"max_bytes"`
	TempDir  string `yaml:"temp_dir"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type DatabaseConfig struct {
	URL   string `yaml:"url"`
	Debug bool   `yaml:"debug"`
}

// LoadConfig reads the YAML file at path, applies env overrides and fills defaults.
// A missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	applyEnv(&cfg, os.Getenv)
	applyDefaults(&cfg)
	return &cfg, nil
}

// Default returns a config with every default applied.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

func applyEnv(cfg *Config, getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	set(&cfg.Index.Dir, "INDEX_DB_DIR")
	set(&cfg.Generation.ModelID, "GENERATION_MODEL_ID")
	set(&cfg.Embedding.ModelID, "EMBEDDING_MODEL_ID")
	set(&cfg.Server.Addr, "SERVER_ADDR")
	set(&cfg.Database.URL, "DATABASE_URL")
	set(&cfg.LogLevel, "LOG_LEVEL")
}

func applyDefaults(cfg *Config) {
	g := &cfg.Generation
	if g.ModelID == "" {
		g.ModelID = defaultGenerationModel
	}
	if g.MaxTokens == 0 {
		g.MaxTokens = 512
	}
	if g.Temperature == 0 {
		g.Temperature = 0.3
	}
	if g.TopP == 0 {
		g.TopP = 0.9
	}
	if g.RepetitionPenalty == 0 {
		g.RepetitionPenalty = 1.1
	}
	if g.TimeoutSecs == 0 {
		g.TimeoutSecs = defaultTimeoutSecs
	}

	e := &cfg.Embedding
	if e.ModelID == "" {
		e.ModelID = defaultEmbeddingModel
	}
	if e.TruncateInputTokens == 0 {
		e.TruncateInputTokens = 512
	}
	if e.ReturnInputText == nil {
		echo := true
		e.ReturnInputText = &echo
	}
	if e.TokenizerEncoding == "" {
		e.TokenizerEncoding = defaultTokenizerEncoding
	}
	if e.BatchSize == 0 {
		e.BatchSize = defaultBatchSize
	}
	if e.TimeoutSecs == 0 {
		e.TimeoutSecs = defaultTimeoutSecs
	}

	r := &cfg.RAG
	if r.ChunkSize <= 0 {
		r.ChunkSize = defaultChunkSize
	}
	if r.ChunkOverlap == nil || *r.ChunkOverlap < 0 {
		overlap := defaultChunkOverlap
		r.ChunkOverlap = &overlap
	}
	if r.TopK <= 0 {
		r.TopK = defaultTopK
	}
	if r.CollectionPrefix == "" {
		r.CollectionPrefix = defaultCollectionPrefix
	}

	if cfg.Index.Dir == "" {
		cfg.Index.Dir = defaultIndexDir
	}
	if cfg.Upload.MaxBytes <= 0 {
		cfg.Upload.MaxBytes = defaultMaxBytes
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaultServerAddr
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = defaultLogLevel
	}
}
