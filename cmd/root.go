package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"mindpages/internal/chromemdb"
	"mindpages/internal/config"
	"mindpages/internal/db"
	"mindpages/internal/embedding"
	"mindpages/internal/llmservice"
	"mindpages/internal/rag"
)

const defaultConfigPath = "./configs/config.yaml"

var configPath string

var rootCmd = &cobra.Command{
	Use:          "mindpages",
	Short:        "Answer questions about PDF documents",
	Long:         `Loads a PDF, indexes it in a local vector store and answers questions grounded in its content.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath, "path to the YAML config file")
}

// app holds everything a command needs. Commands build it on demand so that
// flag parsing and --help never touch the index or the database.
type app struct {
	cfg      *config.Config
	index    *chromemdb.VectorDBManager
	pipeline *rag.Pipeline
	recorder *db.Recorder
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	} else {
		log.Warn().Str("level", cfg.LogLevel).Msg("Unknown log level, keeping info")
	}
	log.Debug().Str("config", configPath).Str("index", cfg.Index.Dir).Msg("Loaded config")

	index, err := chromemdb.NewVectorDBManager(cfg.Index.Dir, cfg.Index.Compress, cfg.RAG.CollectionPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to open vector database: %w", err)
	}

	clients := llmservice.NewClients(
		llmservice.OpenAIGenerator(cfg.Generation),
		embedding.OpenAIFactory(cfg.Embedding),
	)

	a := &app{cfg: cfg, index: index}
	var opts []rag.Option
	if cfg.Database.URL != "" {
		recorder, err := openRecorder(ctx, &cfg.Database)
		if err != nil {
			log.Warn().Err(err).Msg("Ingestion history disabled")
		} else {
			a.recorder = recorder
			opts = append(opts, rag.WithRecorder(recorder))
		}
	}

	a.pipeline, err = rag.New(cfg, clients, index, opts...)
	if err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func openRecorder(ctx context.Context, cfg *config.DatabaseConfig) (*db.Recorder, error) {
	sqldb, err := db.ConnectDB(cfg)
	if err != nil {
		return nil, err
	}
	bunDB := db.NewDB(sqldb, cfg.Debug)
	if err := db.InitDB(ctx, bunDB); err != nil {
		_ = bunDB.Close()
		return nil, err
	}
	return db.NewRecorder(bunDB), nil
}

func (a *app) close() {
	if a.recorder == nil {
		return
	}
	if err := a.recorder.Close(); err != nil {
		log.Warn().Err(err).Msg("Error closing database")
	}
}
