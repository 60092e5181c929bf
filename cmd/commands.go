package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"mindpages/internal/api"
	"mindpages/internal/helper"
	"mindpages/internal/models"
)

const shutdownTimeout = 10 * time.Second

var (
	askFile      string
	askQuestion  string
	historyLimit int
	exportKey    string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

var askCmd = &cobra.Command{
	Use:   "ask",
	Short: "Answer a question about a PDF file",
	Args:  cobra.NoArgs,
	RunE:  runAsk,
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check that the model clients can be built",
	Args:  cobra.NoArgs,
	RunE:  runHealth,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recently answered documents",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

var exportCmd = &cobra.Command{
	Use:   "export [file] [collection...]",
	Short: "Export indexed collections to a file",
	Long:  `Writes the named collections, or every collection when none is given, to a single backup file.`,
	Args:  cobra.MinimumNArgs(1),
	RunE:  runExport,
}

var importCmd = &cobra.Command{
	Use:   "import [file] [collection...]",
	Short: "Import collections from an export file",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runImport,
}

func init() {
	askCmd.Flags().StringVarP(&askFile, "file", "f", "", "path to the PDF file")
	askCmd.Flags().StringVarP(&askQuestion, "question", "q", "", "question to answer")
	_ = askCmd.MarkFlagRequired("file")
	_ = askCmd.MarkFlagRequired("question")

	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "maximum number of rows")

	for _, c := range []*cobra.Command{exportCmd, importCmd} {
		c.Flags().StringVar(&exportKey, "key", "", "32 byte encryption key, empty for none")
	}

	rootCmd.AddCommand(serveCmd, askCmd, healthCmd, historyCmd, exportCmd, importCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	server := api.NewServer(a.cfg.Server.Addr, a.pipeline, a.cfg.Upload.MaxBytes)
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Run()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	log.Info().Msg("Server stopped")
	return nil
}

func runAsk(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	f, err := os.Open(askFile)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", askFile, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", askFile, err)
	}

	result, err := a.pipeline.Answer(ctx, &models.Upload{
		Name:    filepath.Base(askFile),
		Size:    info.Size(),
		Content: f,
	}, askQuestion)
	if err != nil {
		return err
	}
	return helper.PrettyPrint(cmd.OutOrStdout(), result)
}

func runHealth(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	health := a.pipeline.CheckHealth(cmd.Context())
	if err := helper.PrettyPrint(cmd.OutOrStdout(), health); err != nil {
		return err
	}
	if health.Status != models.StatusHealthy {
		return errors.New("service is unhealthy")
	}
	return nil
}

func runHistory(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	if a.recorder == nil {
		return errors.New("ingestion history requires DATABASE_URL")
	}
	rows, err := a.recorder.Recent(cmd.Context(), historyLimit)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		cmd.Println("No ingestions recorded.")
		return nil
	}
	for _, r := range rows {
		cmd.Printf("%s  %-30s  pages=%d chunks=%d sources=%d  %s\n",
			r.CreatedAt.Format(time.RFC3339), r.Filename, r.Pages, r.Chunks, r.Sources, r.Collection)
	}
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.index.Export(args[0], exportKey, args[1:]...); err != nil {
		return err
	}
	cmd.Printf("Exported to %s\n", args[0])
	return nil
}

func runImport(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.index.Import(args[0], exportKey, args[1:]...); err != nil {
		return err
	}
	cmd.Printf("Imported from %s\n", args[0])
	return nil
}
