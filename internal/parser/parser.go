package parser

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/rs/zerolog/log"

	"mindpages/internal/models"
	"mindpages/internal/ragerr"
)

const (
	// DefaultMaxBytes is the largest accepted upload.
	DefaultMaxBytes = 50 * 1024 * 1024

	tempPrefix = "mindpages_"
	pdfExt     = ".pdf"
)

// Loader validates uploaded PDFs and extracts their text page by page.
type Loader struct {
	maxBytes int64
	tempDir  string
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithMaxBytes sets the upload size limit.
func WithMaxBytes(n int64) LoaderOption {
	return func(l *Loader) {
		if n > 0 {
			l.maxBytes = n
		}
	}
}

// WithTempDir sets the parent directory for scratch files. Empty means os.TempDir.
func WithTempDir(dir string) LoaderOption {
	return func(l *Loader) {
		l.tempDir = dir
	}
}

func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{maxBytes: DefaultMaxBytes}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load writes the upload to a scratch directory, extracts one Page per non-blank
// PDF page and removes the scratch directory on every path.
func (l *Loader) Load(upload *models.Upload) ([]models.Page, error) {
	if err := l.validate(upload); err != nil {
		return nil, err
	}

	dir, err := os.MkdirTemp(l.tempDir, tempPrefix+"*")
	if err != nil {
		return nil, ragerr.Document("failed to process document", err)
	}
	name := filepath.Base(upload.Name)
	path := filepath.Join(dir, name)
	defer cleanup(dir, path)

	log.Info().Str("file", name).Msg("Processing file")
	size, err := l.save(path, upload.Content)
	if err != nil {
		return nil, err
	}

	pages, err := parsePDF(path, size, name)
	if err != nil {
		log.Error().Err(err).Str("file", name).Msg("Error processing document")
		return nil, err
	}
	log.Info().Int("pages", len(pages)).Str("file", name).Msg("Successfully loaded pages")
	return pages, nil
}

func (l *Loader) validate(upload *models.Upload) error {
	if upload == nil || upload.Content == nil || strings.TrimSpace(upload.Name) == "" {
		return ragerr.Document("no file provided", nil)
	}
	if !strings.EqualFold(filepath.Ext(upload.Name), pdfExt) {
		return ragerr.Document("only PDF files are supported", nil)
	}
	if upload.Size > l.maxBytes {
		return ragerr.Document(l.sizeMessage(), nil)
	}
	return nil
}

func (l *Loader) sizeMessage() string {
	return fmt.Sprintf("file size exceeds %dMB limit", l.maxBytes/(1024*1024))
}

// save copies at most maxBytes+1 bytes so an oversized stream is detected
// without reading all of it.
func (l *Loader) save(path string, r io.Reader) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, ragerr.Document("failed to process document", err)
	}
	defer f.Close()

	n, err := io.Copy(f, io.LimitReader(r, l.maxBytes+1))
	if err != nil {
		return 0, ragerr.Document("failed to process document", err)
	}
	if n > l.maxBytes {
		return 0, ragerr.Document(l.sizeMessage(), nil)
	}
	return n, nil
}

func parsePDF(filePath string, size int64, source string) (pages []models.Page, err error) {
	// the pdf reader panics on some malformed inputs
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = ragerr.Document("failed to process document", fmt.Errorf("malformed PDF: %v", r))
		}
	}()

	f, err := os.Open(filePath)
	if err != nil {
		return nil, ragerr.Document("failed to process document", err)
	}
	defer f.Close()

	reader, err := pdf.NewReader(f, size)
	if err != nil {
		return nil, ragerr.Document("failed to process document", err)
	}

	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return nil, ragerr.Document("failed to process document", fmt.Errorf("page %d: %w", i, err))
		}
		if strings.TrimSpace(pageText) == "" {
			continue
		}
		pages = append(pages, models.Page{
			Content:        pageText,
			SourceFilename: source,
			PageNumber:     i,
		})
	}

	if len(pages) == 0 {
		return nil, ragerr.Document("no content could be extracted from the PDF", nil)
	}
	return pages, nil
}

func cleanup(dir, path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Str("path", path).Msg("Failed to remove temporary file")
	}
	if err := os.Remove(dir); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Str("path", dir).Msg("Failed to remove temporary directory")
	}
}
