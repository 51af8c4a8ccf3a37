package backend

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/document/loader/file"
	"github.com/cloudwego/eino/components/document"
	"github.com/cloudwego/eino/components/document/parser"

	"studyai/internal/models"
)

const maxExtractedChars = 200000

// FileIngestor stages an upload on disk and extracts text from text-like
// files through the eino file loader. PDFs are accepted without text.
type FileIngestor struct {
	baseDir  string
	maxBytes int64
	loader   *file.FileLoader
	now      func() time.Time
}

func NewFileIngestor(ctx context.Context, baseDir string, maxBytes int64) (*FileIngestor, error) {
	if baseDir == "" {
		return nil, errors.New("file base dir required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create file base dir: %w", err)
	}
	parserExt, err := parser.NewExtParser(ctx, &parser.ExtParserConfig{
		FallbackParser: parser.TextParser{},
	})
	if err != nil {
		return nil, fmt.Errorf("init ext parser: %w", err)
	}
	loader, err := file.NewFileLoader(ctx, &file.FileLoaderConfig{
		UseNameAsID: true,
		Parser:      parserExt,
	})
	if err != nil {
		return nil, fmt.Errorf("init file loader: %w", err)
	}
	return &FileIngestor{baseDir: baseDir, maxBytes: maxBytes, loader: loader, now: time.Now}, nil
}

func (f *FileIngestor) Ingest(ctx context.Context, upload models.FileUpload) (*models.Document, error) {
	if err := CheckFile(upload, f.maxBytes); err != nil {
		return nil, err
	}
	if int64(len(upload.Data)) != upload.Size {
		return nil, fmt.Errorf("%w: size mismatch for %s", ErrProcessingFailed, upload.Name)
	}
	doc := models.NewDocument(upload, f.now())
	if !strings.Contains(strings.ToLower(upload.MimeType), "text") {
		return doc, nil
	}

	stageDir, err := os.MkdirTemp(f.baseDir, "ingest-")
	if err != nil {
		return nil, fmt.Errorf("%w: stage dir: %v", ErrProcessingFailed, err)
	}
	defer os.RemoveAll(stageDir)
	path := filepath.Join(stageDir, filepath.Base(upload.Name))
	if err := os.WriteFile(path, upload.Data, 0o600); err != nil {
		return nil, fmt.Errorf("%w: stage file: %v", ErrProcessingFailed, err)
	}
	docs, err := f.loader.Load(ctx, document.Source{URI: path})
	if err != nil {
		return nil, fmt.Errorf("%w: load file: %v", ErrProcessingFailed, err)
	}
	var builder strings.Builder
	for _, d := range docs {
		content := strings.TrimSpace(d.Content)
		if content == "" {
			continue
		}
		builder.WriteString(content)
		builder.WriteString("\n\n")
	}
	text := []rune(strings.TrimSpace(builder.String()))
	if len(text) > maxExtractedChars {
		text = text[:maxExtractedChars]
	}
	doc.Text = string(text)
	return doc, nil
}
