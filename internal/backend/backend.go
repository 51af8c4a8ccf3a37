// Package backend defines the collaborators the workflows depend on for
// ingestion, question answering and summarization, together with a
// simulated implementation and an LLM-backed one.
package backend

import (
	"context"
	"errors"
	"strings"
	"time"

	"studyai/internal/models"
)

// Typed ingestion failures.
var (
	ErrInvalidType      = errors.New("invalid_type")
	ErrTooLarge         = errors.New("too_large")
	ErrProcessingFailed = errors.New("processing_failed")
)

// DefaultMaxUploadBytes is the 10 MiB upload ceiling.
const DefaultMaxUploadBytes int64 = 10 * 1024 * 1024

// Ingestor turns an accepted upload into a processed document.
type Ingestor interface {
	Ingest(ctx context.Context, file models.FileUpload) (*models.Document, error)
}

// AnswerRequest carries everything the QA backend may use.
type AnswerRequest struct {
	Question string
	Document *models.Document // nil when nothing is selected
	History  []*models.Message
}

type Answerer interface {
	Answer(ctx context.Context, req AnswerRequest) (*models.Message, error)
}

type Summarizer interface {
	Summarize(ctx context.Context, doc *models.Document) (*models.Message, error)
}

// Notifier accepts transient user-visible alerts. It must not block.
type Notifier interface {
	Notify(n models.Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(models.Notification)

func (f NotifierFunc) Notify(n models.Notification) { f(n) }

// AcceptsMimeType reports whether the declared type is pdf-like or text-like.
func AcceptsMimeType(mimeType string) bool {
	mt := strings.ToLower(mimeType)
	return strings.Contains(mt, "pdf") || strings.Contains(mt, "text")
}

// CheckFile applies the type check first, then the size check.
func CheckFile(file models.FileUpload, maxBytes int64) error {
	if !AcceptsMimeType(file.MimeType) {
		return ErrInvalidType
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	if file.Size > maxBytes {
		return ErrTooLarge
	}
	return nil
}

// Sources returns the attribution list for a reply.
func Sources(doc *models.Document) []string {
	if doc == nil {
		return []string{models.GenericSourceLabel}
	}
	return []string{doc.Name}
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
