// Package upload validates candidate files and turns accepted ones into
// registry documents, one batch at a time per session.
package upload

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"studyai/internal/backend"
	"studyai/internal/logger"
	"studyai/internal/metrics"
	"studyai/internal/models"
	"studyai/internal/registry"
)

var (
	ErrInvalidFileType  = errors.New("invalid_file_type")
	ErrFileTooLarge     = errors.New("file_too_large")
	ErrUploadFailed     = errors.New("upload_failed")
	ErrUploadInProgress = errors.New("upload_in_progress")
)

// Validate checks the declared type first and the size second.
func Validate(file models.FileUpload, maxBytes int64) error {
	switch err := backend.CheckFile(file, maxBytes); {
	case err == nil:
		return nil
	case errors.Is(err, backend.ErrInvalidType):
		return fmt.Errorf("%w: %s", ErrInvalidFileType, file.Name)
	case errors.Is(err, backend.ErrTooLarge):
		return fmt.Errorf("%w: %s", ErrFileTooLarge, file.Name)
	default:
		return fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
}

// Notification builds the user-facing alert for an upload outcome. err nil
// means the document was accepted. maxBytes is the limit quoted to the user.
func Notification(err error, doc *models.Document, maxBytes int64, now time.Time) models.Notification {
	n := models.Notification{Severity: models.SeverityDestructive, CreatedAt: now.UTC()}
	switch {
	case err == nil:
		n.Kind = models.KindUploadSucceeded
		n.Severity = models.SeverityInfo
		n.Title = "Document uploaded successfully"
		n.Description = doc.Name + " is ready for questions"
	case errors.Is(err, ErrInvalidFileType):
		n.Kind = models.KindInvalidFileType
		n.Title = "Invalid file type"
		n.Description = "Please upload PDF or text files only"
	case errors.Is(err, ErrFileTooLarge):
		n.Kind = models.KindFileTooLarge
		n.Title = "File too large"
		if maxBytes <= 0 {
			maxBytes = backend.DefaultMaxUploadBytes
		}
		n.Description = "Please upload files smaller than " + registry.FormatLimit(maxBytes)
	default:
		n.Kind = models.KindUploadFailed
		n.Title = "Upload failed"
		n.Description = "There was an error uploading your document"
	}
	return n
}

// Result summarizes one processed batch.
type Result struct {
	Accepted []*models.Document
	Rejected int
	// Aborted is set when an unexpected failure stopped the batch.
	Aborted bool
	Err     error
}

type Options struct {
	MaxBytes int64
	Logger   *logger.Logger
	Metrics  *metrics.Metrics
	Now      func() time.Time
	// OnAdded runs after a document has been added to the registry.
	OnAdded func(*models.Document)
}

// Workflow processes upload batches for one session.
type Workflow struct {
	registry *registry.Registry
	ingestor backend.Ingestor
	notifier backend.Notifier
	opts     Options
	inFlight atomic.Bool
}

func New(reg *registry.Registry, ingestor backend.Ingestor, notifier backend.Notifier, opts Options) *Workflow {
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = backend.DefaultMaxUploadBytes
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if notifier == nil {
		notifier = backend.NotifierFunc(func(models.Notification) {})
	}
	return &Workflow{registry: reg, ingestor: ingestor, notifier: notifier, opts: opts}
}

// InProgress reports whether a batch currently holds the upload slot.
func (w *Workflow) InProgress() bool {
	return w.inFlight.Load()
}

// Batch is a claimed upload slot. Process releases it.
type Batch struct {
	w    *Workflow
	done atomic.Bool
}

// Claim takes the session's upload slot or fails with ErrUploadInProgress.
func (w *Workflow) Claim() (*Batch, error) {
	if !w.inFlight.CompareAndSwap(false, true) {
		return nil, ErrUploadInProgress
	}
	return &Batch{w: w}, nil
}

// Release gives the slot back without processing anything.
func (b *Batch) Release() {
	if b.done.CompareAndSwap(false, true) {
		b.w.inFlight.Store(false)
	}
}

// Process handles files sequentially in input order and then releases the slot.
func (b *Batch) Process(ctx context.Context, files []models.FileUpload) *Result {
	defer b.Release()
	return b.w.process(ctx, files)
}

// ProcessBatch claims the slot and processes files. An empty batch is a no-op.
func (w *Workflow) ProcessBatch(ctx context.Context, files []models.FileUpload) (*Result, error) {
	if len(files) == 0 {
		return &Result{}, nil
	}
	batch, err := w.Claim()
	if err != nil {
		return nil, err
	}
	return batch.Process(ctx, files), nil
}

func (w *Workflow) process(ctx context.Context, files []models.FileUpload) *Result {
	res := &Result{}
	for _, file := range files {
		if err := Validate(file, w.opts.MaxBytes); err != nil {
			w.reject(res, file, err)
			continue
		}

		start := time.Now()
		doc, err := w.ingestor.Ingest(ctx, file)
		w.opts.Metrics.ObserveBackend("ingest", start)
		switch {
		case err == nil && doc != nil:
		case errors.Is(err, backend.ErrInvalidType):
			w.reject(res, file, fmt.Errorf("%w: %s", ErrInvalidFileType, file.Name))
			continue
		case errors.Is(err, backend.ErrTooLarge):
			w.reject(res, file, fmt.Errorf("%w: %s", ErrFileTooLarge, file.Name))
			continue
		default:
			if err == nil {
				err = errors.New("ingestor returned no document")
			}
			res.Aborted = true
			res.Err = fmt.Errorf("%w: %s: %v", ErrUploadFailed, file.Name, err)
			w.opts.Logger.Error("upload batch aborted", "file", file.Name, "error", err)
			w.opts.Metrics.ObserveUpload(metrics.OutcomeFailed)
			w.emit(Notification(res.Err, nil, w.opts.MaxBytes, w.opts.Now()))
			return res
		}

		w.registry.Add(doc)
		res.Accepted = append(res.Accepted, doc)
		w.opts.Logger.Info("document uploaded", "document_id", doc.ID, "name", doc.Name, "size", doc.SizeBytes)
		w.opts.Metrics.ObserveUpload(metrics.OutcomeAccepted)
		if w.opts.OnAdded != nil {
			w.opts.OnAdded(doc)
		}
		w.emit(Notification(nil, doc, w.opts.MaxBytes, w.opts.Now()))
	}
	return res
}

func (w *Workflow) reject(res *Result, file models.FileUpload, err error) {
	res.Rejected++
	w.opts.Logger.Warn("upload rejected", "file", file.Name, "mime_type", file.MimeType, "size", file.Size, "error", err)
	w.opts.Metrics.ObserveUpload(metrics.OutcomeRejected)
	w.emit(Notification(err, nil, w.opts.MaxBytes, w.opts.Now()))
}

func (w *Workflow) emit(n models.Notification) {
	w.opts.Metrics.ObserveNotification(n.Kind)
	w.notifier.Notify(n)
}
