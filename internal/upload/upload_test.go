package upload

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studyai/internal/backend"
	"studyai/internal/models"
	"studyai/internal/registry"
)

type recorder struct {
	mu    sync.Mutex
	items []models.Notification
}

func (r *recorder) Notify(n models.Notification) {
	r.mu.Lock()
	r.items = append(r.items, n)
	r.mu.Unlock()
}

func (r *recorder) kinds() []models.NotificationKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.NotificationKind, 0, len(r.items))
	for _, n := range r.items {
		out = append(out, n.Kind)
	}
	return out
}

type failingIngestor struct {
	failOn string
	calls  []string
}

func (f *failingIngestor) Ingest(ctx context.Context, file models.FileUpload) (*models.Document, error) {
	f.calls = append(f.calls, file.Name)
	if file.Name == f.failOn {
		return nil, errors.New("disk on fire")
	}
	return models.NewDocument(file, time.Now()), nil
}

type blockingIngestor struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingIngestor) Ingest(ctx context.Context, file models.FileUpload) (*models.Document, error) {
	close(b.started)
	<-b.release
	return models.NewDocument(file, time.Now()), nil
}

func instantMock() *backend.Mock {
	m := backend.NewMock()
	m.ProcessDelay = 0
	return m
}

func file(name, mime string, size int64) models.FileUpload {
	return models.FileUpload{Name: name, MimeType: mime, Size: size}
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate(file("a.pdf", "application/pdf", 1), 0))
	assert.NoError(t, Validate(file("a.md", "text/markdown", 10*1024*1024), 0))
	assert.ErrorIs(t, Validate(file("a.png", "image/png", 1), 0), ErrInvalidFileType)
	assert.ErrorIs(t, Validate(file("a.txt", "text/plain", 10*1024*1024+1), 0), ErrFileTooLarge)
	assert.ErrorIs(t, Validate(file("a.png", "image/png", 11*1024*1024), 0), ErrInvalidFileType)
	assert.ErrorIs(t, Validate(file("a.txt", "text/plain", 6), 5), ErrFileTooLarge)
}

func TestNotificationTexts(t *testing.T) {
	doc := &models.Document{Name: "notes.pdf"}
	ok := Notification(nil, doc, 0, time.Now())
	assert.Equal(t, models.SeverityInfo, ok.Severity)
	assert.Equal(t, "notes.pdf is ready for questions", ok.Description)

	bad := Notification(ErrInvalidFileType, nil, 0, time.Now())
	assert.Equal(t, models.SeverityDestructive, bad.Severity)
	assert.Equal(t, "Invalid file type", bad.Title)

	big := Notification(ErrFileTooLarge, nil, 0, time.Now())
	assert.Equal(t, "File too large", big.Title)
	assert.Equal(t, "Please upload files smaller than 10MB", big.Description)

	custom := Notification(ErrFileTooLarge, nil, 2*1024*1024, time.Now())
	assert.Equal(t, "Please upload files smaller than 2MB", custom.Description)

	failed := Notification(errors.New("x"), nil, 0, time.Now())
	assert.Equal(t, models.KindUploadFailed, failed.Kind)
}

func TestProcessBatchMixedFiles(t *testing.T) {
	reg := registry.New()
	notes := &recorder{}
	w := New(reg, instantMock(), notes, Options{})

	files := []models.FileUpload{
		file("notes.pdf", "application/pdf", 2*1024*1024),
		file("image.png", "image/png", 1024*1024),
		file("big.txt", "text/plain", 11*1024*1024),
		file("notes.pdf", "application/pdf", 10),
		file("readme.txt", "text/plain", 42),
	}
	res, err := w.ProcessBatch(context.Background(), files)
	require.NoError(t, err)
	assert.False(t, res.Aborted)
	assert.Equal(t, 2, res.Rejected)
	require.Len(t, res.Accepted, 3)

	docs := reg.List()
	require.Len(t, docs, 3)
	assert.Equal(t, []string{"notes.pdf", "notes.pdf", "readme.txt"}, []string{docs[0].Name, docs[1].Name, docs[2].Name})
	assert.Equal(t, int64(2*1024*1024), docs[0].SizeBytes)
	for _, d := range docs {
		assert.Equal(t, models.DocumentProcessed, d.Status)
	}
	assert.Equal(t, []models.NotificationKind{
		models.KindUploadSucceeded,
		models.KindInvalidFileType,
		models.KindFileTooLarge,
		models.KindUploadSucceeded,
		models.KindUploadSucceeded,
	}, notes.kinds())
	assert.False(t, w.InProgress())
}

func TestProcessBatchAbortsOnUnexpectedFailure(t *testing.T) {
	reg := registry.New()
	notes := &recorder{}
	ing := &failingIngestor{failOn: "b.txt"}
	w := New(reg, ing, notes, Options{})

	res, err := w.ProcessBatch(context.Background(), []models.FileUpload{
		file("a.txt", "text/plain", 1),
		file("b.txt", "text/plain", 1),
		file("c.txt", "text/plain", 1),
	})
	require.NoError(t, err)
	assert.True(t, res.Aborted)
	assert.ErrorIs(t, res.Err, ErrUploadFailed)
	assert.Equal(t, []string{"a.txt", "b.txt"}, ing.calls)
	assert.Equal(t, 1, reg.Len())
	assert.Equal(t, []models.NotificationKind{models.KindUploadSucceeded, models.KindUploadFailed}, notes.kinds())
	assert.False(t, w.InProgress())
}

func TestEmptyBatchIsNoop(t *testing.T) {
	notes := &recorder{}
	w := New(registry.New(), instantMock(), notes, Options{})
	res, err := w.ProcessBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, res.Accepted)
	assert.Empty(t, notes.kinds())
}

func TestConcurrentBatchRefused(t *testing.T) {
	reg := registry.New()
	notes := &recorder{}
	ing := &blockingIngestor{started: make(chan struct{}), release: make(chan struct{})}
	w := New(reg, ing, notes, Options{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = w.ProcessBatch(context.Background(), []models.FileUpload{file("a.txt", "text/plain", 1)})
	}()
	<-ing.started
	assert.True(t, w.InProgress())

	_, err := w.ProcessBatch(context.Background(), []models.FileUpload{file("b.txt", "text/plain", 1)})
	assert.ErrorIs(t, err, ErrUploadInProgress)

	close(ing.release)
	<-done
	assert.Equal(t, 1, reg.Len())
	assert.Equal(t, []models.NotificationKind{models.KindUploadSucceeded}, notes.kinds())
}

func TestClaimRelease(t *testing.T) {
	w := New(registry.New(), instantMock(), nil, Options{})
	b, err := w.Claim()
	require.NoError(t, err)
	_, err = w.Claim()
	assert.ErrorIs(t, err, ErrUploadInProgress)
	b.Release()
	b.Release()
	assert.False(t, w.InProgress())
}
