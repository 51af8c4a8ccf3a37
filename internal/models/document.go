package models

import (
	"time"

	"github.com/google/uuid"
)

// DocumentStatus tracks ingestion progress. Only DocumentProcessed is produced today.
type DocumentStatus string

const (
	DocumentProcessing DocumentStatus = "processing"
	DocumentProcessed  DocumentStatus = "processed"
	DocumentFailed     DocumentStatus = "failed"
)

// Document represents one uploaded study artifact. It is never mutated after creation.
type Document struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	MimeType   string         `json:"mime_type"`
	SizeBytes  int64          `json:"size_bytes"`
	UploadedAt time.Time      `json:"uploaded_at"`
	Status     DocumentStatus `json:"status"`

	// Text holds extracted text for text-like uploads when a real ingestion
	// backend is configured. It never leaves the process.
	Text string `json:"-"`
}

// FileUpload is one candidate file of an upload batch.
type FileUpload struct {
	Name     string
	MimeType string
	Size     int64
	Data     []byte
}

// NewDocument builds a processed document from an accepted upload.
func NewDocument(file FileUpload, now time.Time) *Document {
	return &Document{
		ID:         uuid.NewString(),
		Name:       file.Name,
		MimeType:   file.MimeType,
		SizeBytes:  file.Size,
		UploadedAt: now.UTC(),
		Status:     DocumentProcessed,
	}
}
