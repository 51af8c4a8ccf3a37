package models

import "time"

type Severity string

const (
	SeverityInfo        Severity = "info"
	SeverityDestructive Severity = "destructive"
)

// NotificationKind is the machine-readable reason behind a notification.
type NotificationKind string

const (
	KindUploadSucceeded    NotificationKind = "upload_succeeded"
	KindInvalidFileType    NotificationKind = "invalid_file_type"
	KindFileTooLarge       NotificationKind = "file_too_large"
	KindUploadFailed       NotificationKind = "upload_failed"
	KindNoDocumentSelected NotificationKind = "no_document_selected"
	KindReplyFailed        NotificationKind = "reply_failed"
	KindSummaryFailed      NotificationKind = "summary_failed"
)

// Notification is a transient user-visible alert.
type Notification struct {
	Kind        NotificationKind `json:"kind"`
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Severity    Severity         `json:"severity"`
	CreatedAt   time.Time        `json:"created_at"`
}
