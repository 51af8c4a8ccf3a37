// Package view derives display rows from session snapshots.
package view

import (
	"strings"

	"studyai/internal/models"
	"studyai/internal/registry"
)

// EmptyDocumentsText is shown when the registry has no documents.
const EmptyDocumentsText = "No documents uploaded yet"

type DocumentRow struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	SizeLabel string `json:"size_label"`
	DateLabel string `json:"date_label"`
	Selected  bool   `json:"selected"`
}

type DocumentList struct {
	Rows      []DocumentRow `json:"rows"`
	EmptyText string        `json:"empty_text,omitempty"`
}

// DocumentRows renders the registry part of a snapshot.
func DocumentRows(snap models.SessionSnapshot, layout string) DocumentList {
	if len(snap.Documents) == 0 {
		return DocumentList{Rows: []DocumentRow{}, EmptyText: EmptyDocumentsText}
	}
	rows := make([]DocumentRow, 0, len(snap.Documents))
	for _, doc := range snap.Documents {
		rows = append(rows, DocumentRow{
			ID:        doc.ID,
			Name:      doc.Name,
			SizeLabel: registry.FormatSize(doc.SizeBytes),
			DateLabel: registry.FormatDate(doc.UploadedAt, layout),
			Selected:  doc.ID == snap.SelectedID,
		})
	}
	return DocumentList{Rows: rows}
}

type Line struct {
	ID        string      `json:"id"`
	Role      models.Role `json:"role"`
	Content   string      `json:"content"`
	Sources   string      `json:"sources,omitempty"`
	IsSummary bool        `json:"is_summary,omitempty"`
}

// Transcript renders messages in append order. The output depends only on
// the input messages.
func Transcript(messages []*models.Message) []Line {
	lines := make([]Line, 0, len(messages))
	for _, msg := range messages {
		if msg == nil {
			continue
		}
		line := Line{ID: msg.ID, Role: msg.Role, Content: msg.Content, IsSummary: msg.IsSummary}
		if len(msg.Sources) > 0 {
			line.Sources = "Sources: " + strings.Join(msg.Sources, ", ")
		}
		lines = append(lines, line)
	}
	return lines
}

// Header is the chat title line.
func Header(snap models.SessionSnapshot) string {
	if snap.SelectedName == "" {
		return "Chat with your documents"
	}
	return "Chatting with: " + snap.SelectedName
}
