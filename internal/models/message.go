package models

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// GenericSourceLabel attributes a reply to the whole registry when nothing is selected.
const GenericSourceLabel = "Multiple documents"

// Message is one turn of a transcript. Messages are append-only.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Sources   []string  `json:"sources,omitempty"`
	IsSummary bool      `json:"is_summary,omitempty"`
}

func NewUserMessage(content string, now time.Time) *Message {
	return &Message{
		ID:        uuid.NewString(),
		Role:      RoleUser,
		Content:   content,
		Timestamp: now.UTC(),
	}
}

func NewAssistantMessage(content string, sources []string, now time.Time) *Message {
	return &Message{
		ID:        uuid.NewString(),
		Role:      RoleAssistant,
		Content:   content,
		Timestamp: now.UTC(),
		Sources:   sources,
	}
}

// Clone returns a deep copy so snapshots never alias transcript storage.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	c := *m
	if m.Sources != nil {
		c.Sources = append([]string(nil), m.Sources...)
	}
	return &c
}
