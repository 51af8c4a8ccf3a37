package backend

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"studyai/internal/models"
)

// Picker chooses one of n templates.
type Picker func(n int) int

// RandomPicker picks uniformly.
func RandomPicker(n int) int {
	return rand.IntN(n)
}

// FixedPicker always picks idx (clamped to the range).
func FixedPicker(idx int) Picker {
	return func(n int) int {
		if idx < 0 {
			return 0
		}
		if idx >= n {
			return n - 1
		}
		return idx
	}
}

// Mock simulates every backend with fixed delays and canned content.
type Mock struct {
	ProcessDelay time.Duration
	ReplyDelay   time.Duration
	SummaryDelay time.Duration
	MaxBytes     int64
	Pick         Picker
	Now          func() time.Time
}

// NewMock returns a mock with the delays of the browser prototype.
func NewMock() *Mock {
	return &Mock{
		ProcessDelay: time.Second,
		ReplyDelay:   1500 * time.Millisecond,
		SummaryDelay: 2 * time.Second,
		MaxBytes:     DefaultMaxUploadBytes,
		Pick:         RandomPicker,
		Now:          time.Now,
	}
}

func (m *Mock) now() time.Time {
	if m.Now == nil {
		return time.Now()
	}
	return m.Now()
}

func (m *Mock) Ingest(ctx context.Context, file models.FileUpload) (*models.Document, error) {
	if err := CheckFile(file, m.MaxBytes); err != nil {
		return nil, err
	}
	if err := sleep(ctx, m.ProcessDelay); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProcessingFailed, err)
	}
	return models.NewDocument(file, m.now()), nil
}

func (m *Mock) Answer(ctx context.Context, req AnswerRequest) (*models.Message, error) {
	if err := sleep(ctx, m.ReplyDelay); err != nil {
		return nil, err
	}
	pick := m.Pick
	if pick == nil {
		pick = RandomPicker
	}
	content := MockAnswer(req.Question, req.Document, pick)
	return models.NewAssistantMessage(content, Sources(req.Document), m.now()), nil
}

func (m *Mock) Summarize(ctx context.Context, doc *models.Document) (*models.Message, error) {
	if doc == nil {
		return nil, fmt.Errorf("summarize: document required")
	}
	if err := sleep(ctx, m.SummaryDelay); err != nil {
		return nil, err
	}
	msg := models.NewAssistantMessage(MockSummary(doc.Name), Sources(doc), m.now())
	msg.IsSummary = true
	return msg, nil
}

// MockAnswer builds a canned reply. The category is chosen by keywords in the
// question; the template is chosen by pick.
func MockAnswer(question string, doc *models.Document, pick Picker) string {
	docRef, materialsRef := "your documents", "your uploaded materials"
	if doc != nil {
		docRef = `"` + doc.Name + `"`
		materialsRef = docRef
	}
	q := strings.ToLower(question)
	category := "According to the material..."
	switch {
	case strings.Contains(q, "what"):
		category = "This concept refers to..."
	case strings.Contains(q, "how"):
		category = "The process involves..."
	}
	templates := []string{
		fmt.Sprintf("Based on %s, here's what I found: %s", docRef, category),
		fmt.Sprintf("From the content in %s, I can explain that this topic is important because it provides foundational understanding of the subject matter.", materialsRef),
		fmt.Sprintf("Looking at %s, the answer to your question involves several key components that work together to achieve the desired outcome.", docRef),
	}
	return templates[pick(len(templates))]
}

// MockSummary builds the fixed overview / key points / recommendations summary.
func MockSummary(name string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Here's a summary of \"%s\":\n\n", name)
	b.WriteString("This document covers key concepts and important information relevant to your studies. ")
	b.WriteString("The main topics include foundational principles, practical applications, and detailed explanations of core concepts.\n\n")
	b.WriteString("**Key Points:**\n")
	b.WriteString("• Important concept 1\n")
	b.WriteString("• Critical information 2\n")
	b.WriteString("• Essential details 3\n\n")
	b.WriteString("**Recommendations:**\n")
	b.WriteString("Focus on the highlighted sections for exam preparation and consider reviewing the examples provided for better understanding.")
	return b.String()
}
