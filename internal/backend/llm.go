package backend

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"studyai/internal/models"
)

const maxPromptDocumentChars = 12000

// LLM answers questions and summarizes documents through an eino chat model.
type LLM struct {
	chatModel model.BaseChatModel
	now       func() time.Time
}

func NewLLM(chatModel model.BaseChatModel) (*LLM, error) {
	if chatModel == nil {
		return nil, errors.New("chat model required")
	}
	return &LLM{chatModel: chatModel, now: time.Now}, nil
}

func (l *LLM) Answer(ctx context.Context, req AnswerRequest) (*models.Message, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, errors.New("question cannot be empty")
	}
	systemPrompt := "You are a study assistant. Answer the student's question using the study material they uploaded. " +
		"Be concise and say so when the material does not cover the question."
	if req.Document != nil {
		systemPrompt += "\n\n" + documentContext(req.Document)
	} else {
		systemPrompt += "\n\nNo single document is selected; answer from the student's documents in general."
	}
	messages := []*schema.Message{schema.SystemMessage(systemPrompt)}
	for _, msg := range req.History {
		if msg == nil {
			continue
		}
		switch msg.Role {
		case models.RoleUser:
			messages = append(messages, schema.UserMessage(msg.Content))
		case models.RoleAssistant:
			messages = append(messages, schema.AssistantMessage(msg.Content, nil))
		}
	}
	// History already ends with the question when the caller appended it.
	if n := len(req.History); n == 0 || req.History[n-1].Role != models.RoleUser || req.History[n-1].Content != req.Question {
		messages = append(messages, schema.UserMessage(question))
	}

	resp, err := l.chatModel.Generate(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("generate answer failed: %w", err)
	}
	content := strings.TrimSpace(resp.Content)
	if content == "" {
		return nil, errors.New("empty answer from model")
	}
	return models.NewAssistantMessage(content, Sources(req.Document), l.now()), nil
}

func (l *LLM) Summarize(ctx context.Context, doc *models.Document) (*models.Message, error) {
	if doc == nil {
		return nil, errors.New("summarize: document required")
	}
	systemPrompt := "You are a helpful assistant that summarizes study documents. " +
		"Write a short overview paragraph, then a \"**Key Points:**\" section with bullet points starting with •, " +
		"then a \"**Recommendations:**\" section with study advice. Limit the overview to 4 sentences."
	schemaMessages := []*schema.Message{
		schema.SystemMessage(systemPrompt),
		schema.UserMessage(documentContext(doc)),
	}
	resp, err := l.chatModel.Generate(ctx, schemaMessages)
	if err != nil {
		return nil, fmt.Errorf("summarize document failed: %w", err)
	}
	body := strings.TrimSpace(resp.Content)
	if body == "" {
		return nil, errors.New("empty summary from model")
	}
	content := fmt.Sprintf("Here's a summary of \"%s\":\n\n%s", doc.Name, body)
	msg := models.NewAssistantMessage(content, Sources(doc), l.now())
	msg.IsSummary = true
	return msg, nil
}

func documentContext(doc *models.Document) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Document: %s (%s)\n", doc.Name, doc.MimeType)
	text := strings.TrimSpace(doc.Text)
	if text == "" {
		b.WriteString("The document text is not available; rely on its title.")
		return b.String()
	}
	runes := []rune(text)
	if len(runes) > maxPromptDocumentChars {
		runes = runes[:maxPromptDocumentChars]
	}
	b.WriteString("Document content:\n")
	b.WriteString(string(runes))
	return b.String()
}
