package conversation

import (
	"context"
	"errors"
	"strings"
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

func (r *recorder) all() []models.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Notification(nil), r.items...)
}

type brokenBackend struct{}

func (brokenBackend) Answer(ctx context.Context, req backend.AnswerRequest) (*models.Message, error) {
	return nil, errors.New("model offline")
}

func (brokenBackend) Summarize(ctx context.Context, doc *models.Document) (*models.Message, error) {
	return nil, errors.New("model offline")
}

// sloppyBackend returns replies without attribution.
type sloppyBackend struct{}

func (sloppyBackend) Answer(ctx context.Context, req backend.AnswerRequest) (*models.Message, error) {
	return &models.Message{ID: "x", Content: "hmm"}, nil
}

func (sloppyBackend) Summarize(ctx context.Context, doc *models.Document) (*models.Message, error) {
	return &models.Message{ID: "y", Content: "short"}, nil
}

func instantMock() *backend.Mock {
	m := backend.NewMock()
	m.ProcessDelay, m.ReplyDelay, m.SummaryDelay = 0, 0, 0
	m.Pick = backend.FixedPicker(0)
	return m
}

func newWorkflow(ans backend.Answerer, sum backend.Summarizer) (*Workflow, *registry.Registry, *recorder) {
	reg := registry.New()
	notes := &recorder{}
	return New(reg, ans, sum, notes, Options{}), reg, notes
}

func addSelected(t *testing.T, reg *registry.Registry, name string) *models.Document {
	t.Helper()
	doc := models.NewDocument(models.FileUpload{Name: name, MimeType: "application/pdf", Size: 10}, time.Now())
	reg.Add(doc)
	_, err := reg.Select(doc.ID)
	require.NoError(t, err)
	return doc
}

func TestSendMessageWithSelection(t *testing.T) {
	mock := instantMock()
	w, reg, _ := newWorkflow(mock, mock)
	addSelected(t, reg, "notes.pdf")

	reply, err := w.SendMessage(context.Background(), "What is X?")
	require.NoError(t, err)
	assert.Equal(t, []string{"notes.pdf"}, reply.Sources)

	transcript := w.Transcript()
	require.Len(t, transcript, 2)
	assert.Equal(t, models.RoleUser, transcript[0].Role)
	assert.Equal(t, "What is X?", transcript[0].Content)
	assert.Equal(t, models.RoleAssistant, transcript[1].Role)
	assert.Contains(t, transcript[1].Content, `"notes.pdf"`)
	assert.False(t, w.Pending())
}

func TestSendMessageWithoutSelection(t *testing.T) {
	mock := instantMock()
	w, _, _ := newWorkflow(mock, mock)
	reply, err := w.SendMessage(context.Background(), "How does it work?")
	require.NoError(t, err)
	assert.Equal(t, []string{models.GenericSourceLabel}, reply.Sources)
	assert.Contains(t, reply.Content, "your documents")
}

func TestBlankMessageIsNoop(t *testing.T) {
	mock := instantMock()
	var pendingFlips int
	w := New(registry.New(), mock, mock, nil, Options{OnPending: func(bool) { pendingFlips++ }})
	for _, text := range []string{"", "   ", "\n\t"} {
		turn, err := w.BeginMessage(text)
		assert.NoError(t, err)
		assert.Nil(t, turn)
	}
	assert.Zero(t, w.Len())
	assert.False(t, w.Pending())
	assert.Zero(t, pendingFlips)
}

func TestSecondMessageWhilePendingRefused(t *testing.T) {
	mock := instantMock()
	w, _, _ := newWorkflow(mock, mock)

	turn, err := w.BeginMessage("first")
	require.NoError(t, err)
	require.True(t, w.Pending())

	_, err = w.BeginMessage("second")
	assert.ErrorIs(t, err, ErrReplyPending)
	_, err = w.BeginSummary()
	assert.ErrorIs(t, err, ErrNoDocumentSelected)

	_, err = turn.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, w.Len())
}

func TestSummaryWhilePendingRefused(t *testing.T) {
	mock := instantMock()
	w, reg, _ := newWorkflow(mock, mock)
	addSelected(t, reg, "notes.pdf")

	turn, err := w.BeginMessage("first")
	require.NoError(t, err)
	_, err = w.BeginSummary()
	assert.ErrorIs(t, err, ErrReplyPending)
	_, err = turn.Run(context.Background())
	require.NoError(t, err)
}

func TestSummarizeWithoutSelection(t *testing.T) {
	mock := instantMock()
	w, _, notes := newWorkflow(mock, mock)

	_, err := w.Summarize(context.Background())
	assert.ErrorIs(t, err, ErrNoDocumentSelected)
	assert.Zero(t, w.Len())
	assert.False(t, w.Pending())

	got := notes.all()
	require.Len(t, got, 1)
	assert.Equal(t, models.KindNoDocumentSelected, got[0].Kind)
	assert.Equal(t, "Please select a document to summarize", got[0].Description)
}

func TestSummarizeSelected(t *testing.T) {
	mock := instantMock()
	w, reg, notes := newWorkflow(mock, mock)
	addSelected(t, reg, "notes.pdf")

	msg, err := w.Summarize(context.Background())
	require.NoError(t, err)
	assert.True(t, msg.IsSummary)
	assert.Equal(t, []string{"notes.pdf"}, msg.Sources)
	assert.True(t, strings.HasPrefix(msg.Content, `Here's a summary of "notes.pdf"`))
	assert.Equal(t, 1, w.Len())
	assert.Empty(t, notes.all())
}

func TestFailuresCommitNothing(t *testing.T) {
	w, reg, notes := newWorkflow(brokenBackend{}, brokenBackend{})
	addSelected(t, reg, "notes.pdf")

	_, err := w.SendMessage(context.Background(), "What is X?")
	assert.ErrorIs(t, err, ErrReplyFailed)
	// the user turn stays, no assistant message is added
	assert.Equal(t, 1, w.Len())
	assert.False(t, w.Pending())

	_, err = w.Summarize(context.Background())
	assert.ErrorIs(t, err, ErrSummaryFailed)
	assert.Equal(t, 1, w.Len())
	assert.False(t, w.Pending())

	got := notes.all()
	require.Len(t, got, 2)
	assert.Equal(t, models.KindReplyFailed, got[0].Kind)
	assert.Equal(t, "Failed to get AI response", got[0].Description)
	assert.Equal(t, models.KindSummaryFailed, got[1].Kind)
	assert.Equal(t, models.SeverityDestructive, got[1].Severity)
}

func TestAttributionIsEnforced(t *testing.T) {
	w, reg, _ := newWorkflow(sloppyBackend{}, sloppyBackend{})
	reply, err := w.SendMessage(context.Background(), "anything")
	require.NoError(t, err)
	assert.Equal(t, []string{models.GenericSourceLabel}, reply.Sources)

	addSelected(t, reg, "a.pdf")
	summary, err := w.Summarize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a.pdf"}, summary.Sources)
	assert.True(t, summary.IsSummary)
}

func TestSelectionCapturedAtCallTime(t *testing.T) {
	mock := instantMock()
	w, reg, _ := newWorkflow(mock, mock)
	first := addSelected(t, reg, "first.pdf")

	turn, err := w.BeginMessage("What is it?")
	require.NoError(t, err)
	assert.Equal(t, first.ID, turn.Document().ID)
	addSelected(t, reg, "second.pdf")

	reply, err := turn.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"first.pdf"}, reply.Sources)
}

func TestTranscriptIsAppendOnlyAndCopied(t *testing.T) {
	mock := instantMock()
	var appended []string
	w := New(registry.New(), mock, mock, nil, Options{OnAppend: func(m *models.Message) { appended = append(appended, m.ID) }})
	for _, q := range []string{"one", "two", "three"} {
		_, err := w.SendMessage(context.Background(), q)
		require.NoError(t, err)
	}
	before := w.Transcript()
	require.Len(t, before, 6)
	before[0].Content = "mutated"
	before[1].Sources[0] = "mutated"

	after := w.Transcript()
	assert.Equal(t, "one", after[0].Content)
	assert.Equal(t, models.GenericSourceLabel, after[1].Sources[0])
	ids := make([]string, len(after))
	for i, m := range after {
		ids[i] = m.ID
	}
	assert.Equal(t, ids, appended)
}

func TestAbortResetsPending(t *testing.T) {
	mock := instantMock()
	w, reg, notes := newWorkflow(mock, mock)
	addSelected(t, reg, "a.pdf")

	turn, err := w.BeginSummary()
	require.NoError(t, err)
	require.True(t, w.Pending())
	err = turn.Abort(errors.New("queue full"))
	assert.ErrorIs(t, err, ErrSummaryFailed)
	assert.False(t, w.Pending())
	assert.Zero(t, w.Len())
	require.Len(t, notes.all(), 1)
	assert.Equal(t, models.KindSummaryFailed, notes.all()[0].Kind)
}

type panickyBackend struct{}

func (panickyBackend) Answer(ctx context.Context, req backend.AnswerRequest) (*models.Message, error) {
	panic("answerer exploded")
}

func (panickyBackend) Summarize(ctx context.Context, doc *models.Document) (*models.Message, error) {
	panic("summarizer exploded")
}

func TestBackendPanicReturnsToIdle(t *testing.T) {
	w, reg, notes := newWorkflow(panickyBackend{}, panickyBackend{})
	addSelected(t, reg, "a.pdf")

	_, err := w.SendMessage(context.Background(), "hi")
	assert.ErrorIs(t, err, ErrReplyFailed)
	assert.False(t, w.Pending())

	_, err = w.Summarize(context.Background())
	assert.ErrorIs(t, err, ErrSummaryFailed)
	assert.False(t, w.Pending())

	assert.Equal(t, 1, w.Len())
	got := notes.all()
	require.Len(t, got, 2)
	assert.Equal(t, models.KindReplyFailed, got[0].Kind)
	assert.Equal(t, models.KindSummaryFailed, got[1].Kind)
}

func TestAbortKeepsCauseInChain(t *testing.T) {
	mock := instantMock()
	w, _, _ := newWorkflow(mock, mock)
	cause := errors.New("queue full")

	turn, err := w.BeginMessage("hi")
	require.NoError(t, err)
	err = turn.Abort(cause)
	assert.ErrorIs(t, err, ErrReplyFailed)
	assert.ErrorIs(t, err, cause)
}
