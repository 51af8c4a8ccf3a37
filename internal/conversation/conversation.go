// Package conversation owns a session transcript and the pending reply state.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"studyai/internal/backend"
	"studyai/internal/logger"
	"studyai/internal/metrics"
	"studyai/internal/models"
	"studyai/internal/registry"
)

var (
	ErrNoDocumentSelected = errors.New("no_document_selected")
	ErrReplyFailed        = errors.New("reply_failed")
	ErrSummaryFailed      = errors.New("summary_failed")
	ErrReplyPending       = errors.New("reply already pending")
)

const (
	kindAnswer  = "answer"
	kindSummary = "summary"
)

var (
	replyFailure = models.Notification{
		Kind:        models.KindReplyFailed,
		Title:       "Error",
		Description: "Failed to get AI response",
	}
	summaryFailure = models.Notification{
		Kind:        models.KindSummaryFailed,
		Title:       "Error",
		Description: "Failed to generate summary",
	}
)

type Options struct {
	Logger  *logger.Logger
	Metrics *metrics.Metrics
	Now     func() time.Time
	// OnAppend runs after a message has been committed to the transcript.
	OnAppend func(*models.Message)
	// OnPending runs whenever the pending flag flips.
	OnPending func(bool)
}

// Workflow is the idle / awaiting_reply state machine of one session.
type Workflow struct {
	registry   *registry.Registry
	answerer   backend.Answerer
	summarizer backend.Summarizer
	notifier   backend.Notifier
	opts       Options

	mu         sync.Mutex
	transcript []*models.Message
	pending    bool
}

func New(reg *registry.Registry, answerer backend.Answerer, summarizer backend.Summarizer, notifier backend.Notifier, opts Options) *Workflow {
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if notifier == nil {
		notifier = backend.NotifierFunc(func(models.Notification) {})
	}
	return &Workflow{
		registry:   reg,
		answerer:   answerer,
		summarizer: summarizer,
		notifier:   notifier,
		opts:       opts,
	}
}

// Transcript returns a deep copy of the messages in append order.
func (w *Workflow) Transcript() []*models.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]*models.Message, len(w.transcript))
	for i, msg := range w.transcript {
		out[i] = msg.Clone()
	}
	return out
}

func (w *Workflow) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.transcript)
}

func (w *Workflow) Pending() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pending
}

// Turn is an accepted request waiting for its backend call.
type Turn struct {
	w        *Workflow
	summary  bool
	question string
	doc      *models.Document
	history  []*models.Message
}

// Document is the document selected when the turn was accepted, if any.
func (t *Turn) Document() *models.Document { return t.doc }

// BeginMessage appends the user message and enters awaiting_reply. Blank
// text yields a nil turn and no error.
func (w *Workflow) BeginMessage(text string) (*Turn, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	doc, _ := w.registry.Selected()

	w.mu.Lock()
	if w.pending {
		w.mu.Unlock()
		return nil, ErrReplyPending
	}
	msg := models.NewUserMessage(text, w.opts.Now())
	w.transcript = append(w.transcript, msg)
	w.pending = true
	history := make([]*models.Message, len(w.transcript))
	for i, m := range w.transcript {
		history[i] = m.Clone()
	}
	w.mu.Unlock()

	w.appended(msg)
	w.pendingChanged(true)
	return &Turn{w: w, question: text, doc: doc, history: history}, nil
}

// BeginSummary enters awaiting_reply for the selected document. Without a
// selection it emits no_document_selected and changes nothing.
func (w *Workflow) BeginSummary() (*Turn, error) {
	doc, ok := w.registry.Selected()
	if !ok {
		w.emit(models.Notification{
			Kind:        models.KindNoDocumentSelected,
			Title:       "No document selected",
			Description: "Please select a document to summarize",
			Severity:    models.SeverityDestructive,
			CreatedAt:   w.opts.Now().UTC(),
		})
		return nil, ErrNoDocumentSelected
	}

	w.mu.Lock()
	if w.pending {
		w.mu.Unlock()
		return nil, ErrReplyPending
	}
	w.pending = true
	w.mu.Unlock()

	w.pendingChanged(true)
	return &Turn{w: w, summary: true, doc: doc}, nil
}

// Run calls the backend, commits the reply or reports the failure, and
// returns to idle. A panicking backend counts as a failure.
func (t *Turn) Run(ctx context.Context) (msg *models.Message, err error) {
	defer func() {
		if r := recover(); r != nil {
			msg, err = nil, t.Abort(fmt.Errorf("backend panic: %v", r))
		}
	}()
	if t.summary {
		return t.w.finishSummary(ctx, t)
	}
	return t.w.finishAnswer(ctx, t)
}

// Abort fails the turn without calling the backend, as if the backend had
// returned err.
func (t *Turn) Abort(err error) error {
	if t.summary {
		t.w.fail(summaryFailure, kindSummary, err)
		return fmt.Errorf("%w: %w", ErrSummaryFailed, err)
	}
	t.w.fail(replyFailure, kindAnswer, err)
	return fmt.Errorf("%w: %w", ErrReplyFailed, err)
}

// SendMessage runs a full question turn synchronously. Blank text returns
// nil, nil.
func (w *Workflow) SendMessage(ctx context.Context, text string) (*models.Message, error) {
	turn, err := w.BeginMessage(text)
	if err != nil || turn == nil {
		return nil, err
	}
	return turn.Run(ctx)
}

// Summarize runs a full summary turn synchronously.
func (w *Workflow) Summarize(ctx context.Context) (*models.Message, error) {
	turn, err := w.BeginSummary()
	if err != nil {
		return nil, err
	}
	return turn.Run(ctx)
}

func (w *Workflow) finishAnswer(ctx context.Context, t *Turn) (*models.Message, error) {
	start := time.Now()
	reply, err := w.answerer.Answer(ctx, backend.AnswerRequest{
		Question: t.question,
		Document: t.doc,
		History:  t.history,
	})
	w.opts.Metrics.ObserveBackend(kindAnswer, start)
	if err == nil && reply == nil {
		err = errors.New("empty reply")
	}
	if err != nil {
		w.fail(replyFailure, kindAnswer, err)
		return nil, fmt.Errorf("%w: %w", ErrReplyFailed, err)
	}
	return w.commit(reply, t.doc, false, kindAnswer), nil
}

func (w *Workflow) finishSummary(ctx context.Context, t *Turn) (*models.Message, error) {
	start := time.Now()
	reply, err := w.summarizer.Summarize(ctx, t.doc)
	w.opts.Metrics.ObserveBackend(kindSummary, start)
	if err == nil && reply == nil {
		err = errors.New("empty summary")
	}
	if err != nil {
		w.fail(summaryFailure, kindSummary, err)
		return nil, fmt.Errorf("%w: %w", ErrSummaryFailed, err)
	}
	return w.commit(reply, t.doc, true, kindSummary), nil
}

// commit appends the assistant message. Attribution always follows the
// document selected when the turn began.
func (w *Workflow) commit(reply *models.Message, doc *models.Document, summary bool, kind string) *models.Message {
	msg := reply.Clone()
	msg.Role = models.RoleAssistant
	msg.Sources = backend.Sources(doc)
	msg.IsSummary = summary
	if msg.Timestamp.IsZero() {
		msg.Timestamp = w.opts.Now().UTC()
	}

	w.mu.Lock()
	w.transcript = append(w.transcript, msg)
	w.pending = false
	w.mu.Unlock()

	w.opts.Metrics.ObserveReply(kind, metrics.OutcomeOK)
	w.opts.Logger.Debug("assistant reply committed", "kind", kind, "message_id", msg.ID, "sources", msg.Sources)
	w.appended(msg)
	w.pendingChanged(false)
	return msg.Clone()
}

func (w *Workflow) fail(n models.Notification, kind string, err error) {
	w.mu.Lock()
	w.pending = false
	w.mu.Unlock()

	w.opts.Metrics.ObserveReply(kind, metrics.OutcomeFailed)
	w.opts.Logger.Error("assistant reply failed", "kind", kind, "error", err)
	n.Severity = models.SeverityDestructive
	n.CreatedAt = w.opts.Now().UTC()
	w.emit(n)
	w.pendingChanged(false)
}

func (w *Workflow) emit(n models.Notification) {
	w.opts.Metrics.ObserveNotification(n.Kind)
	w.notifier.Notify(n)
}

func (w *Workflow) appended(msg *models.Message) {
	if w.opts.OnAppend != nil {
		w.opts.OnAppend(msg.Clone())
	}
}

func (w *Workflow) pendingChanged(p bool) {
	if w.opts.OnPending != nil {
		w.opts.OnPending(p)
	}
}
