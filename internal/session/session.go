// Package session is the single owner of one user's study session: its
// document registry, transcript, upload slot and notifications.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"studyai/internal/backend"
	"studyai/internal/conversation"
	"studyai/internal/logger"
	"studyai/internal/metrics"
	"studyai/internal/models"
	"studyai/internal/registry"
	"studyai/internal/upload"
	"studyai/internal/worker"
)

var ErrSessionClosed = errors.New("session closed")

// maxNotifications bounds the notification log kept for snapshots.
const maxNotifications = 50

// Deps are the collaborators shared by every session.
type Deps struct {
	Ingestor       backend.Ingestor
	Answerer       backend.Answerer
	Summarizer     backend.Summarizer
	Executor       worker.Executor
	Logger         *logger.Logger
	Metrics        *metrics.Metrics
	MaxUploadBytes int64
	Now            func() time.Time
}

type Session struct {
	id        string
	createdAt time.Time
	now       func() time.Time
	log       *logger.Logger
	exec      worker.Executor

	registry *registry.Registry
	uploads  *upload.Workflow
	chat     *conversation.Workflow

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu            sync.Mutex
	closed        bool
	theme         models.Theme
	notifications []*models.Notification
	lastActive    time.Time
	subscribers   map[int]chan Event
	nextSub       int
}

// New wires the workflows of a session around a fresh registry.
func New(id string, deps Deps) *Session {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = logger.Nop()
	}
	if deps.Executor == nil {
		deps.Executor = worker.Inline{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	now := deps.Now()
	s := &Session{
		id:          id,
		createdAt:   now.UTC(),
		now:         deps.Now,
		log:         deps.Logger.With("session_id", id),
		exec:        deps.Executor,
		registry:    registry.New(),
		ctx:         ctx,
		cancel:      cancel,
		theme:       models.ThemeLight,
		lastActive:  now,
		subscribers: make(map[int]chan Event),
	}
	notifier := backend.NotifierFunc(s.notify)
	s.uploads = upload.New(s.registry, deps.Ingestor, notifier, upload.Options{
		MaxBytes: deps.MaxUploadBytes,
		Logger:   s.log,
		Metrics:  deps.Metrics,
		Now:      deps.Now,
		OnAdded: func(doc *models.Document) {
			s.publish(EventDocument, doc)
		},
	})
	s.chat = conversation.New(s.registry, deps.Answerer, deps.Summarizer, notifier, conversation.Options{
		Logger:  s.log,
		Metrics: deps.Metrics,
		Now:     deps.Now,
		OnAppend: func(msg *models.Message) {
			s.publish(EventMessage, msg)
		},
		OnPending: func(p bool) {
			s.publish(EventPending, p)
		},
	})
	return s
}

func (s *Session) ID() string { return s.id }

func (s *Session) CreatedAt() time.Time { return s.createdAt }

func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// Busy reports whether an upload batch or a reply is in flight.
func (s *Session) Busy() bool {
	return s.uploads.InProgress() || s.chat.Pending()
}

// touch records activity and fails once the session is closed.
func (s *Session) touch() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	s.lastActive = s.now()
	return nil
}

// Upload starts processing a batch in the background. An empty batch is a
// no-op; a second batch while one is in flight fails with
// upload.ErrUploadInProgress and changes nothing.
func (s *Session) Upload(files []models.FileUpload) error {
	if err := s.touch(); err != nil {
		return err
	}
	if len(files) == 0 {
		return nil
	}
	batch, err := s.uploads.Claim()
	if err != nil {
		return err
	}
	s.publish(EventUploading, true)

	var once sync.Once
	finish := func() {
		once.Do(func() {
			s.publish(EventUploading, false)
			s.wg.Done()
		})
	}
	s.wg.Add(1)
	err = s.exec.Submit(worker.Job{
		SessionID: s.id,
		Name:      "upload",
		Run: func() {
			defer finish()
			res := batch.Process(s.ctx, files)
			s.log.Debug("upload batch finished", "accepted", len(res.Accepted), "rejected", res.Rejected, "aborted", res.Aborted)
		},
		Drop: func() {
			defer finish()
			batch.Release()
		},
	})
	if err != nil {
		batch.Release()
		finish()
		return fmt.Errorf("submit upload: %w", err)
	}
	return nil
}

// Select marks a listed document as the chat target.
func (s *Session) Select(id string) (*models.Document, error) {
	if err := s.touch(); err != nil {
		return nil, err
	}
	doc, err := s.registry.Select(id)
	if err != nil {
		return nil, err
	}
	s.publish(EventSelection, doc)
	return doc, nil
}

// RemoveDocument deletes a document. The selection is cleared when it pointed
// at the removed document; the transcript is left untouched.
func (s *Session) RemoveDocument(id string) error {
	if err := s.touch(); err != nil {
		return err
	}
	cleared, err := s.registry.Remove(id)
	if err != nil {
		return err
	}
	s.log.Info("document removed", "document_id", id, "selection_cleared", cleared)
	s.publish(EventDocumentRemoved, id)
	if cleared {
		s.publish(EventSelection, nil)
	}
	return nil
}

// SendMessage appends the user message and schedules the reply. It reports
// false for blank input, which changes nothing.
func (s *Session) SendMessage(text string) (bool, error) {
	if err := s.touch(); err != nil {
		return false, err
	}
	turn, err := s.chat.BeginMessage(text)
	if err != nil || turn == nil {
		return false, err
	}
	if err := s.schedule("reply", turn); err != nil {
		return true, err
	}
	return true, nil
}

// Summarize schedules a summary of the selected document. Without a selection
// it emits no_document_selected and returns conversation.ErrNoDocumentSelected.
func (s *Session) Summarize() error {
	if err := s.touch(); err != nil {
		return err
	}
	turn, err := s.chat.BeginSummary()
	if err != nil {
		return err
	}
	return s.schedule("summary", turn)
}

func (s *Session) schedule(name string, turn *conversation.Turn) error {
	s.wg.Add(1)
	err := s.exec.Submit(worker.Job{
		SessionID: s.id,
		Name:      name,
		Run: func() {
			defer s.wg.Done()
			if _, err := turn.Run(s.ctx); err != nil {
				s.log.Warn("turn failed", "job", name, "error", err)
			}
		},
		Drop: func() {
			defer s.wg.Done()
			_ = turn.Abort(ErrSessionClosed)
		},
	})
	if err != nil {
		s.wg.Done()
		return turn.Abort(err)
	}
	return nil
}

// ToggleTheme flips between light and dark and returns the new theme.
func (s *Session) ToggleTheme() (models.Theme, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", ErrSessionClosed
	}
	s.lastActive = s.now()
	if s.theme == models.ThemeDark {
		s.theme = models.ThemeLight
	} else {
		s.theme = models.ThemeDark
	}
	theme := s.theme
	s.mu.Unlock()

	s.publish(EventTheme, theme)
	return theme, nil
}

// Snapshot returns a copy of the session state safe to hand to views.
func (s *Session) Snapshot() models.SessionSnapshot {
	snap := models.SessionSnapshot{
		ID:         s.id,
		CreatedAt:  s.createdAt,
		Documents:  s.registry.List(),
		Transcript: s.chat.Transcript(),
		Mode:       models.ModeChat,
		Pending:    s.chat.Pending(),
		Uploading:  s.uploads.InProgress(),
	}
	if doc, ok := s.registry.Selected(); ok {
		snap.SelectedID = doc.ID
		snap.SelectedName = doc.Name
	}

	s.mu.Lock()
	snap.Theme = s.theme
	snap.Notifications = make([]*models.Notification, len(s.notifications))
	for i, n := range s.notifications {
		c := *n
		snap.Notifications[i] = &c
	}
	s.mu.Unlock()
	return snap
}

// Wait blocks until every scheduled job of the session has finished.
func (s *Session) Wait() {
	s.wg.Wait()
}

// Close cancels in-flight work and disconnects subscribers.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for id, ch := range s.subscribers {
		delete(s.subscribers, id)
		close(ch)
	}
	s.mu.Unlock()
	s.cancel()
}

func (s *Session) notify(n models.Notification) {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now().UTC()
	}
	s.mu.Lock()
	if !s.closed {
		s.notifications = append(s.notifications, &n)
		if over := len(s.notifications) - maxNotifications; over > 0 {
			s.notifications = append([]*models.Notification(nil), s.notifications[over:]...)
		}
	}
	s.mu.Unlock()

	s.log.Debug("notification", "kind", n.Kind, "title", n.Title)
	s.publish(EventNotification, n)
}
