package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"studyai/internal/logger"
)

var ErrSessionNotFound = errors.New("session not found")

const (
	DefaultIdleTTL       = 2 * time.Hour
	DefaultSweepInterval = 10 * time.Minute
)

// sessionCanceler is implemented by executors that can drop queued work.
type sessionCanceler interface {
	CancelSession(sessionID string) int
}

// Store keeps the live sessions keyed by id.
type Store struct {
	deps    Deps
	idleTTL time.Duration
	log     *logger.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
	onEnd    []func(id string)
}

func NewStore(deps Deps, idleTTL time.Duration) *Store {
	if idleTTL <= 0 {
		idleTTL = DefaultIdleTTL
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = logger.Nop()
	}
	return &Store{
		deps:     deps,
		idleTTL:  idleTTL,
		log:      deps.Logger,
		sessions: make(map[string]*Session),
	}
}

// Create starts a new empty session.
func (st *Store) Create() *Session {
	s := New(uuid.NewString(), st.deps)
	st.mu.Lock()
	st.sessions[s.ID()] = s
	st.mu.Unlock()
	st.log.Info("session created", "session_id", s.ID())
	return s
}

func (st *Store) Get(id string) (*Session, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Delete ends a session, dropping its queued jobs.
func (st *Store) Delete(id string) error {
	st.mu.Lock()
	s, ok := st.sessions[id]
	delete(st.sessions, id)
	st.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	st.end(s)
	st.log.Info("session deleted", "session_id", id)
	return nil
}

func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// OnEnd registers fn to run with the id of every session that ends, whether
// deleted, swept or closed with the store.
func (st *Store) OnEnd(fn func(id string)) {
	st.mu.Lock()
	st.onEnd = append(st.onEnd, fn)
	st.mu.Unlock()
}

func (st *Store) end(s *Session) {
	s.Close()
	if c, ok := st.deps.Executor.(sessionCanceler); ok {
		c.CancelSession(s.ID())
	}
	st.mu.RLock()
	hooks := st.onEnd
	st.mu.RUnlock()
	for _, fn := range hooks {
		fn(s.ID())
	}
}

// StartSweeper removes idle sessions every interval until ctx is done.
func (st *Store) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	go st.sweepLoop(ctx, interval)
}

func (st *Store) sweepLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := st.Sweep(st.deps.Now()); n > 0 {
				st.log.Info("idle sessions swept", "count", n)
			}
		}
	}
}

// Sweep ends sessions idle for longer than the TTL. Busy sessions are kept.
func (st *Store) Sweep(now time.Time) int {
	var expired []*Session
	st.mu.Lock()
	for id, s := range st.sessions {
		if now.Sub(s.LastActive()) < st.idleTTL || s.Busy() {
			continue
		}
		delete(st.sessions, id)
		expired = append(expired, s)
	}
	st.mu.Unlock()

	for _, s := range expired {
		st.end(s)
	}
	return len(expired)
}

// Close ends every session.
func (st *Store) Close() {
	st.mu.Lock()
	all := make([]*Session, 0, len(st.sessions))
	for id, s := range st.sessions {
		all = append(all, s)
		delete(st.sessions, id)
	}
	st.mu.Unlock()
	for _, s := range all {
		st.end(s)
	}
}
