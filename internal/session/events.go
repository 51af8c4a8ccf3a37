package session

import "time"

type EventType string

const (
	EventMessage         EventType = "message"
	EventDocument        EventType = "document"
	EventDocumentRemoved EventType = "document_removed"
	EventNotification    EventType = "notification"
	EventPending         EventType = "pending"
	EventSelection       EventType = "selection"
	EventUploading       EventType = "uploading"
	EventTheme           EventType = "theme"
)

// Event is one state change pushed to subscribers.
type Event struct {
	Type    EventType   `json:"type"`
	Payload interface{} `json:"payload"`
	At      time.Time   `json:"at"`
}

const defaultSubscriberBuffer = 32

// Subscribe registers a listener. Events are dropped for listeners whose
// buffer is full. The returned cancel func is idempotent.
func (s *Session) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	ch := make(chan Event, buffer)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	s.nextSub++
	id := s.nextSub
	s.subscribers[id] = ch
	s.mu.Unlock()

	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if sub, ok := s.subscribers[id]; ok {
			delete(s.subscribers, id)
			close(sub)
		}
	}
}

func (s *Session) publish(typ EventType, payload interface{}) {
	ev := Event{Type: typ, Payload: payload, At: s.now().UTC()}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	for _, ch := range s.subscribers {
		select {
		case ch <- ev:
		default:
		}
	}
}
