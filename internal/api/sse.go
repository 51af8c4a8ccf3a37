package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const heartbeatInterval = 15 * time.Second

// eventWriter writes server-sent events and flushes after each one.
type eventWriter struct {
	w       gin.ResponseWriter
	flusher http.Flusher
}

func (e *eventWriter) send(event string, payload interface{}) error {
	var data []byte
	switch v := payload.(type) {
	case string:
		data = []byte(v)
	default:
		var err error
		data, err = json.Marshal(v)
		if err != nil {
			return err
		}
	}
	if event != "" {
		if _, err := fmt.Fprintf(e.w, "event: %s\n", event); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(e.w, "data: %s\n\n", data); err != nil {
		return err
	}
	e.flusher.Flush()
	return nil
}

func (e *eventWriter) ping() error {
	if _, err := fmt.Fprint(e.w, ": ping\n\n"); err != nil {
		return err
	}
	e.flusher.Flush()
	return nil
}

// streamEvents pushes a snapshot followed by every session event until the
// client goes away or the session ends.
func (h *Handler) streamEvents(c *gin.Context) {
	s := sessionFromContext(c)
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming not supported"})
		return
	}
	events, cancel := s.Subscribe(0)
	defer cancel()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	out := &eventWriter{w: c.Writer, flusher: flusher}
	if err := out.send("snapshot", h.sessionPayload(s.Snapshot())); err != nil {
		return
	}

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()
	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			if err := out.ping(); err != nil {
				return
			}
		case ev, ok := <-events:
			if !ok {
				_ = out.send("closed", gin.H{"session_id": s.ID()})
				return
			}
			if err := out.send(string(ev.Type), ev); err != nil {
				return
			}
		}
	}
}
