package api

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"studyai/internal/backend"
	"studyai/internal/config"
	"studyai/internal/conversation"
	"studyai/internal/logger"
	"studyai/internal/models"
	"studyai/internal/registry"
	"studyai/internal/session"
	"studyai/internal/upload"
	"studyai/internal/view"
	"studyai/internal/worker"
)

// acceptedExtensions is the hint handed to the browser file picker.
const acceptedExtensions = ".pdf,.txt,.md"

type Options struct {
	MaxUploadBytes int64
	DateLayout     string
	RateLimit      config.RateLimitConfig
	Logger         *logger.Logger
	// MetricsHandler is mounted on /metrics when set.
	MetricsHandler http.Handler
}

// Handler wires HTTP routes to the session store.
type Handler struct {
	store   *session.Store
	opts    Options
	log     *logger.Logger
	limiter *limiterPool
}

// NewHandler constructs a Handler instance.
func NewHandler(store *session.Store, opts Options) *Handler {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = backend.DefaultMaxUploadBytes
	}
	if opts.DateLayout == "" {
		opts.DateLayout = config.DefaultDateLayout
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	h := &Handler{
		store:   store,
		opts:    opts,
		log:     opts.Logger,
		limiter: newLimiterPool(opts.RateLimit),
	}
	store.OnEnd(h.limiter.forget)
	return h
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/healthz", h.health)
	if h.opts.MetricsHandler != nil {
		router.GET("/metrics", gin.WrapH(h.opts.MetricsHandler))
	}

	api := router.Group("/api")
	api.Use(h.rateLimit())
	api.GET("/config/upload", h.uploadConfig)
	api.POST("/sessions", h.createSession)

	sessionRoutes := api.Group("/sessions/:id")
	sessionRoutes.Use(h.requireSession())
	sessionRoutes.GET("", h.getSession)
	sessionRoutes.DELETE("", h.deleteSession)
	sessionRoutes.GET("/documents", h.listDocuments)
	sessionRoutes.POST("/documents", h.uploadDocuments)
	sessionRoutes.DELETE("/documents/:doc_id", h.removeDocument)
	sessionRoutes.PUT("/selection", h.selectDocument)
	sessionRoutes.GET("/messages", h.listMessages)
	sessionRoutes.POST("/messages", h.sendMessage)
	sessionRoutes.POST("/summaries", h.summarize)
	sessionRoutes.POST("/theme", h.toggleTheme)
	sessionRoutes.GET("/events", h.streamEvents)
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "sessions": h.store.Len()})
}

func (h *Handler) uploadConfig(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"accept":    acceptedExtensions,
		"max_bytes": h.opts.MaxUploadBytes,
		"hint":      fmt.Sprintf("Max file size: %s | Supported: PDF, TXT", registry.FormatLimit(h.opts.MaxUploadBytes)),
	})
}

// session lifecycle
func (h *Handler) createSession(c *gin.Context) {
	s := h.store.Create()
	c.JSON(http.StatusCreated, h.sessionPayload(s.Snapshot()))
}

func (h *Handler) getSession(c *gin.Context) {
	s := sessionFromContext(c)
	c.JSON(http.StatusOK, h.sessionPayload(s.Snapshot()))
}

func (h *Handler) deleteSession(c *gin.Context) {
	id := c.Param("id")
	if err := h.store.Delete(id); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) sessionPayload(snap models.SessionSnapshot) gin.H {
	return gin.H{
		"session_id": snap.ID,
		"session":    snap,
		"header":     view.Header(snap),
		"documents":  view.DocumentRows(snap, h.opts.DateLayout),
		"transcript": view.Transcript(snap.Transcript),
	}
}

// documents
func (h *Handler) listDocuments(c *gin.Context) {
	snap := sessionFromContext(c).Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"documents":   view.DocumentRows(snap, h.opts.DateLayout),
		"selected_id": snap.SelectedID,
		"uploading":   snap.Uploading,
	})
}

func (h *Handler) uploadDocuments(c *gin.Context) {
	s := sessionFromContext(c)
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid multipart form"})
		return
	}
	headers := form.File["files"]
	if len(headers) == 0 {
		c.JSON(http.StatusOK, gin.H{"files": 0})
		return
	}
	files := make([]models.FileUpload, 0, len(headers))
	for _, fh := range headers {
		file, err := h.readUpload(fh)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "open file failed"})
			return
		}
		files = append(files, file)
	}
	if err := s.Upload(files); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"files": len(files)})
}

// readUpload keeps the declared media type. Content is only read for files
// that pass validation.
func (h *Handler) readUpload(fh *multipart.FileHeader) (models.FileUpload, error) {
	file := models.FileUpload{
		Name:     filepath.Base(fh.Filename),
		MimeType: fh.Header.Get("Content-Type"),
		Size:     fh.Size,
	}
	if upload.Validate(file, h.opts.MaxUploadBytes) != nil {
		return file, nil
	}
	f, err := fh.Open()
	if err != nil {
		return file, err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return file, err
	}
	file.Data = data
	return file, nil
}

func (h *Handler) removeDocument(c *gin.Context) {
	if err := sessionFromContext(c).RemoveDocument(c.Param("doc_id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) selectDocument(c *gin.Context) {
	var req struct {
		DocumentID string `json:"document_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.DocumentID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "document_id is required"})
		return
	}
	doc, err := sessionFromContext(c).Select(req.DocumentID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"selected": doc})
}

// conversation
func (h *Handler) listMessages(c *gin.Context) {
	snap := sessionFromContext(c).Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"messages": snap.Transcript,
		"lines":    view.Transcript(snap.Transcript),
		"pending":  snap.Pending,
	})
}

func (h *Handler) sendMessage(c *gin.Context) {
	var req struct {
		Content string `json:"content"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	accepted, err := sessionFromContext(c).SendMessage(req.Content)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if !accepted {
		c.JSON(http.StatusOK, gin.H{"accepted": false})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"accepted": true})
}

func (h *Handler) summarize(c *gin.Context) {
	if err := sessionFromContext(c).Summarize(); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"accepted": true})
}

func (h *Handler) toggleTheme(c *gin.Context) {
	theme, err := sessionFromContext(c).ToggleTheme()
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"theme": theme})
}

// writeError maps domain errors to status codes.
func (h *Handler) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	msg := err.Error()
	switch {
	case errors.Is(err, session.ErrSessionNotFound), errors.Is(err, registry.ErrDocumentNotFound):
		status = http.StatusNotFound
	case errors.Is(err, session.ErrSessionClosed):
		status = http.StatusGone
	case errors.Is(err, upload.ErrUploadInProgress):
		status = http.StatusConflict
		msg = "upload_in_progress"
	case errors.Is(err, conversation.ErrReplyPending):
		status = http.StatusConflict
		msg = "reply_pending"
	case errors.Is(err, conversation.ErrNoDocumentSelected):
		status = http.StatusBadRequest
		msg = "no_document_selected"
	case errors.Is(err, worker.ErrDispatcherBusy):
		status = http.StatusTooManyRequests
		msg = "server is busy, please retry"
	case errors.Is(err, worker.ErrDispatcherClosed):
		status = http.StatusServiceUnavailable
		msg = "server is shutting down"
	}
	if status >= http.StatusInternalServerError {
		h.log.Error("request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(status, gin.H{"error": msg})
}
