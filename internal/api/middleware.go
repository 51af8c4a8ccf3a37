package api

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"studyai/internal/config"
	"studyai/internal/logger"
	"studyai/internal/session"
)

const sessionContextKey = "studyai.session"

// CORS allows the browser UI to call the API from the configured origins.
func CORS(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Content-Type", "X-Requested-With"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	}
	return cors.New(cfg)
}

// AccessLog writes one structured line per request.
func AccessLog(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		)
	}
}

// limiterIdleTTL is how long an unused limiter is kept. A limiter idle this
// long has refilled its bucket, so dropping it loses no state.
const limiterIdleTTL = 10 * time.Minute

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type limiterPool struct {
	mu        sync.Mutex
	m         map[string]*limiterEntry
	cfg       config.RateLimitConfig
	idleTTL   time.Duration
	now       func() time.Time
	lastPrune time.Time
}

func newLimiterPool(cfg config.RateLimitConfig) *limiterPool {
	return &limiterPool{
		m:       make(map[string]*limiterEntry),
		cfg:     cfg,
		idleTTL: limiterIdleTTL,
		now:     time.Now,
	}
}

func (p *limiterPool) get(key string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.now()
	if now.Sub(p.lastPrune) >= p.idleTTL {
		p.pruneLocked(now)
	}
	if e, ok := p.m[key]; ok {
		e.lastSeen = now
		return e.limiter
	}
	rps := p.cfg.RPS
	if rps <= 0 {
		rps = 5
	}
	burst := p.cfg.Burst
	if burst <= 0 {
		burst = 10
	}
	l := rate.NewLimiter(rate.Limit(rps), burst)
	p.m[key] = &limiterEntry{limiter: l, lastSeen: now}
	return l
}

// pruneLocked drops limiters unused for longer than idleTTL.
func (p *limiterPool) pruneLocked(now time.Time) int {
	p.lastPrune = now
	removed := 0
	for key, e := range p.m {
		if now.Sub(e.lastSeen) > p.idleTTL {
			delete(p.m, key)
			removed++
		}
	}
	return removed
}

func (p *limiterPool) Allow(key string) bool {
	return p.get(key).Allow()
}

func (p *limiterPool) forget(key string) {
	p.mu.Lock()
	delete(p.m, key)
	p.mu.Unlock()
}

func (p *limiterPool) size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.m)
}

// rateLimit throttles mutating requests per session, or per client ip
// outside a session.
func (h *Handler) rateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodGet || c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}
		key := c.Param("id")
		if key == "" {
			key = "ip:" + c.ClientIP()
		}
		if !h.limiter.Allow(key) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests, please retry"})
			return
		}
		c.Next()
	}
}

// requireSession resolves the :id path parameter to a live session.
func (h *Handler) requireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		s, err := h.store.Get(c.Param("id"))
		if err != nil {
			if errors.Is(err, session.ErrSessionNotFound) {
				c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "session not found"})
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Set(sessionContextKey, s)
		c.Next()
	}
}

func sessionFromContext(c *gin.Context) *session.Session {
	v, ok := c.Get(sessionContextKey)
	if !ok {
		return nil
	}
	s, _ := v.(*session.Session)
	return s
}
