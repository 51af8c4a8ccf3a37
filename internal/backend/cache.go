package backend

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"studyai/internal/models"
	"studyai/internal/redis"
)

// SummaryCache is the subset of the redis client the cached summarizer needs.
type SummaryCache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// CachedSummarizer memoizes summaries per document id.
type CachedSummarizer struct {
	next  Summarizer
	cache SummaryCache
	ttl   time.Duration
	now   func() time.Time
	// OnError is called when the cache misbehaves; summaries still go through.
	OnError func(op string, err error)
}

func NewCachedSummarizer(next Summarizer, cache SummaryCache, ttl time.Duration) *CachedSummarizer {
	return &CachedSummarizer{next: next, cache: cache, ttl: ttl, now: time.Now}
}

func summaryKey(docID string) string {
	return "studyai:summary:" + docID
}

func (c *CachedSummarizer) Summarize(ctx context.Context, doc *models.Document) (*models.Message, error) {
	if doc == nil {
		return nil, errors.New("summarize: document required")
	}
	if c.cache == nil {
		return c.next.Summarize(ctx, doc)
	}
	key := summaryKey(doc.ID)
	if raw, err := c.cache.Get(ctx, key); err == nil {
		var cached models.Message
		if err := json.Unmarshal([]byte(raw), &cached); err == nil {
			cached.ID = uuid.NewString()
			cached.Timestamp = c.now().UTC()
			return &cached, nil
		} else {
			c.report("decode", err)
		}
	} else {
		c.report("get", err)
	}

	msg, err := c.next.Summarize(ctx, doc)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(msg)
	if err != nil {
		c.report("encode", err)
		return msg, nil
	}
	if err := c.cache.Set(ctx, key, data, c.ttl); err != nil {
		c.report("set", err)
	}
	return msg, nil
}

func (c *CachedSummarizer) report(op string, err error) {
	if c.OnError != nil && err != nil && !errors.Is(err, redis.ErrCacheMiss) {
		c.OnError(op, err)
	}
}
