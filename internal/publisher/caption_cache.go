package publisher

import (
	"context"
	"log/slog"
	"time"

	"github.com/deusflow/sportsdesk/internal/cache"
	"github.com/deusflow/sportsdesk/internal/metrics"
)

// HitRecorder is told about calls a cache answered.
type HitRecorder interface {
	RecordCacheHit()
}

// CachingCaptioner serves repeated stories from a cache keyed by title and
// body, so a syndicated story costs one generation.
type CachingCaptioner struct {
	next   Captioner
	store  cache.Store
	ttl    time.Duration
	hits   HitRecorder
	logger *slog.Logger
}

func NewCachingCaptioner(next Captioner, store cache.Store, ttl time.Duration, hits HitRecorder, logger *slog.Logger) *CachingCaptioner {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachingCaptioner{next: next, store: store, ttl: ttl, hits: hits, logger: logger}
}

func (c *CachingCaptioner) Caption(ctx context.Context, title, content string) (string, error) {
	key := cache.GenerateKey(title, content)

	if v, ok, err := c.store.Get(ctx, key); err != nil {
		c.logger.Warn("caption cache read failed", "error", err)
	} else if ok {
		metrics.RecordCacheLookup(true)
		if c.hits != nil {
			c.hits.RecordCacheHit()
		}
		return v, nil
	}
	metrics.RecordCacheLookup(false)

	caption, err := c.next.Caption(ctx, title, content)
	if err != nil {
		return "", err
	}
	if caption != "" {
		if err := c.store.Set(ctx, key, caption, c.ttl); err != nil {
			c.logger.Warn("caption cache write failed", "error", err)
		}
	}
	return caption, nil
}
