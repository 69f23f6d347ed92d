package cache

import (
	"context"
	"errors"
	"time"

	"SMCScan/internal/domain/models"
	"SMCScan/internal/domain/service"
	pcache "SMCScan/pkg/cache"
	"SMCScan/pkg/logger"
)

// contextKey holds the shared cross-asset snapshot.
var contextKey = pcache.Key("intermarket", "context")

// ContextCache serves the cross-asset snapshot from the cache for ttl and
// refreshes it from the live source on a miss. Cache faults never fail the
// call; they only cost a live fetch.
type ContextCache struct {
	src   service.ContextSource
	cache pcache.Service
	ttl   time.Duration
	log   *logger.Logger
}

func NewContextCache(src service.ContextSource, c pcache.Service, ttl time.Duration, log *logger.Logger) *ContextCache {
	if log == nil {
		log = logger.Nop()
	}
	return &ContextCache{src: src, cache: c, ttl: ttl, log: log.With("context-cache")}
}

func (c *ContextCache) Context(ctx context.Context) (models.MarketContext, error) {
	var mctx models.MarketContext
	err := c.cache.Get(ctx, contextKey, &mctx)
	if err == nil {
		return mctx, nil
	}
	if !errors.Is(err, pcache.ErrCacheMiss) {
		c.log.Warn("context cache read failed", logger.Error(err))
	}

	mctx, err = c.src.Context(ctx)
	if err != nil {
		return nil, err
	}
	if len(mctx) > 0 {
		if err := c.cache.Set(ctx, contextKey, mctx, c.ttl); err != nil {
			c.log.Warn("context cache write failed", logger.Error(err))
		}
	}
	return mctx, nil
}

// Invalidate drops the cached snapshot.
func (c *ContextCache) Invalidate(ctx context.Context) error {
	return c.cache.Delete(ctx, contextKey)
}

var _ service.ContextSource = (*ContextCache)(nil)
