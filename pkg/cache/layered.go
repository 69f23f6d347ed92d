package cache

import (
	"context"
	"time"
)

// LayeredCache reads through an in-memory L1 to a shared L2 (Redis in
// production). Counters and locks go straight to L2 so every replica sees
// the same value.
type LayeredCache struct {
	l1    *MemoryCache
	l2    Service
	l1TTL time.Duration
}

func NewLayeredCache(l2 Service, opts ...LayeredOption) *LayeredCache {
	cfg := &LayeredConfig{
		MemoryMaxSize: 1000,
		L1TTL:         30 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return &LayeredCache{
		l1:    NewMemoryCache(WithMemoryMaxSize(cfg.MemoryMaxSize)),
		l2:    l2,
		l1TTL: cfg.L1TTL,
	}
}

// Set writes through: L2 first, then L1.
func (lc *LayeredCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if err := lc.l2.Set(ctx, key, value, expiration); err != nil {
		return err
	}
	_ = lc.l1.Set(ctx, key, value, lc.l1Expiry(expiration))
	return nil
}

func (lc *LayeredCache) Get(ctx context.Context, key string, dest interface{}) error {
	var raw []byte
	if err := lc.l1.Get(ctx, key, &raw); err == nil {
		return unmarshal(raw, dest)
	}
	if err := lc.l2.Get(ctx, key, &raw); err != nil {
		return err
	}
	_ = lc.l1.Set(ctx, key, raw, lc.l1TTL)
	return unmarshal(raw, dest)
}

func (lc *LayeredCache) l1Expiry(expiration time.Duration) time.Duration {
	if expiration > 0 && expiration < lc.l1TTL {
		return expiration
	}
	return lc.l1TTL
}

func (lc *LayeredCache) Delete(ctx context.Context, keys ...string) error {
	_ = lc.l1.Delete(ctx, keys...)
	return lc.l2.Delete(ctx, keys...)
}

func (lc *LayeredCache) Increment(ctx context.Context, key string) (int64, error) {
	return lc.l2.Increment(ctx, key)
}

func (lc *LayeredCache) Expire(ctx context.Context, key string, expiration time.Duration) (bool, error) {
	return lc.l2.Expire(ctx, key, expiration)
}

func (lc *LayeredCache) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return lc.l2.TryLock(ctx, key, ttl)
}

func (lc *LayeredCache) Unlock(ctx context.Context, key string) error {
	return lc.l2.Unlock(ctx, key)
}

func (lc *LayeredCache) Close() error {
	_ = lc.l1.Close()
	return lc.l2.Close()
}
