package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrCacheMiss = errors.New("cache: key not found")

// Service defines cache operations. Values are JSON-encoded except strings,
// which are stored as-is.
type Service interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, keys ...string) error
	Increment(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, expiration time.Duration) (bool, error)
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
	Close() error
}

// Key joins parts with ':'.
func Key(parts ...interface{}) string {
	s := make([]string, len(parts))
	for i, p := range parts {
		s[i] = fmt.Sprint(p)
	}
	return strings.Join(s, ":")
}

// IncrementWithin increments key and sets its expiry when the counter is
// created, so the counter disappears at the end of its window.
func IncrementWithin(ctx context.Context, c Service, key string, window time.Duration) (int64, error) {
	n, err := c.Increment(ctx, key)
	if err != nil {
		return 0, err
	}
	if n == 1 && window > 0 {
		if _, err := c.Expire(ctx, key, window); err != nil {
			return n, err
		}
	}
	return n, nil
}
