package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"
)

type memoryItem struct {
	data     []byte
	expireAt time.Time
	access   time.Time
}

func (m *memoryItem) expired(now time.Time) bool {
	return !m.expireAt.IsZero() && now.After(m.expireAt)
}

// MemoryCache implements Service in process with LRU eviction. It backs the
// scanner when Redis is disabled and is the L1 of LayeredCache.
type MemoryCache struct {
	mu      sync.Mutex
	data    map[string]*memoryItem
	maxSize int
	ttl     time.Duration
	now     func() time.Time
	stop    chan struct{}
	once    sync.Once
}

func NewMemoryCache(opts ...MemoryOption) *MemoryCache {
	cfg := &MemoryConfig{
		MaxSize:         1000,
		CleanupInterval: 5 * time.Minute,
		DefaultTTL:      7 * 24 * time.Hour,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	mc := &MemoryCache{
		data:    make(map[string]*memoryItem),
		maxSize: cfg.MaxSize,
		ttl:     cfg.DefaultTTL,
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	go mc.cleanupLoop(cfg.CleanupInterval)
	return mc
}

func (mc *MemoryCache) Set(_ context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := marshal(value)
	if err != nil {
		return err
	}

	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.setLocked(key, data, expiration)
	return nil
}

func (mc *MemoryCache) setLocked(key string, data []byte, expiration time.Duration) {
	if _, ok := mc.data[key]; !ok && len(mc.data) >= mc.maxSize {
		mc.evictLRU()
	}
	if expiration <= 0 {
		expiration = mc.ttl
	}
	now := mc.now()
	mc.data[key] = &memoryItem{data: data, expireAt: now.Add(expiration), access: now}
}

func (mc *MemoryCache) Get(_ context.Context, key string, dest interface{}) error {
	mc.mu.Lock()
	item, ok := mc.lookupLocked(key)
	var data []byte
	if ok {
		data = item.data
	}
	mc.mu.Unlock()

	if !ok {
		return ErrCacheMiss
	}
	return unmarshal(data, dest)
}

func (mc *MemoryCache) lookupLocked(key string) (*memoryItem, bool) {
	item, ok := mc.data[key]
	if !ok {
		return nil, false
	}
	now := mc.now()
	if item.expired(now) {
		delete(mc.data, key)
		return nil, false
	}
	item.access = now
	return item, true
}

func (mc *MemoryCache) Delete(_ context.Context, keys ...string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	for _, key := range keys {
		delete(mc.data, key)
	}
	return nil
}

func (mc *MemoryCache) Increment(_ context.Context, key string) (int64, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	item, ok := mc.lookupLocked(key)
	if !ok {
		mc.setLocked(key, []byte("1"), 0)
		return 1, nil
	}
	n, err := strconv.ParseInt(string(item.data), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("value at %s is not an integer", key)
	}
	n++
	item.data = []byte(strconv.FormatInt(n, 10))
	return n, nil
}

func (mc *MemoryCache) Expire(_ context.Context, key string, expiration time.Duration) (bool, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	item, ok := mc.lookupLocked(key)
	if !ok {
		return false, nil
	}
	item.expireAt = mc.now().Add(expiration)
	return true, nil
}

func (mc *MemoryCache) TryLock(_ context.Context, key string, ttl time.Duration) (bool, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if _, ok := mc.lookupLocked(key); ok {
		return false, nil
	}
	mc.setLocked(key, []byte("locked"), ttl)
	return true, nil
}

func (mc *MemoryCache) Unlock(ctx context.Context, key string) error {
	return mc.Delete(ctx, key)
}

func (mc *MemoryCache) Len() int {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return len(mc.data)
}

func (mc *MemoryCache) evictLRU() {
	var oldestKey string
	var oldest time.Time
	for key, item := range mc.data {
		if oldestKey == "" || item.access.Before(oldest) {
			oldestKey, oldest = key, item.access
		}
	}
	if oldestKey != "" {
		delete(mc.data, oldestKey)
	}
}

func (mc *MemoryCache) cleanupLoop(interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			mc.mu.Lock()
			now := mc.now()
			for key, item := range mc.data {
				if item.expired(now) {
					delete(mc.data, key)
				}
			}
			mc.mu.Unlock()
		case <-mc.stop:
			return
		}
	}
}

// Close stops the cleanup loop.
func (mc *MemoryCache) Close() error {
	mc.once.Do(func() { close(mc.stop) })
	return nil
}

func marshal(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	default:
		b, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("cache: marshal: %w", err)
		}
		return b, nil
	}
}

func unmarshal(data []byte, dest interface{}) error {
	switch d := dest.(type) {
	case *string:
		*d = string(data)
		return nil
	case *[]byte:
		*d = append((*d)[:0], data...)
		return nil
	default:
		if err := json.Unmarshal(data, dest); err != nil {
			return fmt.Errorf("cache: unmarshal: %w", err)
		}
		return nil
	}
}
