package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type entry struct {
	lim  *rate.Limiter
	seen time.Time
}

// Limiter keeps one token bucket per key. Keys idle for longer than idle
// are dropped on the next sweep.
type Limiter struct {
	mu    sync.Mutex
	m     map[string]*entry
	rate  rate.Limit
	burst int
	idle  time.Duration
	last  time.Time
	now   func() time.Time
}

func New(perSecond float64, burst int, idle time.Duration) *Limiter {
	if burst <= 0 {
		burst = 1
	}
	if idle <= 0 {
		idle = 10 * time.Minute
	}
	return &Limiter{
		m:     make(map[string]*entry),
		rate:  rate.Limit(perSecond),
		burst: burst,
		idle:  idle,
		now:   time.Now,
	}
}

// Allow returns true if one token can be consumed for key.
func (l *Limiter) Allow(key string) bool {
	now := l.now()
	l.mu.Lock()
	if now.Sub(l.last) > l.idle {
		l.sweep(now)
	}
	e, ok := l.m[key]
	if !ok {
		e = &entry{lim: rate.NewLimiter(l.rate, l.burst)}
		l.m[key] = e
	}
	e.seen = now
	l.mu.Unlock()
	return e.lim.AllowN(now, 1)
}

func (l *Limiter) sweep(now time.Time) {
	for k, e := range l.m {
		if now.Sub(e.seen) > l.idle {
			delete(l.m, k)
		}
	}
	l.last = now
}

// Len is the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.m)
}
