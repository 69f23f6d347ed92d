package cache

import "time"

// RedisOption configures Redis cache.
type RedisOption func(*RedisConfig)

type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	PoolTimeout  time.Duration
	MinIdleConns int
	Prefix       string
	PingTimeout  time.Duration
}

func WithRedisAddr(addr string) RedisOption {
	return func(c *RedisConfig) { c.Addr = addr }
}

func WithRedisPassword(password string) RedisOption {
	return func(c *RedisConfig) { c.Password = password }
}

func WithRedisDB(db int) RedisOption {
	return func(c *RedisConfig) { c.DB = db }
}

// WithRedisPool sets connection pool settings.
func WithRedisPool(poolSize, minIdleConns int, timeout time.Duration) RedisOption {
	return func(c *RedisConfig) {
		c.PoolSize = poolSize
		c.MinIdleConns = minIdleConns
		c.PoolTimeout = timeout
	}
}

// WithRedisPrefix sets the namespace prepended to every key.
func WithRedisPrefix(prefix string) RedisOption {
	return func(c *RedisConfig) { c.Prefix = prefix }
}

// MemoryOption configures Memory cache.
type MemoryOption func(*MemoryConfig)

type MemoryConfig struct {
	MaxSize         int
	CleanupInterval time.Duration
	DefaultTTL      time.Duration
}

func WithMemoryMaxSize(size int) MemoryOption {
	return func(c *MemoryConfig) { c.MaxSize = size }
}

func WithMemoryCleanup(interval time.Duration) MemoryOption {
	return func(c *MemoryConfig) { c.CleanupInterval = interval }
}

// LayeredOption configures Layered cache.
type LayeredOption func(*LayeredConfig)

type LayeredConfig struct {
	MemoryMaxSize int
	// L1TTL caps how long a value read from L2 stays in memory.
	L1TTL time.Duration
}

func WithLayeredMemorySize(size int) LayeredOption {
	return func(c *LayeredConfig) { c.MemoryMaxSize = size }
}

func WithLayeredL1TTL(ttl time.Duration) LayeredOption {
	return func(c *LayeredConfig) { c.L1TTL = ttl }
}
