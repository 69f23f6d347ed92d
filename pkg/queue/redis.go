package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"SMCScan/pkg/logger"
)

// RedisQueue is a list-backed job queue. Failed messages wait in a sorted
// set until their retry time and land in a dead-letter list after
// RetryLimit retries.
type RedisQueue struct {
	logger    *logger.Logger
	config    *QueueConfig
	client    *redis.Client
	jobs      map[string]Job
	keyPrefix string

	mu      sync.RWMutex
	running bool
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
}

type RedisQueueOption func(*RedisQueue)

func WithKeyPrefix(prefix string) RedisQueueOption {
	return func(r *RedisQueue) { r.keyPrefix = prefix }
}

func NewRedisQueue(lgr *logger.Logger, config *QueueConfig, client *redis.Client, opts ...RedisQueueOption) *RedisQueue {
	if lgr == nil {
		lgr = logger.Nop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	rq := &RedisQueue{
		logger:    lgr.With("queue"),
		config:    config.withDefaults(),
		client:    client,
		jobs:      make(map[string]Job),
		keyPrefix: "smcscan:queue",
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(rq)
	}
	return rq
}

// RegisterJob adds a handler. Call before Start.
func (r *RedisQueue) RegisterJob(job Job) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobs[job.Type()]; exists {
		r.logger.Warn("job already registered", logger.String("job", job.Name()))
		return
	}
	r.jobs[job.Type()] = job
	r.logger.Info("job registered",
		logger.String("job", job.Name()),
		logger.String("type", job.Type()))
}

// Start pings Redis and, when jobs are registered, starts the workers and
// the retry processor. A queue without jobs only publishes.
func (r *RedisQueue) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return fmt.Errorf("queue already running")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	r.running = true

	if len(r.jobs) == 0 {
		r.logger.Info("redis publisher started", logger.String("addr", r.client.Options().Addr))
		return nil
	}
	for i := 0; i < r.config.Workers; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}
	r.wg.Add(1)
	go r.retryProcessor()

	r.logger.Info("redis queue started",
		logger.Int("workers", r.config.Workers),
		logger.String("addr", r.client.Options().Addr))
	return nil
}

func (r *RedisQueue) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	r.cancel()
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return fmt.Errorf("timeout waiting for queue workers: %w", ctx.Err())
	case <-done:
		r.logger.Info("redis queue stopped")
		return nil
	}
}

func (r *RedisQueue) Enqueue(ctx context.Context, msgType string, payload interface{}) error {
	r.mu.RLock()
	running := r.running
	r.mu.RUnlock()
	if !running {
		return fmt.Errorf("queue not running")
	}

	msg, err := NewMessage(msgType, payload)
	if err != nil {
		return err
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := r.client.LPush(ctx, r.queueKey(), data).Err(); err != nil {
		return fmt.Errorf("lpush: %w", err)
	}
	return nil
}

// PublishMessage implements Publisher.
func (r *RedisQueue) PublishMessage(ctx context.Context, msgType string, payload interface{}) error {
	return r.Enqueue(ctx, msgType, payload)
}

func (r *RedisQueue) worker(id int) {
	defer r.wg.Done()
	for {
		select {
		case <-r.ctx.Done():
			r.logger.Debug("queue worker stopping", logger.Int("worker_id", id))
			return
		default:
			r.processNext()
		}
	}
}

func (r *RedisQueue) processNext() {
	result, err := r.client.BRPop(r.ctx, time.Second, r.queueKey()).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return
		}
		r.logger.Error("brpop", logger.Error(err))
		select {
		case <-time.After(time.Second):
		case <-r.ctx.Done():
		}
		return
	}
	if len(result) < 2 {
		return
	}

	var msg Message
	if err := json.Unmarshal([]byte(result[1]), &msg); err != nil {
		r.logger.Error("unmarshal message", logger.Error(err))
		return
	}
	r.process(msg)
}

func (r *RedisQueue) process(msg Message) {
	r.mu.RLock()
	job, ok := r.jobs[msg.Type]
	r.mu.RUnlock()
	if !ok {
		r.logger.Error("no job for message", logger.String("type", msg.Type), logger.String("id", msg.ID))
		r.deadLetter(msg)
		return
	}

	start := time.Now()
	err := job.Handle(r.ctx, msg.Payload)
	if err == nil {
		r.logger.Debug("message handled",
			logger.String("job", job.Name()),
			logger.Duration("elapsed_ms", time.Since(start)))
		return
	}
	if errors.Is(err, context.Canceled) {
		return
	}

	msg.Attempts++
	msg.LastError = err.Error()
	if msg.Attempts > r.config.RetryLimit {
		r.logger.Error("max retries reached",
			logger.String("id", msg.ID),
			logger.String("job", job.Name()),
			logger.Error(err))
		r.deadLetter(msg)
		return
	}

	retryAt := time.Now().Add(r.config.retryDelay(msg.Attempts))
	r.logger.Warn("message failed, retry scheduled",
		logger.String("id", msg.ID),
		logger.String("job", job.Name()),
		logger.Int("attempt", msg.Attempts),
		logger.Time("retry_at", retryAt),
		logger.Error(err))
	r.scheduleRetry(msg, retryAt)
}

func (r *RedisQueue) scheduleRetry(msg Message, at time.Time) {
	data, err := json.Marshal(msg)
	if err != nil {
		r.logger.Error("marshal retry", logger.Error(err))
		return
	}
	if err := r.client.ZAdd(context.Background(), r.retryKey(), redis.Z{Score: float64(at.Unix()), Member: data}).Err(); err != nil {
		r.logger.Error("zadd retry", logger.Error(err))
	}
}

func (r *RedisQueue) deadLetter(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		r.logger.Error("marshal dlq", logger.Error(err))
		return
	}
	if err := r.client.LPush(context.Background(), r.deadLetterKey(), data).Err(); err != nil {
		r.logger.Error("lpush dlq", logger.Error(err))
	}
}

func (r *RedisQueue) retryProcessor() {
	defer r.wg.Done()
	ticker := time.NewTicker(r.config.PollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.promoteDueRetries()
		}
	}
}

// promoteDueRetries moves due messages from the retry set back to the queue.
func (r *RedisQueue) promoteDueRetries() {
	due, err := r.client.ZRangeByScore(r.ctx, r.retryKey(), &redis.ZRangeBy{
		Min: "0",
		Max: strconv.FormatInt(time.Now().Unix(), 10),
	}).Result()
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			r.logger.Error("fetch retry messages", logger.Error(err))
		}
		return
	}

	for _, member := range due {
		pipe := r.client.TxPipeline()
		pipe.ZRem(r.ctx, r.retryKey(), member)
		pipe.LPush(r.ctx, r.queueKey(), member)
		if _, err := pipe.Exec(r.ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			r.logger.Error("move retry to queue", logger.Error(err))
		}
	}
}

func (r *RedisQueue) queueKey() string      { return r.keyPrefix + ":messages" }
func (r *RedisQueue) retryKey() string      { return r.keyPrefix + ":retry" }
func (r *RedisQueue) deadLetterKey() string { return r.keyPrefix + ":dlq" }
