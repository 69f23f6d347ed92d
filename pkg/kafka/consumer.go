package kafka

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"

	applogger "SMCScan/pkg/logger"
)

// MessageHandler handles messages from a specific topic.
type MessageHandler interface {
	Topic() string
	Handle(context.Context, []byte) error
}

// Consumer reads registered topics and dispatches messages to a worker pool.
// Messages of one partition are handled one at a time so per-key ordering
// survives the fan-out.
type Consumer struct {
	cfg      *ConsumerConfig
	log      *applogger.Logger
	readers  map[string]*kafka.Reader
	handlers map[string]MessageHandler
	hook     ConsumerHook
	dlq      *kafka.Writer

	msgChan  chan kafka.Message
	stopChan chan struct{}
	stopOnce sync.Once
	readWG   sync.WaitGroup
	workWG   sync.WaitGroup

	lockMu    sync.Mutex
	partLocks map[string]*sync.Mutex
}

func NewConsumer(opts ...ConsumerOption) (*Consumer, error) {
	cfg := defaultConsumerConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}
	log := cfg.Logger
	if log == nil {
		log = applogger.Nop()
	}

	c := &Consumer{
		cfg:       cfg,
		log:       log.With("kafka-consumer"),
		readers:   make(map[string]*kafka.Reader),
		handlers:  make(map[string]MessageHandler),
		hook:      NoopHook{},
		msgChan:   make(chan kafka.Message, cfg.BufferSize),
		stopChan:  make(chan struct{}),
		partLocks: make(map[string]*sync.Mutex),
	}
	if cfg.DLQTopic != "" {
		c.dlq = &kafka.Writer{Addr: kafka.TCP(cfg.Brokers...), Balancer: &kafka.LeastBytes{}}
	}

	initConsumerMetrics()
	return c, nil
}

// RegisterHandler registers a handler for its topic. A second handler for the
// same topic is ignored.
func (c *Consumer) RegisterHandler(handler MessageHandler) {
	topic := handler.Topic()
	if _, ok := c.handlers[topic]; ok {
		c.log.Warn("handler already registered", applogger.String("topic", topic))
		return
	}
	c.handlers[topic] = handler
}

// SetHook installs lifecycle hooks. Call before Start.
func (c *Consumer) SetHook(h ConsumerHook) {
	if h != nil {
		c.hook = h
	}
}

func (c *Consumer) Start() error {
	if len(c.handlers) == 0 {
		return fmt.Errorf("no handlers registered")
	}
	for topic := range c.handlers {
		c.readers[topic] = kafka.NewReader(kafka.ReaderConfig{
			Brokers:  c.cfg.Brokers,
			Topic:    topic,
			GroupID:  c.cfg.GroupID,
			MinBytes: c.cfg.MinBytes,
			MaxBytes: c.cfg.MaxBytes,
		})
	}

	for i := 0; i < c.cfg.WorkerCount; i++ {
		c.workWG.Add(1)
		go c.worker()
	}
	for topic, reader := range c.readers {
		c.readWG.Add(1)
		go c.consume(topic, reader)
	}

	c.log.Info("kafka consumer started",
		applogger.Int("topics", len(c.readers)),
		applogger.Int("workers", c.cfg.WorkerCount),
		applogger.String("group", c.cfg.GroupID),
	)
	return nil
}

// Stop waits for readers to exit, drains the queue, then closes readers.
func (c *Consumer) Stop(ctx context.Context) error {
	var stopErr error
	c.stopOnce.Do(func() {
		close(c.stopChan)

		done := make(chan struct{})
		go func() {
			c.readWG.Wait()
			close(c.msgChan)
			c.workWG.Wait()
			close(done)
		}()
		select {
		case <-ctx.Done():
			stopErr = fmt.Errorf("timeout waiting for consumer to stop: %w", ctx.Err())
		case <-done:
		}

		for topic, reader := range c.readers {
			if err := reader.Close(); err != nil {
				c.log.Error("close reader", applogger.String("topic", topic), applogger.Error(err))
			}
		}
		if c.dlq != nil {
			if err := c.dlq.Close(); err != nil {
				c.log.Error("close dlq writer", applogger.Error(err))
			}
		}
		if stopErr == nil {
			c.log.Info("kafka consumer stopped")
		}
	})
	return stopErr
}

func (c *Consumer) consume(topic string, reader *kafka.Reader) {
	defer c.readWG.Done()

	for {
		select {
		case <-c.stopChan:
			return
		default:
		}

		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ReadTimeout)
		msg, err := reader.FetchMessage(ctx)
		cancel()
		if err != nil {
			if !errors.Is(err, context.DeadlineExceeded) {
				c.log.Warn("fetch message", applogger.String("topic", topic), applogger.Error(err))
			}
			continue
		}

		select {
		case c.msgChan <- msg:
			consumerQueueDepth.WithLabelValues(topic).Set(float64(len(c.msgChan)))
		case <-c.stopChan:
			return
		}
	}
}

func (c *Consumer) worker() {
	defer c.workWG.Done()
	for msg := range c.msgChan {
		c.process(msg)
	}
}

func (c *Consumer) process(msg kafka.Message) {
	handler, ok := c.handlers[msg.Topic]
	if !ok {
		return
	}
	start := time.Now()

	pl := c.partitionLock(msg.Topic, msg.Partition)
	pl.Lock()
	defer pl.Unlock()

	err := c.handleWithRetry(handler, msg)
	if err != nil {
		c.hook.OnError(context.Background(), msg.Topic, msg, msg.Value, err)
		c.log.Error("message handling failed",
			applogger.String("topic", msg.Topic),
			applogger.Int("partition", msg.Partition),
			applogger.Int64("offset", msg.Offset),
			applogger.Error(err),
		)
		c.toDLQ(msg, err)
	}

	// Commit on success, or after the DLQ took the message, so a poison
	// message does not block the partition forever.
	if err == nil || c.dlq != nil {
		if reader := c.readers[msg.Topic]; reader != nil {
			_ = c.commitWithRetry(reader, msg, 3)
		}
	}
	consumerHandleLatency.WithLabelValues(msg.Topic).Observe(time.Since(start).Seconds())
}

func (c *Consumer) handleWithRetry(handler MessageHandler, msg kafka.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()

	for attempt := 1; ; attempt++ {
		ctx, km, data, berr := c.hook.BeforeHandle(context.Background(), msg.Topic, msg, msg.Value)
		if berr != nil {
			return berr
		}
		err = handler.Handle(ctx, data)
		c.hook.AfterHandle(ctx, msg.Topic, km, data, err)
		if err == nil || attempt > c.cfg.RetryMax {
			return err
		}
		select {
		case <-time.After(backoffWithJitter(c.cfg.BackoffMin, c.cfg.BackoffMax, attempt)):
		case <-c.stopChan:
			return err
		}
	}
}

func (c *Consumer) toDLQ(msg kafka.Message, cause error) {
	if c.dlq == nil {
		return
	}
	err := c.dlq.WriteMessages(context.Background(), kafka.Message{
		Topic: c.cfg.DLQTopic,
		Key:   msg.Key,
		Value: msg.Value,
		Time:  time.Now().UTC(),
		Headers: []kafka.Header{
			{Key: "source_topic", Value: []byte(msg.Topic)},
			{Key: "error", Value: []byte(cause.Error())},
		},
	})
	if err != nil {
		c.log.Error("write to dlq", applogger.String("topic", c.cfg.DLQTopic), applogger.Error(err))
	}
}

func (c *Consumer) commitWithRetry(reader *kafka.Reader, km kafka.Message, max int) error {
	var err error
	for attempt := 1; attempt <= max; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err = reader.CommitMessages(ctx, km)
		cancel()
		if err == nil {
			return nil
		}
		time.Sleep(backoffWithJitter(50*time.Millisecond, 500*time.Millisecond, attempt))
	}
	c.log.Error("commit offset", applogger.Int("attempts", max), applogger.Error(err))
	return err
}

func (c *Consumer) partitionLock(topic string, partition int) *sync.Mutex {
	key := fmt.Sprintf("%s/%d", topic, partition)
	c.lockMu.Lock()
	defer c.lockMu.Unlock()
	l, ok := c.partLocks[key]
	if !ok {
		l = &sync.Mutex{}
		c.partLocks[key] = l
	}
	return l
}

// backoffWithJitter doubles min per attempt up to max and subtracts up to
// half of it as jitter.
func backoffWithJitter(min, max time.Duration, attempt int) time.Duration {
	if min <= 0 {
		min = 50 * time.Millisecond
	}
	if max < min {
		max = min
	}
	if attempt < 1 {
		attempt = 1
	}
	exp := max
	if attempt <= 30 {
		if d := min << uint(attempt-1); d > 0 && d < max {
			exp = d
		}
	}
	half := int64(exp) / 2
	if half <= 0 {
		return exp
	}
	return exp - time.Duration(rand.Int63n(half))
}

var (
	consumerMetricsOnce   sync.Once
	consumerQueueDepth    *prometheus.GaugeVec
	consumerHandleLatency *prometheus.HistogramVec
)

func initConsumerMetrics() {
	consumerMetricsOnce.Do(func() {
		consumerQueueDepth = promauto.NewGaugeVec(
			prometheus.GaugeOpts{Name: "smcscan_kafka_consumer_queue_depth", Help: "Messages waiting in the consumer queue"},
			[]string{"topic"},
		)
		consumerHandleLatency = promauto.NewHistogramVec(
			prometheus.HistogramOpts{Name: "smcscan_kafka_consumer_handle_seconds", Help: "Handling time per message"},
			[]string{"topic"},
		)
	})
}
