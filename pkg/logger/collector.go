package logger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"
)

// Publisher ships aggregated log batches somewhere durable (a Kafka topic in
// production).
type Publisher interface {
	PublishMessage(ctx context.Context, topic string, payload interface{}) error
}

type CollectionConfig struct {
	TimeInterval   time.Duration // flush interval
	CountThreshold int           // unique entries before an early flush
	Topic          string
	Publisher      Publisher
	PublishTimeout time.Duration
}

type AggregatedLogEntry struct {
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields"`
	Caller    string                 `json:"caller"`
	Count     int                    `json:"count"`
	FirstSeen time.Time              `json:"first_seen"`
	LastSeen  time.Time              `json:"last_seen"`
}

// LogCollector folds repeated warn/error events into counted entries so a
// flapping upstream produces one record per interval instead of thousands.
type LogCollector struct {
	config  *CollectionConfig
	entries map[string]*AggregatedLogEntry
	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewLogCollector(config *CollectionConfig) *LogCollector {
	if config.TimeInterval <= 0 {
		config.TimeInterval = 30 * time.Second
	}
	if config.CountThreshold <= 0 {
		config.CountThreshold = 100
	}
	if config.PublishTimeout <= 0 {
		config.PublishTimeout = 10 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &LogCollector{
		config:  config,
		entries: make(map[string]*AggregatedLogEntry),
		ctx:     ctx,
		cancel:  cancel,
	}

	c.wg.Add(1)
	go c.loop()

	return c
}

func (c *LogCollector) AddLog(level, message string, fields map[string]interface{}, caller string) {
	now := time.Now()
	key := entryKey(level, message, fields, caller)

	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.entries[key]; ok {
		entry.Count++
		entry.LastSeen = now
	} else {
		c.entries[key] = &AggregatedLogEntry{
			Level:     level,
			Message:   message,
			Fields:    fields,
			Caller:    caller,
			Count:     1,
			FirstSeen: now,
			LastSeen:  now,
		}
	}

	if len(c.entries) >= c.config.CountThreshold {
		c.flushLocked()
	}
}

// Pending returns the number of unique entries waiting for the next flush.
func (c *LogCollector) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func entryKey(level, message string, fields map[string]interface{}, caller string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s", level, message, caller)
	for _, k := range keys {
		b, _ := json.Marshal(fields[k])
		fmt.Fprintf(h, "|%s=%s", k, b)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (c *LogCollector) loop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.TimeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			c.flushLocked()
			c.mu.Unlock()
		case <-c.ctx.Done():
			c.mu.Lock()
			c.flushLocked()
			c.mu.Unlock()
			return
		}
	}
}

func (c *LogCollector) flushLocked() {
	if len(c.entries) == 0 || c.config.Publisher == nil {
		c.entries = make(map[string]*AggregatedLogEntry)
		return
	}

	batch := make([]AggregatedLogEntry, 0, len(c.entries))
	for _, entry := range c.entries {
		batch = append(batch, *entry)
	}
	c.entries = make(map[string]*AggregatedLogEntry)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), c.config.PublishTimeout)
		defer cancel()

		if err := c.config.Publisher.PublishMessage(ctx, c.config.Topic, batch); err != nil {
			fmt.Fprintf(os.Stderr, "log collector: publish %d entries: %v\n", len(batch), err)
		}
	}()
}

func (c *LogCollector) Close() {
	c.cancel()
	c.wg.Wait()
}
