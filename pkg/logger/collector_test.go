package logger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	mu      sync.Mutex
	topic   string
	batches [][]AggregatedLogEntry
}

func (p *capturePublisher) PublishMessage(_ context.Context, topic string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topic = topic
	p.batches = append(p.batches, payload.([]AggregatedLogEntry))
	return nil
}

func TestCollectorAggregatesRepeatedEntries(t *testing.T) {
	pub := &capturePublisher{}
	c := NewLogCollector(&CollectionConfig{
		TimeInterval:   time.Hour,
		CountThreshold: 10,
		Topic:          "scanner.logs",
		Publisher:      pub,
	})

	for i := 0; i < 5; i++ {
		c.AddLog("error", "depth fetch failed", map[string]interface{}{"symbol": "BTCUSDT"}, "x.go:1")
	}
	c.AddLog("error", "depth fetch failed", map[string]interface{}{"symbol": "ETHUSDT"}, "x.go:1")
	assert.Equal(t, 2, c.Pending())

	c.Close()

	pub.mu.Lock()
	defer pub.mu.Unlock()
	require.Len(t, pub.batches, 1)
	assert.Equal(t, "scanner.logs", pub.topic)

	counts := map[string]int{}
	for _, e := range pub.batches[0] {
		counts[e.Fields["symbol"].(string)] = e.Count
	}
	assert.Equal(t, map[string]int{"BTCUSDT": 5, "ETHUSDT": 1}, counts)
}

func TestCollectorFlushesAtThreshold(t *testing.T) {
	pub := &capturePublisher{}
	c := NewLogCollector(&CollectionConfig{
		TimeInterval:   time.Hour,
		CountThreshold: 2,
		Publisher:      pub,
	})

	c.AddLog("warn", "a", nil, "x.go:1")
	c.AddLog("warn", "b", nil, "x.go:2")
	assert.Equal(t, 0, c.Pending())
	c.Close()

	pub.mu.Lock()
	defer pub.mu.Unlock()
	require.Len(t, pub.batches, 1)
	assert.Len(t, pub.batches[0], 2)
}

func TestLoggerFeedsCollectorOnWarnAndError(t *testing.T) {
	pub := &capturePublisher{}
	l := Nop()
	l.AddCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 100, Publisher: pub})

	l.Info("ignored")
	l.Warn("slow upstream", String("host", "api.binance.com"))
	l.Error("store failed", Error(errors.New("boom")))
	assert.Equal(t, 2, l.collector.Pending())

	l.RemoveCollector()
	assert.Nil(t, l.collector)
}
