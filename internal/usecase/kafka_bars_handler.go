package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"SMCScan/internal/domain/models"
	domrepo "SMCScan/internal/domain/repository"
	pkgkafka "SMCScan/pkg/kafka"
)

// KafkaBarsHandler consumes the bars topic and writes to the bar store.
type KafkaBarsHandler struct {
	topic   string
	store   domrepo.BarStore
	metrics domrepo.Metrics
}

func NewKafkaBarsHandler(topic string, store domrepo.BarStore, metrics domrepo.Metrics) *KafkaBarsHandler {
	return &KafkaBarsHandler{topic: topic, store: store, metrics: metrics}
}

func (h *KafkaBarsHandler) Topic() string { return h.topic }

func (h *KafkaBarsHandler) Handle(ctx context.Context, b []byte) error {
	var bar models.Bar
	if err := json.Unmarshal(b, &bar); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return fmt.Errorf("decode bar: %w", err)
	}
	if bar.Symbol == "" || bar.Timestamp.IsZero() {
		h.metrics.RecordError("consumer_invalid")
		return fmt.Errorf("bar missing symbol or timestamp")
	}
	// bar close to now
	h.metrics.RecordLatency("ingest_e2e_seconds", time.Since(bar.Timestamp.Add(domrepo.DefaultTimeframe().Duration())).Seconds())

	start := time.Now()
	err := h.store.Store(ctx, &bar)
	h.metrics.RecordLatency("ch_insert_seconds", time.Since(start).Seconds())
	if err != nil {
		h.metrics.RecordError("consumer_store")
		return err
	}
	h.metrics.RecordMessageSent("clickhouse", bar.Symbol)
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaBarsHandler)(nil)
