package usecase

import (
	"context"
	"fmt"
	"time"

	"SMCScan/internal/domain/models"
	drepo "SMCScan/internal/domain/repository"
)

// Ingest backends.
const (
	BackendKafka      = "kafka"
	BackendClickHouse = "clickhouse"
)

// BarProcessor routes closed bars to the configured backend.
type BarProcessor struct {
	pub     drepo.BarPublisher
	store   drepo.BarStore
	metrics drepo.Metrics
	backend string
}

func NewBarProcessor(pub drepo.BarPublisher, store drepo.BarStore, metrics drepo.Metrics, backend string) *BarProcessor {
	return &BarProcessor{pub: pub, store: store, metrics: metrics, backend: backend}
}

// Process routes a single bar to the configured backend.
func (p *BarProcessor) Process(ctx context.Context, b *models.Bar) error {
	if b == nil {
		return fmt.Errorf("bar is nil")
	}

	start := time.Now()
	var err error
	switch {
	case p.backend == BackendKafka && p.pub != nil:
		err = p.pub.Publish(ctx, b)
	case p.backend == BackendClickHouse && p.store != nil:
		err = p.store.Store(ctx, b)
	default:
		err = fmt.Errorf("backend %q not available", p.backend)
	}

	if err != nil {
		p.metrics.RecordError("process")
		return fmt.Errorf("process bar: %w", err)
	}

	p.metrics.RecordMessageSent(p.backend, b.Symbol)
	p.metrics.RecordLatency("process", time.Since(start).Seconds())
	return nil
}

// ProcessBatch routes many bars in one call.
func (p *BarProcessor) ProcessBatch(ctx context.Context, bars []*models.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	start := time.Now()
	var err error
	switch {
	case p.backend == BackendKafka && p.pub != nil:
		err = p.pub.PublishBatch(ctx, bars)
	case p.backend == BackendClickHouse && p.store != nil:
		err = p.store.StoreBatch(ctx, bars)
	default:
		err = fmt.Errorf("backend %q not available", p.backend)
	}

	if err != nil {
		p.metrics.RecordError("process_batch")
		return fmt.Errorf("process batch: %w", err)
	}

	for _, b := range bars {
		p.metrics.RecordMessageSent(p.backend, b.Symbol)
	}
	p.metrics.RecordLatency("process_batch", time.Since(start).Seconds())
	return nil
}

// Close closes underlying resources if available.
func (p *BarProcessor) Close() {
	if p.pub != nil {
		_ = p.pub.Close()
	}
	if p.store != nil {
		_ = p.store.Close()
	}
}
