package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"SMCScan/internal/domain/models"
	domrepo "SMCScan/internal/domain/repository"
	"SMCScan/pkg/logger"
)

// Proc is the minimal processor interface the pipeline needs.
type Proc interface {
	Process(ctx context.Context, b *models.Bar) error
}

// BarPipeline sits between the live stream and the processor. It validates
// bars, drops any bar whose timestamp does not advance past the last accepted
// bar for its symbol, and buffers bars while downstream is failing.
type BarPipeline struct {
	proc     Proc
	metrics  domrepo.Metrics
	log      *logger.Logger
	bufSize  int
	bufCh    chan *models.Bar
	stopCh   chan struct{}
	started  bool
	mu       sync.Mutex
	lastSeen map[string]time.Time // per-symbol last accepted bar
}

type PipelineOption func(*BarPipeline)

// WithBufferSize sets the temporary buffer size when downstream is unavailable.
func WithBufferSize(n int) PipelineOption {
	return func(p *BarPipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

func WithLogger(l *logger.Logger) PipelineOption {
	return func(p *BarPipeline) { p.log = l }
}

func NewBarPipeline(proc Proc, metrics domrepo.Metrics, opts ...PipelineOption) *BarPipeline {
	p := &BarPipeline{
		proc:     proc,
		metrics:  metrics,
		log:      logger.Nop(),
		bufSize:  1000,
		stopCh:   make(chan struct{}),
		lastSeen: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.bufCh = make(chan *models.Bar, p.bufSize)
	return p
}

// Start launches background flushing of buffered bars.
func (p *BarPipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	stop := p.stopCh
	p.mu.Unlock()

	go p.flushLoop(ctx, stop)
}

func (p *BarPipeline) flushLoop(ctx context.Context, stop <-chan struct{}) {
	backoff := 50 * time.Millisecond
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case b := <-p.bufCh:
			if err := p.proc.Process(ctx, b); err != nil {
				if backoff < 2*time.Second {
					backoff *= 2
				}
				p.metrics.RecordError("pipeline_flush")
				select {
				case <-time.After(backoff):
				case <-stop:
					return
				}
				select {
				case p.bufCh <- b:
				default:
					p.metrics.RecordError("pipeline_buffer_drop")
				}
				continue
			}
			backoff = 50 * time.Millisecond
		}
	}
}

// Stop stops the background flushing.
func (p *BarPipeline) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return
	}
	p.started = false
	close(p.stopCh)
	p.stopCh = make(chan struct{})
}

// Process validates and forwards a bar, buffering it when downstream fails.
// Stale or repeated bars are dropped without error.
func (p *BarPipeline) Process(ctx context.Context, b *models.Bar) error {
	start := time.Now()
	if err := validateBar(b); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return err
	}
	if !p.advance(b) {
		p.metrics.RecordError("pipeline_stale")
		p.log.Debug("stale bar dropped",
			logger.String("symbol", b.Symbol),
			logger.Time("ts", b.Timestamp))
		return nil
	}

	if err := p.proc.Process(ctx, b); err != nil {
		p.metrics.RecordError("pipeline_process")
		select {
		case p.bufCh <- b:
			p.metrics.RecordLatency("pipeline_buffer_depth", float64(len(p.bufCh)))
		default:
			p.metrics.RecordError("pipeline_buffer_full")
		}
		return fmt.Errorf("pipeline downstream: %w", err)
	}
	p.metrics.RecordLatency("pipeline_process", time.Since(start).Seconds())
	return nil
}

// Buffered is the number of bars waiting for redelivery.
func (p *BarPipeline) Buffered() int { return len(p.bufCh) }

func validateBar(b *models.Bar) error {
	if b == nil {
		return fmt.Errorf("bar nil")
	}
	if b.Symbol == "" {
		return fmt.Errorf("symbol empty")
	}
	if b.Timestamp.IsZero() {
		return fmt.Errorf("timestamp invalid")
	}
	return b.Validate()
}

// advance records b as the newest bar for its symbol. It returns false when
// b is not strictly newer than the last accepted bar.
func (p *BarPipeline) advance(b *models.Bar) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	last, ok := p.lastSeen[b.Symbol]
	if ok && !b.Timestamp.After(last) {
		return false
	}
	p.lastSeen[b.Symbol] = b.Timestamp
	return true
}
