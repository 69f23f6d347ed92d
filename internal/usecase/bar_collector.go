package usecase

import (
	"context"

	"SMCScan/internal/domain/models"
	drepo "SMCScan/internal/domain/repository"
	mid "SMCScan/internal/middleware"
	"SMCScan/pkg/logger"
)

// BarCollector reads closed bars from the live stream and feeds them through
// the pipeline.
type BarCollector struct {
	stream  drepo.BarStream
	proc    *BarProcessor
	metrics drepo.Metrics
	pipe    *mid.BarPipeline
	log     *logger.Logger
}

func NewBarCollector(stream drepo.BarStream, proc *BarProcessor, metrics drepo.Metrics, pipe *mid.BarPipeline, log *logger.Logger) *BarCollector {
	if log == nil {
		log = logger.Nop()
	}
	return &BarCollector{stream: stream, proc: proc, metrics: metrics, pipe: pipe, log: log.With("collector")}
}

// IsConnected returns true if the bar stream is connected.
func (c *BarCollector) IsConnected() bool {
	return c.stream.IsConnected()
}

func (c *BarCollector) Start(ctx context.Context) error {
	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	if err := c.stream.Subscribe(ctx); err != nil {
		return err
	}
	if c.pipe != nil {
		c.pipe.Start(ctx)
	}
	go c.run(ctx)
	return nil
}

// run consumes the stream and reconnects whenever the read loop ends.
func (c *BarCollector) run(ctx context.Context) {
	for {
		barCh, errCh := c.stream.Read(ctx)
		c.consume(ctx, barCh, errCh)
		if ctx.Err() != nil {
			return
		}
		c.metrics.RecordError("stream")
		if err := c.stream.Reconnect(ctx); err != nil {
			c.log.Error("reconnect failed", logger.Error(err))
			if ctx.Err() != nil {
				return
			}
		}
	}
}

func (c *BarCollector) consume(ctx context.Context, barCh <-chan *models.Bar, errCh <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			c.log.Warn("stream error", logger.Error(err))
			return
		case b, ok := <-barCh:
			if !ok {
				return
			}
			c.handle(ctx, b)
		}
	}
}

func (c *BarCollector) handle(ctx context.Context, b *models.Bar) {
	var err error
	if c.pipe != nil {
		err = c.pipe.Process(ctx, b)
	} else {
		err = c.proc.Process(ctx, b)
	}
	if err != nil {
		c.log.Warn("bar not processed",
			logger.String("symbol", b.Symbol),
			logger.Error(err))
		return
	}
	c.metrics.RecordLastPrice(b.Symbol, b.Close)
}

// Processor returns the underlying BarProcessor for lifecycle management.
func (c *BarCollector) Processor() *BarProcessor { return c.proc }

// Shutdown stops pipeline and closes stream.
func (c *BarCollector) Shutdown(ctx context.Context) error {
	if c.pipe != nil {
		c.pipe.Stop()
	}
	return c.stream.Close()
}
