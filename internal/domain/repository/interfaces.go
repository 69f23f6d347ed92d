package repository

import (
	"context"
	"errors"
	"time"

	"SMCScan/internal/domain/models"
)

// ErrBarsUnavailable wraps any failure to obtain bars from a BarSource.
var ErrBarsUnavailable = errors.New("bars unavailable")

// BarSource provides read-only access to bar history.
type BarSource interface {
	Fetch(ctx context.Context, symbol string, tf Timeframe, limit int) ([]models.Bar, error)
	FetchRange(ctx context.Context, symbol string, tf Timeframe, from, to time.Time) ([]models.Bar, error)
}

// BarStore persists bars. Implementations must collapse re-deliveries of the
// same (symbol, timestamp).
type BarStore interface {
	BarSource
	Init(ctx context.Context) error
	Store(ctx context.Context, b *models.Bar) error
	StoreBatch(ctx context.Context, bars []*models.Bar) error
	Health(ctx context.Context) error
	Close() error
}

// BarStream is a live feed of closed bars.
type BarStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.Bar, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// BarPublisher forwards bars onto the event bus.
type BarPublisher interface {
	Publish(ctx context.Context, b *models.Bar) error
	PublishBatch(ctx context.Context, bars []*models.Bar) error
	Close() error
}

// SetupSink records emitted setups. Save returns the identifier assigned to
// the record.
type SetupSink interface {
	Save(ctx context.Context, setup models.Setup, score float64) (string, error)
}

// OutcomeStore journals replay results.
type OutcomeStore interface {
	SaveOutcomes(ctx context.Context, runID string, results []models.ReplayResult) error
}

type Metrics interface {
	RecordScan(symbol, result string)
	RecordGateReject(stage string)
	RecordSetup(symbol string, dir models.Direction)
	RecordOutcome(phase models.Phase, r float64)
	RecordMessageSent(backend, symbol string)
	RecordError(kind string)
	RecordLastPrice(symbol string, price float64)
	RecordLatency(op string, seconds float64)
}
