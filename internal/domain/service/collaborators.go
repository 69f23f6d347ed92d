package service

import (
	"context"

	"SMCScan/internal/domain/models"
)

// ContextSource returns the latest cross-asset snapshot. Instruments that
// could not be fetched are absent from the map rather than failing the call.
type ContextSource interface {
	Context(ctx context.Context) (models.MarketContext, error)
}

// DepthSource returns the current order book for a symbol.
type DepthSource interface {
	Depth(ctx context.Context, symbol string) (models.OrderBook, error)
}

// Scorer assigns a 0-10 quality score to a setup.
type Scorer interface {
	Score(ctx context.Context, setup models.Setup) (float64, error)
}

// Notifier delivers a setup alert to a human.
type Notifier interface {
	Notify(ctx context.Context, setup models.Setup, score float64) error
}

// EquitySource reports account equity for position sizing.
type EquitySource interface {
	Equity(ctx context.Context) (float64, error)
}
