package risk

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"SMCScan/internal/domain/models"
	"SMCScan/internal/domain/service"
	"SMCScan/pkg/logger"
)

var ErrZeroRisk = errors.New("zero risk distance")

type Config struct {
	RiskPerTrade   float64
	FallbackEquity float64
	LotStep        float64
}

func DefaultConfig() Config {
	return Config{RiskPerTrade: 0.0065, FallbackEquity: 100000, LotStep: 0.001}
}

// Position is the sizing attached to an alert.
type Position struct {
	Equity       decimal.Decimal `json:"equity"`
	RiskAmount   decimal.Decimal `json:"risk_amount"`
	Size         decimal.Decimal `json:"size"`
	Notional     decimal.Decimal `json:"notional"`
	FromFallback bool            `json:"from_fallback"`
}

// Sizer converts a setup's risk distance into a position size.
type Sizer struct {
	cfg    Config
	equity service.EquitySource
	log    *logger.Logger
}

// NewSizer builds a sizer. equity may be nil, in which case every call uses
// the fallback equity.
func NewSizer(cfg Config, equity service.EquitySource, log *logger.Logger) *Sizer {
	if log == nil {
		log = logger.Nop()
	}
	return &Sizer{cfg: cfg, equity: equity, log: log.With("risk")}
}

// Size returns equity * risk_per_trade / |entry - stop|, rounded down to the
// lot step. Equity failures fall back to the configured equity on each call.
func (s *Sizer) Size(ctx context.Context, setup models.Setup) (Position, error) {
	dist := decimal.NewFromFloat(setup.Entry).Sub(decimal.NewFromFloat(setup.Stop)).Abs()
	if dist.IsZero() {
		return Position{}, fmt.Errorf("%s: %w", setup.Symbol, ErrZeroRisk)
	}

	equity, fallback := s.currentEquity(ctx)
	riskAmt := equity.Mul(decimal.NewFromFloat(s.cfg.RiskPerTrade))
	size := riskAmt.Div(dist)
	if s.cfg.LotStep > 0 {
		step := decimal.NewFromFloat(s.cfg.LotStep)
		size = size.Div(step).Floor().Mul(step)
	}
	return Position{
		Equity:       equity,
		RiskAmount:   riskAmt.Round(2),
		Size:         size,
		Notional:     size.Mul(decimal.NewFromFloat(setup.Entry)).Round(2),
		FromFallback: fallback,
	}, nil
}

func (s *Sizer) currentEquity(ctx context.Context) (decimal.Decimal, bool) {
	if s.equity != nil {
		eq, err := s.equity.Equity(ctx)
		if err == nil && eq > 0 {
			return decimal.NewFromFloat(eq), false
		}
		s.log.Warn("equity unavailable, using fallback",
			logger.Float64("fallback", s.cfg.FallbackEquity),
			logger.Error(err))
	}
	return decimal.NewFromFloat(s.cfg.FallbackEquity), true
}

// StaticEquity reports a fixed account balance.
type StaticEquity float64

func (e StaticEquity) Equity(context.Context) (float64, error) { return float64(e), nil }
