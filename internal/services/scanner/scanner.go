package scanner

import (
	"context"
	"errors"
	"time"

	"SMCScan/internal/domain/models"
	"SMCScan/internal/services/features"
	"SMCScan/internal/services/gating"
	"SMCScan/internal/services/targets"
	"SMCScan/pkg/logger"
)

type Config struct {
	Timeframe     string
	RangeLookback int
	Windows       []features.SessionWindow
	// TargetRanges is the preference order for the draw-target range.
	TargetRanges []string
	Bias         features.BiasConfig
	ATRPeriod    int
	// RegimeWindow bounds how much ATR history the resolver sees.
	RegimeWindow int
	Location     *time.Location
}

func DefaultConfig() Config {
	return Config{
		Timeframe:     "5m",
		RangeLookback: features.DefaultRangeLookback,
		Windows:       features.DefaultSessionWindows(),
		TargetRanges:  []string{features.SessionLondon, features.SessionAsian},
		Bias:          features.DefaultBiasConfig(),
		ATRPeriod:     features.DefaultATRPeriod,
		RegimeWindow:  features.DefaultRegimeWindow,
		Location:      time.UTC,
	}
}

type Option func(*Scanner)

func WithLogger(l *logger.Logger) Option {
	return func(s *Scanner) { s.log = l }
}

// Scanner turns a bar series into at most one setup for its latest bar.
type Scanner struct {
	cfg      Config
	pipeline *gating.Pipeline
	resolver *targets.Resolver
	log      *logger.Logger
}

func New(cfg Config, pipeline *gating.Pipeline, resolver *targets.Resolver, opts ...Option) *Scanner {
	s := &Scanner{cfg: cfg, pipeline: pipeline, resolver: resolver, log: logger.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scan deduplicates bars and evaluates the last one. A nil setup with a nil
// error means the bar did not qualify; the decision says why.
func (s *Scanner) Scan(ctx context.Context, symbol string, bars []models.Bar, mctx models.MarketContext) (*models.Setup, gating.Decision, error) {
	return s.ScanClean(ctx, symbol, models.DedupeBars(bars), mctx)
}

// ScanClean is Scan for a series that is already sorted and deduplicated.
func (s *Scanner) ScanClean(ctx context.Context, symbol string, bars []models.Bar, mctx models.MarketContext) (*models.Setup, gating.Decision, error) {
	if err := ctx.Err(); err != nil {
		return nil, gating.Decision{}, err
	}
	if len(bars) < 2 {
		return nil, gating.Decision{FailedStage: "input", Reason: "insufficient bars"}, nil
	}

	history := bars[:len(bars)-1]
	ranges := features.CalculateRanges(history, s.cfg.RangeLookback, s.cfg.Windows, s.cfg.Location)
	bias := features.ClassifyBias(history, s.cfg.Bias)
	atr := features.ATRTail(bars, s.cfg.ATRPeriod, s.cfg.RegimeWindow)

	snap := &gating.Snapshot{
		Symbol:   symbol,
		Bars:     bars,
		Bias:     bias,
		Ranges:   ranges,
		ATR:      atr,
		Context:  mctx,
		Location: s.cfg.Location,
	}
	decision := s.pipeline.Run(ctx, snap)
	if !decision.Passed {
		return nil, decision, nil
	}

	cur := snap.Current()
	ev := decision.Evidence
	prov := targets.Provisional{
		Symbol:    symbol,
		Timeframe: s.cfg.Timeframe,
		Bias:      bias,
		Direction: ev.Direction,
		Timestamp: cur.Timestamp,
		Entry:     cur.Close,
		Meta: models.SetupMeta{
			DivergenceStrength:   ev.DivergenceStrength,
			PricePosition:        ev.PricePosition,
			QuartileRange:        ev.QuartileRange,
			SweptLevel:           ev.SweptLevel,
			SweepSource:          ev.SweepSource,
			DepthVolume:          ev.DepthVolume,
			DepthChecked:         ev.DepthChecked,
			CrossAssetDivergence: features.CrossAssetDivergence(ev.Direction, mctx),
			TimeQuartile:         features.QuartileOf(cur.Timestamp).String(),
		},
	}

	var target *models.SessionRange
	if r, ok := features.FirstRange(ranges, s.cfg.TargetRanges...); ok {
		target = &r
	}

	setup, err := s.resolver.Resolve(prov, atr, target, bars)
	if err != nil {
		if errors.Is(err, targets.ErrDegenerateRisk) {
			s.log.Debug("setup rejected",
				logger.String("symbol", symbol),
				logger.Error(err),
			)
			decision.Passed = false
			decision.FailedStage = "targets"
			decision.Reason = err.Error()
			return nil, decision, nil
		}
		return nil, decision, err
	}
	return &setup, decision, nil
}
