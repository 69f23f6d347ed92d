package targets

import (
	"errors"
	"fmt"
	"math"
	"time"

	"SMCScan/internal/domain/models"
	"SMCScan/internal/services/features"
)

// ErrDegenerateRisk rejects a setup whose stop distance is zero or undefined.
var ErrDegenerateRisk = errors.New("degenerate risk")

// Draw target sources.
const (
	DrawExtension = "EXTENSION"
	DrawMidpoint  = "MIDPOINT"
	DrawFVG       = "FVG"
	DrawSwing     = "SWING"
	DrawFixedPct  = "FIXED_PCT"
)

// TargetSpec places one exit at a multiple of risk.
type TargetSpec struct {
	RMultiple float64 `yaml:"r_multiple"`
	Fraction  float64 `yaml:"fraction"`
}

type Config struct {
	StopATRMultiplier float64      `yaml:"stop_atr_multiplier"`
	ATRFallbackPct    float64      `yaml:"atr_fallback_pct"`
	Targets           []TargetSpec `yaml:"targets"`
	RegimeWindow      int          `yaml:"regime_window"`
	HighVolMultiple   float64      `yaml:"high_vol_multiple"`
	LiquidityWindow   int          `yaml:"liquidity_window"`
	FractalWindow     int          `yaml:"fractal_window"`
	FallbackPct       float64      `yaml:"fallback_pct"`
}

func DefaultConfig() Config {
	return Config{
		StopATRMultiplier: 2,
		ATRFallbackPct:    features.DefaultATRFallbackPct,
		Targets: []TargetSpec{
			{RMultiple: 1.5, Fraction: 0.5},
			{RMultiple: 3, Fraction: 0.5},
		},
		RegimeWindow:    features.DefaultRegimeWindow,
		HighVolMultiple: features.DefaultHighVolMultiple,
		LiquidityWindow: features.DefaultLiquidityWindow,
		FractalWindow:   2,
		FallbackPct:     0.02,
	}
}

// Provisional is everything known about a setup before exits are placed.
type Provisional struct {
	Symbol    string
	Timeframe string
	Bias      models.Bias
	Direction models.Direction
	Timestamp time.Time
	Entry     float64
	Meta      models.SetupMeta
}

type Resolver struct {
	cfg Config
}

func NewResolver(cfg Config) *Resolver {
	return &Resolver{cfg: cfg}
}

// Resolve places the stop and the fixed-R targets, and picks a diagnostic
// draw-on-liquidity level. rng is the target session range and may be nil.
// A setup that fails validation after resolution is a programming error and
// panics with *models.InvariantViolation.
func (r *Resolver) Resolve(p Provisional, atr []float64, rng *models.SessionRange, bars []models.Bar) (models.Setup, error) {
	sign := p.Direction.Sign()

	atrValue := features.ATRAt(atr, p.Entry, r.cfg.ATRFallbackPct)
	stopDist := atrValue * r.cfg.StopATRMultiplier
	if !(stopDist > 0) || math.IsInf(stopDist, 0) {
		return models.Setup{}, fmt.Errorf("%s at %.8f: %w", p.Symbol, p.Entry, ErrDegenerateRisk)
	}

	targets := make([]models.Target, len(r.cfg.Targets))
	for i, spec := range r.cfg.Targets {
		targets[i] = models.Target{
			Price:     p.Entry + sign*spec.RMultiple*stopDist,
			Fraction:  spec.Fraction,
			RMultiple: spec.RMultiple,
		}
	}

	regime, _, _ := features.Regime(atr, r.cfg.RegimeWindow, r.cfg.HighVolMultiple)
	draw, source := r.drawTarget(p.Direction, p.Entry, regime, rng, bars)

	meta := p.Meta
	meta.VolRegime = regime
	meta.ATR = atrValue

	pattern := models.PatternBullishPO3
	if p.Direction == models.Short {
		pattern = models.PatternBearishPO3
	}

	setup := models.Setup{
		Symbol:     p.Symbol,
		Timeframe:  p.Timeframe,
		Pattern:    pattern,
		Bias:       p.Bias,
		Direction:  p.Direction,
		Timestamp:  p.Timestamp,
		Entry:      p.Entry,
		Stop:       p.Entry - sign*stopDist,
		Targets:    targets,
		DrawTarget: draw,
		DrawSource: source,
		Meta:       meta,
	}
	if err := setup.Validate(); err != nil {
		panic(&models.InvariantViolation{Symbol: p.Symbol, Err: err})
	}
	return setup, nil
}

func (r *Resolver) drawTarget(dir models.Direction, entry float64, regime models.VolRegime, rng *models.SessionRange, bars []models.Bar) (float64, string) {
	favorable := func(level float64) bool {
		return !math.IsNaN(level) && dir.Sign()*(level-entry) > 0
	}

	if rng != nil && !rng.Degenerate() {
		level, source := rng.ExtUp, DrawExtension
		if dir == models.Short {
			level = rng.ExtDown
		}
		if regime == models.VolLow {
			level, source = rng.Mid, DrawMidpoint
		}
		if favorable(level) {
			return level, source
		}
	}

	window := bars
	if n := r.cfg.LiquidityWindow; n > 0 && len(window) > n {
		window = window[len(window)-n:]
	}
	if level, ok := features.NearestFVG(window, dir, entry); ok {
		return level, DrawFVG
	}
	if level, ok := features.NearestSwing(window, dir, entry, r.cfg.FractalWindow); ok {
		return level, DrawSwing
	}
	return entry * (1 + dir.Sign()*r.cfg.FallbackPct), DrawFixedPct
}
