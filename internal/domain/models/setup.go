package models

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrInvalidSetup is returned by Setup.Validate.
var ErrInvalidSetup = errors.New("invalid setup")

// Pattern labels.
const (
	PatternBullishPO3 = "Bullish PO3 (Judas Swing)"
	PatternBearishPO3 = "Bearish PO3 (Judas Swing)"
)

// Target is one scale-out level. Fractions across a setup's targets sum to 1.
type Target struct {
	Price     float64 `json:"price"`
	Fraction  float64 `json:"fraction"`
	RMultiple float64 `json:"r_multiple"`
}

// SetupMeta carries the evidence that produced a setup.
type SetupMeta struct {
	DivergenceStrength   float64   `json:"divergence_strength"`
	PricePosition        float64   `json:"price_position"`
	QuartileRange        string    `json:"quartile_range"`
	SweptLevel           float64   `json:"swept_level"`
	SweepSource          string    `json:"sweep_source"`
	VolRegime            VolRegime `json:"vol_regime"`
	ATR                  float64   `json:"atr"`
	CrossAssetDivergence float64   `json:"cross_asset_divergence"`
	TimeQuartile         string    `json:"time_quartile"`
	DepthVolume          float64   `json:"depth_volume"`
	DepthChecked         bool      `json:"depth_checked"`
}

// Setup is an emitted trade idea. It is immutable once constructed.
type Setup struct {
	ID         string    `json:"id,omitempty"`
	Symbol     string    `json:"symbol"`
	Timeframe  string    `json:"timeframe"`
	Pattern    string    `json:"pattern"`
	Bias       Bias      `json:"bias"`
	Direction  Direction `json:"direction"`
	Timestamp  time.Time `json:"timestamp"`
	Entry      float64   `json:"entry"`
	Stop       float64   `json:"stop"`
	Targets    []Target  `json:"targets"`
	DrawTarget float64   `json:"draw_target"`
	DrawSource string    `json:"draw_source"`
	Meta       SetupMeta `json:"meta"`
}

// Risk is the entry-to-stop distance, one R.
func (s Setup) Risk() float64 { return math.Abs(s.Entry - s.Stop) }

// RMultiple converts an exit price into R earned, signed by direction.
func (s Setup) RMultiple(price float64) float64 {
	r := s.Risk()
	if r == 0 {
		return 0
	}
	return s.Direction.Sign() * (price - s.Entry) / r
}

// Validate enforces the ordering invariant: for LONG stop < entry < every
// target, for SHORT every target < entry < stop. Targets must move strictly
// away from entry and their fractions must sum to 1.
func (s Setup) Validate() error {
	if s.Direction != Long && s.Direction != Short {
		return fmt.Errorf("%w: direction %q", ErrInvalidSetup, s.Direction)
	}
	for _, v := range []float64{s.Entry, s.Stop} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite entry or stop", ErrInvalidSetup)
		}
	}
	if len(s.Targets) == 0 {
		return fmt.Errorf("%w: no targets", ErrInvalidSetup)
	}

	sign := s.Direction.Sign()
	if sign*(s.Entry-s.Stop) <= 0 {
		return fmt.Errorf("%w: stop %.8f on wrong side of entry %.8f for %s", ErrInvalidSetup, s.Stop, s.Entry, s.Direction)
	}

	prev := s.Entry
	var total float64
	for i, t := range s.Targets {
		if math.IsNaN(t.Price) || sign*(t.Price-prev) <= 0 {
			return fmt.Errorf("%w: target %d at %.8f not beyond %.8f for %s", ErrInvalidSetup, i+1, t.Price, prev, s.Direction)
		}
		if t.Fraction <= 0 || t.Fraction > 1 {
			return fmt.Errorf("%w: target %d fraction %.4f", ErrInvalidSetup, i+1, t.Fraction)
		}
		total += t.Fraction
		prev = t.Price
	}
	if math.Abs(total-1) > 1e-9 {
		return fmt.Errorf("%w: target fractions sum to %.6f", ErrInvalidSetup, total)
	}

	if s.DrawTarget != 0 && sign*(s.DrawTarget-s.Entry) <= 0 {
		return fmt.Errorf("%w: draw target %.8f on wrong side of entry", ErrInvalidSetup, s.DrawTarget)
	}
	return nil
}

// InvariantViolation is the panic value raised when the core produces a setup
// that breaks the ordering invariant.
type InvariantViolation struct {
	Symbol string
	Err    error
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("invariant violation for %s: %v", e.Symbol, e.Err)
}

func (e *InvariantViolation) Unwrap() error { return e.Err }
