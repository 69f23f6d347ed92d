package features

import (
	"math"

	"SMCScan/internal/domain/models"
)

const (
	DefaultATRPeriod       = 14
	DefaultRegimeWindow    = 50
	DefaultHighVolMultiple = 1.5
	// DefaultATRFallbackPct stands in for ATR while it is still undefined.
	DefaultATRFallbackPct = 0.005
)

// TrueRange returns the per-bar true range. The first bar has no previous
// close so its true range is high-low.
func TrueRange(bars []models.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		hl := b.High - b.Low
		if i == 0 {
			out[i] = hl
			continue
		}
		pc := bars[i-1].Close
		out[i] = math.Max(hl, math.Max(math.Abs(b.High-pc), math.Abs(b.Low-pc)))
	}
	return out
}

// ATR is the simple rolling mean of the true range. Entries before a full
// period is available are NaN.
func ATR(bars []models.Bar, period int) []float64 {
	if period <= 0 {
		period = DefaultATRPeriod
	}
	tr := TrueRange(bars)
	out := make([]float64, len(tr))

	var sum float64
	for i, v := range tr {
		sum += v
		if i >= period {
			sum -= tr[i-period]
		}
		if i < period-1 {
			out[i] = math.NaN()
			continue
		}
		out[i] = sum / float64(period)
	}
	return out
}

// ATRTail is ATR over the trailing period+window bars only. Its last window
// values match ATR over the full series, which is all Regime and ATRAt read.
func ATRTail(bars []models.Bar, period, window int) []float64 {
	if period <= 0 {
		period = DefaultATRPeriod
	}
	if window <= 0 {
		window = DefaultRegimeWindow
	}
	if n := period + window; len(bars) > n {
		bars = bars[len(bars)-n:]
	}
	return ATR(bars, period)
}

// Regime classifies the latest ATR against the mean of the defined values in
// the trailing window.
func Regime(atr []float64, window int, highMultiple float64) (regime models.VolRegime, current, mean float64) {
	if len(atr) == 0 {
		return models.VolUndefined, math.NaN(), math.NaN()
	}
	current = atr[len(atr)-1]
	if math.IsNaN(current) {
		return models.VolUndefined, current, math.NaN()
	}

	if window <= 0 {
		window = DefaultRegimeWindow
	}
	start := len(atr) - window
	if start < 0 {
		start = 0
	}
	var sum float64
	var n int
	for _, v := range atr[start:] {
		if !math.IsNaN(v) {
			sum += v
			n++
		}
	}
	mean = sum / float64(n)

	switch {
	case current > highMultiple*mean:
		return models.VolHigh, current, mean
	case current < mean:
		return models.VolLow, current, mean
	default:
		return models.VolNormal, current, mean
	}
}

// ATRAt returns the latest ATR, or price*fallbackPct while ATR is undefined.
func ATRAt(atr []float64, price, fallbackPct float64) float64 {
	if len(atr) > 0 {
		if v := atr[len(atr)-1]; !math.IsNaN(v) && v > 0 {
			return v
		}
	}
	return price * fallbackPct
}
