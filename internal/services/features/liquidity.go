package features

import (
	"math"

	"SMCScan/internal/domain/models"
)

// DefaultLiquidityWindow is how many recent bars are scanned for resting
// liquidity when no session range gives a draw target.
const DefaultLiquidityWindow = 100

// Swept reports whether bar ran through level and closed back on the other
// side: below-and-back-above for LONG, above-and-back-below for SHORT.
func Swept(bar models.Bar, dir models.Direction, level float64) bool {
	if dir == models.Short {
		return bar.High > level && bar.Close < level
	}
	return bar.Low < level && bar.Close > level
}

// DefaultSweepLookback is the bars before the current one whose extremes
// form the prior-day levels. Together with the current bar they span one day
// of 5m bars.
const DefaultSweepLookback = DefaultRangeLookback - 1

// TrailingExtremes returns the high and low of the last n bars.
func TrailingExtremes(bars []models.Bar, n int) (high, low float64, ok bool) {
	if n > 0 && len(bars) > n {
		bars = bars[len(bars)-n:]
	}
	if len(bars) == 0 {
		return 0, 0, false
	}
	high, low = bars[0].High, bars[0].Low
	for _, b := range bars[1:] {
		high = math.Max(high, b.High)
		low = math.Min(low, b.Low)
	}
	return high, low, true
}

// NearestFVG finds the un-mitigated fair value gap nearest to entry on the
// favorable side. For LONG a gap is bars[i-2].Low > bars[i].High and its level
// is bars[i].High; it is mitigated once a later bar trades up to the level.
// SHORT mirrors this.
func NearestFVG(bars []models.Bar, dir models.Direction, entry float64) (float64, bool) {
	best, found := 0.0, false
	for i := len(bars) - 1; i >= 2; i-- {
		c0, c2 := bars[i], bars[i-2]

		var level float64
		switch dir {
		case models.Long:
			if !(c2.Low > c0.High) || c0.High <= entry {
				continue
			}
			level = c0.High
		case models.Short:
			if !(c2.High < c0.Low) || c0.Low >= entry {
				continue
			}
			level = c0.Low
		default:
			return 0, false
		}

		if mitigated(bars[i+1:], dir, level) {
			continue
		}
		if !found || math.Abs(level-entry) < math.Abs(best-entry) {
			best, found = level, true
		}
	}
	return best, found
}

func mitigated(after []models.Bar, dir models.Direction, level float64) bool {
	for _, b := range after {
		if dir == models.Long && b.High >= level {
			return true
		}
		if dir == models.Short && b.Low <= level {
			return true
		}
	}
	return false
}

// NearestSwing returns the nearest fractal swing extreme beyond entry, falling
// back to the window extreme when no fractal qualifies.
func NearestSwing(bars []models.Bar, dir models.Direction, entry float64, fractalWindow int) (float64, bool) {
	if fractalWindow <= 0 {
		fractalWindow = 2
	}
	highs, lows := Fractals(bars, fractalWindow)

	best, found := 0.0, false
	for i, b := range bars {
		var level float64
		switch {
		case dir == models.Long && highs[i] && b.High > entry:
			level = b.High
		case dir == models.Short && lows[i] && b.Low < entry:
			level = b.Low
		default:
			continue
		}
		if !found || math.Abs(level-entry) < math.Abs(best-entry) {
			best, found = level, true
		}
	}
	if found {
		return best, true
	}

	high, low, ok := TrailingExtremes(bars, 0)
	if !ok {
		return 0, false
	}
	if dir == models.Long && high > entry {
		return high, true
	}
	if dir == models.Short && low < entry {
		return low, true
	}
	return 0, false
}

// Fractals marks bars whose high (low) is the extreme of the centered window
// of 2*window+1 bars. Edges without a full window are never fractals.
func Fractals(bars []models.Bar, window int) (highs, lows []bool) {
	highs = make([]bool, len(bars))
	lows = make([]bool, len(bars))
	for i := window; i < len(bars)-window; i++ {
		isHigh, isLow := true, true
		for j := i - window; j <= i+window; j++ {
			if bars[j].High > bars[i].High {
				isHigh = false
			}
			if bars[j].Low < bars[i].Low {
				isLow = false
			}
		}
		highs[i], lows[i] = isHigh, isLow
	}
	return highs, lows
}
