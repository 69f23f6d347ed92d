package features

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SMCScan/internal/domain/models"
)

func TestTrueRange(t *testing.T) {
	bars := []models.Bar{
		{High: 105, Low: 100, Close: 104},
		{High: 103, Low: 101, Close: 102}, // inside bar, |low-prevClose| = 3
		{High: 110, Low: 108, Close: 109}, // gap up, |high-prevClose| = 8
	}
	assert.Equal(t, []float64{5, 3, 8}, TrueRange(bars))
}

func TestATRUndefinedUntilFullPeriod(t *testing.T) {
	bars := flatBars(day, 20, 100) // every true range is 2
	atr := ATR(bars, 14)
	require.Len(t, atr, 20)
	for i := 0; i < 13; i++ {
		assert.True(t, math.IsNaN(atr[i]), i)
	}
	for i := 13; i < 20; i++ {
		assert.InDelta(t, 2.0, atr[i], 1e-12)
	}
}

func TestATRTailMatchesFullSeries(t *testing.T) {
	bars := walkBars(7, day, 5000, 100, 0.01)
	full := ATR(bars, 14)
	tail := ATRTail(bars, 14, 50)
	require.Len(t, tail, 64)

	for i := 1; i <= 50; i++ {
		assert.InDelta(t, full[len(full)-i], tail[len(tail)-i], 1e-9, i)
	}
	fr, fcur, fmean := Regime(full, 50, 1.5)
	tr, tcur, tmean := Regime(tail, 50, 1.5)
	assert.Equal(t, fr, tr)
	assert.InDelta(t, fcur, tcur, 1e-9)
	assert.InDelta(t, fmean, tmean, 1e-9)
	assert.InDelta(t, ATRAt(full, 100, 0.005), ATRAt(tail, 100, 0.005), 1e-9)
}

func TestATRTailShortSeriesIsFullATR(t *testing.T) {
	bars := flatBars(day, 30, 100)
	assert.Len(t, ATRTail(bars, 14, 50), 30)
	assert.Len(t, ATRTail(bars, 0, 0), 30)
}

func series(n int, v, last float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	out[n-1] = last
	return out
}

func TestRegime(t *testing.T) {
	r, cur, mean := Regime(series(50, 1, 2), 50, 1.5)
	assert.Equal(t, models.VolHigh, r)
	assert.Equal(t, 2.0, cur)
	assert.InDelta(t, 51.0/50, mean, 1e-12)

	r, _, _ = Regime(series(50, 1, 0.5), 50, 1.5)
	assert.Equal(t, models.VolLow, r)

	r, _, _ = Regime(series(50, 1, 1), 50, 1.5)
	assert.Equal(t, models.VolNormal, r)

	withNaN := append([]float64{math.NaN(), math.NaN()}, series(10, 1, 1.2)...)
	r, _, mean = Regime(withNaN, 50, 1.5)
	assert.Equal(t, models.VolNormal, r)
	assert.InDelta(t, 10.2/10, mean, 1e-12)

	r, _, _ = Regime([]float64{1, math.NaN()}, 50, 1.5)
	assert.Equal(t, models.VolUndefined, r)

	r, _, _ = Regime(nil, 50, 1.5)
	assert.Equal(t, models.VolUndefined, r)
}

func TestATRAtFallsBack(t *testing.T) {
	assert.Equal(t, 3.0, ATRAt([]float64{2, 3}, 100, 0.005))
	assert.InDelta(t, 0.5, ATRAt([]float64{math.NaN()}, 100, 0.005), 1e-12)
	assert.InDelta(t, 0.5, ATRAt(nil, 100, 0.005), 1e-12)
}
