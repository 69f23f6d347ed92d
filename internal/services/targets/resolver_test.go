package targets

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SMCScan/internal/domain/models"
)

func constATR(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func provisional(dir models.Direction, entry float64) Provisional {
	bias := models.BiasBullish
	if dir == models.Short {
		bias = models.BiasBearish
	}
	return Provisional{
		Symbol:    "BTCUSDT",
		Timeframe: "5m",
		Bias:      bias,
		Direction: dir,
		Timestamp: time.Date(2024, 3, 5, 13, 0, 0, 0, time.UTC),
		Entry:     entry,
	}
}

func TestResolveLongFixedTargets(t *testing.T) {
	r := NewResolver(DefaultConfig())
	rng := models.NewSessionRange("london", 104, 99)

	s, err := r.Resolve(provisional(models.Long, 100), constATR(60, 1), &rng, nil)
	require.NoError(t, err)

	assert.Equal(t, 98.0, s.Stop)
	require.Len(t, s.Targets, 2)
	assert.Equal(t, models.Target{Price: 103, Fraction: 0.5, RMultiple: 1.5}, s.Targets[0])
	assert.Equal(t, models.Target{Price: 106, Fraction: 0.5, RMultiple: 3}, s.Targets[1])
	assert.Equal(t, models.PatternBullishPO3, s.Pattern)
	assert.Equal(t, models.VolNormal, s.Meta.VolRegime)
	assert.Equal(t, 1.0, s.Meta.ATR)

	assert.Equal(t, 109.0, s.DrawTarget)
	assert.Equal(t, DrawExtension, s.DrawSource)
}

func TestResolveShortFixedTargets(t *testing.T) {
	r := NewResolver(DefaultConfig())
	rng := models.NewSessionRange("london", 101, 96)

	s, err := r.Resolve(provisional(models.Short, 100), constATR(60, 1), &rng, nil)
	require.NoError(t, err)
	assert.Equal(t, 102.0, s.Stop)
	assert.Equal(t, 97.0, s.Targets[0].Price)
	assert.Equal(t, 94.0, s.Targets[1].Price)
	assert.Equal(t, 91.0, s.DrawTarget)
	assert.Equal(t, models.PatternBearishPO3, s.Pattern)
}

func TestResolveUndefinedATRUsesPriceFallback(t *testing.T) {
	r := NewResolver(DefaultConfig())
	s, err := r.Resolve(provisional(models.Long, 200), []float64{math.NaN()}, nil, nil)
	require.NoError(t, err)
	// 200 * 0.005 * 2 = 2
	assert.InDelta(t, 198.0, s.Stop, 1e-9)
	assert.Equal(t, models.VolUndefined, s.Meta.VolRegime)
}

func TestResolveRejectsDegenerateRisk(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StopATRMultiplier = 0
	_, err := NewResolver(cfg).Resolve(provisional(models.Long, 100), constATR(20, 1), nil, nil)
	assert.ErrorIs(t, err, ErrDegenerateRisk)
}

func TestDrawTargetByRegime(t *testing.T) {
	r := NewResolver(DefaultConfig())
	rng := models.NewSessionRange("london", 110, 100)

	high := append(constATR(49, 1), 2)
	s, err := r.Resolve(provisional(models.Long, 101), high, &rng, nil)
	require.NoError(t, err)
	assert.Equal(t, models.VolHigh, s.Meta.VolRegime)
	assert.Equal(t, 120.0, s.DrawTarget)

	low := append(constATR(49, 1), 0.5)
	s, err = r.Resolve(provisional(models.Long, 101), low, &rng, nil)
	require.NoError(t, err)
	assert.Equal(t, models.VolLow, s.Meta.VolRegime)
	assert.Equal(t, 105.0, s.DrawTarget)
	assert.Equal(t, DrawMidpoint, s.DrawSource)
}

func TestDrawTargetFallsThroughToLiquidity(t *testing.T) {
	r := NewResolver(DefaultConfig())
	// Low regime midpoint 105 sits below a long entry of 106.
	rng := models.NewSessionRange("london", 110, 100)
	low := append(constATR(49, 1), 0.5)

	bars := []models.Bar{
		{Open: 111, High: 112, Low: 110, Close: 111},
		{Open: 109, High: 110, Low: 107, Close: 108},
		{Open: 107, High: 108, Low: 106, Close: 106.5}, // gap 110 > 108
		{Open: 106.5, High: 107, Low: 105.5, Close: 106},
	}
	s, err := r.Resolve(provisional(models.Long, 106), low, &rng, bars)
	require.NoError(t, err)
	assert.Equal(t, 108.0, s.DrawTarget)
	assert.Equal(t, DrawFVG, s.DrawSource)
}

func TestDrawTargetFixedPercentWhenNothingQualifies(t *testing.T) {
	r := NewResolver(DefaultConfig())

	s, err := r.Resolve(provisional(models.Long, 100), constATR(20, 1), nil, nil)
	require.NoError(t, err)
	assert.InDelta(t, 102.0, s.DrawTarget, 1e-9)
	assert.Equal(t, DrawFixedPct, s.DrawSource)

	s, err = r.Resolve(provisional(models.Short, 100), constATR(20, 1), nil, nil)
	require.NoError(t, err)
	assert.InDelta(t, 98.0, s.DrawTarget, 1e-9)
}

func TestResolvePanicsOnBrokenConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Targets = []TargetSpec{{RMultiple: -1, Fraction: 1}}
	assert.PanicsWithError(t,
		"invariant violation for BTCUSDT: invalid setup: target 1 at 98.00000000 not beyond 100.00000000 for LONG",
		func() { _, _ = NewResolver(cfg).Resolve(provisional(models.Long, 100), constATR(20, 1), nil, nil) },
	)
}

// Every resolved setup satisfies the ordering invariant.
func TestResolvedSetupsAlwaysOrdered(t *testing.T) {
	r := NewResolver(DefaultConfig())
	rnd := rand.New(rand.NewSource(9))

	for i := 0; i < 500; i++ {
		dir := models.Long
		if rnd.Intn(2) == 1 {
			dir = models.Short
		}
		entry := 10 + rnd.Float64()*1000
		lo := entry * (0.95 + rnd.Float64()*0.1)
		rng := models.NewSessionRange("london", lo*(1+rnd.Float64()*0.05), lo)
		atr := constATR(60, entry*rnd.Float64()*0.01)
		atr[len(atr)-1] = entry * rnd.Float64() * 0.02

		bars := make([]models.Bar, 120)
		p := entry
		for j := range bars {
			o := p
			p += (rnd.Float64() - 0.5) * entry * 0.01
			bars[j] = models.Bar{Open: o, Close: p, High: math.Max(o, p) + 0.1, Low: math.Min(o, p) - 0.1}
		}

		var rp *models.SessionRange
		if rnd.Intn(3) > 0 {
			rp = &rng
		}
		s, err := r.Resolve(provisional(dir, entry), atr, rp, bars)
		if err != nil {
			assert.ErrorIs(t, err, ErrDegenerateRisk)
			continue
		}
		require.NoError(t, s.Validate(), "case %d", i)
	}
}
