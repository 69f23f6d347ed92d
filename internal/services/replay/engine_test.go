package replay

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SMCScan/internal/domain/models"
)

var entryTime = time.Date(2024, 3, 5, 13, 0, 0, 0, time.UTC)

func longSetup() models.Setup {
	return models.Setup{
		ID:        "s-1",
		Symbol:    "BTCUSDT",
		Bias:      models.BiasBullish,
		Direction: models.Long,
		Timestamp: entryTime,
		Entry:     100,
		Stop:      98,
		Targets: []models.Target{
			{Price: 103, Fraction: 0.5, RMultiple: 1.5},
			{Price: 106, Fraction: 0.5, RMultiple: 3},
		},
	}
}

func shortSetup() models.Setup {
	return models.Setup{
		Symbol:    "BTCUSDT",
		Bias:      models.BiasBearish,
		Direction: models.Short,
		Timestamp: entryTime,
		Entry:     100,
		Stop:      102,
		Targets: []models.Target{
			{Price: 97, Fraction: 0.5, RMultiple: 1.5},
			{Price: 94, Fraction: 0.5, RMultiple: 3},
		},
	}
}

// path builds bars from (high, low, close) triples.
func path(hlc ...[3]float64) []models.Bar {
	out := make([]models.Bar, len(hlc))
	for i, v := range hlc {
		out[i] = models.Bar{
			Timestamp: entryTime.Add(time.Duration(i+1) * 5 * time.Minute),
			Open:      v[2], High: v[0], Low: v[1], Close: v[2],
		}
	}
	return out
}

func TestReplayFullWin(t *testing.T) {
	future := path(
		[3]float64{101, 99.5, 100.5},
		[3]float64{103.2, 100.5, 102.8}, // target 1
		[3]float64{104, 101, 103.5},
		[3]float64{106.1, 103, 105.9}, // target 2
		[3]float64{90, 80, 85},
	)
	res := NewEngine(0).Replay(longSetup(), future)

	assert.Equal(t, models.PhaseFullWin, res.Phase)
	assert.InDelta(t, 2.25, res.RealizedR, 1e-12)
	assert.Equal(t, 4, res.BarsElapsed)
	assert.Equal(t, 106.0, res.ExitPrice)
	assert.Equal(t, "s-1", res.SetupID)
}

func TestReplayLoss(t *testing.T) {
	future := path(
		[3]float64{100.5, 97.5, 98.2},
		[3]float64{110, 100, 109},
	)
	res := NewEngine(0).Replay(longSetup(), future)
	assert.Equal(t, models.PhaseLoss, res.Phase)
	assert.InDelta(t, -1.0, res.RealizedR, 1e-12)
	assert.Equal(t, 1, res.BarsElapsed)
	assert.Equal(t, 98.0, res.ExitPrice)
}

func TestReplayPartialWin(t *testing.T) {
	future := path(
		[3]float64{103.1, 100.2, 102.5}, // target 1, stop to 100
		[3]float64{104, 101, 103},
		[3]float64{102, 99.9, 100.1}, // breakeven
		[3]float64{110, 103, 108},
	)
	res := NewEngine(0).Replay(longSetup(), future)
	assert.Equal(t, models.PhasePartialWin, res.Phase)
	assert.InDelta(t, 0.75, res.RealizedR, 1e-12)
	assert.Equal(t, 3, res.BarsElapsed)
	assert.Equal(t, 100.0, res.ExitPrice)
}

func TestReplayTimeoutFromFinalClose(t *testing.T) {
	bars := make([][3]float64, 300)
	for i := range bars {
		bars[i] = [3]float64{102, 99, 100.5}
		if i%2 == 1 {
			bars[i] = [3]float64{101.5, 99, 99.5}
		}
	}
	bars[287] = [3]float64{102, 99, 101}

	res := NewEngine(DefaultMaxLookahead).Replay(longSetup(), path(bars...))
	assert.Equal(t, models.PhaseTimeout, res.Phase)
	assert.Equal(t, 288, res.BarsElapsed)
	assert.InDelta(t, 0.5, res.RealizedR, 1e-12)
	assert.Equal(t, 101.0, res.ExitPrice)
}

func TestExpireClampsAtMinusOneR(t *testing.T) {
	last := models.Bar{Close: 90}
	st := Expire(Arm(longSetup()), longSetup(), &last)
	assert.Equal(t, models.PhaseTimeout, st.Phase)
	assert.Equal(t, -1.0, st.Realized)
}

func TestReplayEmptyFuture(t *testing.T) {
	res := NewEngine(0).Replay(longSetup(), nil)
	assert.Equal(t, models.PhaseTimeout, res.Phase)
	assert.Equal(t, 0.0, res.RealizedR)
	assert.Equal(t, 0, res.BarsElapsed)
}

func TestReplayTimeoutPartialKeepsBanked(t *testing.T) {
	future := path(
		[3]float64{103.5, 100.5, 103},
		[3]float64{104, 101, 102},
		[3]float64{105, 101, 101.5},
	)
	res := NewEngine(3).Replay(longSetup(), future)
	assert.Equal(t, models.PhaseTimeoutPartial, res.Phase)
	assert.InDelta(t, 0.75, res.RealizedR, 1e-12)
}

func TestSameBarTieBreak(t *testing.T) {
	// ARMED: a bar spanning stop and target 1 is a loss.
	res := NewEngine(0).Replay(longSetup(), path([3]float64{103.5, 97, 100}))
	assert.Equal(t, models.PhaseLoss, res.Phase)

	// The bar that fills target 1 is not re-checked against breakeven.
	res = NewEngine(0).Replay(longSetup(), path(
		[3]float64{103.5, 99.5, 101},
		[3]float64{101, 100.5, 100.8},
	))
	assert.Equal(t, models.PhaseTimeoutPartial, res.Phase)

	// PARTIAL: a bar spanning target 2 and breakeven is a full win.
	res = NewEngine(0).Replay(longSetup(), path(
		[3]float64{103.5, 100.5, 103},
		[3]float64{106.5, 99, 101},
	))
	assert.Equal(t, models.PhaseFullWin, res.Phase)
	assert.InDelta(t, 2.25, res.RealizedR, 1e-12)
}

func TestReplayShortMirrors(t *testing.T) {
	res := NewEngine(0).Replay(shortSetup(), path(
		[3]float64{100.5, 96.8, 97.2},
		[3]float64{99, 93.5, 94},
	))
	assert.Equal(t, models.PhaseFullWin, res.Phase)
	assert.InDelta(t, 2.25, res.RealizedR, 1e-12)

	res = NewEngine(0).Replay(shortSetup(), path([3]float64{102.5, 99, 101}))
	assert.Equal(t, models.PhaseLoss, res.Phase)

	res = NewEngine(0).Replay(shortSetup(), path(
		[3]float64{100.5, 96.9, 97.5},
		[3]float64{100.1, 98, 99.5},
	))
	assert.Equal(t, models.PhasePartialWin, res.Phase)
	assert.InDelta(t, 0.75, res.RealizedR, 1e-12)
}

func TestSingleTargetClosesEverything(t *testing.T) {
	s := longSetup()
	s.Targets = []models.Target{{Price: 104, Fraction: 1, RMultiple: 2}}
	res := NewEngine(0).Replay(s, path([3]float64{104.5, 99, 104}))
	assert.Equal(t, models.PhaseFullWin, res.Phase)
	assert.InDelta(t, 2.0, res.RealizedR, 1e-12)
}

func TestStepIsPureAndTerminalStatesStick(t *testing.T) {
	s := longSetup()
	st := Arm(s)
	bar := models.Bar{High: 103.5, Low: 100, Close: 103}

	a := Step(st, s, bar)
	b := Step(st, s, bar)
	assert.Equal(t, a, b)
	assert.Equal(t, models.PhaseArmed, st.Phase, "input state untouched")

	loss := Step(st, s, models.Bar{High: 100, Low: 90, Close: 91})
	require.Equal(t, models.PhaseLoss, loss.Phase)
	assert.Equal(t, loss, Step(loss, s, models.Bar{High: 200, Low: 150, Close: 190}))
}

func randomFuture(rng *rand.Rand, n int) []models.Bar {
	out := make([]models.Bar, n)
	p := 100.0
	for i := range out {
		o := p
		p += rng.NormFloat64() * 0.6
		out[i] = models.Bar{Open: o, Close: p, High: max(o, p) + rng.Float64()*0.5, Low: min(o, p) - rng.Float64()*0.5}
	}
	return out
}

func TestReplayOutcomeBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	e := NewEngine(0)
	for i := 0; i < 1000; i++ {
		res := e.Replay(longSetup(), randomFuture(rng, rng.Intn(400)))
		require.True(t, res.Phase.Terminal())
		assert.GreaterOrEqual(t, res.RealizedR, -1.0)
		assert.LessOrEqual(t, res.RealizedR, 2.25+1e-12)
		assert.LessOrEqual(t, res.BarsElapsed, DefaultMaxLookahead)
	}
}

func TestRunBatchPreservesOrder(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	e := NewEngine(0)
	jobs := make([]Job, 200)
	for i := range jobs {
		s := longSetup()
		s.ID = string(rune('A' + i%26))
		jobs[i] = Job{Setup: s, Future: randomFuture(rng, 300)}
	}

	got, err := e.RunBatch(context.Background(), jobs, 8)
	require.NoError(t, err)
	require.Len(t, got, len(jobs))
	for i, j := range jobs {
		assert.Equal(t, e.Replay(j.Setup, j.Future), got[i])
	}
}

func TestRunBatchCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	jobs := []Job{{Setup: longSetup()}, {Setup: longSetup()}}
	got, err := NewEngine(0).RunBatch(ctx, jobs, 2)
	assert.ErrorIs(t, err, context.Canceled)
	assert.LessOrEqual(t, len(got), len(jobs))

	got, err = NewEngine(0).RunBatch(context.Background(), nil, 4)
	assert.NoError(t, err)
	assert.Empty(t, got)
}
