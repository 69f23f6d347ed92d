package gating

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SMCScan/internal/domain/models"
	"SMCScan/internal/services/features"
)

var noon = time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)

type fakeDepth struct {
	book models.OrderBook
	err  error
}

func (f fakeDepth) Depth(context.Context, string) (models.OrderBook, error) {
	return f.book, f.err
}

type rejectCounter map[string]int

func (r rejectCounter) RecordGateReject(stage string) { r[stage]++ }

// history builds 288 flat bars ending just before at.
func history(at time.Time) []models.Bar {
	start := at.Add(-288 * 5 * time.Minute)
	out := make([]models.Bar, 288)
	for i := range out {
		out[i] = models.Bar{
			Timestamp: start.Add(time.Duration(i) * 5 * time.Minute),
			Open:      100, High: 101, Low: 99, Close: 100, Volume: 1,
		}
	}
	return out
}

func snapshot(hist []models.Bar, cur models.Bar, bias models.Bias) *Snapshot {
	return &Snapshot{
		Symbol:  "BTCUSDT",
		Bars:    append(append([]models.Bar(nil), hist...), cur),
		Bias:    bias,
		Ranges:  features.CalculateRanges(hist, 288, features.DefaultSessionWindows(), time.UTC),
		Context: models.MarketContext{models.InstrumentDXY: {ChangePct: 0.05, Trend: models.TrendDown}},
	}
}

func bullishSweep(at time.Time) models.Bar {
	return models.Bar{Timestamp: at, Open: 99.5, High: 99.8, Low: 98, Close: 99.5, Volume: 3}
}

func bearishSweep(at time.Time) models.Bar {
	return models.Bar{Timestamp: at, Open: 100.5, High: 102, Low: 100.2, Close: 100.5, Volume: 3}
}

func deepBook() fakeDepth {
	return fakeDepth{book: models.OrderBook{
		Bids: []models.BookLevel{{Price: 99.1, Qty: 0.7}, {Price: 98.9, Qty: 0.6}},
		Asks: []models.BookLevel{{Price: 101.1, Qty: 2}},
	}}
}

func pipeline(depth fakeDepth, opts ...PipelineOption) *Pipeline {
	return NewPipeline(NewStages(DefaultConfig(), depth, nil), opts...)
}

func TestPipelineBullishPasses(t *testing.T) {
	snap := snapshot(history(noon), bullishSweep(noon), models.BiasBullish)
	d := pipeline(deepBook()).Run(context.Background(), snap)

	require.True(t, d.Passed, d.Reason)
	assert.Len(t, d.Trace, 6)
	assert.Equal(t, models.Long, d.Evidence.Direction)
	assert.InDelta(t, 0.25, d.Evidence.PricePosition, 1e-12)
	assert.Equal(t, features.SessionAsian, d.Evidence.QuartileRange)
	assert.InDelta(t, 0.5, d.Evidence.DivergenceStrength, 1e-12)
	assert.Equal(t, 99.0, d.Evidence.SweptLevel)
	assert.Equal(t, SweepPrevDayLow, d.Evidence.SweepSource)
	assert.True(t, d.Evidence.DepthChecked)
	assert.InDelta(t, 1.3, d.Evidence.DepthVolume, 1e-12)
}

func TestSweepIgnoresBarOneDayBack(t *testing.T) {
	hist := history(noon)
	hist[0].Low = 97.5 // exactly one day before the current bar
	snap := snapshot(hist, bullishSweep(noon), models.BiasBullish)
	d := pipeline(deepBook()).Run(context.Background(), snap)

	require.True(t, d.Passed, d.Reason)
	assert.Equal(t, 99.0, d.Evidence.SweptLevel)
	assert.Equal(t, SweepPrevDayLow, d.Evidence.SweepSource)

	hist[1].Low = 97.5
	v := SweepStage{Lookback: features.DefaultSweepLookback}.Evaluate(context.Background(),
		snapshot(hist, bullishSweep(noon), models.BiasBullish), Evidence{Direction: models.Long})
	assert.False(t, v.Pass)
}

func TestPipelineBearishPasses(t *testing.T) {
	snap := snapshot(history(noon), bearishSweep(noon), models.BiasBearish)
	d := pipeline(deepBook()).Run(context.Background(), snap)

	require.True(t, d.Passed, d.Reason)
	assert.Equal(t, models.Short, d.Evidence.Direction)
	assert.Equal(t, 101.0, d.Evidence.SweptLevel)
	assert.Equal(t, SweepPrevDayHigh, d.Evidence.SweepSource)
}

func TestPipelineShortCircuits(t *testing.T) {
	cases := []struct {
		name  string
		snap  func() *Snapshot
		stage string
	}{
		{"outside killzone", func() *Snapshot {
			at := noon.Add(-5 * time.Minute)
			return snapshot(history(at), bullishSweep(at), models.BiasBullish)
		}, "time"},
		{"neutral bias", func() *Snapshot {
			return snapshot(history(noon), bullishSweep(noon), models.BiasNeutral)
		}, "bias"},
		{"premium for long", func() *Snapshot {
			cur := bullishSweep(noon)
			cur.Close, cur.High = 100.8, 100.9
			return snapshot(history(noon), cur, models.BiasBullish)
		}, "quartile"},
		{"discount for short", func() *Snapshot {
			cur := bearishSweep(noon)
			cur.Close, cur.Low = 99.2, 99.1
			return snapshot(history(noon), cur, models.BiasBearish)
		}, "quartile"},
		{"no dollar move", func() *Snapshot {
			s := snapshot(history(noon), bullishSweep(noon), models.BiasBullish)
			s.Context = models.MarketContext{models.InstrumentDXY: {ChangePct: 0.01}}
			return s
		}, "divergence"},
		{"missing dollar", func() *Snapshot {
			s := snapshot(history(noon), bullishSweep(noon), models.BiasBullish)
			s.Context = nil
			return s
		}, "divergence"},
		{"no sweep", func() *Snapshot {
			cur := bullishSweep(noon)
			cur.Low = 99.2
			return snapshot(history(noon), cur, models.BiasBullish)
		}, "sweep"},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			rec := rejectCounter{}
			d := pipeline(deepBook(), WithRejectRecorder(rec)).Run(context.Background(), c.snap())
			assert.False(t, d.Passed)
			assert.Equal(t, c.stage, d.FailedStage)
			assert.NotEmpty(t, d.Reason)
			assert.Equal(t, 1, rec[c.stage])
			assert.Equal(t, c.stage, d.Trace[len(d.Trace)-1].Stage)
		})
	}
}

func TestQuartileFailsClosedOnDegenerateRange(t *testing.T) {
	snap := snapshot(history(noon), bullishSweep(noon), models.BiasBullish)
	snap.Ranges = map[string]models.SessionRange{
		features.SessionAsian: models.NewSessionRange(features.SessionAsian, 100, 100),
	}
	d := pipeline(deepBook()).Run(context.Background(), snap)
	assert.Equal(t, "quartile", d.FailedStage)
	assert.Contains(t, d.Reason, "degenerate")
}

func TestQuartileFallsBackToCBDR(t *testing.T) {
	snap := snapshot(history(noon), bullishSweep(noon), models.BiasBullish)
	delete(snap.Ranges, features.SessionAsian)
	d := pipeline(deepBook()).Run(context.Background(), snap)
	require.True(t, d.Passed, d.Reason)
	assert.Equal(t, features.SessionCBDR, d.Evidence.QuartileRange)
}

func TestSweepAcceptsSessionLevelAlone(t *testing.T) {
	hist := history(noon)
	hist[10].Low = 95 // deep trailing low outside London
	cur := bullishSweep(noon)
	cur.Low = 98.5

	d := pipeline(fakeDepth{book: models.OrderBook{Bids: []models.BookLevel{{Price: 99, Qty: 5}}}}).
		Run(context.Background(), snapshot(hist, cur, models.BiasBullish))
	require.True(t, d.Passed, d.Reason)
	assert.Equal(t, SweepSessionLow, d.Evidence.SweepSource)
	assert.Equal(t, 99.0, d.Evidence.SweptLevel)
}

func TestDepthStage(t *testing.T) {
	snap := snapshot(history(noon), bullishSweep(noon), models.BiasBullish)

	d := pipeline(fakeDepth{err: errors.New("timeout")}).Run(context.Background(), snap)
	assert.True(t, d.Passed, "source failure must not block")
	assert.False(t, d.Evidence.DepthChecked)

	thin := fakeDepth{book: models.OrderBook{Bids: []models.BookLevel{{Price: 99, Qty: 0.2}}}}
	d = pipeline(thin).Run(context.Background(), snap)
	assert.Equal(t, "depth", d.FailedStage)

	d = NewPipeline(NewStages(DefaultConfig(), nil, nil)).Run(context.Background(), snap)
	assert.True(t, d.Passed)
	assert.False(t, d.Evidence.DepthChecked)
}

func TestPipelineEmptySnapshot(t *testing.T) {
	d := pipeline(deepBook()).Run(context.Background(), &Snapshot{})
	assert.False(t, d.Passed)
	assert.Equal(t, "input", d.FailedStage)
}

// Tightening any threshold can only remove passes, never add them.
func TestTighteningNeverAddsSetups(t *testing.T) {
	loose := DefaultConfig()
	loose.Depth.Enabled = false

	tight := loose
	tight.BullishBand = Band{Min: 0, Max: 0.4}
	tight.BearishBand = Band{Min: 0.6, Max: 1}
	tight.MinDivergence = 0.6
	tight.Killzone = features.SessionWindow{Name: "ny", StartHour: 13, EndHour: 17}

	rng := rand.New(rand.NewSource(42))
	base := NewPipeline(NewStages(loose, nil, nil))
	strict := NewPipeline(NewStages(tight, nil, nil))

	var loosePasses, tightPasses int
	for i := 0; i < 2000; i++ {
		at := noon.Add(time.Duration(rng.Intn(96)) * 5 * time.Minute)
		hist := history(at)
		cur := models.Bar{Timestamp: at, Open: 100, Volume: 1}
		cur.Low = 97 + rng.Float64()*3
		cur.High = 100 + rng.Float64()*3
		cur.Close = cur.Low + rng.Float64()*(cur.High-cur.Low)

		bias := []models.Bias{models.BiasBullish, models.BiasBearish, models.BiasNeutral}[rng.Intn(3)]
		snap := snapshot(hist, cur, bias)
		snap.Context = models.MarketContext{models.InstrumentDXY: {ChangePct: rng.Float64() * 0.1}}

		a := base.Run(context.Background(), snap).Passed
		b := strict.Run(context.Background(), snap).Passed
		if b {
			assert.True(t, a, "tight passed where loose rejected at %d", i)
			tightPasses++
		}
		if a {
			loosePasses++
		}
	}
	assert.LessOrEqual(t, tightPasses, loosePasses)
	assert.Greater(t, loosePasses, 0)
}
