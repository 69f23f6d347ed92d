package scanner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SMCScan/internal/domain/models"
	"SMCScan/internal/services/features"
	"SMCScan/internal/services/gating"
	"SMCScan/internal/services/targets"
)

var noon = time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)

// bullishSeries is a long uptrend followed by one flat day ending just before
// at, plus a current bar that sweeps the flat day's low and closes back in
// the discount half of the Asian range.
func bullishSeries(at time.Time) []models.Bar {
	const trend, flat = 5712, 288
	start := at.Add(-(trend + flat) * 5 * time.Minute)
	bars := make([]models.Bar, 0, trend+flat+1)

	p := 400.0
	for i := 0; i < trend; i++ {
		o := p
		p += 0.1
		bars = append(bars, models.Bar{
			Timestamp: start.Add(time.Duration(i) * 5 * time.Minute),
			Open:      o, High: p + 0.5, Low: o - 0.5, Close: p, Volume: 1,
		})
	}
	for i := trend; i < trend+flat; i++ {
		bars = append(bars, models.Bar{
			Timestamp: start.Add(time.Duration(i) * 5 * time.Minute),
			Open:      1000, High: 1001, Low: 999, Close: 1000, Volume: 1,
		})
	}
	return append(bars, models.Bar{Timestamp: at, Open: 999.5, High: 999.8, Low: 998, Close: 999.5, Volume: 5})
}

func dollarMove() models.MarketContext {
	return models.MarketContext{
		models.InstrumentDXY: {ChangePct: -0.05, Trend: models.TrendDown},
		models.InstrumentTNX: {Trend: models.TrendDown},
	}
}

func newScanner() *Scanner {
	pipeline := gating.NewPipeline(gating.NewStages(gating.DefaultConfig(), nil, nil))
	return New(DefaultConfig(), pipeline, targets.NewResolver(targets.DefaultConfig()))
}

func TestScanEmitsBullishSetup(t *testing.T) {
	setup, decision, err := newScanner().Scan(context.Background(), "BTCUSDT", bullishSeries(noon), dollarMove())
	require.NoError(t, err)
	require.True(t, decision.Passed, decision.Reason)
	require.NotNil(t, setup)

	assert.Equal(t, models.Long, setup.Direction)
	assert.Equal(t, models.BiasBullish, setup.Bias)
	assert.Equal(t, noon, setup.Timestamp)
	assert.Equal(t, 999.5, setup.Entry)
	assert.InDelta(t, 995.5, setup.Stop, 1e-9)
	assert.InDelta(t, 1005.5, setup.Targets[0].Price, 1e-9)
	assert.InDelta(t, 1011.5, setup.Targets[1].Price, 1e-9)
	assert.Equal(t, 1003.0, setup.DrawTarget)
	assert.Equal(t, targets.DrawExtension, setup.DrawSource)

	assert.Equal(t, gating.SweepPrevDayLow, setup.Meta.SweepSource)
	assert.Equal(t, features.SessionAsian, setup.Meta.QuartileRange)
	assert.InDelta(t, 0.5, setup.Meta.DivergenceStrength, 1e-12)
	assert.InDelta(t, 0.8, setup.Meta.CrossAssetDivergence, 1e-12)
	assert.Equal(t, "Q1 Accumulation", setup.Meta.TimeQuartile)
	require.NoError(t, setup.Validate())
}

func TestScanIgnoresRedeliveredBars(t *testing.T) {
	bars := bullishSeries(noon)
	noisy := append([]models.Bar{bars[100], bars[5000]}, bars...)

	a, _, err := newScanner().Scan(context.Background(), "BTCUSDT", bars, dollarMove())
	require.NoError(t, err)
	b, _, err := newScanner().Scan(context.Background(), "BTCUSDT", noisy, dollarMove())
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestScanRejectsOutsideKillzone(t *testing.T) {
	at := noon.Add(-time.Hour)
	setup, decision, err := newScanner().Scan(context.Background(), "BTCUSDT", bullishSeries(at), dollarMove())
	require.NoError(t, err)
	assert.Nil(t, setup)
	assert.Equal(t, "time", decision.FailedStage)
}

func TestScanInsufficientBars(t *testing.T) {
	setup, decision, err := newScanner().Scan(context.Background(), "BTCUSDT", nil, nil)
	require.NoError(t, err)
	assert.Nil(t, setup)
	assert.Equal(t, "input", decision.FailedStage)
}

func TestScanShortHistoryIsNeutral(t *testing.T) {
	bars := bullishSeries(noon)
	setup, decision, err := newScanner().Scan(context.Background(), "BTCUSDT", bars[len(bars)-1000:], dollarMove())
	require.NoError(t, err)
	assert.Nil(t, setup)
	assert.Equal(t, "bias", decision.FailedStage)
}

func TestScanHonorsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := newScanner().Scan(ctx, "BTCUSDT", bullishSeries(noon), dollarMove())
	assert.ErrorIs(t, err, context.Canceled)
}

type atrRecorder struct{ seen []int }

func (*atrRecorder) Name() string { return "atr" }

func (p *atrRecorder) Evaluate(_ context.Context, snap *gating.Snapshot, _ gating.Evidence) gating.Verdict {
	p.seen = append(p.seen, len(snap.ATR))
	return gating.Verdict{Reason: "recorded"}
}

func TestScanBoundsATRHistory(t *testing.T) {
	rec := &atrRecorder{}
	s := New(DefaultConfig(), gating.NewPipeline([]gating.Stage{rec}), targets.NewResolver(targets.DefaultConfig()))
	bars := bullishSeries(noon)

	for _, n := range []int{100, 1000, len(bars)} {
		_, decision, err := s.ScanClean(context.Background(), "BTCUSDT", bars[:n], nil)
		require.NoError(t, err)
		assert.Equal(t, "atr", decision.FailedStage)
	}
	want := features.DefaultATRPeriod + features.DefaultRegimeWindow
	assert.Equal(t, []int{want, want, want}, rec.seen)
}
