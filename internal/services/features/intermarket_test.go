package features

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"SMCScan/internal/domain/models"
)

func TestCrossAssetDivergence(t *testing.T) {
	riskOn := models.MarketContext{
		models.InstrumentTNX: {Trend: models.TrendDown},
		models.InstrumentNQ:  {Trend: models.TrendUp},
		models.InstrumentDXY: {Trend: models.TrendDown},
	}
	assert.Equal(t, 1.0, CrossAssetDivergence(models.Long, riskOn))
	assert.Equal(t, -1.0, CrossAssetDivergence(models.Short, riskOn))

	onlyDollar := models.MarketContext{models.InstrumentDXY: {Trend: models.TrendDown}}
	assert.InDelta(t, 0.3, CrossAssetDivergence(models.Long, onlyDollar), 1e-12)
	assert.InDelta(t, -0.3, CrossAssetDivergence(models.Short, onlyDollar), 1e-12)

	assert.Equal(t, 0.0, CrossAssetDivergence(models.Long, nil))
}

func TestDivergenceStrength(t *testing.T) {
	mctx := models.MarketContext{models.InstrumentDXY: {ChangePct: -0.05}}
	assert.InDelta(t, 0.5, DivergenceStrength(mctx, models.InstrumentDXY, DefaultSMTScale), 1e-12)
	assert.Equal(t, 0.0, DivergenceStrength(mctx, models.InstrumentNQ, DefaultSMTScale))
	assert.Equal(t, 0.0, DivergenceStrength(nil, models.InstrumentDXY, DefaultSMTScale))
}

func TestQuartileOf(t *testing.T) {
	at := func(h, m int) time.Time { return time.Date(2024, 3, 5, h, m, 0, 0, time.UTC) }
	cases := []struct {
		t    time.Time
		want int
	}{
		{at(12, 0), 1},
		{at(13, 29), 1},
		{at(13, 30), 2},
		{at(15, 0), 3},
		{at(17, 59), 4},
		{at(5, 59), 4},
		{at(6, 0), 1},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, QuartileOf(c.t).Num, c.t.Format("15:04"))
	}
	assert.Equal(t, "Q2 Manipulation", QuartileOf(at(13, 45)).String())
}
