package features

import (
	"fmt"
	"math"
	"time"

	"SMCScan/internal/domain/models"
)

// DefaultSMTScale converts the dollar index 5m percent move into a 0..n
// divergence strength: a 0.1% move is strength 1.
const DefaultSMTScale = 0.1

// DivergenceStrength measures how hard the reference instrument moved over the
// last 5 minutes. A missing instrument contributes zero.
func DivergenceStrength(mctx models.MarketContext, instrument string, scale float64) float64 {
	snap, ok := mctx[instrument]
	if !ok || scale <= 0 {
		return 0
	}
	return math.Abs(snap.ChangePct) / scale
}

type sponsorWeight struct {
	instrument string
	want       models.Trend
	weight     float64
}

var sponsorship = map[models.Direction][]sponsorWeight{
	models.Long: {
		{models.InstrumentTNX, models.TrendDown, 0.5},
		{models.InstrumentNQ, models.TrendUp, 0.25},
		{models.InstrumentDXY, models.TrendDown, 0.3},
	},
	models.Short: {
		{models.InstrumentTNX, models.TrendUp, 0.4},
		{models.InstrumentNQ, models.TrendDown, 0.3},
		{models.InstrumentDXY, models.TrendUp, 0.3},
	},
}

// CrossAssetDivergence scores how well yields, equities and the dollar agree
// with the trade direction, clamped to [-1, 1]. An empty context scores 0.
func CrossAssetDivergence(dir models.Direction, mctx models.MarketContext) float64 {
	var score float64
	for _, w := range sponsorship[dir] {
		snap, ok := mctx[w.instrument]
		if !ok {
			continue
		}
		if snap.Trend == w.want {
			score += w.weight
		} else {
			score -= w.weight
		}
	}
	return math.Max(-1, math.Min(1, score))
}

// TimeQuartile locates t inside its 6-hour session (00, 06, 12, 18 UTC), each
// split into four 90 minute quartiles.
type TimeQuartile struct {
	Num   int    `json:"num"`
	Phase string `json:"phase"`
}

var quartilePhases = [4]string{"Accumulation", "Manipulation", "Distribution", "Continuation"}

func QuartileOf(t time.Time) TimeQuartile {
	t = t.UTC()
	minutes := (t.Hour()%6)*60 + t.Minute()
	num := minutes/90 + 1
	if num > 4 {
		num = 4
	}
	return TimeQuartile{Num: num, Phase: quartilePhases[num-1]}
}

func (q TimeQuartile) String() string {
	return fmt.Sprintf("Q%d %s", q.Num, q.Phase)
}
