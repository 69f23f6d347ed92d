package models

import "math"

// Bias is the higher-timeframe directional classification.
type Bias string

const (
	BiasBullish Bias = "BULLISH"
	BiasBearish Bias = "BEARISH"
	BiasNeutral Bias = "NEUTRAL"
)

// Direction maps the bias onto a trade direction. NEUTRAL has none.
func (b Bias) Direction() (Direction, bool) {
	switch b {
	case BiasBullish:
		return Long, true
	case BiasBearish:
		return Short, true
	default:
		return "", false
	}
}

type Direction string

const (
	Long  Direction = "LONG"
	Short Direction = "SHORT"
)

// Sign is +1 for LONG and -1 for SHORT.
func (d Direction) Sign() float64 {
	if d == Short {
		return -1
	}
	return 1
}

// VolRegime classifies the current ATR against its recent mean.
type VolRegime string

const (
	VolHigh      VolRegime = "HIGH"
	VolNormal    VolRegime = "NORMAL"
	VolLow       VolRegime = "LOW"
	VolUndefined VolRegime = "UNDEFINED"
)

// SessionRange summarizes the extremes of one session window.
type SessionRange struct {
	Name    string  `json:"name"`
	High    float64 `json:"high"`
	Low     float64 `json:"low"`
	Mid     float64 `json:"mid"`
	Q1      float64 `json:"q1"`
	Q3      float64 `json:"q3"`
	ExtUp   float64 `json:"ext_up"`
	ExtDown float64 `json:"ext_down"`
}

func NewSessionRange(name string, high, low float64) SessionRange {
	w := high - low
	return SessionRange{
		Name:    name,
		High:    high,
		Low:     low,
		Mid:     (high + low) / 2,
		Q1:      low + 0.25*w,
		Q3:      low + 0.75*w,
		ExtUp:   high + w,
		ExtDown: low - w,
	}
}

func (r SessionRange) Width() float64 { return r.High - r.Low }

// Degenerate is true for zero-width (or NaN) ranges.
func (r SessionRange) Degenerate() bool { return !(r.High > r.Low) }

// Position returns where price sits inside the range, 0 at the low and 1 at
// the high. ok is false when the range is degenerate.
func (r SessionRange) Position(price float64) (pos float64, ok bool) {
	if r.Degenerate() {
		return math.NaN(), false
	}
	return (price - r.Low) / r.Width(), true
}

type Trend string

const (
	TrendUp   Trend = "UP"
	TrendDown Trend = "DOWN"
)

// Cross-asset instruments tracked in MarketContext.
const (
	InstrumentDXY = "DXY"
	InstrumentNQ  = "NQ"
	InstrumentES  = "ES"
	InstrumentTNX = "TNX"
)

type InstrumentSnapshot struct {
	Price     float64 `json:"price"`
	ChangePct float64 `json:"change_5m"` // percent change over the last 5 minutes
	Trend     Trend   `json:"trend"`
	High1h    float64 `json:"high_1h"`
	Low1h     float64 `json:"low_1h"`
}

// MarketContext holds the latest snapshot per instrument. Instruments that
// could not be fetched are simply absent.
type MarketContext map[string]InstrumentSnapshot

type BookLevel struct {
	Price float64 `json:"price"`
	Qty   float64 `json:"qty"`
}

type OrderBook struct {
	Symbol string      `json:"symbol"`
	Bids   []BookLevel `json:"bids"`
	Asks   []BookLevel `json:"asks"`
}

// VolumeNear sums resting quantity on the side that would absorb the trade
// (bids for LONG, asks for SHORT) within bandPct of level.
func (ob OrderBook) VolumeNear(dir Direction, level, bandPct float64) float64 {
	if level == 0 {
		return 0
	}
	side := ob.Bids
	if dir == Short {
		side = ob.Asks
	}
	var sum float64
	for _, l := range side {
		if math.Abs(l.Price-level)/level < bandPct {
			sum += l.Qty
		}
	}
	return sum
}
