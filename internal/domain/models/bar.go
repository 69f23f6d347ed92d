package models

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Bar is one closed OHLCV interval. Bars are append-only: once a bar for a
// timestamp is stored it is never edited, only superseded by a re-delivery.
type Bar struct {
	Symbol    string    `json:"symbol,omitempty"`
	Timestamp time.Time `json:"ts"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// Validate reports whether the bar is internally consistent.
func (b Bar) Validate() error {
	for _, v := range []float64{b.Open, b.High, b.Low, b.Close} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
			return fmt.Errorf("bar %s: non-positive or non-finite price", b.Timestamp.Format(time.RFC3339))
		}
	}
	if b.High < b.Low {
		return fmt.Errorf("bar %s: high %.8f below low %.8f", b.Timestamp.Format(time.RFC3339), b.High, b.Low)
	}
	if b.Open > b.High || b.Open < b.Low || b.Close > b.High || b.Close < b.Low {
		return fmt.Errorf("bar %s: open/close outside high-low", b.Timestamp.Format(time.RFC3339))
	}
	if b.Volume < 0 || math.IsNaN(b.Volume) {
		return fmt.Errorf("bar %s: negative volume", b.Timestamp.Format(time.RFC3339))
	}
	return nil
}

// DedupeBars returns a copy of bars sorted by timestamp with strictly
// increasing timestamps. When a timestamp repeats the later delivery wins.
// Invalid bars are dropped.
func DedupeBars(bars []Bar) []Bar {
	if len(bars) == 0 {
		return nil
	}

	latest := make(map[int64]int, len(bars))
	for i, b := range bars {
		if b.Validate() != nil {
			continue
		}
		latest[b.Timestamp.UnixNano()] = i
	}

	out := make([]Bar, 0, len(latest))
	for _, i := range latest {
		out = append(out, bars[i])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

// Closes extracts the close column.
func Closes(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}
