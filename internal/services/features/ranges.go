package features

import (
	"math"
	"time"

	"SMCScan/internal/domain/models"
)

// Session names used as keys in the range map.
const (
	SessionAsian  = "asian"
	SessionLondon = "london"
	SessionCBDR   = "cbdr"
)

// DefaultRangeLookback covers one trading day of 5m bars.
const DefaultRangeLookback = 288

// SessionWindow is an hour-of-day window evaluated half-open as [start, end).
// When StartHour > EndHour the window wraps midnight.
type SessionWindow struct {
	Name      string `yaml:"name" json:"name"`
	StartHour int    `yaml:"start_hour" json:"start_hour"`
	EndHour   int    `yaml:"end_hour" json:"end_hour"`
}

// Contains reports whether hour falls inside the window.
func (w SessionWindow) Contains(hour int) bool {
	if w.StartHour <= w.EndHour {
		return hour >= w.StartHour && hour < w.EndHour
	}
	return hour >= w.StartHour || hour < w.EndHour
}

func DefaultSessionWindows() []SessionWindow {
	return []SessionWindow{
		{Name: SessionAsian, StartHour: 0, EndHour: 5},
		{Name: SessionLondon, StartHour: 7, EndHour: 10},
		{Name: SessionCBDR, StartHour: 19, EndHour: 1},
	}
}

// CalculateRanges computes the high/low summary of every window over the
// trailing lookback bars. Hours are read in loc (UTC when nil). Windows with no
// bars in the lookback are absent from the result.
func CalculateRanges(bars []models.Bar, lookback int, windows []SessionWindow, loc *time.Location) map[string]models.SessionRange {
	if loc == nil {
		loc = time.UTC
	}
	if lookback > 0 && len(bars) > lookback {
		bars = bars[len(bars)-lookback:]
	}

	type extremes struct{ high, low float64 }
	acc := make(map[string]*extremes, len(windows))

	for _, b := range bars {
		hour := b.Timestamp.In(loc).Hour()
		for _, w := range windows {
			if !w.Contains(hour) {
				continue
			}
			e, ok := acc[w.Name]
			if !ok {
				acc[w.Name] = &extremes{high: b.High, low: b.Low}
				continue
			}
			e.high = math.Max(e.high, b.High)
			e.low = math.Min(e.low, b.Low)
		}
	}

	out := make(map[string]models.SessionRange, len(acc))
	for name, e := range acc {
		out[name] = models.NewSessionRange(name, e.high, e.low)
	}
	return out
}

// FirstRange returns the first range present in ranges following the given
// preference order.
func FirstRange(ranges map[string]models.SessionRange, order ...string) (models.SessionRange, bool) {
	for _, name := range order {
		if r, ok := ranges[name]; ok {
			return r, true
		}
	}
	return models.SessionRange{}, false
}
