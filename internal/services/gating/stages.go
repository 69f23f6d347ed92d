package gating

import (
	"context"
	"fmt"
	"time"

	"SMCScan/internal/domain/models"
	"SMCScan/internal/domain/service"
	"SMCScan/internal/services/features"
	"SMCScan/pkg/logger"
)

// Band is an inclusive price-position interval inside a session range.
type Band struct {
	Min float64 `yaml:"min" json:"min"`
	Max float64 `yaml:"max" json:"max"`
}

func (b Band) Contains(v float64) bool { return v >= b.Min && v <= b.Max }

type DepthConfig struct {
	Enabled   bool          `yaml:"enabled"`
	BandPct   float64       `yaml:"band_pct"`
	MinVolume float64       `yaml:"min_volume"`
	Timeout   time.Duration `yaml:"timeout"`
}

// Config holds every threshold the stages read.
type Config struct {
	Killzone             features.SessionWindow `yaml:"killzone"`
	BullishBand          Band                   `yaml:"bullish_band"`
	BearishBand          Band                   `yaml:"bearish_band"`
	QuartileRanges       []string               `yaml:"quartile_ranges"`
	DivergenceInstrument string                 `yaml:"divergence_instrument"`
	DivergenceScale      float64                `yaml:"divergence_scale"`
	MinDivergence        float64                `yaml:"min_divergence"`
	SweepLookback        int                    `yaml:"sweep_lookback"`
	SweepRange           string                 `yaml:"sweep_range"`
	Depth                DepthConfig            `yaml:"depth"`
}

func DefaultConfig() Config {
	return Config{
		Killzone:             features.SessionWindow{Name: "ny", StartHour: 12, EndHour: 20},
		BullishBand:          Band{Min: 0, Max: 0.55},
		BearishBand:          Band{Min: 0.45, Max: 1},
		QuartileRanges:       []string{features.SessionAsian, features.SessionCBDR},
		DivergenceInstrument: models.InstrumentDXY,
		DivergenceScale:      features.DefaultSMTScale,
		MinDivergence:        0.3,
		SweepLookback:        features.DefaultSweepLookback,
		SweepRange:           features.SessionLondon,
		Depth: DepthConfig{
			Enabled:   true,
			BandPct:   0.005,
			MinVolume: 1.0,
			Timeout:   3 * time.Second,
		},
	}
}

// NewStages builds the standard six-stage pipeline. depth may be nil, in
// which case the depth stage passes without checking.
func NewStages(cfg Config, depth service.DepthSource, log *logger.Logger) []Stage {
	if log == nil {
		log = logger.Nop()
	}
	return []Stage{
		TimeStage{Window: cfg.Killzone},
		BiasStage{},
		QuartileStage{Ranges: cfg.QuartileRanges, Bullish: cfg.BullishBand, Bearish: cfg.BearishBand},
		DivergenceStage{Instrument: cfg.DivergenceInstrument, Scale: cfg.DivergenceScale, Min: cfg.MinDivergence},
		SweepStage{Lookback: cfg.SweepLookback, Range: cfg.SweepRange},
		&DepthStage{Source: depth, Config: cfg.Depth, log: log},
	}
}

// TimeStage requires the current bar to fall inside the killzone.
type TimeStage struct {
	Window features.SessionWindow
}

func (TimeStage) Name() string { return "time" }

func (s TimeStage) Evaluate(_ context.Context, snap *Snapshot, ev Evidence) Verdict {
	loc := snap.Location
	if loc == nil {
		loc = time.UTC
	}
	hour := snap.Current().Timestamp.In(loc).Hour()
	if !s.Window.Contains(hour) {
		return Verdict{Reason: fmt.Sprintf("hour %d outside [%d,%d)", hour, s.Window.StartHour, s.Window.EndHour)}
	}
	return Verdict{Pass: true, Evidence: ev}
}

// BiasStage rejects NEUTRAL and fixes the trade direction.
type BiasStage struct{}

func (BiasStage) Name() string { return "bias" }

func (BiasStage) Evaluate(_ context.Context, snap *Snapshot, ev Evidence) Verdict {
	dir, ok := snap.Bias.Direction()
	if !ok {
		return Verdict{Reason: "neutral bias"}
	}
	ev.Direction = dir
	return Verdict{Pass: true, Evidence: ev}
}

// QuartileStage requires price to sit in discount for longs and premium for
// shorts relative to the first available reference range. It fails closed on
// a missing or zero-width range.
type QuartileStage struct {
	Ranges  []string
	Bullish Band
	Bearish Band
}

func (QuartileStage) Name() string { return "quartile" }

func (s QuartileStage) Evaluate(_ context.Context, snap *Snapshot, ev Evidence) Verdict {
	r, ok := features.FirstRange(snap.Ranges, s.Ranges...)
	if !ok {
		return Verdict{Reason: "no reference range"}
	}
	pos, ok := r.Position(snap.Current().Close)
	if !ok {
		return Verdict{Reason: fmt.Sprintf("degenerate %s range", r.Name)}
	}

	band := s.Bullish
	if ev.Direction == models.Short {
		band = s.Bearish
	}
	if !band.Contains(pos) {
		return Verdict{Reason: fmt.Sprintf("position %.3f outside [%.2f,%.2f] of %s", pos, band.Min, band.Max, r.Name)}
	}

	ev.PricePosition = pos
	ev.QuartileRange = r.Name
	return Verdict{Pass: true, Evidence: ev}
}

// DivergenceStage requires a minimum move in the reference instrument.
type DivergenceStage struct {
	Instrument string
	Scale      float64
	Min        float64
}

func (DivergenceStage) Name() string { return "divergence" }

func (s DivergenceStage) Evaluate(_ context.Context, snap *Snapshot, ev Evidence) Verdict {
	strength := features.DivergenceStrength(snap.Context, s.Instrument, s.Scale)
	if strength < s.Min {
		return Verdict{Reason: fmt.Sprintf("divergence %.3f below %.3f", strength, s.Min)}
	}
	ev.DivergenceStrength = strength
	return Verdict{Pass: true, Evidence: ev}
}

// Sweep level sources.
const (
	SweepPrevDayLow  = "PDL"
	SweepPrevDayHigh = "PDH"
	SweepSessionLow  = "SESSION_LOW"
	SweepSessionHigh = "SESSION_HIGH"
)

// SweepStage requires the current bar to have run a liquidity level and
// closed back through it. The trailing extreme is preferred over the
// session extreme when both swept.
type SweepStage struct {
	Lookback int
	Range    string
}

func (SweepStage) Name() string { return "sweep" }

type sweepCandidate struct {
	level  float64
	source string
}

func (s SweepStage) Evaluate(_ context.Context, snap *Snapshot, ev Evidence) Verdict {
	cur := snap.Current()
	var candidates []sweepCandidate

	if high, low, ok := features.TrailingExtremes(snap.History(), s.Lookback); ok {
		if ev.Direction == models.Short {
			candidates = append(candidates, sweepCandidate{high, SweepPrevDayHigh})
		} else {
			candidates = append(candidates, sweepCandidate{low, SweepPrevDayLow})
		}
	}
	if r, ok := snap.Ranges[s.Range]; ok {
		if ev.Direction == models.Short {
			candidates = append(candidates, sweepCandidate{r.High, SweepSessionHigh})
		} else {
			candidates = append(candidates, sweepCandidate{r.Low, SweepSessionLow})
		}
	}

	for _, c := range candidates {
		if features.Swept(cur, ev.Direction, c.level) {
			ev.SweptLevel = c.level
			ev.SweepSource = c.source
			return Verdict{Pass: true, Evidence: ev}
		}
	}
	return Verdict{Reason: fmt.Sprintf("no sweep among %d levels", len(candidates))}
}

// DepthStage confirms resting volume near the swept level. Source failures
// pass so an order book outage never blocks the scanner.
type DepthStage struct {
	Source service.DepthSource
	Config DepthConfig
	log    *logger.Logger
}

func (*DepthStage) Name() string { return "depth" }

func (s *DepthStage) Evaluate(ctx context.Context, snap *Snapshot, ev Evidence) Verdict {
	if s.Source == nil || !s.Config.Enabled {
		return Verdict{Pass: true, Evidence: ev}
	}

	timeout := s.Config.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	dctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	book, err := s.Source.Depth(dctx, snap.Symbol)
	if err != nil {
		if s.log != nil {
			s.log.Warn("depth check skipped",
				logger.String("symbol", snap.Symbol),
				logger.Error(err),
			)
		}
		return Verdict{Pass: true, Reason: "depth unavailable", Evidence: ev}
	}

	vol := book.VolumeNear(ev.Direction, ev.SweptLevel, s.Config.BandPct)
	ev.DepthVolume = vol
	ev.DepthChecked = true
	if vol < s.Config.MinVolume {
		return Verdict{Reason: fmt.Sprintf("depth %.4f below %.4f near %.8f", vol, s.Config.MinVolume, ev.SweptLevel), Evidence: ev}
	}
	return Verdict{Pass: true, Evidence: ev}
}
