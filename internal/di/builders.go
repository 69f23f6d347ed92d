package di

import (
	"SMCScan/internal/domain/repository"
	"SMCScan/internal/domain/service"
	"SMCScan/internal/services/features"
	"SMCScan/internal/services/gating"
	"SMCScan/internal/services/replay"
	"SMCScan/internal/services/scanner"
	"SMCScan/internal/services/targets"
	"SMCScan/internal/usecase"
	"SMCScan/pkg/config"
	"SMCScan/pkg/logger"
)

// GatingConfig maps the scanner section onto the stage thresholds.
func GatingConfig(cfg *config.Config) gating.Config {
	s := cfg.Scanner
	g := gating.DefaultConfig()
	g.Killzone = features.SessionWindow{Name: "ny", StartHour: s.Killzone.StartHour, EndHour: s.Killzone.EndHour}
	g.BullishBand = gating.Band{Min: s.BullishBand.Min, Max: s.BullishBand.Max}
	g.BearishBand = gating.Band{Min: s.BearishBand.Min, Max: s.BearishBand.Max}
	g.DivergenceInstrument = s.DivergenceInstrument
	g.DivergenceScale = s.DivergenceScale
	g.MinDivergence = s.MinDivergence
	g.SweepLookback = s.SweepLookback
	g.Depth = gating.DepthConfig{
		Enabled:   s.Depth.Enabled,
		BandPct:   s.Depth.BandPct,
		MinVolume: s.Depth.MinVolume,
		Timeout:   s.Depth.Timeout,
	}
	return g
}

// BacktestGatingConfig relaxes the live thresholds for historical runs: the
// divergence floor comes from the backtest section and depth is never checked.
func BacktestGatingConfig(cfg *config.Config) gating.Config {
	g := GatingConfig(cfg)
	g.MinDivergence = cfg.Backtest.MinDivergence
	g.Depth.Enabled = false
	return g
}

func TargetsConfig(cfg *config.Config) targets.Config {
	t := targets.DefaultConfig()
	t.StopATRMultiplier = cfg.Scanner.StopATRMultiplier
	t.Targets = make([]targets.TargetSpec, 0, len(cfg.Scanner.Targets))
	for _, lvl := range cfg.Scanner.Targets {
		t.Targets = append(t.Targets, targets.TargetSpec{RMultiple: lvl.RMultiple, Fraction: lvl.Fraction})
	}
	return t
}

func ScannerConfig(cfg *config.Config) scanner.Config {
	s := scanner.DefaultConfig()
	s.Timeframe = cfg.Scanner.Timeframe
	s.RangeLookback = cfg.Scanner.RangeLookback
	s.ATRPeriod = cfg.Scanner.ATRPeriod
	s.Location = cfg.Location()
	b := cfg.Scanner.Bias
	s.Bias = features.BiasConfig{
		Lookback:   b.Lookback,
		MinHistory: b.MinHistory,
		Factor:     b.Factor,
		ShortSpan:  b.ShortSpan,
		LongSpan:   b.LongSpan,
	}
	return s
}

// BuildScanner assembles the gating pipeline, resolver and scanner. depth and
// rec may be nil.
func BuildScanner(cfg *config.Config, g gating.Config, depth service.DepthSource, rec repository.Metrics, log *logger.Logger) *scanner.Scanner {
	opts := []gating.PipelineOption{gating.WithLogger(log)}
	if rec != nil {
		opts = append(opts, gating.WithRejectRecorder(rec))
	}
	pipeline := gating.NewPipeline(gating.NewStages(g, depth, log), opts...)
	tc := TargetsConfig(cfg)
	sc := ScannerConfig(cfg)
	sc.RegimeWindow = tc.RegimeWindow
	return scanner.New(sc, pipeline, targets.NewResolver(tc), scanner.WithLogger(log))
}

// BuildBacktester builds a backtester around the relaxed backtest scanner.
// bars, outcomes and rec may be nil.
func BuildBacktester(cfg *config.Config, bars repository.BarSource, outcomes repository.OutcomeStore, rec repository.Metrics, log *logger.Logger) *usecase.BacktestUseCase {
	sc := BuildScanner(cfg, BacktestGatingConfig(cfg), nil, nil, log)
	return usecase.NewBacktestUseCase(usecase.BacktestConfig{
		Timeframe:    repository.NormalizeTimeframe(cfg.Scanner.Timeframe),
		Warmup:       cfg.Backtest.Warmup,
		CooldownBars: cfg.Backtest.CooldownBars,
		Workers:      cfg.Backtest.Workers,
	}, bars, sc, replay.NewEngine(cfg.Scanner.MaxLookahead), outcomes, rec, log)
}
