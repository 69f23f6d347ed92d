package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"SMCScan/internal/domain/models"
	domrepo "SMCScan/internal/domain/repository"
	"SMCScan/internal/services/replay"
	"SMCScan/internal/services/scanner"
	"SMCScan/pkg/logger"
	"SMCScan/pkg/util"
)

type BacktestConfig struct {
	Timeframe    domrepo.Timeframe
	Warmup       int
	CooldownBars int
	Workers      int
}

// BacktestReport is the outcome of one historical walk.
type BacktestReport struct {
	RunID    string                `json:"run_id,omitempty"`
	Symbol   string                `json:"symbol"`
	From     time.Time             `json:"from"`
	To       time.Time             `json:"to"`
	Bars     int                   `json:"bars"`
	Setups   []models.Setup        `json:"setups"`
	Outcomes []models.ReplayResult `json:"outcomes"`
	Stats    models.ReplayStats    `json:"stats"`
}

// BacktestUseCase walks history bar by bar, emits setups the way the live
// scanner would and replays each one over the bars that followed it.
type BacktestUseCase struct {
	cfg      BacktestConfig
	bars     domrepo.BarSource
	scanner  *scanner.Scanner
	engine   *replay.Engine
	outcomes domrepo.OutcomeStore
	metrics  domrepo.Metrics
	log      *logger.Logger
}

// NewBacktestUseCase builds the backtester. sc should be configured without
// a depth source; bars and outcomes may be nil when only RunBars is used.
func NewBacktestUseCase(
	cfg BacktestConfig,
	bars domrepo.BarSource,
	sc *scanner.Scanner,
	engine *replay.Engine,
	outcomes domrepo.OutcomeStore,
	metrics domrepo.Metrics,
	log *logger.Logger,
) *BacktestUseCase {
	if log == nil {
		log = logger.Nop()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Warmup < 1 {
		cfg.Warmup = 1
	}
	return &BacktestUseCase{
		cfg:      cfg,
		bars:     bars,
		scanner:  sc,
		engine:   engine,
		outcomes: outcomes,
		metrics:  metrics,
		log:      log.With("backtest"),
	}
}

// Run fetches [from, to] from the bar source and backtests it.
func (uc *BacktestUseCase) Run(ctx context.Context, symbol string, from, to time.Time, workers int, persist bool) (*BacktestReport, error) {
	if uc.bars == nil {
		return nil, fmt.Errorf("backtest %s: %w: no bar source", symbol, domrepo.ErrBarsUnavailable)
	}
	from, to = util.TruncateRange(from, to, uc.cfg.Timeframe.Duration())
	bars, err := uc.bars.FetchRange(ctx, symbol, uc.cfg.Timeframe, from, to)
	if err != nil {
		return nil, fmt.Errorf("backtest %s: %w", symbol, err)
	}
	return uc.RunBars(ctx, symbol, bars, workers, persist)
}

// RunBars backtests an in-memory series. workers <= 0 uses the configured
// pool size.
func (uc *BacktestUseCase) RunBars(ctx context.Context, symbol string, bars []models.Bar, workers int, persist bool) (*BacktestReport, error) {
	start := time.Now()
	bars = models.DedupeBars(bars)
	rep := &BacktestReport{Symbol: symbol, Bars: len(bars)}
	if len(bars) > 0 {
		rep.From = bars[0].Timestamp
		rep.To = bars[len(bars)-1].Timestamp
	}

	var jobs []replay.Job
	for idx := uc.cfg.Warmup; idx < len(bars)-1; idx++ {
		setup, _, err := uc.scanner.ScanClean(ctx, symbol, bars[:idx+1], nil)
		if err != nil {
			return nil, fmt.Errorf("backtest %s at %s: %w", symbol, bars[idx].Timestamp.Format(time.RFC3339), err)
		}
		if setup == nil {
			continue
		}
		setup.ID = uuid.NewString()
		rep.Setups = append(rep.Setups, *setup)
		jobs = append(jobs, replay.Job{Setup: *setup, Future: bars[idx+1:]})
		idx += uc.cfg.CooldownBars
	}

	if workers <= 0 {
		workers = uc.cfg.Workers
	}
	results, err := uc.engine.RunBatch(ctx, jobs, workers)
	if err != nil {
		return nil, fmt.Errorf("backtest %s: %w", symbol, err)
	}
	rep.Outcomes = results
	rep.Stats = replay.Summarize(results)
	if uc.metrics != nil {
		for _, r := range results {
			uc.metrics.RecordOutcome(r.Phase, r.RealizedR)
		}
		uc.metrics.RecordLatency("backtest", time.Since(start).Seconds())
	}

	if persist && uc.outcomes != nil && len(results) > 0 {
		rep.RunID = uuid.NewString()
		if err := uc.outcomes.SaveOutcomes(ctx, rep.RunID, results); err != nil {
			uc.log.Error("outcomes not journaled", logger.String("run_id", rep.RunID), logger.Error(err))
			rep.RunID = ""
		}
	}

	uc.log.Info("backtest finished",
		logger.String("symbol", symbol),
		logger.Int("bars", len(bars)),
		logger.Int("setups", len(rep.Setups)),
		logger.Float64("total_r", rep.Stats.TotalR),
		logger.Float64("win_rate", rep.Stats.WinRate),
		logger.Duration("took", time.Since(start)))
	return rep, nil
}

// Replay runs a single setup over future bars with its own lookahead bound.
func (uc *BacktestUseCase) Replay(setup models.Setup, future []models.Bar, maxLookahead int) (models.ReplayResult, error) {
	if err := setup.Validate(); err != nil {
		return models.ReplayResult{}, err
	}
	engine := uc.engine
	if maxLookahead > 0 && maxLookahead != engine.MaxLookahead() {
		engine = replay.NewEngine(maxLookahead)
	}
	res := engine.Replay(setup, models.DedupeBars(future))
	if uc.metrics != nil {
		uc.metrics.RecordOutcome(res.Phase, res.RealizedR)
	}
	return res, nil
}
