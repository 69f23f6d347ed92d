package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"SMCScan/internal/domain/models"
	domrepo "SMCScan/internal/domain/repository"
	"SMCScan/internal/domain/service"
	"SMCScan/internal/services/gating"
	"SMCScan/internal/services/scanner"
	pcache "SMCScan/pkg/cache"
	"SMCScan/pkg/logger"
	"SMCScan/pkg/util"
)

// ErrScanInProgress is returned when another scan holds the symbol lock.
var ErrScanInProgress = errors.New("scan already in progress")

type ScanConfig struct {
	Timeframe       domrepo.Timeframe
	HistoryBars     int
	AlertThreshold  float64
	DailyAlertLimit int
	LockTTL         time.Duration
	ContextTimeout  time.Duration
	NotifyTimeout   time.Duration
}

// ScanOutcome is the result of scanning one symbol.
type ScanOutcome struct {
	Symbol   string          `json:"symbol"`
	BarTime  time.Time       `json:"bar_time"`
	Setup    *models.Setup   `json:"setup"`
	SetupID  string          `json:"setup_id,omitempty"`
	Score    float64         `json:"score,omitempty"`
	Alerted  bool            `json:"alerted"`
	Decision gating.Decision `json:"decision"`
}

// ScanUseCase runs one scan end to end: fetch, scan, score, journal, alert.
type ScanUseCase struct {
	cfg      ScanConfig
	bars     domrepo.BarSource
	mctx     service.ContextSource
	scanner  *scanner.Scanner
	scorer   service.Scorer
	sink     domrepo.SetupSink
	notifier service.Notifier
	cache    pcache.Service
	metrics  domrepo.Metrics
	log      *logger.Logger
	now      func() time.Time
	notifyWG sync.WaitGroup
}

// NewScanUseCase wires the scan path. mctx, notifier and cache may be nil.
func NewScanUseCase(
	cfg ScanConfig,
	bars domrepo.BarSource,
	mctx service.ContextSource,
	sc *scanner.Scanner,
	scorer service.Scorer,
	sink domrepo.SetupSink,
	notifier service.Notifier,
	cache pcache.Service,
	metrics domrepo.Metrics,
	log *logger.Logger,
) *ScanUseCase {
	if log == nil {
		log = logger.Nop()
	}
	if cfg.ContextTimeout <= 0 {
		cfg.ContextTimeout = 5 * time.Second
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = 10 * time.Second
	}
	return &ScanUseCase{
		cfg:      cfg,
		bars:     bars,
		mctx:     mctx,
		scanner:  sc,
		scorer:   scorer,
		sink:     sink,
		notifier: notifier,
		cache:    cache,
		metrics:  metrics,
		log:      log.With("scan"),
		now:      time.Now,
	}
}

// ScanSymbol scans the latest closed bar of symbol. When persist is false
// the setup is returned without being journaled or alerted.
func (uc *ScanUseCase) ScanSymbol(ctx context.Context, symbol string, persist bool) (*ScanOutcome, error) {
	start := uc.now()
	defer func() { uc.metrics.RecordLatency("scan", time.Since(start).Seconds()) }()

	if persist && uc.cache != nil && uc.cfg.LockTTL > 0 {
		lockKey := pcache.Key("lock", "scan", symbol)
		ok, err := uc.cache.TryLock(ctx, lockKey, uc.cfg.LockTTL)
		if err != nil {
			uc.log.Warn("scan lock unavailable", logger.String("symbol", symbol), logger.Error(err))
		} else if !ok {
			uc.metrics.RecordScan(symbol, "locked")
			return nil, ErrScanInProgress
		} else {
			defer func() { _ = uc.cache.Unlock(context.WithoutCancel(ctx), lockKey) }()
		}
	}

	bars, err := uc.bars.Fetch(ctx, symbol, uc.cfg.Timeframe, uc.cfg.HistoryBars)
	if err != nil {
		uc.metrics.RecordScan(symbol, "error")
		uc.metrics.RecordError("bars")
		return nil, fmt.Errorf("scan %s: %w", symbol, err)
	}
	bars = models.DedupeBars(bars)
	out := &ScanOutcome{Symbol: symbol}
	if len(bars) == 0 {
		uc.metrics.RecordScan(symbol, "no_data")
		out.Decision = gating.Decision{FailedStage: "input", Reason: "no bars"}
		return out, nil
	}
	last := bars[len(bars)-1]
	out.BarTime = last.Timestamp
	uc.metrics.RecordLastPrice(symbol, last.Close)

	setup, decision, err := uc.scanner.ScanClean(ctx, symbol, bars, uc.marketContext(ctx))
	out.Decision = decision
	if err != nil {
		uc.metrics.RecordScan(symbol, "error")
		return nil, fmt.Errorf("scan %s: %w", symbol, err)
	}
	if setup == nil {
		uc.metrics.RecordScan(symbol, "rejected")
		return out, nil
	}

	uc.metrics.RecordScan(symbol, "setup")
	uc.metrics.RecordSetup(symbol, setup.Direction)
	out.Setup = setup
	out.Score = uc.score(ctx, *setup)

	if !persist {
		return out, nil
	}

	if uc.sink != nil {
		id, err := uc.sink.Save(ctx, *setup, out.Score)
		if err != nil {
			uc.metrics.RecordError("sink")
			uc.log.Error("setup not journaled",
				logger.String("symbol", symbol),
				logger.Error(err))
		} else {
			out.SetupID = id
			setup.ID = id
		}
	}

	if out.Score >= uc.cfg.AlertThreshold && uc.allowAlert(ctx) {
		uc.notify(*setup, out.Score)
		out.Alerted = true
	}

	uc.log.Info("setup emitted",
		logger.String("symbol", symbol),
		logger.String("direction", string(setup.Direction)),
		logger.Float64("entry", setup.Entry),
		logger.Float64("stop", setup.Stop),
		logger.Any("targets", setup.Targets),
		logger.Float64("score", out.Score),
		logger.Bool("alerted", out.Alerted))
	return out, nil
}

// marketContext degrades to an empty context on failure; the divergence
// stage then rejects on its own terms.
func (uc *ScanUseCase) marketContext(ctx context.Context) models.MarketContext {
	if uc.mctx == nil {
		return models.MarketContext{}
	}
	cctx, cancel := context.WithTimeout(ctx, uc.cfg.ContextTimeout)
	defer cancel()
	mctx, err := uc.mctx.Context(cctx)
	if err != nil {
		uc.metrics.RecordError("context")
		uc.log.Warn("market context unavailable", logger.Error(err))
		return models.MarketContext{}
	}
	return mctx
}

func (uc *ScanUseCase) score(ctx context.Context, setup models.Setup) float64 {
	if uc.scorer == nil {
		return 0
	}
	s, err := uc.scorer.Score(ctx, setup)
	if err != nil {
		uc.metrics.RecordError("score")
		uc.log.Warn("scoring failed", logger.String("symbol", setup.Symbol), logger.Error(err))
		return 0
	}
	return s
}

// allowAlert counts alerts per UTC day and refuses once the daily limit is
// reached. A counter failure allows the alert.
func (uc *ScanUseCase) allowAlert(ctx context.Context) bool {
	if uc.notifier == nil {
		return false
	}
	if uc.cache == nil || uc.cfg.DailyAlertLimit <= 0 {
		return true
	}
	now := uc.now()
	key := pcache.Key("alerts", util.UTCDay(now))
	n, err := pcache.IncrementWithin(ctx, uc.cache, key, util.UntilNextUTCDay(now))
	if err != nil {
		uc.log.Warn("alert counter unavailable", logger.Error(err))
		return true
	}
	if n > int64(uc.cfg.DailyAlertLimit) {
		uc.log.Info("daily alert limit reached", logger.Int64("count", n))
		return false
	}
	return true
}

// notify delivers in the background; failures are logged only.
func (uc *ScanUseCase) notify(setup models.Setup, score float64) {
	uc.notifyWG.Add(1)
	go func() {
		defer uc.notifyWG.Done()
		ctx, cancel := context.WithTimeout(context.Background(), uc.cfg.NotifyTimeout)
		defer cancel()
		if err := uc.notifier.Notify(ctx, setup, score); err != nil {
			uc.metrics.RecordError("notify")
			uc.log.Error("alert delivery failed",
				logger.String("symbol", setup.Symbol),
				logger.Error(err))
		}
	}()
}

// Wait blocks until in-flight notifications finish.
func (uc *ScanUseCase) Wait() { uc.notifyWG.Wait() }
