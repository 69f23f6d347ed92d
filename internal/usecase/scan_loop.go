package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"SMCScan/pkg/logger"
)

// SymbolScanner is the part of ScanUseCase the scheduler drives.
type SymbolScanner interface {
	ScanSymbol(ctx context.Context, symbol string, persist bool) (*ScanOutcome, error)
}

// TickReport summarizes one scheduler tick.
type TickReport struct {
	At      time.Time
	Setups  int
	Alerted int
	Errors  map[string]error
}

// ScanScheduler scans every configured symbol on a fixed interval.
type ScanScheduler struct {
	scan     SymbolScanner
	symbols  []string
	interval time.Duration
	timeout  time.Duration
	log      *logger.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	lastRun TickReport
}

func NewScanScheduler(scan SymbolScanner, symbols []string, interval time.Duration, log *logger.Logger) *ScanScheduler {
	if log == nil {
		log = logger.Nop()
	}
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &ScanScheduler{
		scan:     scan,
		symbols:  symbols,
		interval: interval,
		timeout:  interval,
		log:      log.With("scheduler"),
	}
}

// Start runs one tick immediately and then one per interval until Stop or
// ctx cancellation.
func (s *ScanScheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			s.Tick(ctx)
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	s.log.Info("scheduler started",
		logger.Strings("symbols", s.symbols),
		logger.Duration("interval_ms", s.interval))
}

// Stop cancels the loop and waits for the running tick to finish.
func (s *ScanScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Tick scans all symbols concurrently and collects per-symbol errors.
func (s *ScanScheduler) Tick(ctx context.Context) TickReport {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	type item struct {
		symbol string
		out    *ScanOutcome
		err    error
	}
	ch := make(chan item, len(s.symbols))
	var wg sync.WaitGroup
	for _, sym := range s.symbols {
		wg.Add(1)
		go func(sym string) {
			defer wg.Done()
			out, err := s.scan.ScanSymbol(ctx, sym, true)
			ch <- item{sym, out, err}
		}(sym)
	}
	go func() { wg.Wait(); close(ch) }()

	rep := TickReport{At: time.Now().UTC(), Errors: map[string]error{}}
	for it := range ch {
		if it.err != nil {
			if !errors.Is(it.err, ErrScanInProgress) {
				s.log.Error("scan failed", logger.String("symbol", it.symbol), logger.Error(it.err))
			}
			rep.Errors[it.symbol] = it.err
			continue
		}
		if it.out != nil && it.out.Setup != nil {
			rep.Setups++
			if it.out.Alerted {
				rep.Alerted++
			}
		}
	}

	s.mu.Lock()
	s.lastRun = rep
	s.mu.Unlock()
	return rep
}

// LastRun returns the report of the most recent tick.
func (s *ScanScheduler) LastRun() TickReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun
}
