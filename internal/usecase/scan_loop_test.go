package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SMCScan/internal/domain/models"
)

type scriptedScanner struct {
	mu    sync.Mutex
	calls map[string]int
	outs  map[string]*ScanOutcome
	errs  map[string]error
}

func (s *scriptedScanner) ScanSymbol(_ context.Context, symbol string, persist bool) (*ScanOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calls == nil {
		s.calls = map[string]int{}
	}
	s.calls[symbol]++
	if err := s.errs[symbol]; err != nil {
		return nil, err
	}
	if out := s.outs[symbol]; out != nil {
		return out, nil
	}
	return &ScanOutcome{Symbol: symbol}, nil
}

func (s *scriptedScanner) callsFor(symbol string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[symbol]
}

func TestSchedulerTickFansOut(t *testing.T) {
	sc := &scriptedScanner{
		outs: map[string]*ScanOutcome{
			"BTCUSDT": {Symbol: "BTCUSDT", Setup: &models.Setup{Symbol: "BTCUSDT"}, Alerted: true},
			"ETHUSDT": {Symbol: "ETHUSDT", Setup: &models.Setup{Symbol: "ETHUSDT"}},
		},
		errs: map[string]error{"SOLUSDT": errBoom, "BNBUSDT": ErrScanInProgress},
	}
	s := NewScanScheduler(sc, []string{"BTCUSDT", "ETHUSDT", "SOLUSDT", "BNBUSDT", "XRPUSDT"}, time.Minute, nil)

	rep := s.Tick(context.Background())

	assert.Equal(t, 2, rep.Setups)
	assert.Equal(t, 1, rep.Alerted)
	require.Len(t, rep.Errors, 2)
	assert.ErrorIs(t, rep.Errors["SOLUSDT"], errBoom)
	assert.ErrorIs(t, rep.Errors["BNBUSDT"], ErrScanInProgress)
	assert.Equal(t, rep.Setups, s.LastRun().Setups)
	for _, sym := range []string{"BTCUSDT", "ETHUSDT", "SOLUSDT", "BNBUSDT", "XRPUSDT"} {
		assert.Equal(t, 1, sc.callsFor(sym), sym)
	}
}

func TestSchedulerStartRunsImmediatelyAndStops(t *testing.T) {
	sc := &scriptedScanner{}
	s := NewScanScheduler(sc, []string{"BTCUSDT"}, time.Hour, nil)

	s.Start(context.Background())
	require.Eventually(t, func() bool { return sc.callsFor("BTCUSDT") == 1 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	assert.NoError(t, s.Stop(ctx))
	assert.Equal(t, 1, sc.callsFor("BTCUSDT"))
}
