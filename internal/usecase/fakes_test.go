package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"SMCScan/internal/domain/models"
	domrepo "SMCScan/internal/domain/repository"
	"SMCScan/internal/services/gating"
	"SMCScan/internal/services/scanner"
	"SMCScan/internal/services/targets"
)

var noon = time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)

// bullishSeries ends with a bar at `at` that qualifies as a LONG setup
// against dollarMove: entry 999.5, stop 995.5, targets 1005.5 and 1011.5.
func bullishSeries(at time.Time) []models.Bar {
	const trend, flat = 5712, 288
	start := at.Add(-(trend + flat) * 5 * time.Minute)
	bars := make([]models.Bar, 0, trend+flat+1)

	p := 400.0
	for i := 0; i < trend; i++ {
		o := p
		p += 0.1
		bars = append(bars, models.Bar{
			Symbol:    "BTCUSDT",
			Timestamp: start.Add(time.Duration(i) * 5 * time.Minute),
			Open:      o, High: p + 0.5, Low: o - 0.5, Close: p, Volume: 1,
		})
	}
	for i := trend; i < trend+flat; i++ {
		bars = append(bars, models.Bar{
			Symbol:    "BTCUSDT",
			Timestamp: start.Add(time.Duration(i) * 5 * time.Minute),
			Open:      1000, High: 1001, Low: 999, Close: 1000, Volume: 1,
		})
	}
	return append(bars, models.Bar{Symbol: "BTCUSDT", Timestamp: at, Open: 999.5, High: 999.8, Low: 998, Close: 999.5, Volume: 5})
}

func dollarMove() models.MarketContext {
	return models.MarketContext{
		models.InstrumentDXY: {ChangePct: -0.05, Trend: models.TrendDown},
	}
}

func newTestScanner(minDivergence float64) *scanner.Scanner {
	gcfg := gating.DefaultConfig()
	gcfg.MinDivergence = minDivergence
	pipeline := gating.NewPipeline(gating.NewStages(gcfg, nil, nil))
	return scanner.New(scanner.DefaultConfig(), pipeline, targets.NewResolver(targets.DefaultConfig()))
}

type fakeBars struct {
	bars []models.Bar
	err  error

	mu    sync.Mutex
	calls int
	from  time.Time
	to    time.Time
}

func (f *fakeBars) Fetch(_ context.Context, _ string, _ domrepo.Timeframe, limit int) ([]models.Bar, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := f.bars
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return append([]models.Bar(nil), out...), nil
}

func (f *fakeBars) FetchRange(_ context.Context, _ string, _ domrepo.Timeframe, from, to time.Time) ([]models.Bar, error) {
	f.mu.Lock()
	f.from, f.to = from, to
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append([]models.Bar(nil), f.bars...), nil
}

type fakeContext struct {
	mctx models.MarketContext
	err  error
}

func (f fakeContext) Context(context.Context) (models.MarketContext, error) { return f.mctx, f.err }

type fixedScorer float64

func (s fixedScorer) Score(context.Context, models.Setup) (float64, error) { return float64(s), nil }

type recordingSink struct {
	mu     sync.Mutex
	saved  []models.Setup
	scores []float64
	err    error
}

func (s *recordingSink) Save(_ context.Context, setup models.Setup, score float64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.saved = append(s.saved, setup)
	s.scores = append(s.scores, score)
	return "setup-1", nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	alerts []models.Setup
}

func (n *recordingNotifier) Notify(_ context.Context, setup models.Setup, _ float64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, setup)
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.alerts)
}

type recordingOutcomes struct {
	runID   string
	results []models.ReplayResult
}

func (o *recordingOutcomes) SaveOutcomes(_ context.Context, runID string, results []models.ReplayResult) error {
	o.runID = runID
	o.results = results
	return nil
}

type fakeStore struct {
	mu     sync.Mutex
	stored []*models.Bar
	err    error
	closed bool
}

func (s *fakeStore) Fetch(context.Context, string, domrepo.Timeframe, int) ([]models.Bar, error) {
	return nil, nil
}

func (s *fakeStore) FetchRange(context.Context, string, domrepo.Timeframe, time.Time, time.Time) ([]models.Bar, error) {
	return nil, nil
}

func (s *fakeStore) Init(context.Context) error   { return nil }
func (s *fakeStore) Health(context.Context) error { return nil }
func (s *fakeStore) Close() error                 { s.closed = true; return nil }

func (s *fakeStore) Store(_ context.Context, b *models.Bar) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.stored = append(s.stored, b)
	return nil
}

func (s *fakeStore) StoreBatch(_ context.Context, bars []*models.Bar) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.stored = append(s.stored, bars...)
	return nil
}

func (s *fakeStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.stored)
}

type fakePublisher struct {
	published []*models.Bar
	closed    bool
}

func (p *fakePublisher) Publish(_ context.Context, b *models.Bar) error {
	p.published = append(p.published, b)
	return nil
}

func (p *fakePublisher) PublishBatch(_ context.Context, bars []*models.Bar) error {
	p.published = append(p.published, bars...)
	return nil
}

func (p *fakePublisher) Close() error { p.closed = true; return nil }

var errBoom = errors.New("boom")
