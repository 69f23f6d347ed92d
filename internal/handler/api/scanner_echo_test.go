package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SMCScan/internal/domain/models"
	domrepo "SMCScan/internal/domain/repository"
	"SMCScan/internal/service/ratelimit"
	"SMCScan/internal/usecase"
	xhttp "SMCScan/pkg/http"
)

var noon = time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)

type stubBars struct {
	got usecase.GetBarsParams
	err error
}

func (s *stubBars) GetBars(_ context.Context, p usecase.GetBarsParams) (*usecase.GetBarsResult, error) {
	s.got = p
	if s.err != nil {
		return nil, s.err
	}
	bars := []models.Bar{{Symbol: p.Symbol, Timestamp: noon, Open: 1, High: 2, Low: 1, Close: 2}}
	return &usecase.GetBarsResult{Symbol: p.Symbol, Timeframe: string(p.Timeframe), Count: 1, Bars: bars, From: noon, To: noon}, nil
}

type stubScan struct {
	persist bool
	err     error
}

func (s *stubScan) ScanSymbol(_ context.Context, symbol string, persist bool) (*usecase.ScanOutcome, error) {
	s.persist = persist
	if s.err != nil {
		return nil, s.err
	}
	return &usecase.ScanOutcome{Symbol: symbol, BarTime: noon}, nil
}

type stubBacktest struct {
	workers   int
	lookahead int
}

func (s *stubBacktest) Run(_ context.Context, symbol string, from, to time.Time, workers int, _ bool) (*usecase.BacktestReport, error) {
	s.workers = workers
	return &usecase.BacktestReport{Symbol: symbol, From: from, To: to}, nil
}

func (s *stubBacktest) Replay(setup models.Setup, _ []models.Bar, maxLookahead int) (models.ReplayResult, error) {
	s.lookahead = maxLookahead
	if err := setup.Validate(); err != nil {
		return models.ReplayResult{}, err
	}
	return models.ReplayResult{Symbol: setup.Symbol, Phase: models.PhaseTimeout}, nil
}

type fixture struct {
	e        *echo.Echo
	h        *ScannerEchoHandler
	bars     *stubBars
	scan     *stubScan
	backtest *stubBacktest
}

func newFixture(rl *ratelimit.Limiter) *fixture {
	f := &fixture{bars: &stubBars{}, scan: &stubScan{}, backtest: &stubBacktest{}}
	f.h = NewScannerEchoHandler(nil, f.bars, f.scan, f.backtest, rl)
	f.e = echo.New()
	f.h.RegisterRoutes(f.e)
	return f
}

func (f *fixture) do(method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) xhttp.APIResponse {
	t.Helper()
	var resp xhttp.APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestBarsAppliesDefaults(t *testing.T) {
	f := newFixture(nil)

	rec := f.do(http.MethodGet, "/api/bars?symbol=BTCUSDT", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "BTCUSDT", f.bars.got.Symbol)
	assert.Equal(t, 288, f.bars.got.N)
	assert.Equal(t, domrepo.TF5m, f.bars.got.Timeframe)
	assert.Equal(t, "private, max-age=15", rec.Header().Get(echo.HeaderCacheControl))
}

func TestBarsValidation(t *testing.T) {
	f := newFixture(nil)

	rec := f.do(http.MethodGet, "/api/bars?tf=5m", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "ERR_REQUIRED")

	rec = f.do(http.MethodGet, "/api/bars?symbol=BTCUSDT&tf=4h", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "ERR_ONEOF")
}

func TestBarsUpstreamFailureIs502(t *testing.T) {
	f := newFixture(nil)
	f.bars.err = fmt.Errorf("get bars: %w", domrepo.ErrBarsUnavailable)

	rec := f.do(http.MethodGet, "/api/bars?symbol=BTCUSDT", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "ERR_UPSTREAM")
}

func TestScanPassesPersistFlag(t *testing.T) {
	f := newFixture(nil)

	rec := f.do(http.MethodPost, "/api/scan", `{"symbol":"BTCUSDT","persist":true}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, f.scan.persist)
	resp := decode(t, rec)
	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "BTCUSDT", data["symbol"])
	assert.Nil(t, data["setup"])
}

func TestScanInProgressIsConflict(t *testing.T) {
	f := newFixture(nil)
	f.scan.err = usecase.ErrScanInProgress

	rec := f.do(http.MethodPost, "/api/scan", `{"symbol":"BTCUSDT"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestReplayRejectsInvalidSetup(t *testing.T) {
	f := newFixture(nil)
	body := `{"setup":{"symbol":"BTCUSDT","direction":"LONG","entry":100,"stop":101,"targets":[{"price":103,"fraction":1}]},` +
		`"bars":[{"ts":"2024-03-05T12:05:00Z","open":100,"high":101,"low":99,"close":100}]}`

	rec := f.do(http.MethodPost, "/api/replay", body)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, 288, f.backtest.lookahead)
}

func TestReplayRequiresBars(t *testing.T) {
	f := newFixture(nil)

	rec := f.do(http.MethodPost, "/api/replay", `{"setup":{},"bars":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBacktestValidatesWindow(t *testing.T) {
	f := newFixture(nil)

	rec := f.do(http.MethodPost, "/api/backtest", `{"symbol":"BTCUSDT","from":"2024-03-05T00:00:00Z","to":"2024-03-04T00:00:00Z"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "ERR_GTFIELD")

	rec = f.do(http.MethodPost, "/api/backtest", `{"symbol":"BTCUSDT","from":"2024-03-01T00:00:00Z","to":"2024-03-04T00:00:00Z"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 4, f.backtest.workers)
}

func TestBacktestCapsWindow(t *testing.T) {
	f := newFixture(nil)
	f.h.SetMaxBacktestWindow(7 * 24 * time.Hour)

	rec := f.do(http.MethodPost, "/api/backtest", `{"symbol":"BTCUSDT","from":"2024-01-01T00:00:00Z","to":"2024-03-04T00:00:00Z"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "ERR_WINDOW_TOO_LARGE")
	assert.Contains(t, rec.Body.String(), "7 days")
	assert.Zero(t, f.backtest.workers)

	rec = f.do(http.MethodPost, "/api/backtest", `{"symbol":"BTCUSDT","from":"2024-02-26T00:00:00Z","to":"2024-03-04T00:00:00Z"}`)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestRateLimitPerClient(t *testing.T) {
	f := newFixture(ratelimit.New(0.001, 1, time.Minute))

	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/bars?symbol=BTCUSDT", "").Code)
	rec := f.do(http.MethodGet, "/api/bars?symbol=BTCUSDT", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "ERR_RATE_LIMITED")

	// Health is outside the limited group.
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/healthz", "").Code)
}

func TestHealthReportsFailingCheck(t *testing.T) {
	f := newFixture(nil)
	f.h.AddHealthCheck("clickhouse", func(context.Context) error { return nil })

	rec := f.do(http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"clickhouse":"ok"`)

	f.h.AddHealthCheck("redis", func(context.Context) error { return errors.New("connection refused") })
	rec = f.do(http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"degraded"`)
	assert.Contains(t, rec.Body.String(), "connection refused")
}
