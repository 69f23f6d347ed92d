package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SMCScan/internal/domain/models"
)

func newBase(url string) *HTTPServiceBase {
	return NewHTTPServiceBase(BaseConfig{Name: "test", BaseURL: url, Timeout: time.Second, Attempts: 3}, nil)
}

func TestBaseRetriesServerErrorsOnly(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	var out struct{ OK bool }
	require.NoError(t, newBase(srv.URL).GetJSON(context.Background(), "/x", nil, &out))
	assert.True(t, out.OK)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestBaseDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	err := newBase(srv.URL).GetJSON(context.Background(), "/x", nil, nil)
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestBaseBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	b := NewHTTPServiceBase(BaseConfig{Name: "trip", BaseURL: srv.URL, Attempts: 1, BreakerTrip: 2, OpenFor: time.Minute}, nil)
	for i := 0; i < 2; i++ {
		require.Error(t, b.GetJSON(context.Background(), "/", nil, nil))
	}
	err := b.GetJSON(context.Background(), "/", nil, nil)
	require.Error(t, err)
	assert.Equal(t, "breaker_open", errorReason(errors.Unwrap(err)))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestBaseUnconfigured(t *testing.T) {
	assert.ErrorIs(t, newBase("").GetJSON(context.Background(), "/x", nil, nil), ErrUnconfigured)
}

func chartJSON(closes ...float64) string {
	b, _ := json.Marshal(map[string]any{
		"chart": map[string]any{
			"result": []any{map[string]any{
				"indicators": map[string]any{
					"quote": []any{map[string]any{"close": append([]any{nil}, toAny(closes)...)}},
				},
			}},
		},
	})
	return string(b)
}

func toAny(v []float64) []any {
	out := make([]any, len(v))
	for i, x := range v {
		out[i] = x
	}
	return out
}

func TestYahooContextSkipsFailedInstruments(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.Contains(r.URL.Path, "DX-Y.NYB"):
			_, _ = w.Write([]byte(chartJSON(104.0, 103.9)))
		case strings.Contains(r.URL.Path, "IXIC"):
			_, _ = w.Write([]byte(chartJSON(18000, 18018)))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	src := NewYahooContextSource(newBase(srv.URL), nil)
	mctx, err := src.Context(context.Background())
	require.NoError(t, err)
	require.Len(t, mctx, 2)

	dxy := mctx[models.InstrumentDXY]
	assert.Equal(t, 103.9, dxy.Price)
	assert.Equal(t, -0.096, dxy.ChangePct)
	assert.Equal(t, models.TrendDown, dxy.Trend)
	assert.Equal(t, 104.0, dxy.High1h)
	assert.Equal(t, 103.9, dxy.Low1h)

	nq := mctx[models.InstrumentNQ]
	assert.Equal(t, 0.1, nq.ChangePct)
	assert.Equal(t, models.TrendUp, nq.Trend)
}

func TestYahooContextErrorsWhenNothingFetched(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewYahooContextSource(newBase(srv.URL), nil).Context(context.Background())
	assert.Error(t, err)
}

func TestSnapshotFlatIsDown(t *testing.T) {
	snap, err := snapshotFrom([]float64{10, 10}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, models.TrendDown, snap.Trend)
	assert.Equal(t, 0.0, snap.ChangePct)
}

func TestBinanceDepthParsesLevels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/depth", r.URL.Path)
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		assert.Equal(t, "50", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`{"lastUpdateId":1,"bids":[["100.5","2.0"],["100.0","1.5"]],"asks":[["101.0","0.7"]]}`))
	}))
	defer srv.Close()

	ob, err := NewBinanceDepthSource(newBase(srv.URL)).Depth(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, []models.BookLevel{{Price: 100.5, Qty: 2}, {Price: 100, Qty: 1.5}}, ob.Bids)
	assert.Equal(t, []models.BookLevel{{Price: 101, Qty: 0.7}}, ob.Asks)
}

func scoredSetup() models.Setup {
	return models.Setup{
		Symbol:    "BTCUSDT",
		Direction: models.Long,
		Meta: models.SetupMeta{
			DivergenceStrength:   1,
			CrossAssetDivergence: 1,
			PricePosition:        0,
			DepthChecked:         true,
			VolRegime:            models.VolNormal,
			TimeQuartile:         "Q2 Manipulation",
		},
	}
}

func TestConfluenceScorer(t *testing.T) {
	score, err := ConfluenceScorer{}.Score(context.Background(), scoredSetup())
	require.NoError(t, err)
	assert.Equal(t, 10.0, score)

	s := scoredSetup()
	s.Meta = models.SetupMeta{DivergenceStrength: 0.5, PricePosition: 0.55, VolRegime: models.VolHigh, TimeQuartile: "Q1 Accumulation"}
	score, err = ConfluenceScorer{}.Score(context.Background(), s)
	require.NoError(t, err)
	// 1.5 divergence + 1 neutral cross-asset + 0 location + 0.5 regime
	assert.Equal(t, 3.0, score)
}

func TestHTTPScorerUsesRemoteAndFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"score":12.3}`))
	}))
	defer srv.Close()

	score, err := NewHTTPScorer(newBase(srv.URL), nil).Score(context.Background(), scoredSetup())
	require.NoError(t, err)
	assert.Equal(t, 10.0, score)

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer down.Close()
	score, err = NewHTTPScorer(newBase(down.URL), nil).Score(context.Background(), scoredSetup())
	require.NoError(t, err)
	assert.Equal(t, 10.0, score)
}
