package analytics

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"sync"

	"SMCScan/internal/domain/models"
	"SMCScan/internal/domain/service"
	"SMCScan/pkg/logger"
)

// YahooSymbols maps tracked instruments to Yahoo chart tickers.
var YahooSymbols = map[string]string{
	models.InstrumentNQ:  "^IXIC",
	models.InstrumentES:  "^GSPC",
	models.InstrumentDXY: "DX-Y.NYB",
	models.InstrumentTNX: "^TNX",
}

const hourOf5mBars = 12

// YahooContextSource builds the cross-asset snapshot from the Yahoo chart
// API, one request per instrument.
type YahooContextSource struct {
	base    *HTTPServiceBase
	symbols map[string]string
	log     *logger.Logger
}

func NewYahooContextSource(base *HTTPServiceBase, log *logger.Logger) *YahooContextSource {
	if log == nil {
		log = logger.Nop()
	}
	return &YahooContextSource{base: base, symbols: YahooSymbols, log: log.With("intermarket")}
}

type chartResponse struct {
	Chart struct {
		Result []struct {
			Indicators struct {
				Quote []struct {
					Close []*float64 `json:"close"`
					High  []*float64 `json:"high"`
					Low   []*float64 `json:"low"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// Context fetches every instrument concurrently. Instruments that fail are
// left out; the call errors only when nothing could be fetched.
func (s *YahooContextSource) Context(ctx context.Context) (models.MarketContext, error) {
	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		lastErr error
	)
	out := make(models.MarketContext, len(s.symbols))

	for inst, ticker := range s.symbols {
		wg.Add(1)
		go func(inst, ticker string) {
			defer wg.Done()
			snap, err := s.fetch(ctx, ticker)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				lastErr = err
				s.log.Warn("instrument unavailable",
					logger.String("instrument", inst),
					logger.Error(err))
				return
			}
			out[inst] = snap
		}(inst, ticker)
	}
	wg.Wait()

	if len(out) == 0 && lastErr != nil {
		return nil, fmt.Errorf("market context: %w", lastErr)
	}
	return out, nil
}

func (s *YahooContextSource) fetch(ctx context.Context, ticker string) (models.InstrumentSnapshot, error) {
	var resp chartResponse
	err := s.base.GetJSON(ctx, "/v8/finance/chart/"+url.PathEscape(ticker), map[string][]string{
		"interval": {"5m"},
		"range":    {"1d"},
	}, &resp)
	if err != nil {
		return models.InstrumentSnapshot{}, err
	}
	if e := resp.Chart.Error; e != nil {
		return models.InstrumentSnapshot{}, fmt.Errorf("%s: %s", e.Code, e.Description)
	}
	if len(resp.Chart.Result) == 0 || len(resp.Chart.Result[0].Indicators.Quote) == 0 {
		return models.InstrumentSnapshot{}, fmt.Errorf("%s: empty chart", ticker)
	}
	q := resp.Chart.Result[0].Indicators.Quote[0]
	return snapshotFrom(compact(q.Close), compact(q.High), compact(q.Low))
}

// snapshotFrom derives the instrument snapshot from 5m closes. High1h and
// Low1h cover the last hour of bars, falling back to closes when the high
// and low series are missing.
func snapshotFrom(closes, highs, lows []float64) (models.InstrumentSnapshot, error) {
	if len(closes) < 2 {
		return models.InstrumentSnapshot{}, fmt.Errorf("need 2 closes, have %d", len(closes))
	}
	cur, prev := closes[len(closes)-1], closes[len(closes)-2]
	if prev == 0 {
		return models.InstrumentSnapshot{}, fmt.Errorf("zero previous close")
	}
	change := math.Round((cur-prev)/prev*100*1000) / 1000

	trend := models.TrendDown
	if change > 0 {
		trend = models.TrendUp
	}
	if len(highs) == 0 || len(lows) == 0 {
		highs, lows = closes, closes
	}
	return models.InstrumentSnapshot{
		Price:     cur,
		ChangePct: change,
		Trend:     trend,
		High1h:    maxOf(tail(highs, hourOf5mBars)),
		Low1h:     minOf(tail(lows, hourOf5mBars)),
	}, nil
}

func compact(v []*float64) []float64 {
	out := make([]float64, 0, len(v))
	for _, p := range v {
		if p != nil && !math.IsNaN(*p) {
			out = append(out, *p)
		}
	}
	return out
}

func tail(v []float64, n int) []float64 {
	if len(v) > n {
		return v[len(v)-n:]
	}
	return v
}

func maxOf(v []float64) float64 {
	m := math.Inf(-1)
	for _, x := range v {
		m = math.Max(m, x)
	}
	return m
}

func minOf(v []float64) float64 {
	m := math.Inf(1)
	for _, x := range v {
		m = math.Min(m, x)
	}
	return m
}

var _ service.ContextSource = (*YahooContextSource)(nil)
