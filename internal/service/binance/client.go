package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"SMCScan/internal/domain/models"
	drepo "SMCScan/internal/domain/repository"
	"SMCScan/internal/services/analytics"
)

// maxKlinesPerRequest is the REST page size limit.
const maxKlinesPerRequest = 1000

// Client reads closed klines from the spot REST API.
type Client struct {
	base *analytics.HTTPServiceBase
	now  func() time.Time
}

func NewClient(base *analytics.HTTPServiceBase) *Client {
	return &Client{base: base, now: time.Now}
}

// Fetch returns the latest limit closed bars, oldest first. Bars are stamped
// with their open time.
func (c *Client) Fetch(ctx context.Context, symbol string, tf drepo.Timeframe, limit int) ([]models.Bar, error) {
	if limit <= 0 {
		return nil, nil
	}
	end := c.now()
	var out []models.Bar
	for len(out) < limit {
		n := min(limit-len(out)+1, maxKlinesPerRequest)
		page, err := c.page(ctx, symbol, tf, time.Time{}, end, n)
		if err != nil {
			return nil, err
		}
		page = closedOnly(page, tf, c.now())
		if len(page) == 0 {
			break
		}
		out = append(page, out...)
		end = page[0].Timestamp.Add(-time.Millisecond)
		if len(page) < n-1 {
			break
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return models.DedupeBars(out), nil
}

// FetchRange returns closed bars whose open time falls in [from, to].
func (c *Client) FetchRange(ctx context.Context, symbol string, tf drepo.Timeframe, from, to time.Time) ([]models.Bar, error) {
	var out []models.Bar
	start := from
	for !start.After(to) {
		page, err := c.page(ctx, symbol, tf, start, to, maxKlinesPerRequest)
		if err != nil {
			return nil, err
		}
		page = closedOnly(page, tf, c.now())
		if len(page) == 0 {
			break
		}
		out = append(out, page...)
		start = page[len(page)-1].Timestamp.Add(tf.Duration())
		if len(page) < maxKlinesPerRequest {
			break
		}
	}
	return models.DedupeBars(out), nil
}

func (c *Client) page(ctx context.Context, symbol string, tf drepo.Timeframe, from, to time.Time, limit int) ([]models.Bar, error) {
	q := map[string][]string{
		"symbol":   {symbol},
		"interval": {string(tf)},
		"limit":    {strconv.Itoa(limit)},
	}
	if !from.IsZero() {
		q["startTime"] = []string{strconv.FormatInt(from.UnixMilli(), 10)}
	}
	if !to.IsZero() {
		q["endTime"] = []string{strconv.FormatInt(to.UnixMilli(), 10)}
	}

	var rows [][]json.RawMessage
	if err := c.base.GetJSON(ctx, "/api/v3/klines", q, &rows); err != nil {
		return nil, fmt.Errorf("%w: %s klines: %v", drepo.ErrBarsUnavailable, symbol, err)
	}
	bars := make([]models.Bar, 0, len(rows))
	for _, row := range rows {
		b, err := parseKline(symbol, row)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", drepo.ErrBarsUnavailable, symbol, err)
		}
		bars = append(bars, b)
	}
	return bars, nil
}

// parseKline decodes [openTime, open, high, low, close, volume, closeTime, ...].
func parseKline(symbol string, row []json.RawMessage) (models.Bar, error) {
	if len(row) < 6 {
		return models.Bar{}, fmt.Errorf("kline has %d fields", len(row))
	}
	var openMs int64
	if err := json.Unmarshal(row[0], &openMs); err != nil {
		return models.Bar{}, fmt.Errorf("open time: %w", err)
	}
	vals := make([]float64, 5)
	for i := range vals {
		var s string
		if err := json.Unmarshal(row[i+1], &s); err != nil {
			return models.Bar{}, fmt.Errorf("field %d: %w", i+1, err)
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return models.Bar{}, fmt.Errorf("field %d: %w", i+1, err)
		}
		vals[i] = v
	}
	return models.Bar{
		Symbol:    symbol,
		Timestamp: time.UnixMilli(openMs).UTC(),
		Open:      vals[0],
		High:      vals[1],
		Low:       vals[2],
		Close:     vals[3],
		Volume:    vals[4],
	}, nil
}

// closedOnly drops the trailing kline that is still forming.
func closedOnly(bars []models.Bar, tf drepo.Timeframe, now time.Time) []models.Bar {
	for len(bars) > 0 && bars[len(bars)-1].Timestamp.Add(tf.Duration()).After(now) {
		bars = bars[:len(bars)-1]
	}
	return bars
}

var _ drepo.BarSource = (*Client)(nil)
