package analytics

import (
	"context"
	"fmt"
	"strconv"

	"SMCScan/internal/domain/models"
	"SMCScan/internal/domain/service"
)

const depthLimit = 50

// BinanceDepthSource reads the spot order book snapshot.
type BinanceDepthSource struct {
	base *HTTPServiceBase
}

func NewBinanceDepthSource(base *HTTPServiceBase) *BinanceDepthSource {
	return &BinanceDepthSource{base: base}
}

type depthResponse struct {
	Bids [][2]string `json:"bids"`
	Asks [][2]string `json:"asks"`
}

func (s *BinanceDepthSource) Depth(ctx context.Context, symbol string) (models.OrderBook, error) {
	var resp depthResponse
	err := s.base.GetJSON(ctx, "/api/v3/depth", map[string][]string{
		"symbol": {symbol},
		"limit":  {strconv.Itoa(depthLimit)},
	}, &resp)
	if err != nil {
		return models.OrderBook{}, err
	}

	bids, err := parseLevels(resp.Bids)
	if err != nil {
		return models.OrderBook{}, fmt.Errorf("bids: %w", err)
	}
	asks, err := parseLevels(resp.Asks)
	if err != nil {
		return models.OrderBook{}, fmt.Errorf("asks: %w", err)
	}
	return models.OrderBook{Symbol: symbol, Bids: bids, Asks: asks}, nil
}

func parseLevels(raw [][2]string) ([]models.BookLevel, error) {
	out := make([]models.BookLevel, 0, len(raw))
	for _, l := range raw {
		p, err := strconv.ParseFloat(l[0], 64)
		if err != nil {
			return nil, fmt.Errorf("price %q: %w", l[0], err)
		}
		q, err := strconv.ParseFloat(l[1], 64)
		if err != nil {
			return nil, fmt.Errorf("qty %q: %w", l[1], err)
		}
		out = append(out, models.BookLevel{Price: p, Qty: q})
	}
	return out, nil
}

var _ service.DepthSource = (*BinanceDepthSource)(nil)
