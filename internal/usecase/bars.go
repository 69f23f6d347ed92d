package usecase

import (
	"context"
	"fmt"
	"time"

	"SMCScan/internal/domain/models"
	domrepo "SMCScan/internal/domain/repository"
)

// BarsUseCase serves bar history to the API.
type BarsUseCase struct {
	source domrepo.BarSource
}

func NewBarsUseCase(source domrepo.BarSource) *BarsUseCase {
	return &BarsUseCase{source: source}
}

type GetBarsParams struct {
	Symbol    string
	Timeframe domrepo.Timeframe
	N         int
}

type GetBarsResult struct {
	Symbol    string       `json:"symbol"`
	Timeframe string       `json:"timeframe"`
	From      time.Time    `json:"from"`
	To        time.Time    `json:"to"`
	Count     int          `json:"count"`
	Bars      []models.Bar `json:"bars"`
}

func (uc *BarsUseCase) GetBars(ctx context.Context, p GetBarsParams) (*GetBarsResult, error) {
	if p.Symbol == "" {
		return nil, fmt.Errorf("symbol required")
	}
	if p.N <= 0 {
		p.N = 288
	}
	if p.N > 10000 {
		p.N = 10000
	}

	bars, err := uc.source.Fetch(ctx, p.Symbol, p.Timeframe, p.N)
	if err != nil {
		return nil, fmt.Errorf("get bars: %w", err)
	}
	res := &GetBarsResult{
		Symbol:    p.Symbol,
		Timeframe: string(p.Timeframe),
		Count:     len(bars),
		Bars:      bars,
	}
	if len(bars) > 0 {
		res.From = bars[0].Timestamp
		res.To = bars[len(bars)-1].Timestamp
	}
	return res, nil
}
