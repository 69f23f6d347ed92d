package analytics

import (
	"context"
	"math"

	"SMCScan/internal/domain/models"
	"SMCScan/internal/domain/service"
	"SMCScan/pkg/logger"
)

const maxScore = 10.0

// ConfluenceScorer rates a setup from its own evidence. Weights sum to 10:
// divergence 3, cross-asset agreement 2, location in range 2, depth 1,
// volatility regime 1, session quartile 1.
type ConfluenceScorer struct{}

func (ConfluenceScorer) Score(_ context.Context, s models.Setup) (float64, error) {
	m := s.Meta
	score := 3 * clamp01(m.DivergenceStrength)
	score += 2 * clamp01((m.CrossAssetDivergence+1)/2)

	// deeper discount for longs, deeper premium for shorts
	if s.Direction == models.Long {
		score += 2 * clamp01(1-m.PricePosition/0.55)
	} else {
		score += 2 * clamp01((m.PricePosition-0.45)/0.55)
	}
	if m.DepthChecked {
		score++
	}
	switch m.VolRegime {
	case models.VolNormal:
		score++
	case models.VolHigh, models.VolLow:
		score += 0.5
	}
	if len(m.TimeQuartile) >= 2 && (m.TimeQuartile[:2] == "Q2" || m.TimeQuartile[:2] == "Q3") {
		score++
	}
	return round1(math.Min(score, maxScore)), nil
}

// HTTPScorer asks a remote model for the score and falls back to the
// confluence score when the model is unavailable.
type HTTPScorer struct {
	base     *HTTPServiceBase
	fallback service.Scorer
	log      *logger.Logger
}

func NewHTTPScorer(base *HTTPServiceBase, log *logger.Logger) *HTTPScorer {
	if log == nil {
		log = logger.Nop()
	}
	return &HTTPScorer{base: base, fallback: ConfluenceScorer{}, log: log.With("scorer")}
}

type scoreResponse struct {
	Score float64 `json:"score"`
}

func (s *HTTPScorer) Score(ctx context.Context, setup models.Setup) (float64, error) {
	if !s.base.Configured() {
		return s.fallback.Score(ctx, setup)
	}
	var resp scoreResponse
	if err := s.base.PostJSON(ctx, "", setup, &resp); err != nil || math.IsNaN(resp.Score) {
		s.log.Warn("remote scorer failed, using confluence score",
			logger.String("symbol", setup.Symbol),
			logger.Error(err))
		return s.fallback.Score(ctx, setup)
	}
	return round1(math.Max(0, math.Min(resp.Score, maxScore))), nil
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }

var (
	_ service.Scorer = ConfluenceScorer{}
	_ service.Scorer = (*HTTPScorer)(nil)
)
