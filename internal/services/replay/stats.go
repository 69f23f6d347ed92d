package replay

import "SMCScan/internal/domain/models"

// Summarize aggregates outcomes. Drawdown is measured on the cumulative R
// curve in the order results are given.
func Summarize(results []models.ReplayResult) models.ReplayStats {
	stats := models.ReplayStats{Counts: make(map[models.Phase]int)}

	var equity, peak float64
	for _, r := range results {
		stats.Total++
		stats.Counts[r.Phase]++
		if r.Phase.Win() {
			stats.Wins++
		}
		stats.TotalR += r.RealizedR

		equity += r.RealizedR
		if equity > peak {
			peak = equity
		}
		if dd := peak - equity; dd > stats.MaxDrawdownR {
			stats.MaxDrawdownR = dd
		}
	}

	if stats.Total > 0 {
		stats.WinRate = float64(stats.Wins) / float64(stats.Total)
		stats.Expectancy = stats.TotalR / float64(stats.Total)
	}
	return stats
}
