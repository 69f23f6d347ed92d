package features

import (
	"math/rand"
	"time"

	"SMCScan/internal/domain/models"
)

var day = time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)

// flatBars builds n 5m bars starting at start with constant OHLC around price.
func flatBars(start time.Time, n int, price float64) []models.Bar {
	out := make([]models.Bar, n)
	for i := range out {
		out[i] = models.Bar{
			Timestamp: start.Add(time.Duration(i) * 5 * time.Minute),
			Open:      price, High: price + 1, Low: price - 1, Close: price, Volume: 1,
		}
	}
	return out
}

// walkBars builds a seeded random walk with a drift per bar.
func walkBars(seed int64, start time.Time, n int, price, drift float64) []models.Bar {
	rng := rand.New(rand.NewSource(seed))
	out := make([]models.Bar, n)
	for i := range out {
		open := price
		price += drift + rng.NormFloat64()*0.5
		if price < 1 {
			price = 1
		}
		hi := max(open, price) + rng.Float64()
		lo := min(open, price) - rng.Float64()
		if lo <= 0 {
			lo = 0.5
		}
		out[i] = models.Bar{
			Timestamp: start.Add(time.Duration(i) * 5 * time.Minute),
			Open:      open, High: hi, Low: lo, Close: price, Volume: 1 + rng.Float64(),
		}
	}
	return out
}
