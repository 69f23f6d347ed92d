package repository

import "time"

// Timeframe represents bar resolution buckets.
type Timeframe string

const (
	TF1m  Timeframe = "1m"
	TF5m  Timeframe = "5m"
	TF15m Timeframe = "15m"
	TF1h  Timeframe = "1h"
)

// IsValidTimeframe returns true if tf is a supported timeframe.
func IsValidTimeframe(tf Timeframe) bool {
	switch tf {
	case TF1m, TF5m, TF15m, TF1h:
		return true
	default:
		return false
	}
}

// DefaultTimeframe is the scanner's native resolution.
func DefaultTimeframe() Timeframe { return TF5m }

// NormalizeTimeframe converts raw string to a valid timeframe (or default).
func NormalizeTimeframe(s string) Timeframe {
	if s == "" {
		return DefaultTimeframe()
	}
	tf := Timeframe(s)
	if IsValidTimeframe(tf) {
		return tf
	}
	return DefaultTimeframe()
}

// Duration returns the bucket length.
func (tf Timeframe) Duration() time.Duration {
	switch tf {
	case TF1m:
		return time.Minute
	case TF15m:
		return 15 * time.Minute
	case TF1h:
		return time.Hour
	default:
		return 5 * time.Minute
	}
}
