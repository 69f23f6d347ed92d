package features

import "SMCScan/internal/domain/models"

// BiasConfig parameterizes the higher-timeframe trend classifier.
type BiasConfig struct {
	Lookback   int `yaml:"lookback"`    // base bars considered
	MinHistory int `yaml:"min_history"` // fewer base bars => NEUTRAL
	Factor     int `yaml:"factor"`      // base bars per resampled bar
	ShortSpan  int `yaml:"short_span"`
	LongSpan   int `yaml:"long_span"`
}

// DefaultBiasConfig resamples 5m bars into 4h bars and compares EMA 20/50.
func DefaultBiasConfig() BiasConfig {
	return BiasConfig{
		Lookback:   6000,
		MinHistory: 2500,
		Factor:     48,
		ShortSpan:  20,
		LongSpan:   50,
	}
}

// Resample groups values into buckets of factor elements and returns the last
// element of each. Buckets are anchored at the newest value so the final
// bucket always ends on it; an incomplete leading bucket is dropped.
func Resample(values []float64, factor int) []float64 {
	if factor <= 0 {
		return nil
	}
	n := len(values) / factor
	if n == 0 {
		return nil
	}
	start := len(values) - n*factor
	out := make([]float64, n)
	for k := 0; k < n; k++ {
		out[k] = values[start+(k+1)*factor-1]
	}
	return out
}

// EMA is the span-based exponentially weighted mean in its adjusted form:
// every output is the weighted average of all inputs so far with weights
// (1-alpha)^age, alpha = 2/(span+1).
func EMA(values []float64, span int) []float64 {
	if span <= 0 || len(values) == 0 {
		return nil
	}
	alpha := 2.0 / (float64(span) + 1)
	decay := 1 - alpha

	out := make([]float64, len(values))
	var num, den float64
	for i, v := range values {
		num = v + decay*num
		den = 1 + decay*den
		out[i] = num / den
	}
	return out
}

// ClassifyBias labels the trend of bars on the resampled timeframe.
func ClassifyBias(bars []models.Bar, cfg BiasConfig) models.Bias {
	if cfg.Lookback > 0 && len(bars) > cfg.Lookback {
		bars = bars[len(bars)-cfg.Lookback:]
	}
	if len(bars) < cfg.MinHistory {
		return models.BiasNeutral
	}

	htf := Resample(models.Closes(bars), cfg.Factor)
	if len(htf) < cfg.LongSpan || len(htf) == 0 {
		return models.BiasNeutral
	}

	short := EMA(htf, cfg.ShortSpan)
	long := EMA(htf, cfg.LongSpan)
	if short == nil || long == nil {
		return models.BiasNeutral
	}

	s, l := short[len(short)-1], long[len(long)-1]
	switch {
	case s > l:
		return models.BiasBullish
	case s < l:
		return models.BiasBearish
	default:
		return models.BiasNeutral
	}
}
