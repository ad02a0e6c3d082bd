package kernel

import "math"

func ZScore(value, mean, stdev float64) float64 {
	if !finite(value, mean, stdev) || stdev == 0 {
		return 0
	}
	return (value - mean) / stdev
}

// ZScoreClip bounds x to mean ± z·stdev. Degenerate inputs leave x as is.
func ZScoreClip(x, mean, stdev, z float64) float64 {
	if !finite(x, mean, stdev, z) || stdev <= 0 {
		return x
	}
	span := math.Abs(z) * stdev
	return math.Min(math.Max(x, mean-span), mean+span)
}
