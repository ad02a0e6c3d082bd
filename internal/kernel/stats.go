package kernel

import (
	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/floats"
)

// WeightedMean returns 0 when the weights carry no mass.
func WeightedMean(values, weights []float64) float64 {
	if len(values) == 0 || len(values) != len(weights) {
		return 0
	}
	total := floats.Sum(weights)
	if total <= 0 {
		return 0
	}
	return floats.Dot(values, weights) / total
}

// PopulationStats is the unweighted mean and population standard deviation.
func PopulationStats(values []float64) (mean, stdev float64) {
	data := stats.Float64Data(values)
	mean, err := stats.Mean(data)
	if err != nil {
		return 0, 0
	}
	stdev, err = stats.StandardDeviationPopulation(data)
	if err != nil {
		return mean, 0
	}
	return mean, stdev
}

// SampleStdDev uses the n-1 denominator and is 0 below two values.
func SampleStdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	sd, err := stats.StandardDeviationSample(stats.Float64Data(values))
	if err != nil {
		return 0
	}
	return sd
}
