package kernel

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"hivetrust/internal/model"
)

type Stats struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stdev"`
	Count  int     `json:"count"`
}

// MovingAverage emits, for every point, the mean of up to window most
// recent present values seen so far. The window counts values, not time.
func MovingAverage(series []model.TimePoint, window int) []model.TimePoint {
	out := make([]model.TimePoint, len(series))
	if window <= 0 {
		copy(out, series)
		return out
	}
	buf := make([]float64, 0, window)
	for i, p := range series {
		if model.Present(p.Value) {
			if len(buf) == window {
				buf = append(buf[:0], buf[1:]...)
			}
			buf = append(buf, *p.Value)
		}
		out[i].At = p.At
		if len(buf) > 0 {
			out[i].Value = model.Float(floats.Sum(buf) / float64(len(buf)))
		}
	}
	return out
}

// WeightedStats computes the decay-weighted mean and standard deviation of
// the present values in points. Ages are measured from the last point of
// the list; halfLife <= 0 weighs every point equally.
func WeightedStats(points []model.TimePoint, halfLife float64) Stats {
	if len(points) == 0 {
		return Stats{}
	}
	anchor := points[len(points)-1].At
	xs := make([]float64, 0, len(points))
	ws := make([]float64, 0, len(points))
	for _, p := range points {
		if !model.Present(p.Value) {
			continue
		}
		xs = append(xs, *p.Value)
		ws = append(ws, DecayWeight(float64(anchor.Sub(p.At))/float64(day), halfLife))
	}
	if len(xs) == 0 {
		return Stats{}
	}
	if floats.Sum(ws) <= 0 {
		ws = nil
	}
	mean := stat.Mean(xs, ws)
	variance := stat.Moment(2, xs, ws)
	return Stats{
		Mean:   mean,
		StdDev: math.Sqrt(math.Max(0, variance)),
		Count:  len(xs),
	}
}
