package kernel

import (
	"math"
	"time"
)

const day = 24 * time.Hour

// DecayWeight halves a record's influence every halfLife days. A
// non-positive or non-finite half-life disables decay.
func DecayWeight(days, halfLife float64) float64 {
	if !finite(halfLife) || halfLife <= 0 {
		return 1
	}
	if math.IsNaN(days) {
		days = 0
	}
	return math.Pow(0.5, math.Max(0, days)/halfLife)
}

// AgeDays is the age of at relative to now in fractional days, floored at 0.
func AgeDays(now, at time.Time) float64 {
	age := float64(now.Sub(at)) / float64(day)
	if age < 0 {
		return 0
	}
	return age
}

func Clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
