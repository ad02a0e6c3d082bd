package trust

import (
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/floats"

	"hivetrust/internal/kernel"
	"hivetrust/internal/model"
)

const (
	// maxSourceShare caps the weight one independent source can hold.
	maxSourceShare = 0.5
	outlierZ       = 2.0
	siSpread       = 25.0
	bvSpread       = 1.0
	axisEpsilon    = 1e-6
)

// AggregateBreeders turns per-breeder measurements into trust scores, best
// first. Breeders below the record or source thresholds are left out.
func AggregateBreeders(rows []model.SourceMeasure, params BreederParams) []model.BreederAggregate {
	p := params.withDefaults()
	order := make([]string, 0)
	groups := make(map[string][]model.SourceMeasure)
	for _, r := range rows {
		id := strings.TrimSpace(r.BreederID)
		if id == "" {
			continue
		}
		if _, ok := groups[id]; !ok {
			order = append(order, id)
		}
		groups[id] = append(groups[id], r)
	}
	out := make([]model.BreederAggregate, 0, len(order))
	for _, id := range order {
		if agg, ok := aggregateBreeder(id, groups[id], p); ok {
			out = append(out, agg)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out
}

func aggregateBreeder(id string, rows []model.SourceMeasure, p BreederParams) (model.BreederAggregate, bool) {
	m := len(rows)
	keys := make([]string, m)
	distinct := make(map[string]struct{})
	for i, r := range rows {
		keys[i] = r.SourceKey()
		distinct[keys[i]] = struct{}{}
	}
	n := len(distinct)
	if m < p.MinRecords || n < p.MinSources {
		return model.BreederAggregate{}, false
	}

	ages := make([]float64, m)
	weights := make([]float64, m)
	for i, r := range rows {
		ages[i] = kernel.AgeDays(p.Now, r.Date)
		provided := 1.0
		if model.Present(r.Weight) {
			provided = *r.Weight
		}
		weights[i] = kernel.Clamp(provided*kernel.DecayWeight(ages[i], p.RecencyHalfLifeDays), 0, 1)
	}
	capIndependence(keys, weights)

	si := presentAxis(rows, func(r model.SourceMeasure) *float64 { return r.SI })
	bv := presentAxis(rows, func(r model.SourceMeasure) *float64 { return r.BV })
	if p.PenaltyOutliers {
		si.clip()
		bv.clip()
	}
	siAvg := si.mean(weights)
	bvAvg := bv.mean(weights)
	recency := recencyDays(ages, weights)

	sdSI := kernel.SampleStdDev(si.values)
	sdBV := kernel.SampleStdDev(bv.values)
	normVar := 0.5*math.Pow(sdSI/siSpread, 2) + 0.5*math.Pow(sdBV/bvSpread, 2)
	consistency := 1 / (1 + normVar)

	confidence := kernel.BreederConfidence.Score(kernel.Evidence{
		Sources:      n,
		Records:      m,
		MinSources:   p.MinSources,
		MinRecords:   p.MinRecords,
		Consistency:  consistency,
		RecencyDays:  recency,
		HalfLifeDays: p.RecencyHalfLifeDays,
	})

	siNorm := kernel.Clamp(siAvg/100, 0, 1)
	bvNorm := kernel.Clamp((bvAvg+3)/6, 0, 1)
	sw, bw := *p.SIWeight, *p.BVWeight
	base := (sw*siNorm + bw*bvNorm) / math.Max(axisEpsilon, sw+bw)
	score := kernel.Clamp(100*(0.8*base+0.2*confidence), 0, 100)

	return model.BreederAggregate{
		BreederID:   id,
		N:           n,
		M:           m,
		SIAvg:       siAvg,
		BVAvg:       bvAvg,
		Score:       score,
		Confidence:  confidence,
		RecencyDays: recency,
		Consistency: consistency,
	}, true
}

// capIndependence scales down a source holding more than maxSourceShare of
// the total weight until its weight equals that of all other sources
// combined, so it holds exactly half of the capped total. At most one source
// can exceed half. A breeder with a single source keeps its weights.
func capIndependence(keys []string, weights []float64) {
	total := floats.Sum(weights)
	if total <= 0 {
		return
	}
	perSource := make(map[string]float64)
	for i, k := range keys {
		perSource[k] += weights[i]
	}
	for k, sum := range perSource {
		if sum <= maxSourceShare*total {
			continue
		}
		rest := total - sum
		if rest <= 0 {
			return
		}
		for i := range weights {
			if keys[i] == k {
				weights[i] *= rest / sum
			}
		}
		return
	}
}

// axis holds the present values of one measurement field and the row
// each came from.
type axis struct {
	rows   []int
	values []float64
}

func presentAxis[T any](rows []T, field func(T) *float64) axis {
	var a axis
	for i, r := range rows {
		if v := field(r); model.Present(v) {
			a.rows = append(a.rows, i)
			a.values = append(a.values, *v)
		}
	}
	return a
}

func (a axis) clip() {
	mean, sd := kernel.PopulationStats(a.values)
	for i, v := range a.values {
		a.values[i] = kernel.ZScoreClip(v, mean, sd, outlierZ)
	}
}

func (a axis) mean(weights []float64) float64 {
	w := make([]float64, len(a.rows))
	for i, row := range a.rows {
		w[i] = weights[row]
	}
	return kernel.WeightedMean(a.values, w)
}

// recencyDays is the weighted mean age over all rows; the weight sum is
// floored at axisEpsilon, so zero total weight yields 0.
func recencyDays(ages, weights []float64) float64 {
	if len(ages) == 0 {
		return 0
	}
	return floats.Dot(ages, weights) / math.Max(axisEpsilon, floats.Sum(weights))
}
