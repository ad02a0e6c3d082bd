package trust

import (
	"sort"
	"strings"

	"hivetrust/internal/kernel"
	"hivetrust/internal/model"
)

// AggregateByRegion builds regional scorecards from the measurements dated
// inside the params window, best blended score first.
func AggregateByRegion(rows []model.RegionalMeasure, params RegionParams) []model.RegionAggregate {
	p := params.withDefaults()
	order := make([]string, 0)
	groups := make(map[string][]model.RegionalMeasure)
	for _, r := range rows {
		id := strings.TrimSpace(r.RegionID)
		if id == "" || !p.inWindow(r.Date) {
			continue
		}
		if _, ok := groups[id]; !ok {
			order = append(order, id)
		}
		groups[id] = append(groups[id], r)
	}
	out := make([]model.RegionAggregate, 0, len(order))
	for _, id := range order {
		if agg, ok := aggregateRegion(id, groups[id], p); ok {
			out = append(out, agg)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return RegionScore(out[i]) > RegionScore(out[j])
	})
	return out
}

func aggregateRegion(id string, rows []model.RegionalMeasure, p RegionParams) (model.RegionAggregate, bool) {
	m := len(rows)
	distinct := make(map[string]struct{})
	for _, r := range rows {
		distinct[r.SourceKey()] = struct{}{}
	}
	n := len(distinct)
	if m < p.MinRecords || n < p.MinSources {
		return model.RegionAggregate{}, false
	}

	ages := make([]float64, m)
	weights := make([]float64, m)
	for i, r := range rows {
		ages[i] = kernel.AgeDays(p.Now, r.Date)
		weights[i] = kernel.DecayWeight(ages[i], p.RecencyHalfLifeDays)
	}
	si := presentAxis(rows, func(r model.RegionalMeasure) *float64 { return r.SI })
	bv := presentAxis(rows, func(r model.RegionalMeasure) *float64 { return r.BV })
	honey := presentAxis(rows, func(r model.RegionalMeasure) *float64 { return r.HoneyKg })
	recency := recencyDays(ages, weights)

	agg := model.RegionAggregate{
		RegionID:    id,
		NSources:    n,
		MRecords:    m,
		SIAvg:       si.mean(weights),
		BVAvg:       bv.mean(weights),
		RecencyDays: recency,
		Confidence: kernel.RegionConfidence.Score(kernel.Evidence{
			Sources:      n,
			Records:      m,
			MinSources:   p.MinSources,
			MinRecords:   p.MinRecords,
			RecencyDays:  recency,
			HalfLifeDays: p.RecencyHalfLifeDays,
		}),
	}
	if len(honey.values) > 0 {
		agg.HoneyAvg = model.Float(honey.mean(weights))
	}
	return agg, true
}

// RegionScore blends the SI and BV averages of a regional scorecard.
func RegionScore(a model.RegionAggregate) float64 {
	return 0.6*(a.SIAvg/100) + 0.4*((a.BVAvg+3)/6)
}

func CompareToBenchmark(region, benchmark model.RegionAggregate) model.BenchmarkDelta {
	return model.BenchmarkDelta{
		SIDelta:    region.SIAvg - benchmark.SIAvg,
		BVDelta:    region.BVAvg - benchmark.BVAvg,
		ScoreDelta: (RegionScore(region) - RegionScore(benchmark)) * 100,
	}
}

// PooledBenchmark folds regional scorecards into one record-weighted
// reference scorecard.
func PooledBenchmark(regions []model.RegionAggregate) model.RegionAggregate {
	bench := model.RegionAggregate{RegionID: "benchmark"}
	var records float64
	for _, r := range regions {
		w := float64(r.MRecords)
		bench.SIAvg += r.SIAvg * w
		bench.BVAvg += r.BVAvg * w
		bench.NSources += r.NSources
		bench.MRecords += r.MRecords
		records += w
	}
	if records > 0 {
		bench.SIAvg /= records
		bench.BVAvg /= records
	}
	return bench
}
