package trust

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hivetrust/internal/model"
)

var now = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

func daysAgo(d int) time.Time {
	return now.Add(-time.Duration(d) * 24 * time.Hour)
}

func uniformBreeder(id string, records, sources int, si, bv float64) []model.SourceMeasure {
	rows := make([]model.SourceMeasure, 0, records)
	for i := 0; i < records; i++ {
		rows = append(rows, model.SourceMeasure{
			BreederID:   id,
			Date:        daysAgo(i),
			SI:          model.Float(si),
			BV:          model.Float(bv),
			BeekeeperID: fmt.Sprintf("bk-%d", i%sources),
		})
	}
	return rows
}

func TestAggregateBreedersUniform(t *testing.T) {
	rows := uniformBreeder("B1", 10, 5, 80, 1)
	out := AggregateBreeders(rows, BreederParams{MinRecords: 8, MinSources: 3, Now: now})
	require.Len(t, out, 1)
	agg := out[0]
	assert.Equal(t, "B1", agg.BreederID)
	assert.Equal(t, 5, agg.N)
	assert.Equal(t, 10, agg.M)
	assert.InDelta(t, 80.0, agg.SIAvg, 1e-9)
	assert.InDelta(t, 1.0, agg.BVAvg, 1e-9)
	assert.InDelta(t, 1.0, agg.Consistency, 1e-9)
	assert.GreaterOrEqual(t, agg.Score, 0.0)
	assert.LessOrEqual(t, agg.Score, 100.0)
	assert.GreaterOrEqual(t, agg.Confidence, 0.0)
	assert.LessOrEqual(t, agg.Confidence, 1.0)
}

func TestAggregateBreedersExcludesThinEvidence(t *testing.T) {
	var rows []model.SourceMeasure
	rows = append(rows, uniformBreeder("few-records", 7, 5, 90, 2)...)
	rows = append(rows, uniformBreeder("few-sources", 12, 2, 90, 2)...)
	rows = append(rows, uniformBreeder("ok", 8, 3, 60, 0)...)
	rows = append(rows, model.SourceMeasure{Date: now, SI: model.Float(99)})

	params := BreederParams{MinRecords: 8, MinSources: 3, Now: now}
	out := AggregateBreeders(rows, params)
	require.Len(t, out, 1)
	assert.Equal(t, "ok", out[0].BreederID)
	for _, agg := range out {
		assert.GreaterOrEqual(t, agg.M, params.MinRecords)
		assert.GreaterOrEqual(t, agg.N, params.MinSources)
	}
}

func TestAggregateBreedersSourceFallback(t *testing.T) {
	rows := make([]model.SourceMeasure, 0, 9)
	for i := 0; i < 9; i++ {
		rows = append(rows, model.SourceMeasure{BreederID: "B", Date: now, SI: model.Float(70)})
	}
	assert.Empty(t, AggregateBreeders(rows, BreederParams{Now: now}), "anonymous rows are one source")

	for i := range rows {
		rows[i].QueenID = fmt.Sprintf("q-%d", i%3)
	}
	out := AggregateBreeders(rows, BreederParams{Now: now})
	require.Len(t, out, 1)
	assert.Equal(t, 3, out[0].N)
}

func TestAggregateBreedersRecencyWeighting(t *testing.T) {
	rows := []model.SourceMeasure{
		{BreederID: "B", Date: daysAgo(720), SI: model.Float(20), BeekeeperID: "old"},
	}
	for i := 0; i < 8; i++ {
		rows = append(rows, model.SourceMeasure{
			BreederID:   "B",
			Date:        daysAgo(i),
			SI:          model.Float(90),
			BeekeeperID: fmt.Sprintf("bk-%d", i),
		})
	}
	var sum float64
	for _, r := range rows {
		sum += *r.SI
	}
	unweighted := sum / float64(len(rows))

	out := AggregateBreeders(rows, BreederParams{RecencyHalfLifeDays: 120, Now: now})
	require.Len(t, out, 1)
	assert.Greater(t, out[0].SIAvg, unweighted)
}

func TestAggregateBreedersOutlierPenalty(t *testing.T) {
	clean := uniformBreeder("clean", 10, 5, 80, 1)
	dirty := uniformBreeder("dirty", 10, 5, 80, 1)
	dirty[9].SI = model.Float(5)
	dirty[9].BV = model.Float(-3)

	out := AggregateBreeders(append(clean, dirty...), BreederParams{PenaltyOutliers: true, Now: now})
	require.Len(t, out, 2)
	assert.Equal(t, "clean", out[0].BreederID)
	assert.Greater(t, out[0].Score, out[1].Score)

	// clipping bounds the outlier instead of dropping it
	assert.Equal(t, 10, out[1].M)
	unclipped := AggregateBreeders(dirty, BreederParams{Now: now})
	require.Len(t, unclipped, 1)
	assert.Greater(t, out[1].SIAvg, unclipped[0].SIAvg)
}

func TestAggregateBreedersIndependenceCap(t *testing.T) {
	rows := make([]model.SourceMeasure, 0, 10)
	for i := 0; i < 8; i++ {
		rows = append(rows, model.SourceMeasure{BreederID: "B", Date: now, SI: model.Float(100), BeekeeperID: "loud"})
	}
	rows = append(rows,
		model.SourceMeasure{BreederID: "B", Date: now, SI: model.Float(50), BeekeeperID: "a"},
		model.SourceMeasure{BreederID: "B", Date: now, SI: model.Float(50), BeekeeperID: "b"},
	)
	out := AggregateBreeders(rows, BreederParams{Now: now})
	require.Len(t, out, 1)
	// loud is scaled to the 2 weight units the other sources hold together
	assert.InDelta(t, 75.0, out[0].SIAvg, 1e-9)
}

func TestCapIndependenceHoldsHalf(t *testing.T) {
	keys := []string{"big", "big", "big", "big", "big", "big", "big", "big", "x", "y"}
	weights := []float64{1, 1, 1, 0.5, 1, 1, 1, 1, 1, 0.25}
	capIndependence(keys, weights)

	var big, total float64
	for i, k := range keys {
		total += weights[i]
		if k == "big" {
			big += weights[i]
		}
	}
	assert.InDelta(t, 0.5, big/total, 1e-12)
	assert.LessOrEqual(t, big/total, 0.5+1e-12)
	assert.Equal(t, 1.0, weights[8])
	assert.Equal(t, 0.25, weights[9])

	single := []float64{1, 1}
	capIndependence([]string{"only", "only"}, single)
	assert.Equal(t, []float64{1, 1}, single)
}

func TestAggregateBreedersCappedShareAgainstZeros(t *testing.T) {
	rows := make([]model.SourceMeasure, 0, 10)
	for i := 0; i < 8; i++ {
		rows = append(rows, model.SourceMeasure{BreederID: "B", Date: now, SI: model.Float(100), BV: model.Float(3), BeekeeperID: "big"})
	}
	rows = append(rows,
		model.SourceMeasure{BreederID: "B", Date: now, SI: model.Float(0), BeekeeperID: "x"},
		model.SourceMeasure{BreederID: "B", Date: now, SI: model.Float(0), BeekeeperID: "y"},
	)
	out := AggregateBreeders(rows, BreederParams{Now: now})
	require.Len(t, out, 1)
	assert.InDelta(t, 50.0, out[0].SIAvg, 1e-9)
}

func TestAggregateBreedersZeroWeightRecency(t *testing.T) {
	rows := uniformBreeder("B", 8, 4, 70, 1)
	for i := range rows {
		rows[i].Date = daysAgo(100 + i)
		rows[i].Weight = model.Float(0)
	}
	out := AggregateBreeders(rows, BreederParams{Now: now})
	require.Len(t, out, 1)
	assert.Equal(t, 0.0, out[0].RecencyDays)
	assert.Equal(t, 0.0, out[0].SIAvg)
}

func TestAggregateBreedersMissingAxisAndZeroWeights(t *testing.T) {
	rows := uniformBreeder("B", 8, 4, 0, 2)
	for i := range rows {
		rows[i].SI = nil
	}
	params := BreederParams{SIWeight: model.Float(0), BVWeight: model.Float(0), Now: now}
	out := AggregateBreeders(rows, params)
	require.Len(t, out, 1)
	assert.Equal(t, 0.0, out[0].SIAvg)
	assert.InDelta(t, 2.0, out[0].BVAvg, 1e-9)
	assert.InDelta(t, 20*out[0].Confidence, out[0].Score, 1e-9)
}

func TestAggregateBreedersSortedAndPure(t *testing.T) {
	var rows []model.SourceMeasure
	rows = append(rows, uniformBreeder("low", 8, 4, 40, -1)...)
	rows = append(rows, uniformBreeder("high", 8, 4, 95, 2)...)
	rows = append(rows, uniformBreeder("mid", 8, 4, 70, 0.5)...)
	rows[0].Weight = model.Float(0.3)
	snapshot := append([]model.SourceMeasure(nil), rows...)

	params := BreederParams{PenaltyOutliers: true, Now: now}
	first := AggregateBreeders(rows, params)
	second := AggregateBreeders(rows, params)
	require.Len(t, first, 3)
	assert.Equal(t, first, second)
	assert.Equal(t, snapshot, rows)
	assert.Equal(t, []string{"high", "mid", "low"}, []string{first[0].BreederID, first[1].BreederID, first[2].BreederID})
}
