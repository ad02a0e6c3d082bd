package trust

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hivetrust/internal/model"
)

func uniformRegion(id string, records int, si, bv float64) []model.RegionalMeasure {
	rows := make([]model.RegionalMeasure, 0, records)
	for i := 0; i < records; i++ {
		rows = append(rows, model.RegionalMeasure{
			RegionID:    id,
			Date:        daysAgo(i * 10),
			SI:          model.Float(si),
			BV:          model.Float(bv),
			BeekeeperID: fmt.Sprintf("bk-%d", i),
		})
	}
	return rows
}

func TestAggregateByRegionThreshold(t *testing.T) {
	rows := uniformRegion("north", 6, 80, 1)
	out := AggregateByRegion(rows, RegionParams{MinRecords: 6, Now: now})
	require.Len(t, out, 1)
	assert.InDelta(t, 80.0, out[0].SIAvg, 1e-9)
	assert.Equal(t, 6, out[0].MRecords)
	assert.Equal(t, 6, out[0].NSources)
	assert.Nil(t, out[0].HoneyAvg)

	assert.Empty(t, AggregateByRegion(rows, RegionParams{MinRecords: 7, Now: now}))
}

func TestAggregateByRegionWindowAndHoney(t *testing.T) {
	rows := uniformRegion("south", 10, 70, 0)
	for i := range rows {
		rows[i].HoneyKg = model.Float(float64(20 + i))
	}
	params := RegionParams{MinRecords: 5, From: daysAgo(45), To: now, Now: now}
	out := AggregateByRegion(rows, params)
	require.Len(t, out, 1)
	assert.Equal(t, 5, out[0].MRecords, "only rows dated inside the window count")
	require.NotNil(t, out[0].HoneyAvg)
	assert.Greater(t, *out[0].HoneyAvg, 20.0)
	assert.Less(t, *out[0].HoneyAvg, 24.0)
	assert.Greater(t, out[0].Confidence, 0.0)
	assert.LessOrEqual(t, out[0].Confidence, 1.0)
}

func TestAggregateByRegionSorted(t *testing.T) {
	var rows []model.RegionalMeasure
	rows = append(rows, uniformRegion("weak", 6, 50, -1)...)
	rows = append(rows, uniformRegion("strong", 6, 90, 2)...)
	rows = append(rows, model.RegionalMeasure{Date: now, SI: model.Float(100)})
	out := AggregateByRegion(rows, RegionParams{Now: now})
	require.Len(t, out, 2)
	assert.Equal(t, "strong", out[0].RegionID)
	assert.Equal(t, "weak", out[1].RegionID)
}

func TestCompareToBenchmark(t *testing.T) {
	delta := CompareToBenchmark(
		model.RegionAggregate{SIAvg: 85, BVAvg: 1.2},
		model.RegionAggregate{SIAvg: 80, BVAvg: 1.0},
	)
	assert.InDelta(t, 5.0, delta.SIDelta, 1e-9)
	assert.InDelta(t, 0.2, delta.BVDelta, 1e-9)
	assert.Greater(t, delta.ScoreDelta, 0.0)
}

func TestPooledBenchmark(t *testing.T) {
	bench := PooledBenchmark([]model.RegionAggregate{
		{SIAvg: 80, BVAvg: 1, MRecords: 10, NSources: 4},
		{SIAvg: 60, BVAvg: 0, MRecords: 30, NSources: 6},
	})
	assert.InDelta(t, 65.0, bench.SIAvg, 1e-9)
	assert.InDelta(t, 0.25, bench.BVAvg, 1e-9)
	assert.Equal(t, 40, bench.MRecords)
	assert.Equal(t, 10, bench.NSources)
	assert.Equal(t, model.RegionAggregate{RegionID: "benchmark"}, PooledBenchmark(nil))
}
