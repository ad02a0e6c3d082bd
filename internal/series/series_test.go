package series

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hivetrust/internal/model"
)

var day0 = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

func at(days int, hours int) time.Time {
	return day0.AddDate(0, 0, days).Add(time.Duration(hours) * time.Hour)
}

func TestBuildBucketsByDay(t *testing.T) {
	rows := []model.RegionalMeasure{
		{RegionID: "north", Date: at(1, 9), HoneyKg: model.Float(20)},
		{RegionID: "north", Date: at(0, 8), HoneyKg: model.Float(10)},
		{RegionID: "north", Date: at(0, 17), HoneyKg: model.Float(14)},
		{RegionID: "north", Date: at(2, 3)},
		{RegionID: "south", Date: at(0, 8), HoneyKg: model.Float(99)},
	}
	rule := model.AlertRule{ID: "r", Scope: model.ScopeRegion, ScopeID: "north", Metric: "honey_kg"}

	got, err := Build(FromRegional(rows), rule)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, day0, got[0].At)
	assert.InDelta(t, 12, *got[0].Value, 1e-9)
	assert.Equal(t, day0.AddDate(0, 0, 1), got[1].At)
	assert.InDelta(t, 20, *got[1].Value, 1e-9)
}

func TestBuildGlobalAndUnknownMetric(t *testing.T) {
	rows := []model.RegionalMeasure{
		{RegionID: "north", Date: at(0, 1), SI: model.Float(60)},
		{RegionID: "south", Date: at(0, 2), SI: model.Float(80)},
	}
	got, err := Build(FromRegional(rows), model.AlertRule{Scope: model.ScopeGlobal, Metric: "SI"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.InDelta(t, 70, *got[0].Value, 1e-9)

	_, err = Build(FromRegional(rows), model.AlertRule{Scope: model.ScopeGlobal, Metric: "varroa"})
	assert.ErrorIs(t, err, ErrUnknownMetric)
	assert.False(t, ValidMetric("varroa"))
	assert.True(t, ValidMetric("egg_day"))
}

func TestForRuleBreederUsesSourceMeasures(t *testing.T) {
	source := []model.SourceMeasure{
		{BreederID: "b1", Date: at(0, 0), BV: model.Float(1.5)},
		{BreederID: "b2", Date: at(0, 0), BV: model.Float(-1)},
	}
	regional := []model.RegionalMeasure{
		{RegionID: "north", BreederID: "b1", Date: at(0, 0), BV: model.Float(0.2), EggDay: model.Float(1800)},
	}

	bv, err := ForRule(model.AlertRule{Scope: model.ScopeBreeder, ScopeID: "b1", Metric: "bv"}, source, regional)
	require.NoError(t, err)
	require.Len(t, bv, 1)
	assert.InDelta(t, 1.5, *bv[0].Value, 1e-9)

	eggs, err := ForRule(model.AlertRule{Scope: model.ScopeBreeder, ScopeID: "b1", Metric: "egg_day"}, source, regional)
	require.NoError(t, err)
	require.Len(t, eggs, 1)
	assert.InDelta(t, 1800, *eggs[0].Value, 1e-9)
}
