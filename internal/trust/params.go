package trust

import (
	"time"

	"hivetrust/internal/model"
)

const (
	DefaultBreederMinRecords   = 8
	DefaultBreederMinSources   = 3
	DefaultBreederHalfLifeDays = 120
	DefaultSIWeight            = 0.6
	DefaultBVWeight            = 0.4

	DefaultRegionMinRecords   = 6
	DefaultRegionMinSources   = 3
	DefaultRegionHalfLifeDays = 180
)

// BreederParams tunes AggregateBreeders. Zero counts and half-life fall
// back to the defaults; nil axis weights do too, since 0 is a valid weight.
type BreederParams struct {
	MinRecords          int       `json:"min_records" yaml:"min_records"`
	MinSources          int       `json:"min_sources" yaml:"min_sources"`
	RecencyHalfLifeDays float64   `json:"recency_half_life_days" yaml:"recency_half_life_days"`
	SIWeight            *float64  `json:"si_weight,omitempty" yaml:"si_weight,omitempty"`
	BVWeight            *float64  `json:"bv_weight,omitempty" yaml:"bv_weight,omitempty"`
	PenaltyOutliers     bool      `json:"penalty_outliers" yaml:"penalty_outliers"`
	Now                 time.Time `json:"-" yaml:"-"`
}

func (p BreederParams) withDefaults() BreederParams {
	if p.MinRecords <= 0 {
		p.MinRecords = DefaultBreederMinRecords
	}
	if p.MinSources <= 0 {
		p.MinSources = DefaultBreederMinSources
	}
	if p.RecencyHalfLifeDays <= 0 {
		p.RecencyHalfLifeDays = DefaultBreederHalfLifeDays
	}
	if p.SIWeight == nil {
		p.SIWeight = model.Float(DefaultSIWeight)
	}
	if p.BVWeight == nil {
		p.BVWeight = model.Float(DefaultBVWeight)
	}
	if p.Now.IsZero() {
		p.Now = time.Now().UTC()
	}
	return p
}

// RegionParams tunes AggregateByRegion. From and To bound the measurement
// dates inclusively; a zero bound is open.
type RegionParams struct {
	MinRecords          int       `json:"min_records" yaml:"min_records"`
	MinSources          int       `json:"min_sources" yaml:"min_sources"`
	RecencyHalfLifeDays float64   `json:"recency_half_life_days" yaml:"recency_half_life_days"`
	From                time.Time `json:"-" yaml:"-"`
	To                  time.Time `json:"-" yaml:"-"`
	Now                 time.Time `json:"-" yaml:"-"`
}

func (p RegionParams) withDefaults() RegionParams {
	if p.MinRecords <= 0 {
		p.MinRecords = DefaultRegionMinRecords
	}
	if p.MinSources <= 0 {
		p.MinSources = DefaultRegionMinSources
	}
	if p.RecencyHalfLifeDays <= 0 {
		p.RecencyHalfLifeDays = DefaultRegionHalfLifeDays
	}
	if p.Now.IsZero() {
		p.Now = time.Now().UTC()
	}
	return p
}

func (p RegionParams) inWindow(t time.Time) bool {
	if !p.From.IsZero() && t.Before(p.From) {
		return false
	}
	if !p.To.IsZero() && t.After(p.To) {
		return false
	}
	return true
}
