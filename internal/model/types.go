package model

import (
	"math"
	"strings"
	"time"
)

type Scope string

const (
	ScopeGlobal  Scope = "global"
	ScopeRegion  Scope = "region"
	ScopeBreeder Scope = "breeder"
)

type Mode string

const (
	ModeThreshold Mode = "threshold"
	ModeZScore    Mode = "zscore"
	ModeMADelta   Mode = "ma-delta"
)

type Kind string

const (
	KindWarning  Kind = "warning"
	KindCritical Kind = "critical"
)

// AnonSource is the source key of a measurement that names neither a
// beekeeper nor a queen.
const AnonSource = "anon"

type SourceMeasure struct {
	BreederID   string    `json:"breederId"`
	QueenID     string    `json:"queenId,omitempty"`
	Date        time.Time `json:"date"`
	SI          *float64  `json:"si,omitempty"`
	BV          *float64  `json:"bv,omitempty"`
	Weight      *float64  `json:"weight,omitempty"`
	BeekeeperID string    `json:"beekeeperId,omitempty"`
}

func (m SourceMeasure) SourceKey() string {
	return SourceKey(m.BeekeeperID, m.QueenID)
}

type RegionalMeasure struct {
	RegionID    string    `json:"regionId"`
	BreederID   string    `json:"breederId,omitempty"`
	QueenID     string    `json:"queenId,omitempty"`
	BeekeeperID string    `json:"beekeeperId,omitempty"`
	Date        time.Time `json:"date"`
	SI          *float64  `json:"si,omitempty"`
	BV          *float64  `json:"bv,omitempty"`
	HoneyKg     *float64  `json:"honey_kg,omitempty"`
	EggDay      *float64  `json:"egg_day,omitempty"`
}

func (m RegionalMeasure) SourceKey() string {
	return SourceKey(m.BeekeeperID, m.QueenID)
}

type BreederAggregate struct {
	BreederID   string  `json:"breederId"`
	N           int     `json:"n"`
	M           int     `json:"m"`
	SIAvg       float64 `json:"si_avg"`
	BVAvg       float64 `json:"bv_avg"`
	Score       float64 `json:"score"`
	Confidence  float64 `json:"confidence"`
	RecencyDays float64 `json:"recency_days"`
	Consistency float64 `json:"consistency"`
}

type RegionAggregate struct {
	RegionID    string   `json:"regionId"`
	NSources    int      `json:"n_sources"`
	MRecords    int      `json:"m_records"`
	SIAvg       float64  `json:"si_avg"`
	BVAvg       float64  `json:"bv_avg"`
	HoneyAvg    *float64 `json:"honey_avg,omitempty"`
	Confidence  float64  `json:"confidence"`
	RecencyDays float64  `json:"recency_days"`
}

type BenchmarkDelta struct {
	SIDelta    float64 `json:"si_delta"`
	BVDelta    float64 `json:"bv_delta"`
	ScoreDelta float64 `json:"score_delta"`
}

type AlertRule struct {
	ID           string   `json:"id" yaml:"id"`
	Title        string   `json:"title" yaml:"title"`
	Scope        Scope    `json:"scope" yaml:"scope"`
	ScopeID      string   `json:"scopeId,omitempty" yaml:"scope_id,omitempty"`
	Metric       string   `json:"metric" yaml:"metric"`
	Mode         Mode     `json:"mode" yaml:"mode"`
	Threshold    *float64 `json:"threshold,omitempty" yaml:"threshold,omitempty"`
	Z            *float64 `json:"z,omitempty" yaml:"z,omitempty"`
	MAWindow     *int     `json:"maWindow,omitempty" yaml:"ma_window,omitempty"`
	DeltaPct     *float64 `json:"deltaPct,omitempty" yaml:"delta_pct,omitempty"`
	MinRecords   int      `json:"minRecords" yaml:"min_records"`
	HalfLifeDays float64  `json:"halfLifeDays,omitempty" yaml:"half_life_days,omitempty"`
	Enabled      bool     `json:"enabled" yaml:"enabled"`
}

type AlertSignal struct {
	RuleID       string    `json:"ruleId"`
	At           time.Time `json:"at"`
	Scope        Scope     `json:"scope"`
	ScopeID      string    `json:"scopeId,omitempty"`
	Metric       string    `json:"metric"`
	Value        float64   `json:"value"`
	ContextCount int       `json:"contextCount"`
	Kind         Kind      `json:"kind"`
}

type TimePoint struct {
	At    time.Time `json:"at"`
	Value *float64  `json:"value"`
}

// SourceKey identifies the independent source behind a measurement:
// the beekeeper when known, else the queen, else AnonSource.
func SourceKey(beekeeperID, queenID string) string {
	if k := strings.TrimSpace(beekeeperID); k != "" {
		return k
	}
	if k := strings.TrimSpace(queenID); k != "" {
		return k
	}
	return AnonSource
}

// Present reports whether an optional numeric field carries a usable value.
func Present(v *float64) bool {
	return v != nil && !math.IsNaN(*v) && !math.IsInf(*v, 0)
}

func Float(v float64) *float64 {
	return &v
}

func Int(v int) *int {
	return &v
}
