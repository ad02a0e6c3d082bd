// Package series turns stored measurements into the single-metric daily
// series an alert rule is evaluated against.
package series

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"hivetrust/internal/model"
)

const (
	MetricSI      = "si"
	MetricBV      = "bv"
	MetricHoneyKg = "honey_kg"
	MetricEggDay  = "egg_day"
)

var ErrUnknownMetric = errors.New("unknown metric")

// Record is the common shape of a source or regional measurement.
type Record struct {
	RegionID  string
	BreederID string
	At        time.Time
	SI        *float64
	BV        *float64
	HoneyKg   *float64
	EggDay    *float64
}

func FromSource(rows []model.SourceMeasure) []Record {
	out := make([]Record, 0, len(rows))
	for _, r := range rows {
		out = append(out, Record{BreederID: r.BreederID, At: r.Date, SI: r.SI, BV: r.BV})
	}
	return out
}

func FromRegional(rows []model.RegionalMeasure) []Record {
	out := make([]Record, 0, len(rows))
	for _, r := range rows {
		out = append(out, Record{
			RegionID:  r.RegionID,
			BreederID: r.BreederID,
			At:        r.Date,
			SI:        r.SI,
			BV:        r.BV,
			HoneyKg:   r.HoneyKg,
			EggDay:    r.EggDay,
		})
	}
	return out
}

// ValidMetric reports whether the metric name can be extracted.
func ValidMetric(metric string) bool {
	_, err := extractor(metric)
	return err == nil
}

// ForRule picks the record set a rule reads from. Breeder rules on si or bv
// use the breeder's own source measures; everything else reads regional
// measurements, which carry the auxiliary metrics.
func ForRule(rule model.AlertRule, source []model.SourceMeasure, regional []model.RegionalMeasure) ([]model.TimePoint, error) {
	metric := normalizeMetric(rule.Metric)
	if rule.Scope == model.ScopeBreeder && (metric == MetricSI || metric == MetricBV) {
		return Build(FromSource(source), rule)
	}
	return Build(FromRegional(regional), rule)
}

// Build filters records to the rule scope and returns one point per UTC
// day holding the mean of that day's present values, oldest first. Days
// without any present value are omitted.
func Build(records []Record, rule model.AlertRule) ([]model.TimePoint, error) {
	extract, err := extractor(rule.Metric)
	if err != nil {
		return nil, fmt.Errorf("rule %q: %w", rule.ID, err)
	}
	type bucket struct {
		sum   float64
		count int
	}
	days := make(map[time.Time]*bucket)
	for _, r := range records {
		if !inScope(r, rule) || r.At.IsZero() {
			continue
		}
		v := extract(r)
		if !model.Present(v) {
			continue
		}
		at := r.At.UTC()
		day := time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, time.UTC)
		b, ok := days[day]
		if !ok {
			b = &bucket{}
			days[day] = b
		}
		b.sum += *v
		b.count++
	}
	out := make([]model.TimePoint, 0, len(days))
	for day, b := range days {
		out = append(out, model.TimePoint{At: day, Value: model.Float(b.sum / float64(b.count))})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out, nil
}

func inScope(r Record, rule model.AlertRule) bool {
	switch rule.Scope {
	case model.ScopeRegion:
		return rule.ScopeID == "" || r.RegionID == rule.ScopeID
	case model.ScopeBreeder:
		return rule.ScopeID == "" || r.BreederID == rule.ScopeID
	default:
		return true
	}
}

func normalizeMetric(metric string) string {
	return strings.ToLower(strings.TrimSpace(metric))
}

func extractor(metric string) (func(Record) *float64, error) {
	switch normalizeMetric(metric) {
	case MetricSI:
		return func(r Record) *float64 { return r.SI }, nil
	case MetricBV:
		return func(r Record) *float64 { return r.BV }, nil
	case MetricHoneyKg, "honey":
		return func(r Record) *float64 { return r.HoneyKg }, nil
	case MetricEggDay, "eggs":
		return func(r Record) *float64 { return r.EggDay }, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMetric, metric)
	}
}
