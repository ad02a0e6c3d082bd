package anomaly

import (
	"math"

	"hivetrust/internal/kernel"
	"hivetrust/internal/model"
)

// DetectAnomalies runs the pass selected by rule.Mode over a series ordered
// by time and returns the signals it raises. Disabled rules and empty
// series yield nothing; malformed rules and unordered series are errors.
func DetectAnomalies(series []model.TimePoint, rule model.AlertRule) ([]model.AlertSignal, error) {
	if !rule.Enabled || len(series) == 0 {
		return nil, nil
	}
	if err := Validate(rule); err != nil {
		return nil, err
	}
	for i := 1; i < len(series); i++ {
		if series[i].At.Before(series[i-1].At) {
			return nil, ErrUnorderedSeries
		}
	}
	switch rule.Mode {
	case model.ModeThreshold:
		return detectThreshold(series, rule), nil
	case model.ModeZScore:
		return detectZScore(series, rule), nil
	default:
		return detectMADelta(series, rule), nil
	}
}

func detectThreshold(series []model.TimePoint, rule model.AlertRule) []model.AlertSignal {
	limit := *rule.Threshold
	contextCount := min(len(series), max(rule.MinRecords, 1))
	var out []model.AlertSignal
	for _, p := range series {
		if !model.Present(p.Value) {
			continue
		}
		v := *p.Value
		switch {
		case v >= limit:
			out = append(out, newSignal(rule, p, v, contextCount, model.KindCritical))
		case v >= warningRatio*limit:
			out = append(out, newSignal(rule, p, v, contextCount, model.KindWarning))
		}
	}
	return out
}

// detectZScore scores each point against the bounded run of points before
// it. The decay baseline is the last point of that run, not the series end.
func detectZScore(series []model.TimePoint, rule model.AlertRule) []model.AlertSignal {
	limit := zLimit(rule)
	lookBack := max(rule.MinRecords, minZContext)
	var out []model.AlertSignal
	for i := 1; i < len(series); i++ {
		prior := series[max(0, i-lookBack):i]
		if len(prior) < rule.MinRecords {
			continue
		}
		current := series[i]
		if !model.Present(current.Value) {
			continue
		}
		st := kernel.WeightedStats(prior, rule.HalfLifeDays)
		z := math.Abs(kernel.ZScore(*current.Value, st.Mean, st.StdDev))
		if z < limit {
			continue
		}
		kind := model.KindWarning
		if z >= limit+criticalZMargin {
			kind = model.KindCritical
		}
		out = append(out, newSignal(rule, current, *current.Value, len(prior), kind))
	}
	return out
}

// detectMADelta compares consecutive moving-average points and reports the
// raw value where the average moved by at least the rule's percentage.
func detectMADelta(series []model.TimePoint, rule model.AlertRule) []model.AlertSignal {
	window := maWindow(rule)
	limit := deltaPct(rule)
	ma := kernel.MovingAverage(series, window)
	span := max(window, 0)
	var out []model.AlertSignal
	for i := max(window+1, 1); i < len(series); i++ {
		prev, cur := ma[i-1].Value, ma[i].Value
		if !model.Present(prev) || !model.Present(cur) || *prev == 0 {
			continue
		}
		pct := (*cur - *prev) / math.Abs(*prev) * 100
		contextCount := i - max(0, i-span) + 1
		if contextCount < rule.MinRecords {
			continue
		}
		if math.Abs(pct) < limit {
			continue
		}
		raw := series[i]
		if !model.Present(raw.Value) {
			continue
		}
		kind := model.KindWarning
		if math.Abs(pct) >= criticalDeltaRatio*limit {
			kind = model.KindCritical
		}
		out = append(out, newSignal(rule, raw, *raw.Value, contextCount, kind))
	}
	return out
}

func newSignal(rule model.AlertRule, p model.TimePoint, value float64, contextCount int, kind model.Kind) model.AlertSignal {
	return model.AlertSignal{
		RuleID:       rule.ID,
		At:           p.At,
		Scope:        rule.Scope,
		ScopeID:      rule.ScopeID,
		Metric:       rule.Metric,
		Value:        value,
		ContextCount: contextCount,
		Kind:         kind,
	}
}
