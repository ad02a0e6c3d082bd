package anomaly

import (
	"errors"
	"fmt"

	"hivetrust/internal/model"
)

const (
	DefaultZ        = 2.5
	DefaultMAWindow = 5
	DefaultDeltaPct = 20.0

	// minZContext is the smallest look-back the zscore pass keeps even
	// when a rule asks for fewer records.
	minZContext        = 5
	warningRatio       = 0.9
	criticalZMargin    = 1.0
	criticalDeltaRatio = 1.5
)

var (
	ErrUnknownMode      = errors.New("unknown alert mode")
	ErrUnknownScope     = errors.New("unknown alert scope")
	ErrMissingThreshold = errors.New("threshold mode requires a finite threshold")
	ErrNegativeRecords  = errors.New("min records must not be negative")
	ErrUnorderedSeries  = errors.New("series is not ordered by time")
)

// Validate reports rule contract violations that DetectAnomalies refuses.
func Validate(rule model.AlertRule) error {
	switch rule.Scope {
	case model.ScopeGlobal, model.ScopeRegion, model.ScopeBreeder:
	default:
		return fmt.Errorf("rule %q: %w: %q", rule.ID, ErrUnknownScope, rule.Scope)
	}
	switch rule.Mode {
	case model.ModeThreshold:
		if !model.Present(rule.Threshold) {
			return fmt.Errorf("rule %q: %w", rule.ID, ErrMissingThreshold)
		}
	case model.ModeZScore, model.ModeMADelta:
	default:
		return fmt.Errorf("rule %q: %w: %q", rule.ID, ErrUnknownMode, rule.Mode)
	}
	if rule.MinRecords < 0 {
		return fmt.Errorf("rule %q: %w", rule.ID, ErrNegativeRecords)
	}
	return nil
}

func zLimit(rule model.AlertRule) float64 {
	if model.Present(rule.Z) {
		return *rule.Z
	}
	return DefaultZ
}

func maWindow(rule model.AlertRule) int {
	if rule.MAWindow != nil {
		return *rule.MAWindow
	}
	return DefaultMAWindow
}

func deltaPct(rule model.AlertRule) float64 {
	if model.Present(rule.DeltaPct) {
		return *rule.DeltaPct
	}
	return DefaultDeltaPct
}
