package normalize

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"hivetrust/internal/model"
)

const (
	KindSource   = "source"
	KindRegional = "regional"
)

var (
	ErrMissingKey   = errors.New("measurement needs a region or breeder id")
	ErrMissingDate  = errors.New("measurement needs a date")
	ErrUnknownKind  = errors.New("unknown measurement kind")
	ErrBadNumber    = errors.New("invalid number")
	ErrOutOfRange   = errors.New("value out of range")
	errEmptyTimeVal = errors.New("empty timestamp")
)

// Fields are the raw string values of one measurement payload.
type Fields struct {
	Kind        string
	RegionID    string
	BreederID   string
	QueenID     string
	BeekeeperID string
	Date        string
	SI          string
	BV          string
	Weight      string
	HoneyKg     string
	EggDay      string
	Raw         string
}

// Measure holds exactly one of the two measurement shapes.
type Measure struct {
	Source   *model.SourceMeasure
	Regional *model.RegionalMeasure
}

type bounds struct {
	lo, hi float64
}

var (
	siBounds     = bounds{0, 100}
	bvBounds     = bounds{-3, 3}
	weightBounds = bounds{0, 1}
	nonNegative  = bounds{0, 1e9}
)

// Normalize validates fields and builds a measurement. Payloads naming a
// region are regional unless Kind says otherwise; the rest are source
// measures keyed by breeder.
func Normalize(f Fields, loc *time.Location) (Measure, error) {
	if loc == nil {
		loc = time.UTC
	}
	region := strings.TrimSpace(f.RegionID)
	breeder := strings.TrimSpace(f.BreederID)
	kind := strings.ToLower(strings.TrimSpace(f.Kind))
	if kind == "" {
		kind = KindSource
		if region != "" {
			kind = KindRegional
		}
	}
	if strings.TrimSpace(f.Date) == "" {
		return Measure{}, ErrMissingDate
	}
	date, err := ParseTimestamp(f.Date, loc)
	if err != nil {
		return Measure{}, fmt.Errorf("parse date: %w", err)
	}
	date = date.UTC()

	var p numberParser
	si := p.parse("si", f.SI, siBounds)
	bv := p.parse("bv", f.BV, bvBounds)

	switch kind {
	case KindSource:
		if breeder == "" {
			return Measure{}, ErrMissingKey
		}
		weight := p.parse("weight", f.Weight, weightBounds)
		if p.err != nil {
			return Measure{}, p.err
		}
		return Measure{Source: &model.SourceMeasure{
			BreederID:   breeder,
			QueenID:     strings.TrimSpace(f.QueenID),
			BeekeeperID: strings.TrimSpace(f.BeekeeperID),
			Date:        date,
			SI:          si,
			BV:          bv,
			Weight:      weight,
		}}, nil
	case KindRegional:
		if region == "" {
			return Measure{}, ErrMissingKey
		}
		honey := p.parse("honey_kg", f.HoneyKg, nonNegative)
		eggs := p.parse("egg_day", f.EggDay, nonNegative)
		if p.err != nil {
			return Measure{}, p.err
		}
		return Measure{Regional: &model.RegionalMeasure{
			RegionID:    region,
			BreederID:   breeder,
			QueenID:     strings.TrimSpace(f.QueenID),
			BeekeeperID: strings.TrimSpace(f.BeekeeperID),
			Date:        date,
			SI:          si,
			BV:          bv,
			HoneyKg:     honey,
			EggDay:      eggs,
		}}, nil
	default:
		return Measure{}, fmt.Errorf("%w: %q", ErrUnknownKind, f.Kind)
	}
}

// numberParser keeps the first error so optional fields read in sequence.
type numberParser struct {
	err error
}

func (p *numberParser) parse(name, raw string, b bounds) *float64 {
	if p.err != nil {
		return nil
	}
	v, ok, err := ParseNumber(raw)
	if err != nil {
		p.err = fmt.Errorf("%s: %w", name, err)
		return nil
	}
	if !ok {
		return nil
	}
	if v < b.lo || v > b.hi {
		p.err = fmt.Errorf("%s: %w: %g", name, ErrOutOfRange, v)
		return nil
	}
	return model.Float(v)
}

// ParseNumber accepts a dot or a single comma as decimal separator. Empty
// input and null-like markers report ok=false.
func ParseNumber(raw string) (float64, bool, error) {
	s := strings.TrimSpace(raw)
	switch strings.ToLower(s) {
	case "", "null", "nil", "nan", "-", "<nil>":
		return 0, false, nil
	}
	if strings.Count(s, ",") == 1 && !strings.Contains(s, ".") {
		s = strings.Replace(s, ",", ".", 1)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false, fmt.Errorf("%w: %q", ErrBadNumber, raw)
	}
	return v, true, nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05Z0700",
	"2006-01-02",
	"02.01.2006",
	"2.1.2006",
	"02/01/2006",
}

func ParseTimestamp(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, errEmptyTimeVal
	}
	if isNumeric(value) {
		if ts, err := parseUnix(value); err == nil {
			return ts, nil
		}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported timestamp format: %q", value)
}

func isNumeric(value string) bool {
	for _, ch := range value {
		if ch < '0' || ch > '9' {
			return false
		}
	}
	return len(value) > 0
}

func parseUnix(value string) (time.Time, error) {
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	if len(value) >= 13 {
		return time.UnixMilli(n).UTC(), nil
	}
	return time.Unix(n, 0).UTC(), nil
}
