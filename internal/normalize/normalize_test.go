package normalize

import (
	"errors"
	"testing"
	"time"
)

func TestNormalizeSource(t *testing.T) {
	m, err := Normalize(Fields{BreederID: " B1 ", Date: "2025-05-02", SI: "81,5", BV: "1.2", Weight: ""}, nil)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if m.Source == nil || m.Regional != nil {
		t.Fatalf("expected source measure: %+v", m)
	}
	if m.Source.BreederID != "B1" || *m.Source.SI != 81.5 || m.Source.Weight != nil {
		t.Fatalf("source fields: %+v", m.Source)
	}
	if !m.Source.Date.Equal(time.Date(2025, 5, 2, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("date: %v", m.Source.Date)
	}
}

func TestNormalizeRegional(t *testing.T) {
	loc := time.FixedZone("CET", 3600)
	m, err := Normalize(Fields{RegionID: "north", Date: "02.05.2025", HoneyKg: "24", EggDay: "null"}, loc)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if m.Regional == nil || *m.Regional.HoneyKg != 24 || m.Regional.EggDay != nil {
		t.Fatalf("regional fields: %+v", m.Regional)
	}
	if !m.Regional.Date.Equal(time.Date(2025, 5, 1, 23, 0, 0, 0, time.UTC)) {
		t.Fatalf("local date not converted: %v", m.Regional.Date)
	}

	forced, err := Normalize(Fields{Kind: "source", RegionID: "north", BreederID: "B2", Date: "1714608000"}, nil)
	if err != nil || forced.Source == nil {
		t.Fatalf("explicit kind ignored: %+v %v", forced, err)
	}
}

func TestNormalizeRejects(t *testing.T) {
	cases := []struct {
		name   string
		fields Fields
		want   error
	}{
		{"no key", Fields{Date: "2025-01-01"}, ErrMissingKey},
		{"no date", Fields{BreederID: "B1"}, ErrMissingDate},
		{"si range", Fields{BreederID: "B1", Date: "2025-01-01", SI: "140"}, ErrOutOfRange},
		{"bv text", Fields{BreederID: "B1", Date: "2025-01-01", BV: "high"}, ErrBadNumber},
		{"kind", Fields{Kind: "colony", BreederID: "B1", Date: "2025-01-01"}, ErrUnknownKind},
		{"negative honey", Fields{RegionID: "r", Date: "2025-01-01", HoneyKg: "-1"}, ErrOutOfRange},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Normalize(tc.fields, nil); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestParseTimestamp(t *testing.T) {
	ms, err := ParseTimestamp("1714608000000", time.UTC)
	if err != nil || !ms.Equal(time.Unix(1714608000, 0)) {
		t.Fatalf("millis: %v %v", ms, err)
	}
	if _, err := ParseTimestamp("yesterday", time.UTC); err == nil {
		t.Fatalf("expected format error")
	}
}
