package ingest

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"hivetrust/internal/metrics"
	"hivetrust/internal/model"
	"hivetrust/internal/normalize"
	"hivetrust/internal/storage"
)

var errNoRepository = errors.New("ingest sink has no repository")

// Result counts the payload records a write accepted and rejected.
type Result struct {
	Source   int `json:"source"`
	Regional int `json:"regional"`
	Failed   int `json:"failed"`
}

func (r Result) Accepted() int {
	return r.Source + r.Regional
}

// Sink validates decoded payloads and stores them in the repository.
type Sink struct {
	repo    storage.Repository
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewSink(repo storage.Repository, m *metrics.Metrics, logger *slog.Logger) *Sink {
	return &Sink{repo: repo, metrics: m, logger: logger}
}

// Write normalizes every record and stores the valid ones in one batch per
// kind. Invalid records are counted and logged, never fatal; only
// repository failures are returned.
func (s *Sink) Write(ctx context.Context, origin string, records []normalize.Fields, loc *time.Location) (Result, error) {
	var (
		res      Result
		source   []model.SourceMeasure
		regional []model.RegionalMeasure
	)
	if s.repo == nil {
		return res, errNoRepository
	}
	for _, f := range records {
		m, err := normalize.Normalize(f, loc)
		if err != nil {
			res.Failed++
			if s.logger != nil {
				s.logger.Warn("measurement rejected", "origin", origin, "err", err)
			}
			continue
		}
		if m.Source != nil {
			source = append(source, *m.Source)
		}
		if m.Regional != nil {
			regional = append(regional, *m.Regional)
		}
	}
	if err := s.repo.SaveSourceMeasures(ctx, source); err != nil {
		return res, err
	}
	res.Source = len(source)
	if err := s.repo.SaveRegionalMeasures(ctx, regional); err != nil {
		return res, err
	}
	res.Regional = len(regional)
	s.metrics.AddIngested(origin, normalize.KindSource, res.Source)
	s.metrics.AddIngested(origin, normalize.KindRegional, res.Regional)
	return res, nil
}

// Location resolves the configured ingest timezone, UTC when unset or unknown.
func Location(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	if loc, err := time.LoadLocation(name); err == nil {
		return loc
	}
	return time.UTC
}

func BackoffSleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		d = 200 * time.Millisecond
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
