package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"hivetrust/internal/alerts"
	"hivetrust/internal/anomaly"
	"hivetrust/internal/config"
	"hivetrust/internal/metrics"
	"hivetrust/internal/model"
	"hivetrust/internal/series"
	"hivetrust/internal/storage"
	"hivetrust/internal/trust"
)

const (
	// BenchmarkAll selects the pooled benchmark over every qualifying region.
	BenchmarkAll   = ""
	ruleFanout     = 8
	minEvalBackoff = time.Second
)

var (
	ErrNoRepository   = errors.New("engine has no repository")
	ErrRegionNotFound = errors.New("region has no qualifying aggregate")
)

// Engine runs rankings and rule evaluation over a repository snapshot.
type Engine struct {
	logger   *slog.Logger
	metrics  *metrics.Metrics
	alerts   *alerts.Store
	repo     storage.Repository
	cfg      atomic.Value
	now      func() time.Time
	started  time.Time
	mu       sync.Mutex
	cooldown *Cooldown
	deDupe   *DedupeCache
	lastEval atomic.Value
}

type Status struct {
	Started        time.Time `json:"started"`
	LastEvaluation time.Time `json:"last_evaluation,omitempty"`
	StoredSignals  int       `json:"stored_signals"`
}

type Rankings struct {
	Breeders []model.BreederAggregate `json:"breeders,omitempty"`
	Regions  []model.RegionAggregate  `json:"regions,omitempty"`
}

type BenchmarkResult struct {
	Region    model.RegionAggregate `json:"region"`
	Benchmark model.RegionAggregate `json:"benchmark"`
	Delta     model.BenchmarkDelta  `json:"delta"`
}

func NewEngine(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics, alertsStore *alerts.Store, repo storage.Repository) *Engine {
	if alertsStore == nil {
		alertsStore = alerts.NewStore(cfg.Alerts.StoreLimit)
	}
	e := &Engine{
		logger:   logger,
		metrics:  m,
		alerts:   alertsStore,
		repo:     repo,
		now:      func() time.Time { return time.Now().UTC() },
		cooldown: NewCooldown(),
		deDupe:   NewDedupeCache(),
	}
	e.started = e.now()
	e.cfg.Store(cfg)
	return e
}

func (e *Engine) UpdateConfig(cfg *config.Config) {
	e.cfg.Store(cfg)
}

// SetClock replaces the wall clock used for ages, windows and cooldowns.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

func (e *Engine) Alerts() *alerts.Store {
	return e.alerts
}

func (e *Engine) Repository() storage.Repository {
	return e.repo
}

func (e *Engine) config() *config.Config {
	if v := e.cfg.Load(); v != nil {
		return v.(*config.Config)
	}
	return config.DefaultConfig()
}

func (e *Engine) Status() Status {
	st := Status{Started: e.started, StoredSignals: e.alerts.Len()}
	if v, ok := e.lastEval.Load().(time.Time); ok {
		st.LastEvaluation = v
	}
	return st
}

// SeedRules upserts the configured rules so they are evaluated alongside
// rules created through the API.
func (e *Engine) SeedRules(ctx context.Context) error {
	if e.repo == nil {
		return ErrNoRepository
	}
	for _, rule := range e.config().Alerts.Rules {
		if err := e.repo.SaveRule(ctx, rule); err != nil {
			return fmt.Errorf("seed rule %q: %w", rule.ID, err)
		}
	}
	return nil
}

func (e *Engine) BreederRankings(ctx context.Context) ([]model.BreederAggregate, error) {
	if e.repo == nil {
		return nil, ErrNoRepository
	}
	rows, err := e.repo.ListSourceMeasures(ctx, storage.MeasureFilter{})
	if err != nil {
		return nil, err
	}
	params := e.config().Trust.Breeder
	params.Now = e.now()
	out := trust.AggregateBreeders(rows, params)
	e.metrics.SetAggregates("breeder", len(out))
	return out, nil
}

func (e *Engine) RegionRankings(ctx context.Context) ([]model.RegionAggregate, error) {
	if e.repo == nil {
		return nil, ErrNoRepository
	}
	rows, err := e.repo.ListRegionalMeasures(ctx, storage.MeasureFilter{})
	if err != nil {
		return nil, err
	}
	out := trust.AggregateByRegion(rows, e.regionParams())
	e.metrics.SetAggregates("region", len(out))
	return out, nil
}

// Rankings computes both scorecards concurrently.
func (e *Engine) Rankings(ctx context.Context) (Rankings, error) {
	var out Rankings
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		out.Breeders, err = e.BreederRankings(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		out.Regions, err = e.RegionRankings(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return Rankings{}, err
	}
	return out, nil
}

// Benchmark compares a region against another region, or against the pooled
// benchmark of all qualifying regions when against is BenchmarkAll.
func (e *Engine) Benchmark(ctx context.Context, regionID, against string) (BenchmarkResult, error) {
	regions, err := e.RegionRankings(ctx)
	if err != nil {
		return BenchmarkResult{}, err
	}
	region, ok := findRegion(regions, regionID)
	if !ok {
		return BenchmarkResult{}, fmt.Errorf("%w: %q", ErrRegionNotFound, regionID)
	}
	var bench model.RegionAggregate
	if against == BenchmarkAll {
		bench = trust.PooledBenchmark(regions)
	} else if bench, ok = findRegion(regions, against); !ok {
		return BenchmarkResult{}, fmt.Errorf("%w: %q", ErrRegionNotFound, against)
	}
	return BenchmarkResult{
		Region:    region,
		Benchmark: bench,
		Delta:     trust.CompareToBenchmark(region, bench),
	}, nil
}

func (e *Engine) regionParams() trust.RegionParams {
	cfg := e.config()
	params := cfg.Trust.Region
	params.Now = e.now()
	if cfg.Trust.RegionWindow > 0 {
		params.From = params.Now.Add(-cfg.Trust.RegionWindow)
	}
	return params
}

func findRegion(regions []model.RegionAggregate, id string) (model.RegionAggregate, bool) {
	for _, r := range regions {
		if r.RegionID == id {
			return r, true
		}
	}
	return model.RegionAggregate{}, false
}

// Evaluate runs every enabled rule over the look-back snapshot and returns
// the signals not published before. Rules that fail are logged and reported
// in the joined error; the remaining rules still publish.
func (e *Engine) Evaluate(ctx context.Context) ([]model.AlertSignal, error) {
	if e.repo == nil {
		return nil, ErrNoRepository
	}
	cfg := e.config()
	now := e.now()
	start := time.Now()
	defer func() { e.metrics.ObserveEvaluate(time.Since(start)) }()

	rules, err := e.repo.ListRules(ctx)
	if err != nil {
		return nil, err
	}
	filter := storage.MeasureFilter{Since: now.Add(-cfg.Alerts.Lookback)}
	var (
		source   []model.SourceMeasure
		regional []model.RegionalMeasure
	)
	load, lctx := errgroup.WithContext(ctx)
	load.Go(func() error {
		var err error
		source, err = e.repo.ListSourceMeasures(lctx, filter)
		return err
	})
	load.Go(func() error {
		var err error
		regional, err = e.repo.ListRegionalMeasures(lctx, filter)
		return err
	})
	if err := load.Wait(); err != nil {
		return nil, err
	}

	detected := make([][]model.AlertSignal, len(rules))
	ruleErrs := make([]error, len(rules))
	var g errgroup.Group
	g.SetLimit(ruleFanout)
	for i, rule := range rules {
		if !rule.Enabled {
			continue
		}
		i, rule := i, rule
		g.Go(func() error {
			points, err := series.ForRule(rule, source, regional)
			if err == nil {
				detected[i], err = anomaly.DetectAnomalies(points, rule)
			}
			ruleErrs[i] = err
			return nil
		})
	}
	_ = g.Wait()

	e.mu.Lock()
	defer e.mu.Unlock()
	ttl := cfg.Alerts.DedupeWindow
	if ttl <= 0 {
		ttl = cfg.Alerts.Lookback
	}
	var fresh []model.AlertSignal
	for i, rule := range rules {
		if ruleErrs[i] != nil {
			e.metrics.IncRuleError(rule.ID)
			if e.logger != nil {
				e.logger.Error("rule evaluation failed", "rule_id", rule.ID, "error", ruleErrs[i])
			}
			continue
		}
		unseen := make([]model.AlertSignal, 0, len(detected[i]))
		for _, sig := range detected[i] {
			if !e.deDupe.Contains(signalKey(sig), now, ttl) {
				unseen = append(unseen, sig)
			}
		}
		if len(unseen) == 0 || !e.cooldown.Allow(rule, now, cfg.Alerts.Cooldown) {
			continue
		}
		for _, sig := range unseen {
			e.deDupe.Seen(signalKey(sig), now, ttl)
			e.metrics.IncSignal(rule.ID, string(sig.Kind))
			if e.logger != nil {
				e.logger.Warn("anomaly signal",
					"rule_id", sig.RuleID,
					"scope", sig.Scope,
					"scope_id", sig.ScopeID,
					"metric", sig.Metric,
					"value", sig.Value,
					"kind", sig.Kind,
					"at", sig.At,
				)
			}
		}
		fresh = append(fresh, unseen...)
	}
	e.alerts.Add(fresh...)
	e.lastEval.Store(now)
	if err := e.repo.SaveSignals(ctx, fresh); err != nil {
		return fresh, fmt.Errorf("persist signals: %w", err)
	}
	return fresh, errors.Join(ruleErrs...)
}

// Start evaluates rules on the configured interval until ctx ends. The
// interval is re-read after every pass so config reloads take effect.
func (e *Engine) Start(ctx context.Context) {
	go func() {
		for {
			interval := e.config().Alerts.EvaluateInterval
			if interval < minEvalBackoff {
				interval = minEvalBackoff
			}
			timer := time.NewTimer(interval)
			select {
			case <-timer.C:
				signals, err := e.Evaluate(ctx)
				if err != nil && e.logger != nil && ctx.Err() == nil {
					e.logger.Error("evaluation pass failed", "error", err)
				}
				if e.logger != nil {
					e.logger.Debug("evaluation pass", "signals", len(signals))
				}
			case <-ctx.Done():
				timer.Stop()
				return
			}
		}
	}()
}

// Reset forgets published signals, cooldowns and the in-memory ring.
func (e *Engine) Reset() {
	e.mu.Lock()
	e.cooldown = NewCooldown()
	e.deDupe = NewDedupeCache()
	e.mu.Unlock()
	e.alerts.Clear()
}
