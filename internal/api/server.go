package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"hivetrust/internal/alerts"
	"hivetrust/internal/anomaly"
	"hivetrust/internal/config"
	"hivetrust/internal/engine"
	"hivetrust/internal/metrics"
	"hivetrust/internal/model"
	"hivetrust/internal/series"
	"hivetrust/internal/storage"
)

// Engine is the part of the evaluation engine the API drives.
type Engine interface {
	Status() engine.Status
	BreederRankings(ctx context.Context) ([]model.BreederAggregate, error)
	RegionRankings(ctx context.Context) ([]model.RegionAggregate, error)
	Benchmark(ctx context.Context, regionID, against string) (engine.BenchmarkResult, error)
	Evaluate(ctx context.Context) ([]model.AlertSignal, error)
	Reset()
}

type Server struct {
	cfg     *config.Manager
	metrics *metrics.Metrics
	alerts  *alerts.Store
	repo    storage.Repository
	engine  Engine
	logger  *slog.Logger
	version string
}

type statusResponse struct {
	Status     string        `json:"status"`
	Time       string        `json:"time"`
	Version    string        `json:"version"`
	ConfigPath string        `json:"config_path"`
	Engine     engine.Status `json:"engine"`
	Ingest     ingestStatus  `json:"ingest"`
	API        apiStatus     `json:"api"`
	Storage    string        `json:"storage"`
}

type ingestStatus struct {
	REST  bool `json:"rest"`
	Kafka bool `json:"kafka"`
}

type apiStatus struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr"`
}

func NewServer(cfg *config.Manager, m *metrics.Metrics, alertsStore *alerts.Store, repo storage.Repository, eng Engine, logger *slog.Logger, version string) *Server {
	return &Server{
		cfg:     cfg,
		metrics: m,
		alerts:  alertsStore,
		repo:    repo,
		engine:  eng,
		logger:  logger,
		version: version,
	}
}

func (s *Server) Routes() http.Handler {
	cfg := s.cfg.Get()
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/status", s.handleStatus)
	r.Route("/rankings", func(r chi.Router) {
		r.Get("/breeders", s.handleBreederRankings)
		r.Get("/regions", s.handleRegionRankings)
	})
	r.Get("/regions/{id}/benchmark", s.handleBenchmark)
	r.Route("/rules", func(r chi.Router) {
		r.Get("/", s.handleListRules)
		r.Post("/", s.handleCreateRule)
		r.Get("/{id}", s.handleGetRule)
		r.Delete("/{id}", s.handleDeleteRule)
	})
	r.Get("/alerts", s.handleAlerts)
	r.Route("/admin", func(r chi.Router) {
		r.Post("/evaluate", s.handleEvaluate)
		r.Post("/clear", s.handleClear)
	})
	if cfg.Metrics.Enabled {
		r.Method(http.MethodGet, cfg.Metrics.Path, s.metrics.Handler())
	}
	return r
}

func Start(ctx context.Context, srv *Server) *http.Server {
	if srv == nil || srv.cfg == nil {
		return nil
	}
	logger := srv.logger
	current := srv.cfg.Get().API
	if !current.Enabled {
		if logger != nil {
			logger.Info("api disabled")
		}
		return nil
	}
	if logger != nil {
		logger.Info("api enabled", "addr", current.Addr)
	}
	httpServer := &http.Server{
		Addr:              current.Addr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(ctxShutdown)
	}()
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			if logger != nil {
				logger.Error("api server error", "err", err)
			}
		}
	}()
	return httpServer
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	cfg := s.cfg.Get()
	writeJSON(w, http.StatusOK, statusResponse{
		Status:     "ok",
		Time:       time.Now().UTC().Format(time.RFC3339Nano),
		Version:    s.version,
		ConfigPath: s.cfg.Path(),
		Engine:     s.engine.Status(),
		Ingest: ingestStatus{
			REST:  cfg.Ingest.REST.Enabled,
			Kafka: cfg.Ingest.Kafka.Enabled,
		},
		API:     apiStatus{Enabled: cfg.API.Enabled, Addr: cfg.API.Addr},
		Storage: cfg.Storage.Driver,
	})
}

func (s *Server) handleBreederRankings(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(w, r)
	if !ok {
		return
	}
	list, err := s.engine.BreederRankings(r.Context())
	if err != nil {
		s.fail(w, "breeder rankings", err)
		return
	}
	list = head(list, limit)
	writeJSON(w, http.StatusOK, map[string]any{"breeders": list, "count": len(list)})
}

func (s *Server) handleRegionRankings(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(w, r)
	if !ok {
		return
	}
	list, err := s.engine.RegionRankings(r.Context())
	if err != nil {
		s.fail(w, "region rankings", err)
		return
	}
	list = head(list, limit)
	writeJSON(w, http.StatusOK, map[string]any{"regions": list, "count": len(list)})
}

func (s *Server) handleBenchmark(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	against := strings.TrimSpace(r.URL.Query().Get("against"))
	res, err := s.engine.Benchmark(r.Context(), id, against)
	if errors.Is(err, engine.ErrRegionNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		s.fail(w, "benchmark", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := s.repo.ListRules(r.Context())
	if err != nil {
		s.fail(w, "list rules", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rules": rules, "count": len(rules)})
}

func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	rule, err := s.repo.GetRule(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		s.fail(w, "get rule", err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

// handleCreateRule upserts a rule; a missing id is generated.
func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var rule model.AlertRule
	if err := json.Unmarshal(body, &rule); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	rule.ID = strings.TrimSpace(rule.ID)
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	if rule.MinRecords == 0 {
		rule.MinRecords = s.cfg.Get().Alerts.DefaultMinRecords
	}
	if err := anomaly.Validate(rule); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if !series.ValidMetric(rule.Metric) {
		writeError(w, http.StatusBadRequest, series.ErrUnknownMetric)
		return
	}
	if err := s.repo.SaveRule(r.Context(), rule); err != nil {
		s.fail(w, "save rule", err)
		return
	}
	if s.logger != nil {
		s.logger.Info("rule saved", "rule_id", rule.ID, "mode", rule.Mode, "metric", rule.Metric)
	}
	writeJSON(w, http.StatusCreated, rule)
}

func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	err := s.repo.DeleteRule(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		s.fail(w, "delete rule", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleAlerts serves the in-memory ring by default and the persisted
// history when persisted=true.
func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, ok := queryLimit(w, r)
	if !ok {
		return
	}
	var since time.Time
	if v := q.Get("since"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		since = ts
	}
	ruleID := q.Get("rule")

	var list []model.AlertSignal
	if q.Get("persisted") == "true" {
		var err error
		list, err = s.repo.ListSignals(r.Context(), storage.SignalFilter{RuleID: ruleID, Since: since, Limit: limit})
		if err != nil {
			s.fail(w, "list signals", err)
			return
		}
	} else {
		switch {
		case !since.IsZero():
			list = s.alerts.Since(since)
		case ruleID != "":
			list = s.alerts.ForRule(ruleID)
		default:
			list = s.alerts.List(limit)
		}
		if ruleID != "" && !since.IsZero() {
			list = filterRule(list, ruleID)
		}
		list = latest(list, limit)
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": list, "count": len(list)})
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	signals, err := s.engine.Evaluate(r.Context())
	if errors.Is(err, engine.ErrNoRepository) {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	resp := map[string]any{"signals": signals, "count": len(signals)}
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("evaluation finished with errors", "err", err)
		}
		resp["error"] = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	var req struct {
		Target string `json:"target"`
	}
	_ = json.Unmarshal(body, &req)
	target := strings.ToLower(strings.TrimSpace(req.Target))
	if target == "" {
		target = "all"
	}
	switch target {
	case "all":
		s.engine.Reset()
	case "alerts":
		s.alerts.Clear()
	default:
		writeError(w, http.StatusBadRequest, errors.New("unknown clear target"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "target": target})
}

func (s *Server) fail(w http.ResponseWriter, op string, err error) {
	if s.logger != nil {
		s.logger.Error("api request failed", "op", op, "err", err)
	}
	writeError(w, http.StatusInternalServerError, err)
}

func queryLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return 0, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		writeError(w, http.StatusBadRequest, errors.New("limit must be a non-negative integer"))
		return 0, false
	}
	return n, true
}

func head[T any](list []T, limit int) []T {
	if limit > 0 && len(list) > limit {
		return list[:limit]
	}
	return list
}

// latest keeps the newest limit entries of an oldest-first list.
func latest[T any](list []T, limit int) []T {
	if limit > 0 && len(list) > limit {
		return list[len(list)-limit:]
	}
	return list
}

func filterRule(list []model.AlertSignal, ruleID string) []model.AlertSignal {
	out := list[:0:0]
	for _, sig := range list {
		if sig.RuleID == ruleID {
			out = append(out, sig)
		}
	}
	return out
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
