package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides observability for ranking, evaluation and ingest.
type Metrics struct {
	registry *prometheus.Registry

	EvaluateLatency prometheus.Histogram
	Signals         *prometheus.CounterVec
	RuleErrors      *prometheus.CounterVec
	Aggregates      *prometheus.GaugeVec
	Ingested        *prometheus.CounterVec
}

// New registers all collectors on a private registry so several instances
// can coexist in one process.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		EvaluateLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "hivetrust_evaluate_duration_seconds",
			Help:    "Duration of a full alert rule evaluation pass",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		Signals: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "hivetrust_signals_total",
			Help: "Anomaly signals raised by rule and kind",
		}, []string{"rule", "kind"}),
		RuleErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "hivetrust_rule_errors_total",
			Help: "Rules that could not be evaluated",
		}, []string{"rule"}),
		Aggregates: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "hivetrust_aggregates",
			Help: "Entities that passed the evidence thresholds in the last ranking",
		}, []string{"entity"}),
		Ingested: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "hivetrust_measures_ingested_total",
			Help: "Measurements accepted by source and kind",
		}, []string{"source", "kind"}),
	}
}

func (m *Metrics) ObserveEvaluate(d time.Duration) {
	if m != nil {
		m.EvaluateLatency.Observe(d.Seconds())
	}
}

func (m *Metrics) IncSignal(ruleID, kind string) {
	if m != nil {
		m.Signals.WithLabelValues(ruleID, kind).Inc()
	}
}

func (m *Metrics) IncRuleError(ruleID string) {
	if m != nil {
		m.RuleErrors.WithLabelValues(ruleID).Inc()
	}
}

func (m *Metrics) SetAggregates(entity string, n int) {
	if m != nil {
		m.Aggregates.WithLabelValues(entity).Set(float64(n))
	}
}

func (m *Metrics) AddIngested(source, kind string, n int) {
	if m != nil && n > 0 {
		m.Ingested.WithLabelValues(source, kind).Add(float64(n))
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
