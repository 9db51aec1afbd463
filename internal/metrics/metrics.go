// Package metrics holds the Prometheus collectors for run outcomes and
// stage timings.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is registered on its own registry so tests and multiple
// orchestrators in one process do not collide.
type Metrics struct {
	registry *prometheus.Registry

	runsStarted    prometheus.Counter
	runsFinished   *prometheus.CounterVec
	stageDuration  *prometheus.HistogramVec
	questionGroups *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "docset_runs_started_total",
			Help: "Ingestion runs accepted.",
		}),
		runsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "docset_runs_finished_total",
			Help: "Ingestion runs that reached a terminal stage.",
		}, []string{"outcome", "kind"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "docset_stage_duration_seconds",
			Help:    "Wall time spent per pipeline stage.",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		}, []string{"stage"}),
		questionGroups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "docset_question_groups_total",
			Help: "Chunk groups sent for question generation.",
		}, []string{"outcome"}),
	}
	m.registry.MustRegister(
		m.runsStarted,
		m.runsFinished,
		m.stageDuration,
		m.questionGroups,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) RunStarted() {
	m.runsStarted.Inc()
}

// RunFinished records a terminal run. kind is empty on success.
func (m *Metrics) RunFinished(outcome, kind string) {
	m.runsFinished.WithLabelValues(outcome, kind).Inc()
}

func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (m *Metrics) QuestionGroup(ok bool) {
	outcome := "ok"
	if !ok {
		outcome = "failed"
	}
	m.questionGroups.WithLabelValues(outcome).Inc()
}
