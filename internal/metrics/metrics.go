// Package metrics provides Prometheus metrics for the dev terminal pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the pipeline. A nil *Metrics
// records nothing.
type Metrics struct {
	ActionsTotal   *prometheus.CounterVec
	StepsTotal     *prometheus.CounterVec
	ArtifactsTotal *prometheus.CounterVec
	StepDuration   *prometheus.HistogramVec

	registry *prometheus.Registry
}

// New creates and registers all metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		ActionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "devterm_actions_total",
				Help: "Total number of pipeline actions by action and outcome.",
			},
			[]string{"action", "outcome"},
		),
		StepsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "devterm_steps_total",
				Help: "Total number of finished build steps by type and terminal status.",
			},
			[]string{"step_type", "status"},
		),
		ArtifactsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "devterm_artifacts_total",
				Help: "Total number of generated artifacts by type.",
			},
			[]string{"artifact_type"},
		),
		StepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "devterm_step_duration_seconds",
				Help:    "Build step duration by step type.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"step_type"},
		),
		registry: reg,
	}

	reg.MustRegister(m.ActionsTotal)
	reg.MustRegister(m.StepsTotal)
	reg.MustRegister(m.ArtifactsTotal)
	reg.MustRegister(m.StepDuration)

	return m
}

// Handler returns an http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordAction increments the action counter.
func (m *Metrics) RecordAction(action, outcome string) {
	if m == nil {
		return
	}
	m.ActionsTotal.WithLabelValues(action, outcome).Inc()
}

// RecordStep counts a finished step and observes how long it ran.
func (m *Metrics) RecordStep(stepType, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.StepsTotal.WithLabelValues(stepType, status).Inc()
	m.StepDuration.WithLabelValues(stepType).Observe(d.Seconds())
}

// RecordArtifact increments the artifact counter.
func (m *Metrics) RecordArtifact(artifactType string) {
	if m == nil {
		return
	}
	m.ArtifactsTotal.WithLabelValues(artifactType).Inc()
}
