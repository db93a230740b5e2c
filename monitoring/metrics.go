// Package monitoring exposes prometheus metrics for embedding and clustering
// runs. A nil *Metrics is valid and records nothing.
package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the collectors updated by embedding and clustering runs.
type Metrics struct {
	PhaseDuration *prometheus.HistogramVec
	Epochs        prometheus.Counter
	KmeansRuns    *prometheus.CounterVec
	Observations  prometheus.Gauge
}

// NewMetrics creates the metrics and registers them with reg. A nil reg
// creates unregistered metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		PhaseDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "umapkit_phase_duration_seconds",
				Help:    "Duration of the phases of an embedding run",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"phase"}, // neighbors, graph, init, optimize
		),
		Epochs: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "umapkit_epochs_total",
				Help: "Total number of layout optimization epochs run",
			},
		),
		KmeansRuns: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "umapkit_kmeans_runs_total",
				Help: "Total number of k-means runs",
			},
			[]string{"refine", "status"},
		),
		Observations: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "umapkit_observations",
				Help: "Number of observations in the last embedding run",
			},
		),
	}
}

// ObservePhase records how long a phase took.
func (m *Metrics) ObservePhase(phase string, d time.Duration) {
	if m == nil {
		return
	}
	m.PhaseDuration.WithLabelValues(phase).Observe(d.Seconds())
}

// TrackPhase starts timing a phase; call the returned function when it ends.
func (m *Metrics) TrackPhase(phase string) func() {
	start := time.Now()
	return func() {
		m.ObservePhase(phase, time.Since(start))
	}
}

// AddEpochs counts completed optimization epochs.
func (m *Metrics) AddEpochs(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.Epochs.Add(float64(n))
}

// KmeansRun counts a finished k-means run.
func (m *Metrics) KmeansRun(refine, status string) {
	if m == nil {
		return
	}
	m.KmeansRuns.WithLabelValues(refine, status).Inc()
}

// SetObservations records the size of the current embedding run.
func (m *Metrics) SetObservations(n int) {
	if m == nil {
		return
	}
	m.Observations.Set(float64(n))
}
