package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SweeperMetrics records metadata for background sweep jobs.
type SweeperMetrics struct {
	duration *prometheus.HistogramVec
	removed  *prometheus.CounterVec
	failure  *prometheus.CounterVec
}

// NewSweeperMetrics registers the sweeper metrics on the provided registerer.
func NewSweeperMetrics(reg prometheus.Registerer) *SweeperMetrics {
	if reg == nil {
		return &SweeperMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sweep_duration_seconds",
		Help:    "Duration of sweep runs in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	removed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sweep_removed_total",
		Help: "Records removed by sweep runs.",
	}, []string{"job"})
	failure := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sweep_failure_total",
		Help: "Failed sweep runs.",
	}, []string{"job"})
	reg.MustRegister(duration, removed, failure)
	return &SweeperMetrics{
		duration: duration,
		removed:  removed,
		failure:  failure,
	}
}

// ObserveDuration records the duration for the named sweep job.
func (s *SweeperMetrics) ObserveDuration(job string, d time.Duration) {
	if s == nil || s.duration == nil {
		return
	}
	s.duration.WithLabelValues(normalizeLabel(job)).Observe(d.Seconds())
}

// AddRemoved counts rows/objects removed by the named sweep job.
func (s *SweeperMetrics) AddRemoved(job string, n int) {
	if s == nil || s.removed == nil || n <= 0 {
		return
	}
	s.removed.WithLabelValues(normalizeLabel(job)).Add(float64(n))
}

// IncFailure counts a failed sweep run.
func (s *SweeperMetrics) IncFailure(job string) {
	if s == nil || s.failure == nil {
		return
	}
	s.failure.WithLabelValues(normalizeLabel(job)).Inc()
}
