package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// GenerationMetrics tracks provider call outcomes per family.
type GenerationMetrics struct {
	duration *prometheus.HistogramVec
	outcomes *prometheus.CounterVec
	retries  *prometheus.CounterVec
}

// NewGenerationMetrics registers the generation metrics on the provided registerer.
func NewGenerationMetrics(reg prometheus.Registerer) *GenerationMetrics {
	if reg == nil {
		return &GenerationMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "generation_duration_seconds",
		Help:    "Wall-clock duration of generation requests in seconds.",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
	}, []string{"family", "operation"})
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "generation_outcomes_total",
		Help: "Terminal generation outcomes by result.",
	}, []string{"family", "operation", "outcome"})
	retries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "generation_retries_total",
		Help: "Retries performed against providers, by reason.",
	}, []string{"family", "reason"})
	reg.MustRegister(duration, outcomes, retries)
	return &GenerationMetrics{
		duration: duration,
		outcomes: outcomes,
		retries:  retries,
	}
}

// ObserveDuration records how long a generation request took end to end.
func (g *GenerationMetrics) ObserveDuration(family, operation string, d time.Duration) {
	if g == nil || g.duration == nil {
		return
	}
	g.duration.WithLabelValues(normalizeLabel(family), normalizeLabel(operation)).Observe(d.Seconds())
}

// IncOutcome counts a terminal outcome (completed, failed, timeout).
func (g *GenerationMetrics) IncOutcome(family, operation, outcome string) {
	if g == nil || g.outcomes == nil {
		return
	}
	g.outcomes.WithLabelValues(normalizeLabel(family), normalizeLabel(operation), normalizeLabel(outcome)).Inc()
}

// IncRetry counts a retry attempt with the classified reason.
func (g *GenerationMetrics) IncRetry(family, reason string) {
	if g == nil || g.retries == nil {
		return
	}
	g.retries.WithLabelValues(normalizeLabel(family), normalizeLabel(reason)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
