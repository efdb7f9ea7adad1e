package rollout

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// startedTotal tracks rollouts accepted into the state machine.
	startedTotal prometheus.Counter

	// completedTotal tracks rollouts per terminal phase.
	completedTotal *prometheus.CounterVec

	// durationSeconds tracks rollout runtime from start to terminal phase.
	durationSeconds prometheus.Histogram

	// canaryWeight tracks the last weight acknowledged by the router,
	// per service.
	canaryWeight *prometheus.GaugeVec

	// evaluationsTotal tracks evaluation cycles per outcome.
	evaluationsTotal *prometheus.CounterVec

	// metricsOnce ensures metrics are only registered once.
	metricsOnce sync.Once

	// metricsRegistered indicates if metrics have been registered.
	metricsRegistered bool
)

// InitMetrics initializes the Prometheus metrics for the rollout controller.
// This should be called once at startup if Prometheus metrics are enabled.
func InitMetrics() {
	metricsOnce.Do(func() {
		startedTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "canaryctl_rollouts_started_total",
			Help: "Total number of rollouts accepted into the state machine",
		})
		completedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "canaryctl_rollouts_completed_total",
				Help: "Total number of rollouts reaching a terminal phase",
			},
			[]string{"phase"},
		)
		durationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "canaryctl_rollout_duration_seconds",
			Help:    "Rollout runtime from start to terminal phase",
			Buckets: prometheus.ExponentialBuckets(1, 4, 10),
		})
		canaryWeight = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "canaryctl_canary_weight",
				Help: "Last canary traffic weight acknowledged by the router",
			},
			[]string{"service"},
		)
		evaluationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "canaryctl_evaluations_total",
				Help: "Total number of analysis evaluation cycles",
			},
			[]string{"result"},
		)
		metricsRegistered = true
	})
}

// incrementStartedCounter records an accepted rollout.
// Safe to call even if metrics have not been initialized.
func incrementStartedCounter() {
	if metricsRegistered && startedTotal != nil {
		startedTotal.Inc()
	}
}

// recordCompletion records a terminal outcome and its runtime.
func recordCompletion(phase Phase, seconds float64) {
	if metricsRegistered && completedTotal != nil {
		completedTotal.WithLabelValues(string(phase)).Inc()
		durationSeconds.Observe(seconds)
	}
}

// recordWeight records the weight acknowledged by the router for a service.
func recordWeight(service string, weight int) {
	if metricsRegistered && canaryWeight != nil {
		canaryWeight.WithLabelValues(service).Set(float64(weight))
	}
}

// recordEvaluation records one evaluation cycle outcome.
func recordEvaluation(passed bool) {
	if metricsRegistered && evaluationsTotal != nil {
		result := "pass"
		if !passed {
			result = "fail"
		}
		evaluationsTotal.WithLabelValues(result).Inc()
	}
}
