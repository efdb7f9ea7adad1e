package notifications

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// droppedTotal tracks notifications dropped due to queue overflow.
	droppedTotal prometheus.Counter

	// failedTotal tracks delivery failures per provider.
	failedTotal *prometheus.CounterVec

	// metricsOnce ensures metrics are only registered once.
	metricsOnce sync.Once

	// metricsRegistered indicates if metrics have been registered.
	metricsRegistered bool
)

// InitMetrics initializes the Prometheus metrics for notifications.
// This should be called once at startup if Prometheus metrics are enabled.
func InitMetrics() {
	metricsOnce.Do(func() {
		droppedTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "canaryctl_notifications_dropped_total",
			Help: "Total number of notification events dropped due to queue overflow",
		})
		failedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "canaryctl_notifications_failed_total",
				Help: "Total number of notification deliveries that failed",
			},
			[]string{"provider"},
		)
		metricsRegistered = true
	})
}

// incrementDroppedCounter increments the dropped notifications counter.
// Safe to call even if metrics have not been initialized.
func incrementDroppedCounter() {
	if metricsRegistered && droppedTotal != nil {
		droppedTotal.Inc()
	}
}

// incrementFailedCounter increments the failed deliveries counter.
func incrementFailedCounter(provider string) {
	if metricsRegistered && failedTotal != nil {
		failedTotal.WithLabelValues(provider).Inc()
	}
}

// GetDroppedCounter returns the current dropped counter for testing.
// Returns nil if metrics have not been initialized.
func GetDroppedCounter() prometheus.Counter {
	return droppedTotal
}
