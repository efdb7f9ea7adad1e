// Package metricsource defines the metric source collaborator and its
// adapters. A source delivers point-in-time values for named signals scoped
// to the canary traffic slice.
package metricsource

import (
	"context"
)

// MetricSource reads current values for the requested metric names.
//
// A metric missing from the returned map means the source had no reading for
// it; the analysis engine judges that as unavailable. An error return means
// the source itself could not be consulted.
type MetricSource interface {
	// Name returns the adapter name (e.g. "prometheus", "sql").
	Name() string

	// Read fetches readings for the canary slice of the given service.
	Read(ctx context.Context, service string, metricNames []string) (map[string]float64, error)
}
