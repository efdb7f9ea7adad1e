// Package analysis implements the metric evaluation engine for canary
// rollouts. The engine is pure: it reads checks and a batch of readings and
// produces verdicts. All failure counters live with the caller so evaluation
// logic stays independently testable.
package analysis

import (
	"fmt"
	"time"

	"github.com/systmms/canaryctl/internal/errors"
)

// Direction states which side of the threshold is healthy.
type Direction string

const (
	// DirectionMax means readings above the threshold violate the check
	// (error rates, latency percentiles).
	DirectionMax Direction = "max"

	// DirectionMin means readings below the threshold violate the check
	// (availability, success ratios).
	DirectionMin Direction = "min"
)

// MetricCheck defines one threshold evaluated each cycle against the canary
// traffic slice.
type MetricCheck struct {
	// Name identifies the signal at the metric source (e.g. "error_rate").
	Name string `yaml:"name" json:"name"`

	// Direction is "max" or "min".
	Direction Direction `yaml:"direction" json:"direction"`

	// Threshold is the boundary value for the check.
	Threshold float64 `yaml:"threshold" json:"threshold"`

	// Interval is how often this check wants to be evaluated.
	Interval time.Duration `yaml:"interval" json:"interval"`

	// FailuresToAbort is the number of consecutive failing cycles that
	// forces an abort. Must be at least 1.
	FailuresToAbort int `yaml:"failures_to_abort" json:"failuresToAbort"`
}

// Validate checks a single metric check definition.
func (c MetricCheck) Validate() error {
	if c.Name == "" {
		return errors.SpecError{Field: "metricChecks.name", Message: "metric name is required"}
	}
	if c.Direction != DirectionMax && c.Direction != DirectionMin {
		return errors.SpecError{
			Field:      "metricChecks.direction",
			Value:      string(c.Direction),
			Message:    "direction must be 'max' or 'min'",
			Suggestion: "Use 'max' for error rates and latencies, 'min' for availability",
		}
	}
	if c.Interval <= 0 {
		return errors.SpecError{
			Field:   "metricChecks.interval",
			Value:   c.Interval.String(),
			Message: "evaluation interval must be positive",
		}
	}
	if c.FailuresToAbort < 1 {
		return errors.SpecError{
			Field:   "metricChecks.failures_to_abort",
			Value:   c.FailuresToAbort,
			Message: "consecutive failures to abort must be at least 1",
		}
	}
	return nil
}

// Verdict is the outcome of evaluating one metric for one cycle.
type Verdict string

const (
	// VerdictPass means the reading satisfies the threshold.
	VerdictPass Verdict = "pass"

	// VerdictFail means the reading violates the threshold.
	VerdictFail Verdict = "fail"

	// VerdictUnavailable means no reading was delivered for the metric.
	// Unavailable telemetry cannot prove safety, so it counts as a
	// failure everywhere verdicts are counted.
	VerdictUnavailable Verdict = "unavailable"
)

// Failed reports whether the verdict counts as a failure.
func (v Verdict) Failed() bool {
	return v != VerdictPass
}

// MetricVerdict pairs a metric with its verdict for one cycle.
type MetricVerdict struct {
	Name    string
	Verdict Verdict
	Value   float64
	Reason  string
}

// CycleResult is the aggregate outcome of one evaluation cycle.
type CycleResult struct {
	Verdicts []MetricVerdict

	// Passed is true only if every metric verdict passed.
	Passed bool
}

// Failures returns the names of metrics that did not pass this cycle.
func (r CycleResult) Failures() []string {
	var failed []string
	for _, v := range r.Verdicts {
		if v.Verdict.Failed() {
			failed = append(failed, v.Name)
		}
	}
	return failed
}

// Evaluate judges one batch of readings against the configured checks.
// Readings are values for the canary traffic slice, keyed by metric name.
func Evaluate(checks []MetricCheck, readings map[string]float64) CycleResult {
	result := CycleResult{
		Verdicts: make([]MetricVerdict, 0, len(checks)),
		Passed:   true,
	}

	for _, check := range checks {
		verdict := evaluateOne(check, readings)
		if verdict.Verdict.Failed() {
			result.Passed = false
		}
		result.Verdicts = append(result.Verdicts, verdict)
	}

	return result
}

func evaluateOne(check MetricCheck, readings map[string]float64) MetricVerdict {
	value, ok := readings[check.Name]
	if !ok {
		return MetricVerdict{
			Name:    check.Name,
			Verdict: VerdictUnavailable,
			Reason:  "no reading delivered",
		}
	}

	verdict := MetricVerdict{Name: check.Name, Value: value}

	switch check.Direction {
	case DirectionMin:
		if value < check.Threshold {
			verdict.Verdict = VerdictFail
			verdict.Reason = fmt.Sprintf("%g below minimum %g", value, check.Threshold)
		} else {
			verdict.Verdict = VerdictPass
		}
	default:
		if value > check.Threshold {
			verdict.Verdict = VerdictFail
			verdict.Reason = fmt.Sprintf("%g above maximum %g", value, check.Threshold)
		} else {
			verdict.Verdict = VerdictPass
		}
	}

	return verdict
}

// MinInterval returns the smallest evaluation interval across the checks.
// The state machine runs cycles at this cadence.
func MinInterval(checks []MetricCheck) time.Duration {
	var min time.Duration
	for _, check := range checks {
		if check.Interval <= 0 {
			continue
		}
		if min == 0 || check.Interval < min {
			min = check.Interval
		}
	}
	return min
}

// Names returns the metric names for a set of checks, in order.
func Names(checks []MetricCheck) []string {
	names := make([]string, 0, len(checks))
	for _, check := range checks {
		names = append(names, check.Name)
	}
	return names
}
