package rollout

import (
	"time"

	"github.com/systmms/canaryctl/internal/analysis"
	"github.com/systmms/canaryctl/internal/errors"
)

// Step is one entry in the weight schedule: hold the given traffic share
// for the pause duration while analysis runs.
type Step struct {
	// Weight is the canary traffic percentage, 0-100.
	Weight int `yaml:"weight" json:"weight"`

	// Pause is the dwell time at this weight. It also bounds the analysis
	// window for the step.
	Pause time.Duration `yaml:"pause" json:"pause"`
}

// Spec is the immutable input defining one rollout attempt.
type Spec struct {
	// Service is the opaque identifier of the target workload.
	Service string `yaml:"service" json:"service"`

	// Steps is the ordered weight schedule. Weights must be non-decreasing
	// and the final step must be 100.
	Steps []Step `yaml:"steps" json:"steps"`

	// Checks are the metric thresholds evaluated each cycle.
	Checks []analysis.MetricCheck `yaml:"metricChecks" json:"metricChecks"`

	// FailureBudget is the total number of failed evaluation cycles
	// tolerated across the whole rollout. Exceeding it forces an abort,
	// independent of per-metric consecutive-failure counts.
	FailureBudget int `yaml:"analysisFailureBudget" json:"analysisFailureBudget"`
}

// Validate checks the spec before any router call is issued. All violations
// are reported as spec errors and rejected synchronously.
func (s Spec) Validate() error {
	if s.Service == "" {
		return errors.SpecError{
			Field:   "service",
			Message: "service identifier is required",
		}
	}

	if len(s.Steps) == 0 {
		return errors.SpecError{
			Field:      "steps",
			Message:    "at least one step is required",
			Suggestion: "Define a weight schedule ending at 100, e.g. [{weight: 10}, {weight: 50}, {weight: 100}]",
		}
	}

	previous := -1
	for _, step := range s.Steps {
		if step.Weight < 0 || step.Weight > 100 {
			return errors.SpecError{
				Field:   "steps.weight",
				Value:   step.Weight,
				Message: "weight must be between 0 and 100",
			}
		}
		if step.Weight < previous {
			return errors.SpecError{
				Field:      "steps.weight",
				Value:      step.Weight,
				Message:    "weights must be non-decreasing",
				Suggestion: "Reorder the steps so each weight is greater than or equal to the previous one",
			}
		}
		if step.Pause < 0 {
			return errors.SpecError{
				Field:   "steps.pause",
				Value:   step.Pause.String(),
				Message: "pause duration cannot be negative",
			}
		}
		previous = step.Weight
	}

	if final := s.Steps[len(s.Steps)-1].Weight; final != 100 {
		return errors.SpecError{
			Field:      "steps",
			Value:      final,
			Message:    "final step weight must be 100",
			Suggestion: "Append a final step with weight 100 so the rollout can promote",
		}
	}

	if len(s.Checks) == 0 {
		return errors.SpecError{
			Field:      "metricChecks",
			Message:    "at least one metric check is required",
			Suggestion: "A rollout without metric checks cannot distinguish a healthy canary from a broken one",
		}
	}
	for _, check := range s.Checks {
		if err := check.Validate(); err != nil {
			return err
		}
	}

	if s.FailureBudget < 0 {
		return errors.SpecError{
			Field:   "analysisFailureBudget",
			Value:   s.FailureBudget,
			Message: "failure budget cannot be negative",
		}
	}

	return nil
}

// FinalStep reports whether the given step index is the last in the schedule.
func (s Spec) FinalStep(index int) bool {
	return index == len(s.Steps)-1
}
