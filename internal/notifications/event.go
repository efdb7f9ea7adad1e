package notifications

import (
	"time"
)

// EventType represents the type of rollout event.
type EventType string

const (
	// EventTypeStarted indicates a rollout has started.
	EventTypeStarted EventType = "started"

	// EventTypeStepAdvanced indicates a rollout advanced to the next
	// weight step after a passing analysis window.
	EventTypeStepAdvanced EventType = "step_advanced"

	// EventTypePromoted indicates the canary was fully promoted.
	EventTypePromoted EventType = "promoted"

	// EventTypeRolledBack indicates traffic was reverted to baseline.
	EventTypeRolledBack EventType = "rolled_back"

	// EventTypeFailed indicates the rollout failed on an unrecoverable
	// infrastructure error.
	EventTypeFailed EventType = "failed"
)

// Summary carries the counters reported with terminal events.
type Summary struct {
	// StepsCompleted is how many weight steps finished their analysis.
	StepsCompleted int

	// TotalSteps is the number of steps in the spec.
	TotalSteps int

	// FinalWeight is the last weight in effect at the router.
	FinalWeight int

	// FailedEvaluations is the total number of failed evaluation cycles.
	FailedEvaluations int

	// Degraded is true when a rollback completed without the router
	// acknowledging the revert.
	Degraded bool
}

// RolloutEvent represents a rollout lifecycle event for notifications.
type RolloutEvent struct {
	// Type is the type of event.
	Type EventType

	// Service is the target workload identifier.
	Service string

	// RolloutID is the unique identifier for this rollout.
	RolloutID string

	// Phase is the rollout phase when the event fired.
	Phase string

	// Weight is the canary weight when the event fired.
	Weight int

	// Summary is populated for terminal events.
	Summary *Summary

	// Error contains the failure cause, if any.
	Error error

	// Duration is how long the rollout had been running.
	Duration time.Duration

	// Timestamp is when the event occurred.
	Timestamp time.Time

	// Metadata contains additional context about the rollout.
	Metadata map[string]string
}

// Terminal reports whether the event type ends a rollout.
func (t EventType) Terminal() bool {
	return t == EventTypePromoted || t == EventTypeRolledBack || t == EventTypeFailed
}

// AllEventTypes returns all valid event types.
func AllEventTypes() []EventType {
	return []EventType{
		EventTypeStarted,
		EventTypeStepAdvanced,
		EventTypePromoted,
		EventTypeRolledBack,
		EventTypeFailed,
	}
}
