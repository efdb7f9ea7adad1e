// Package rollout implements the canary rollout controller: the per-service
// state machine that shifts traffic in weighted steps, evaluates metrics
// during each step's dwell time, and promotes or rolls back.
package rollout

// Phase is the lifecycle phase of one rollout.
type Phase string

const (
	// PhaseInitializing is the phase before the first weight is dispatched.
	PhaseInitializing Phase = "Initializing"

	// PhaseProgressing indicates the current step's weight is being
	// dispatched to the traffic router.
	PhaseProgressing Phase = "Progressing"

	// PhasePaused indicates the step's weight is applied and the rollout
	// is waiting out the configured pause before analysis starts.
	PhasePaused Phase = "Paused"

	// PhaseAnalyzing indicates evaluation cycles are running against the
	// canary's metrics.
	PhaseAnalyzing Phase = "Analyzing"

	// PhasePromoting indicates the final weight is being dispatched.
	// Cancellation is no longer possible.
	PhasePromoting Phase = "Promoting"

	// PhaseSucceeded indicates the canary received 100% of traffic.
	PhaseSucceeded Phase = "Succeeded"

	// PhaseAborting indicates traffic is being reverted to the baseline.
	PhaseAborting Phase = "Aborting"

	// PhaseRolledBack indicates the revert completed (possibly degraded).
	PhaseRolledBack Phase = "RolledBack"

	// PhaseFailed indicates an unrecoverable infrastructure error.
	PhaseFailed Phase = "Failed"
)

// String returns the string representation of the phase.
func (p Phase) String() string {
	return string(p)
}

// IsTerminal returns true once no further transitions or weight changes
// may occur.
func (p Phase) IsTerminal() bool {
	return p == PhaseSucceeded || p == PhaseRolledBack || p == PhaseFailed
}

// ValidTransitions defines allowed phase transitions.
var ValidTransitions = map[Phase][]Phase{
	PhaseInitializing: {PhaseProgressing, PhaseFailed},
	PhaseProgressing:  {PhasePaused, PhaseAborting, PhaseFailed},
	PhasePaused:       {PhaseAnalyzing, PhaseAborting, PhaseFailed},
	PhaseAnalyzing:    {PhaseProgressing, PhasePromoting, PhaseAborting, PhaseFailed},
	PhasePromoting:    {PhaseSucceeded, PhaseFailed},
	PhaseAborting:     {PhaseRolledBack},
	PhaseSucceeded:    {},
	PhaseRolledBack:   {},
	PhaseFailed:       {},
}

// CanTransitionTo checks if a transition from the current phase to the new
// phase is valid.
func (p Phase) CanTransitionTo(next Phase) bool {
	validPhases, ok := ValidTransitions[p]
	if !ok {
		return false
	}
	for _, valid := range validPhases {
		if valid == next {
			return true
		}
	}
	return false
}

// AllPhases returns every defined phase, for documentation and validation.
func AllPhases() []Phase {
	return []Phase{
		PhaseInitializing,
		PhaseProgressing,
		PhasePaused,
		PhaseAnalyzing,
		PhasePromoting,
		PhaseSucceeded,
		PhaseAborting,
		PhaseRolledBack,
		PhaseFailed,
	}
}
