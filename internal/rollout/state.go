package rollout

import (
	"fmt"
	"sync"
	"time"

	"github.com/systmms/canaryctl/internal/analysis"
)

// Transition records one phase change with metadata.
type Transition struct {
	FromPhase Phase
	ToPhase   Phase
	Reason    string
	Error     error
	Timestamp time.Time
}

// State is the mutable record owned exclusively by one rollout's state
// machine for its lifetime. It is archived once a terminal phase is reached.
type State struct {
	mu sync.RWMutex

	// ID uniquely identifies this rollout attempt.
	ID string

	// Service is the target workload identifier.
	Service string

	// Phase is the current lifecycle phase.
	Phase Phase

	// StepIndex is the index into the spec's weight schedule.
	StepIndex int

	// Weight mirrors the traffic percentage actually requested at the
	// router. It only increases while Progressing or Analyzing and drops
	// to 0 exactly once, on entering Aborting.
	Weight int

	// ConsecutiveFailures counts consecutive failing cycles per metric,
	// reset to zero on any pass of that metric.
	ConsecutiveFailures map[string]int

	// TotalFailedEvaluations counts failed cycles across the whole
	// rollout. Monotonically increasing, never reset.
	TotalFailedEvaluations int

	// Degraded marks a rollback whose revert call exhausted its retries.
	Degraded bool

	// StartedAt is when the rollout entered the state machine.
	StartedAt time.Time

	// LastTransitionAt is when the current phase was entered. Pause and
	// analysis windows are measured from here, re-armed on phase entry.
	LastTransitionAt time.Time

	// CompletedAt is when a terminal phase was reached.
	CompletedAt time.Time

	// Error is the error that drove a Failed or Aborting transition.
	Error error

	// Transitions is the history of phase changes.
	Transitions []Transition
}

// NewState creates the state record for a fresh rollout.
func NewState(id, service string) *State {
	now := time.Now()
	return &State{
		ID:                  id,
		Service:             service,
		Phase:               PhaseInitializing,
		ConsecutiveFailures: make(map[string]int),
		StartedAt:           now,
		LastTransitionAt:    now,
		Transitions:         make([]Transition, 0),
	}
}

// TransitionTo attempts to move to a new phase. Returns an error if the
// transition is not allowed, including any transition out of a terminal
// phase.
func (s *State) TransitionTo(next Phase, reason string, err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Phase.CanTransitionTo(next) {
		return fmt.Errorf("invalid phase transition from %s to %s", s.Phase, next)
	}

	s.Transitions = append(s.Transitions, Transition{
		FromPhase: s.Phase,
		ToPhase:   next,
		Reason:    reason,
		Error:     err,
		Timestamp: time.Now(),
	})
	s.Phase = next
	s.LastTransitionAt = time.Now()

	if err != nil {
		s.Error = err
	}
	if next.IsTerminal() {
		s.CompletedAt = time.Now()
	}

	return nil
}

// CurrentPhase returns the current phase (thread-safe).
func (s *State) CurrentPhase() Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Phase
}

// SetWeight records the traffic percentage acknowledged by the router.
func (s *State) SetWeight(weight int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Weight = weight
}

// AdvanceStep moves to the next step in the schedule.
func (s *State) AdvanceStep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.StepIndex++
}

// MarkDegraded flags the rollback as degraded after the revert call
// exhausted its retries.
func (s *State) MarkDegraded() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Degraded = true
}

// RecordCycle applies one evaluation cycle's verdicts to the failure
// counters: each failing metric's consecutive counter is incremented, each
// passing metric's counter resets, and a failed cycle increments the total.
func (s *State) RecordCycle(result analysis.CycleResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, v := range result.Verdicts {
		if v.Verdict.Failed() {
			s.ConsecutiveFailures[v.Name]++
		} else {
			s.ConsecutiveFailures[v.Name] = 0
		}
	}
	if !result.Passed {
		s.TotalFailedEvaluations++
	}
}

// AbortReason returns a non-empty reason if the failure counters demand an
// abort: a metric reached its consecutive-failure limit, or the total
// failure budget was exceeded.
func (s *State) AbortReason(checks []analysis.MetricCheck, budget int) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, check := range checks {
		if s.ConsecutiveFailures[check.Name] >= check.FailuresToAbort {
			return fmt.Sprintf("metric %s failed %d consecutive evaluation cycles",
				check.Name, s.ConsecutiveFailures[check.Name])
		}
	}
	if s.TotalFailedEvaluations > budget {
		return fmt.Sprintf("failure budget exceeded: %d failed cycles over budget %d",
			s.TotalFailedEvaluations, budget)
	}
	return ""
}

// AllPassing reports whether every metric's consecutive-failure counter is
// currently zero, meaning the last cycle left no metric in a failing run.
func (s *State) AllPassing(checks []analysis.MetricCheck) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, check := range checks {
		if s.ConsecutiveFailures[check.Name] != 0 {
			return false
		}
	}
	return true
}

// Err returns the recorded error, if any (thread-safe).
func (s *State) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Error
}

// Duration returns how long the rollout has been running, or the total
// runtime once a terminal phase was reached.
func (s *State) Duration() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.CompletedAt.IsZero() {
		return time.Since(s.StartedAt)
	}
	return s.CompletedAt.Sub(s.StartedAt)
}

// TransitionRecord is a read-only copy of one phase change.
type TransitionRecord struct {
	From      Phase     `json:"from"`
	To        Phase     `json:"to"`
	Reason    string    `json:"reason,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Snapshot is a read-only copy of the rollout state, safe to hand to
// external callers and to archive.
type Snapshot struct {
	ID                     string             `json:"id"`
	Service                string             `json:"service"`
	Phase                  Phase              `json:"phase"`
	StepIndex              int                `json:"currentStepIndex"`
	Weight                 int                `json:"currentWeight"`
	ConsecutiveFailures    map[string]int     `json:"perMetricConsecutiveFailures"`
	TotalFailedEvaluations int                `json:"totalFailedEvaluations"`
	Degraded               bool               `json:"degraded,omitempty"`
	StartedAt              time.Time          `json:"startedAt"`
	LastTransitionAt       time.Time          `json:"lastTransitionAt"`
	CompletedAt            time.Time          `json:"completedAt"`
	Error                  string             `json:"error,omitempty"`
	Transitions            []TransitionRecord `json:"transitions,omitempty"`
}

// Snapshot returns a deep read-only copy of the state.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		ID:                     s.ID,
		Service:                s.Service,
		Phase:                  s.Phase,
		StepIndex:              s.StepIndex,
		Weight:                 s.Weight,
		ConsecutiveFailures:    make(map[string]int, len(s.ConsecutiveFailures)),
		TotalFailedEvaluations: s.TotalFailedEvaluations,
		Degraded:               s.Degraded,
		StartedAt:              s.StartedAt,
		LastTransitionAt:       s.LastTransitionAt,
		CompletedAt:            s.CompletedAt,
		Transitions:            make([]TransitionRecord, 0, len(s.Transitions)),
	}
	for name, count := range s.ConsecutiveFailures {
		snap.ConsecutiveFailures[name] = count
	}
	if s.Error != nil {
		snap.Error = s.Error.Error()
	}
	for _, t := range s.Transitions {
		record := TransitionRecord{
			From:      t.FromPhase,
			To:        t.ToPhase,
			Reason:    t.Reason,
			Timestamp: t.Timestamp,
		}
		if t.Error != nil {
			record.Error = t.Error.Error()
		}
		snap.Transitions = append(snap.Transitions, record)
	}
	return snap
}
