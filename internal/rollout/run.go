package rollout

import (
	"context"
	"time"

	"github.com/systmms/canaryctl/internal/analysis"
	"github.com/systmms/canaryctl/internal/errors"
	"github.com/systmms/canaryctl/internal/notifications"
)

// run drives one rollout from Initializing to a terminal phase. It is the
// only goroutine that mutates the instance's state, so phase transitions
// for one rollout are totally ordered.
func (c *Controller) run(ctx context.Context, in *instance) {
	defer c.finish(in)

	if err := in.state.TransitionTo(PhaseProgressing, "spec validated", nil); err != nil {
		c.logger.Error("Rollout %s: %v", in.state.ID, err)
		return
	}
	c.notify(in, notifications.EventTypeStarted, nil)

	for {
		switch in.state.CurrentPhase() {
		case PhaseProgressing:
			c.progress(ctx, in)
		case PhasePaused:
			c.pause(ctx, in)
		case PhaseAnalyzing:
			c.analyze(ctx, in)
		case PhasePromoting:
			c.promote(ctx, in)
		case PhaseAborting:
			c.abort(ctx, in)
		default:
			// Terminal phase reached; no further transitions occur.
			return
		}
	}
}

// progress dispatches the current step's weight. A repeated weight is still
// dispatched (the call is idempotent) and is not an error.
func (c *Controller) progress(ctx context.Context, in *instance) {
	step := in.spec.Steps[in.state.Snapshot().StepIndex]

	if err := c.dispatcher.SetWeight(ctx, in.spec.Service, step.Weight); err != nil {
		c.fail(in, "router retries exhausted", err)
		return
	}
	in.state.SetWeight(step.Weight)
	recordWeight(in.spec.Service, step.Weight)
	c.logger.Info("Rollout %s: canary at %d%% for %s", in.state.ID, step.Weight, in.spec.Service)

	// Cancellation is honored here, after the in-flight router call
	// completed, never mid-call.
	if in.canceled() {
		c.beginAbort(in, "cancellation requested")
		return
	}

	c.transition(in, PhasePaused, "weight acknowledged", nil)
}

// pause waits out the step's dwell before analysis starts. The timer is
// armed from phase entry, never cumulative across retries.
func (c *Controller) pause(ctx context.Context, in *instance) {
	step := in.spec.Steps[in.state.Snapshot().StepIndex]

	timer := time.NewTimer(step.Pause)
	defer timer.Stop()

	select {
	case <-timer.C:
		c.transition(in, PhaseAnalyzing, "pause elapsed", nil)
	case <-in.cancelCh:
		c.beginAbort(in, "cancellation requested")
	case <-ctx.Done():
		c.fail(in, "controller shutting down", ctx.Err())
	}
}

// analyze runs evaluation cycles at the minimum check interval until the
// step's analysis window closes. Breaching a per-metric consecutive-failure
// limit or the total failure budget aborts immediately; the window closing
// with all metrics passing advances the schedule. If the window closes
// while a metric is still failing below its abort limit, the window re-arms
// and the rollout holds at the current weight.
func (c *Controller) analyze(ctx context.Context, in *instance) {
	step := in.spec.Steps[in.state.Snapshot().StepIndex]
	cadence := analysis.MinInterval(in.spec.Checks)

	window := time.NewTimer(step.Pause)
	defer window.Stop()
	ticker := time.NewTicker(cadence)
	defer ticker.Stop()

	// First cycle runs immediately on entering the phase.
	if done := c.evaluateCycle(ctx, in); done {
		return
	}

	for {
		select {
		case <-ticker.C:
			if done := c.evaluateCycle(ctx, in); done {
				return
			}
		case <-window.C:
			if in.state.AllPassing(in.spec.Checks) {
				c.advance(in)
				return
			}
			c.logger.Warn("Rollout %s: analysis window closed with failing metrics, holding at %d%%",
				in.state.ID, in.state.Snapshot().Weight)
			window.Reset(step.Pause)
		case <-in.cancelCh:
			c.beginAbort(in, "cancellation requested")
			return
		case <-ctx.Done():
			c.fail(in, "controller shutting down", ctx.Err())
			return
		}
	}
}

// evaluateCycle runs one read-and-judge pass. Returns true when the phase
// changed and the analyze loop must exit.
func (c *Controller) evaluateCycle(ctx context.Context, in *instance) bool {
	readings, err := c.source.Read(ctx, in.spec.Service, analysis.Names(in.spec.Checks))
	if err != nil {
		if errors.IsPermanent(err) {
			c.fail(in, "metric source permanently unreachable", err)
			return true
		}
		// A transient source failure yields no readings; every metric is
		// judged Unavailable this cycle, which counts as a failure.
		c.logger.Warn("Rollout %s: metric read failed: %v", in.state.ID, err)
		readings = nil
	}

	result := analysis.Evaluate(in.spec.Checks, readings)
	in.state.RecordCycle(result)
	recordEvaluation(result.Passed)

	if !result.Passed {
		c.logger.Warn("Rollout %s: evaluation cycle failed (%v)", in.state.ID, result.Failures())
	} else {
		c.logger.Debug("Rollout %s: evaluation cycle passed", in.state.ID)
	}

	if reason := in.state.AbortReason(in.spec.Checks, in.spec.FailureBudget); reason != "" {
		c.beginAbort(in, reason)
		return true
	}
	return false
}

// advance moves to the next step, or to Promoting when the schedule is done.
func (c *Controller) advance(in *instance) {
	snap := in.state.Snapshot()
	if in.spec.FinalStep(snap.StepIndex) {
		c.transition(in, PhasePromoting, "all steps analyzed clean", nil)
		return
	}

	in.state.AdvanceStep()
	c.transition(in, PhaseProgressing, "step analyzed clean", nil)
	c.notify(in, notifications.EventTypeStepAdvanced, nil)
}

// promote dispatches the final weight if not already current, then records
// success. Cancellation is rejected by the controller once this phase begins.
func (c *Controller) promote(ctx context.Context, in *instance) {
	if in.state.Snapshot().Weight != 100 {
		if err := c.dispatcher.SetWeight(ctx, in.spec.Service, 100); err != nil {
			c.fail(in, "promotion router call failed", err)
			return
		}
		in.state.SetWeight(100)
		recordWeight(in.spec.Service, 100)
	}

	c.transition(in, PhaseSucceeded, "canary promoted", nil)
	c.logger.Info("Rollout %s: %s promoted to 100%%", in.state.ID, in.spec.Service)
}

// beginAbort enters the Aborting phase with the given reason.
func (c *Controller) beginAbort(in *instance, reason string) {
	c.logger.Warn("Rollout %s: aborting: %s", in.state.ID, reason)
	c.transition(in, PhaseAborting, reason, nil)
}

// abort reverts traffic to the baseline. Rollback never gets stuck: if the
// revert call exhausts its retries the failure is logged and the rollout
// still completes to RolledBack, reported as degraded.
func (c *Controller) abort(ctx context.Context, in *instance) {
	if err := c.dispatcher.SetWeight(ctx, in.spec.Service, 0); err != nil {
		c.logger.Error("Rollout %s: revert failed, rollback degraded: %v", in.state.ID, err)
		in.state.MarkDegraded()
	}
	in.state.SetWeight(0)
	recordWeight(in.spec.Service, 0)

	c.transition(in, PhaseRolledBack, "traffic reverted to baseline", nil)
	c.logger.Info("Rollout %s: %s rolled back", in.state.ID, in.spec.Service)
}

// fail records an unrecoverable infrastructure error.
func (c *Controller) fail(in *instance, reason string, err error) {
	c.logger.Error("Rollout %s: failed: %s: %v", in.state.ID, reason, err)
	c.transition(in, PhaseFailed, reason, err)
}

// transition applies a phase change and logs invalid transitions, which
// indicate a controller bug rather than an operational condition.
func (c *Controller) transition(in *instance, next Phase, reason string, err error) {
	if terr := in.state.TransitionTo(next, reason, err); terr != nil {
		c.logger.Error("Rollout %s: %v", in.state.ID, terr)
	}
}

// finish handles terminal bookkeeping: metrics, notification, archival,
// and freeing the service for the next rollout.
func (c *Controller) finish(in *instance) {
	snap := in.state.Snapshot()

	recordCompletion(snap.Phase, in.state.Duration().Seconds())

	switch snap.Phase {
	case PhaseSucceeded:
		c.notify(in, notifications.EventTypePromoted, nil)
	case PhaseRolledBack:
		c.notify(in, notifications.EventTypeRolledBack, in.state.Err())
	case PhaseFailed:
		c.notify(in, notifications.EventTypeFailed, in.state.Err())
	}

	if c.archive != nil {
		if err := c.archive.Archive(snap); err != nil {
			c.logger.Warn("Rollout %s: archive failed: %v", in.state.ID, err)
		}
	}

	c.release(in)
	close(in.done)
}

// notify emits a lifecycle event. Fire-and-forget.
func (c *Controller) notify(in *instance, eventType notifications.EventType, err error) {
	snap := in.state.Snapshot()

	event := notifications.RolloutEvent{
		Type:      eventType,
		Service:   snap.Service,
		RolloutID: snap.ID,
		Phase:     string(snap.Phase),
		Weight:    snap.Weight,
		Error:     err,
		Duration:  in.state.Duration(),
		Timestamp: time.Now(),
	}
	if eventType.Terminal() {
		event.Summary = &notifications.Summary{
			StepsCompleted:    snap.StepIndex,
			TotalSteps:        len(in.spec.Steps),
			FinalWeight:       snap.Weight,
			FailedEvaluations: snap.TotalFailedEvaluations,
			Degraded:          snap.Degraded,
		}
		if snap.Phase == PhaseSucceeded {
			event.Summary.StepsCompleted = len(in.spec.Steps)
		}
		c.dispatcher.NotifyTerminal(event)
		return
	}

	c.dispatcher.Notify(event)
}
