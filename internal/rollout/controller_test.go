package rollout

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/canaryctl/internal/analysis"
	"github.com/systmms/canaryctl/internal/dispatch"
	"github.com/systmms/canaryctl/internal/errors"
	"github.com/systmms/canaryctl/internal/logging"
	"github.com/systmms/canaryctl/internal/router"
)

// fakeRouter records requested weights and returns scripted errors.
type fakeRouter struct {
	mu      sync.Mutex
	weights []int
	// failWeight maps a weight to the error every call for it returns.
	failWeight map[int]error
}

func (f *fakeRouter) Name() string { return "fake" }

func (f *fakeRouter) SetWeight(ctx context.Context, req router.WeightRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.weights = append(f.weights, req.Weight)
	if err, ok := f.failWeight[req.Weight]; ok {
		return err
	}
	return nil
}

func (f *fakeRouter) Weights() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]int, len(f.weights))
	copy(out, f.weights)
	return out
}

// fakeSource serves a fixed batch of readings.
type fakeSource struct {
	mu       sync.Mutex
	readings map[string]float64
	err      error
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) Read(ctx context.Context, service string, metricNames []string) (map[string]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string]float64, len(f.readings))
	for name, value := range f.readings {
		out[name] = value
	}
	return out, nil
}

func (f *fakeSource) Set(readings map[string]float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readings = readings
}

// recordingArchiver captures archived snapshots.
type recordingArchiver struct {
	mu        sync.Mutex
	snapshots []Snapshot
}

func (a *recordingArchiver) Archive(snapshot Snapshot) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.snapshots = append(a.snapshots, snapshot)
	return nil
}

func (a *recordingArchiver) Snapshots() []Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Snapshot, len(a.snapshots))
	copy(out, a.snapshots)
	return out
}

func newTestController(tr router.TrafficRouter, source *fakeSource, archive Archiver) *Controller {
	d := dispatch.New(tr, nil, dispatch.Config{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		CallTimeout:    time.Second,
	}, logging.Discard())
	return New(d, source, archive, logging.Discard())
}

// fastSpec returns a 3-step spec with millisecond timings so rollouts
// complete quickly.
func fastSpec(service string) Spec {
	return Spec{
		Service: service,
		Steps: []Step{
			{Weight: 10, Pause: 20 * time.Millisecond},
			{Weight: 50, Pause: 20 * time.Millisecond},
			{Weight: 100, Pause: 20 * time.Millisecond},
		},
		Checks: []analysis.MetricCheck{
			{
				Name:            "error_rate",
				Direction:       analysis.DirectionMax,
				Threshold:       1.0,
				Interval:        10 * time.Millisecond,
				FailuresToAbort: 3,
			},
		},
		FailureBudget: 20,
	}
}

func healthyReadings() map[string]float64 {
	return map[string]float64{"error_rate": 0.1}
}

func waitForPhase(t *testing.T, c *Controller, id string, phase Phase) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		snap, err := c.Status(id)
		require.NoError(t, err)
		if snap.Phase == phase {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	snap, _ := c.Status(id)
	t.Fatalf("rollout %s never reached %s (currently %s)", id, phase, snap.Phase)
}

func TestRolloutAllPassReachesSucceeded(t *testing.T) {
	t.Parallel()

	tr := &fakeRouter{}
	source := &fakeSource{readings: healthyReadings()}
	c := newTestController(tr, source, nil)

	id, err := c.Start(context.Background(), fastSpec("payments"))
	require.NoError(t, err)
	require.NoError(t, c.Wait(id))

	snap, err := c.Status(id)
	require.NoError(t, err)
	assert.Equal(t, PhaseSucceeded, snap.Phase)
	assert.Equal(t, 100, snap.Weight)

	// Exactly three weight-set calls, in schedule order.
	assert.Equal(t, []int{10, 50, 100}, tr.Weights())
	assert.Zero(t, c.ActiveCount())
}

func TestRolloutWeightsNeverDecreaseUntilAbort(t *testing.T) {
	t.Parallel()

	tr := &fakeRouter{}
	source := &fakeSource{readings: healthyReadings()}
	c := newTestController(tr, source, nil)

	id, err := c.Start(context.Background(), fastSpec("payments"))
	require.NoError(t, err)
	require.NoError(t, c.Wait(id))

	weights := tr.Weights()
	for i := 1; i < len(weights); i++ {
		assert.GreaterOrEqual(t, weights[i], weights[i-1])
	}
}

func TestRolloutConsecutiveFailuresAbort(t *testing.T) {
	t.Parallel()

	// First step passes, then readings regress for the second step.
	tr := &fakeRouter{}
	source := &fakeSource{readings: healthyReadings()}
	c := newTestController(tr, source, nil)

	spec := Spec{
		Service: "payments",
		Steps: []Step{
			{Weight: 5, Pause: 20 * time.Millisecond},
			{Weight: 100, Pause: 20 * time.Millisecond},
		},
		Checks: []analysis.MetricCheck{
			{
				Name:            "error_rate",
				Direction:       analysis.DirectionMax,
				Threshold:       1.0,
				Interval:        10 * time.Millisecond,
				FailuresToAbort: 3,
			},
		},
		FailureBudget: 50,
	}

	id, err := c.Start(context.Background(), spec)
	require.NoError(t, err)

	// Let the first step pass, then regress.
	waitForPhase(t, c, id, PhaseAnalyzing)
	time.Sleep(25 * time.Millisecond)
	source.Set(map[string]float64{"error_rate": 2.0})

	require.NoError(t, c.Wait(id))

	snap, err := c.Status(id)
	require.NoError(t, err)
	assert.Equal(t, PhaseRolledBack, snap.Phase)
	assert.Equal(t, 0, snap.Weight)
	assert.False(t, snap.Degraded)
	assert.GreaterOrEqual(t, snap.TotalFailedEvaluations, 3)

	// The final router call reverts to baseline, exactly once.
	weights := tr.Weights()
	require.NotEmpty(t, weights)
	assert.Equal(t, 0, weights[len(weights)-1])
	zeros := 0
	for _, w := range weights {
		if w == 0 {
			zeros++
		}
	}
	assert.Equal(t, 1, zeros)
}

func TestRolloutFailureBudgetAbortsWithoutConsecutiveRun(t *testing.T) {
	t.Parallel()

	tr := &fakeRouter{}
	// Readings missing entirely: every cycle is Unavailable, counted as
	// failed. The per-metric limit is unreachable, only the budget trips.
	source := &fakeSource{}
	c := newTestController(tr, source, nil)

	spec := fastSpec("payments")
	spec.Checks[0].FailuresToAbort = 1000
	spec.FailureBudget = 2

	id, err := c.Start(context.Background(), spec)
	require.NoError(t, err)
	require.NoError(t, c.Wait(id))

	snap, err := c.Status(id)
	require.NoError(t, err)
	assert.Equal(t, PhaseRolledBack, snap.Phase)
	assert.Greater(t, snap.TotalFailedEvaluations, spec.FailureBudget)
}

func TestRolloutInvalidSpecRejected(t *testing.T) {
	t.Parallel()

	tr := &fakeRouter{}
	c := newTestController(tr, &fakeSource{}, nil)

	spec := fastSpec("payments")
	spec.Steps = nil

	_, err := c.Start(context.Background(), spec)
	require.Error(t, err)

	reason, ok := IsRejected(err)
	require.True(t, ok)
	assert.Equal(t, ReasonInvalidSpec, reason)

	// No router call is ever issued for an invalid spec.
	assert.Empty(t, tr.Weights())
}

func TestRolloutDuplicateServiceRejected(t *testing.T) {
	t.Parallel()

	tr := &fakeRouter{}
	source := &fakeSource{readings: healthyReadings()}
	c := newTestController(tr, source, nil)

	spec := fastSpec("payments")
	spec.Steps[0].Pause = time.Minute

	id, err := c.Start(context.Background(), spec)
	require.NoError(t, err)

	_, err = c.Start(context.Background(), fastSpec("payments"))
	require.Error(t, err)
	reason, ok := IsRejected(err)
	require.True(t, ok)
	assert.Equal(t, ReasonAlreadyActive, reason)

	// The first rollout is unaffected by the rejected duplicate.
	snap, err := c.Status(id)
	require.NoError(t, err)
	assert.False(t, snap.Phase.IsTerminal())

	// A different service is independent.
	_, err = c.Start(context.Background(), fastSpec("checkout"))
	require.NoError(t, err)

	require.NoError(t, c.Cancel(id))
	require.NoError(t, c.Wait(id))
}

func TestRolloutCancelDuringPause(t *testing.T) {
	t.Parallel()

	tr := &fakeRouter{}
	source := &fakeSource{readings: healthyReadings()}
	c := newTestController(tr, source, nil)

	spec := fastSpec("payments")
	spec.Steps[0].Pause = time.Minute

	id, err := c.Start(context.Background(), spec)
	require.NoError(t, err)
	waitForPhase(t, c, id, PhasePaused)

	require.NoError(t, c.Cancel(id))
	require.NoError(t, c.Wait(id))

	snap, err := c.Status(id)
	require.NoError(t, err)
	assert.Equal(t, PhaseRolledBack, snap.Phase)
	assert.Equal(t, 0, snap.Weight)

	weights := tr.Weights()
	assert.Equal(t, []int{10, 0}, weights)
}

func TestRolloutCancelAfterTerminalRejected(t *testing.T) {
	t.Parallel()

	tr := &fakeRouter{}
	source := &fakeSource{readings: healthyReadings()}
	c := newTestController(tr, source, nil)

	id, err := c.Start(context.Background(), fastSpec("payments"))
	require.NoError(t, err)
	require.NoError(t, c.Wait(id))

	err = c.Cancel(id)
	require.Error(t, err)
	reason, ok := IsRejected(err)
	require.True(t, ok)
	assert.Equal(t, ReasonAlreadyTerminal, reason)
}

func TestRolloutCancelDuringPromotingRejected(t *testing.T) {
	t.Parallel()

	c := newTestController(&fakeRouter{}, &fakeSource{}, nil)

	// Promoting is too short-lived to catch through the run loop, so drive
	// a registered rollout's state there by hand.
	in := &instance{
		spec:     fastSpec("payments"),
		state:    NewState("ro-promoting", "payments"),
		cancelCh: make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, phase := range []Phase{PhaseProgressing, PhasePaused, PhaseAnalyzing, PhasePromoting} {
		require.NoError(t, in.state.TransitionTo(phase, "cancel ordering test", nil))
	}
	c.byID[in.state.ID] = in
	c.active[in.spec.Service] = in

	err := c.Cancel(in.state.ID)
	require.Error(t, err)
	reason, ok := IsRejected(err)
	require.True(t, ok)
	assert.Equal(t, ReasonPromotionStarted, reason)

	// The rejected cancel never signaled the run loop.
	assert.False(t, in.canceled())
}

func TestRolloutCancelUnknownID(t *testing.T) {
	t.Parallel()

	c := newTestController(&fakeRouter{}, &fakeSource{}, nil)
	assert.ErrorIs(t, c.Cancel("ro-missing"), ErrNotFound)

	_, err := c.Status("ro-missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRolloutPermanentRouterErrorFails(t *testing.T) {
	t.Parallel()

	tr := &fakeRouter{failWeight: map[int]error{
		10: errors.Permanent(assert.AnError),
	}}
	c := newTestController(tr, &fakeSource{}, nil)

	id, err := c.Start(context.Background(), fastSpec("payments"))
	require.NoError(t, err)
	require.NoError(t, c.Wait(id))

	snap, err := c.Status(id)
	require.NoError(t, err)
	assert.Equal(t, PhaseFailed, snap.Phase)
	assert.NotEmpty(t, snap.Error)

	// Permanent errors are not retried and no further weights are sent.
	assert.Equal(t, []int{10}, tr.Weights())
}

func TestRolloutDegradedRollback(t *testing.T) {
	t.Parallel()

	// The revert call fails permanently, yet the rollout must still
	// complete to RolledBack, flagged degraded.
	tr := &fakeRouter{failWeight: map[int]error{
		0: errors.Permanent(assert.AnError),
	}}
	source := &fakeSource{readings: map[string]float64{"error_rate": 5.0}}
	c := newTestController(tr, source, nil)

	id, err := c.Start(context.Background(), fastSpec("payments"))
	require.NoError(t, err)
	require.NoError(t, c.Wait(id))

	snap, err := c.Status(id)
	require.NoError(t, err)
	assert.Equal(t, PhaseRolledBack, snap.Phase)
	assert.True(t, snap.Degraded)
}

func TestRolloutArchivesTerminalSnapshot(t *testing.T) {
	t.Parallel()

	archive := &recordingArchiver{}
	source := &fakeSource{readings: healthyReadings()}
	c := newTestController(&fakeRouter{}, source, archive)

	id, err := c.Start(context.Background(), fastSpec("payments"))
	require.NoError(t, err)
	require.NoError(t, c.Wait(id))

	archived := archive.Snapshots()
	require.Len(t, archived, 1)
	assert.Equal(t, id, archived[0].ID)
	assert.Equal(t, PhaseSucceeded, archived[0].Phase)
	assert.NotEmpty(t, archived[0].Transitions)
}

func TestRolloutNoTransitionsAfterTerminal(t *testing.T) {
	t.Parallel()

	source := &fakeSource{readings: healthyReadings()}
	c := newTestController(&fakeRouter{}, source, nil)

	id, err := c.Start(context.Background(), fastSpec("payments"))
	require.NoError(t, err)
	require.NoError(t, c.Wait(id))

	before, err := c.Status(id)
	require.NoError(t, err)
	time.Sleep(30 * time.Millisecond)
	after, err := c.Status(id)
	require.NoError(t, err)

	assert.Equal(t, before.Phase, after.Phase)
	assert.Equal(t, len(before.Transitions), len(after.Transitions))
}

func TestRolloutListIncludesTerminalAndActive(t *testing.T) {
	t.Parallel()

	source := &fakeSource{readings: healthyReadings()}
	c := newTestController(&fakeRouter{}, source, nil)

	id, err := c.Start(context.Background(), fastSpec("payments"))
	require.NoError(t, err)
	require.NoError(t, c.Wait(id))

	spec := fastSpec("checkout")
	spec.Steps[0].Pause = time.Minute
	activeID, err := c.Start(context.Background(), spec)
	require.NoError(t, err)

	snapshots := c.List()
	assert.Len(t, snapshots, 2)

	require.NoError(t, c.Cancel(activeID))
	require.NoError(t, c.Wait(activeID))
}

func TestRolloutSameServiceAfterTerminalAllowed(t *testing.T) {
	t.Parallel()

	source := &fakeSource{readings: healthyReadings()}
	c := newTestController(&fakeRouter{}, source, nil)

	first, err := c.Start(context.Background(), fastSpec("payments"))
	require.NoError(t, err)
	require.NoError(t, c.Wait(first))

	second, err := c.Start(context.Background(), fastSpec("payments"))
	require.NoError(t, err)
	require.NoError(t, c.Wait(second))

	assert.NotEqual(t, first, second)
}
