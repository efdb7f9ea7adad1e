package rollout

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/systmms/canaryctl/internal/dispatch"
	"github.com/systmms/canaryctl/internal/logging"
	"github.com/systmms/canaryctl/internal/metricsource"
)

// RejectionReason is the machine-readable reason a request was refused.
type RejectionReason string

const (
	// ReasonAlreadyActive means a non-terminal rollout exists for the
	// same service. Concurrent rollouts are rejected, never queued.
	ReasonAlreadyActive RejectionReason = "already-active"

	// ReasonInvalidSpec means the rollout spec failed validation.
	ReasonInvalidSpec RejectionReason = "invalid-spec"

	// ReasonAlreadyTerminal means the rollout has already reached a
	// terminal phase.
	ReasonAlreadyTerminal RejectionReason = "already-terminal"

	// ReasonPromotionStarted means cancellation arrived after Promoting
	// began. The rollout is past the point of safe reversal; undoing it
	// requires a fresh rollout in the opposite direction.
	ReasonPromotionStarted RejectionReason = "promotion-started"
)

// RejectedError is returned when a controller operation is refused. Callers
// receive the reason, never a raw infrastructure error.
type RejectedError struct {
	Reason RejectionReason
	Detail string
}

func (e RejectedError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("rejected (%s): %s", e.Reason, e.Detail)
	}
	return fmt.Sprintf("rejected (%s)", e.Reason)
}

// IsRejected reports whether err is a controller rejection, and if so,
// its reason.
func IsRejected(err error) (RejectionReason, bool) {
	if rejected, ok := err.(RejectedError); ok {
		return rejected.Reason, true
	}
	return "", false
}

// ErrNotFound is returned when no rollout exists for the given ID.
var ErrNotFound = fmt.Errorf("rollout not found")

// Archiver persists terminal rollout snapshots. Archive failures are
// logged, never propagated.
type Archiver interface {
	Archive(snapshot Snapshot) error
}

// instance pairs one rollout's spec, state, and cancellation signal.
type instance struct {
	spec  Spec
	state *State

	cancelOnce sync.Once
	cancelCh   chan struct{}

	// done closes when the run loop exits, after archival.
	done chan struct{}
}

// requestCancel signals the run loop. Idempotent.
func (in *instance) requestCancel() {
	in.cancelOnce.Do(func() { close(in.cancelCh) })
}

// canceled reports whether cancellation was requested.
func (in *instance) canceled() bool {
	select {
	case <-in.cancelCh:
		return true
	default:
		return false
	}
}

// Controller owns all rollout state machines. At most one non-terminal
// rollout exists per service; rollouts for different services run
// concurrently and independently.
type Controller struct {
	dispatcher *dispatch.Dispatcher
	source     metricsource.MetricSource
	archive    Archiver
	logger     *logging.Logger

	mu     sync.Mutex
	active map[string]*instance // keyed by service, non-terminal only
	byID   map[string]*instance

	wg sync.WaitGroup
}

// New creates a rollout controller. The archiver may be nil when archival
// is disabled.
func New(dispatcher *dispatch.Dispatcher, source metricsource.MetricSource, archive Archiver, logger *logging.Logger) *Controller {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Controller{
		dispatcher: dispatcher,
		source:     source,
		archive:    archive,
		logger:     logger,
		active:     make(map[string]*instance),
		byID:       make(map[string]*instance),
	}
}

// Start validates the spec and launches a rollout state machine for it.
// Returns the rollout ID, or a RejectedError with reason invalid-spec or
// already-active. Validation happens before any router call.
func (c *Controller) Start(ctx context.Context, spec Spec) (string, error) {
	if err := spec.Validate(); err != nil {
		return "", RejectedError{Reason: ReasonInvalidSpec, Detail: err.Error()}
	}

	c.mu.Lock()
	if existing, ok := c.active[spec.Service]; ok {
		id := existing.state.ID
		c.mu.Unlock()
		return "", RejectedError{
			Reason: ReasonAlreadyActive,
			Detail: fmt.Sprintf("rollout %s for service %s is still active", id, spec.Service),
		}
	}

	in := &instance{
		spec:     spec,
		state:    NewState(newRolloutID(), spec.Service),
		cancelCh: make(chan struct{}),
		done:     make(chan struct{}),
	}
	c.active[spec.Service] = in
	c.byID[in.state.ID] = in
	c.mu.Unlock()

	incrementStartedCounter()
	c.logger.Info("Starting rollout %s for %s (%d steps, %d metric checks)",
		in.state.ID, spec.Service, len(spec.Steps), len(spec.Checks))

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.run(ctx, in)
	}()

	return in.state.ID, nil
}

// Status returns a read-only snapshot of the rollout with the given ID.
func (c *Controller) Status(id string) (Snapshot, error) {
	c.mu.Lock()
	in, ok := c.byID[id]
	c.mu.Unlock()

	if !ok {
		return Snapshot{}, ErrNotFound
	}
	return in.state.Snapshot(), nil
}

// Cancel requests cancellation of a rollout. The request is honored at the
// state machine's next decision point, never mid router-call. Requests for
// terminal rollouts or rollouts past Promoting are rejected.
func (c *Controller) Cancel(id string) error {
	c.mu.Lock()
	in, ok := c.byID[id]
	c.mu.Unlock()

	if !ok {
		return ErrNotFound
	}

	switch phase := in.state.CurrentPhase(); {
	case phase.IsTerminal():
		return RejectedError{
			Reason: ReasonAlreadyTerminal,
			Detail: fmt.Sprintf("rollout %s already reached %s", id, phase),
		}
	case phase == PhasePromoting:
		return RejectedError{
			Reason: ReasonPromotionStarted,
			Detail: fmt.Sprintf("rollout %s is past the point of safe reversal", id),
		}
	case phase == PhaseAborting:
		// Already rolling back; the cancel is a no-op but not an error.
		return nil
	}

	c.logger.Info("Cancellation requested for rollout %s", id)
	in.requestCancel()
	return nil
}

// List returns snapshots of every rollout the controller knows about,
// active and terminal alike.
func (c *Controller) List() []Snapshot {
	c.mu.Lock()
	instances := make([]*instance, 0, len(c.byID))
	for _, in := range c.byID {
		instances = append(instances, in)
	}
	c.mu.Unlock()

	snapshots := make([]Snapshot, 0, len(instances))
	for _, in := range instances {
		snapshots = append(snapshots, in.state.Snapshot())
	}
	return snapshots
}

// ActiveCount returns the number of non-terminal rollouts.
func (c *Controller) ActiveCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.active)
}

// Wait blocks until the rollout with the given ID reaches a terminal phase.
func (c *Controller) Wait(id string) error {
	c.mu.Lock()
	in, ok := c.byID[id]
	c.mu.Unlock()

	if !ok {
		return ErrNotFound
	}
	<-in.done
	return nil
}

// Shutdown waits for all running rollouts to finish. Callers wanting a
// faster stop should cancel the context passed to Start.
func (c *Controller) Shutdown() {
	c.wg.Wait()
}

// release drops a terminal rollout from the active map so a new rollout
// for the same service can start.
func (c *Controller) release(in *instance) {
	c.mu.Lock()
	if c.active[in.spec.Service] == in {
		delete(c.active, in.spec.Service)
	}
	c.mu.Unlock()
}

// newRolloutID returns a short random identifier like "ro-9f2c4a1d".
func newRolloutID() string {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return "ro-00000000"
	}
	return "ro-" + hex.EncodeToString(buf)
}
