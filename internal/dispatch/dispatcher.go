// Package dispatch translates state machine decisions into traffic router
// calls and terminal notifications. It owns retry policy and per-service
// delivery ordering; the state machine never talks to the router directly.
package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/systmms/canaryctl/internal/errors"
	"github.com/systmms/canaryctl/internal/logging"
	"github.com/systmms/canaryctl/internal/notifications"
	"github.com/systmms/canaryctl/internal/router"
)

// Config holds retry and timeout policy for router calls.
type Config struct {
	// MaxAttempts is the number of tries per weight assignment. Default: 3.
	MaxAttempts int

	// InitialBackoff is the wait after the first failed attempt; it doubles
	// per attempt (1s, 2s, 4s). Default: 1 second.
	InitialBackoff time.Duration

	// CallTimeout bounds each individual router call. Default: 10 seconds.
	CallTimeout time.Duration
}

// DefaultConfig returns the default dispatcher configuration.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    3,
		InitialBackoff: 1 * time.Second,
		CallTimeout:    10 * time.Second,
	}
}

// lane serializes router mutations for one service and owns its request
// sequence. At most one in-flight router mutation per service at any instant.
type lane struct {
	mu  sync.Mutex
	seq uint64
}

// Dispatcher applies weight assignments with bounded retries and delivers
// terminal notifications.
type Dispatcher struct {
	router   router.TrafficRouter
	notifier *notifications.Manager
	config   Config
	logger   *logging.Logger

	lanes   map[string]*lane
	lanesMu sync.Mutex
}

// New creates a dispatcher over the given traffic router. The notifier may
// be nil when notifications are disabled.
func New(tr router.TrafficRouter, notifier *notifications.Manager, config Config, logger *logging.Logger) *Dispatcher {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.InitialBackoff <= 0 {
		config.InitialBackoff = 1 * time.Second
	}
	if config.CallTimeout <= 0 {
		config.CallTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = logging.Discard()
	}

	return &Dispatcher{
		router:   tr,
		notifier: notifier,
		config:   config,
		logger:   logger,
		lanes:    make(map[string]*lane),
	}
}

// laneFor returns the delivery lane for a service, creating it on first use.
func (d *Dispatcher) laneFor(service string) *lane {
	d.lanesMu.Lock()
	defer d.lanesMu.Unlock()

	l, ok := d.lanes[service]
	if !ok {
		l = &lane{}
		d.lanes[service] = l
	}
	return l
}

// SetWeight applies a weight assignment for a service. Calls for the same
// service are serialized and carry a monotonically increasing sequence
// number, so a retried stale weight can never overwrite a newer one.
//
// Transient router errors are retried up to MaxAttempts with capped
// exponential backoff; permanent errors return immediately.
func (d *Dispatcher) SetWeight(ctx context.Context, service string, weight int) error {
	l := d.laneFor(service)
	l.mu.Lock()
	defer l.mu.Unlock()

	l.seq++
	req := router.WeightRequest{
		Service:  service,
		Weight:   weight,
		Sequence: l.seq,
	}

	var lastErr error
	for attempt := 1; attempt <= d.config.MaxAttempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, d.config.CallTimeout)
		err := d.router.SetWeight(callCtx, req)
		cancel()

		if err == nil {
			d.logger.Debug("Router acknowledged weight %d for %s (seq %d, attempt %d)",
				weight, service, req.Sequence, attempt)
			return nil
		}
		lastErr = err

		if errors.IsPermanent(err) {
			d.logger.Error("Permanent router error for %s: %v", service, err)
			return fmt.Errorf("setting weight %d for %s: %w", weight, service, err)
		}

		d.logger.Warn("Transient router error for %s (attempt %d/%d): %v",
			service, attempt, d.config.MaxAttempts, err)

		// Don't sleep after the last attempt
		if attempt < d.config.MaxAttempts {
			backoff := d.config.InitialBackoff << (attempt - 1)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
				// Continue to next attempt
			}
		}
	}

	return fmt.Errorf("setting weight %d for %s after %d attempts: %w",
		weight, service, d.config.MaxAttempts, lastErr)
}

// NotifyTerminal reports a terminal rollout outcome. Fire-and-forget:
// delivery failures are counted by the notification manager, never returned.
func (d *Dispatcher) NotifyTerminal(event notifications.RolloutEvent) {
	if d.notifier == nil {
		return
	}
	d.logger.Debug("Queueing terminal notification %s for rollout %s", event.Type, event.RolloutID)
	d.notifier.Send(event)
}

// Notify reports a non-terminal lifecycle event.
func (d *Dispatcher) Notify(event notifications.RolloutEvent) {
	if d.notifier == nil {
		return
	}
	d.notifier.Send(event)
}

// RouterName returns the underlying router adapter name, for status output.
func (d *Dispatcher) RouterName() string {
	return d.router.Name()
}
