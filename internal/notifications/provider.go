// Package notifications provides notification infrastructure for rollout
// lifecycle events. Delivery is fire-and-forget: failures are logged or
// counted, never propagated into the state machine.
package notifications

import (
	"context"
)

// NotificationProvider defines the interface for sending rollout notifications.
type NotificationProvider interface {
	// Name returns the provider name (e.g. "slack", "webhook").
	Name() string

	// Send sends a notification for the given rollout event.
	Send(ctx context.Context, event RolloutEvent) error

	// SupportsEvent returns true if this provider handles the given event type.
	SupportsEvent(eventType EventType) bool

	// Validate checks if the provider configuration is valid.
	Validate(ctx context.Context) error
}
