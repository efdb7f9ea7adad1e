// Package router defines the traffic router collaborator: the external
// system that actually shifts traffic between baseline and canary.
package router

import (
	"context"
	"fmt"
)

// WeightRequest asks the router to send the given percentage of a service's
// traffic to the canary. Sequence is monotonically increasing per service so
// a retried stale weight can never overwrite a newer one downstream.
type WeightRequest struct {
	Service  string `json:"service"`
	Weight   int    `json:"weight"`
	Sequence uint64 `json:"sequence"`
}

// TrafficRouter applies weight assignments. Implementations classify their
// failures as transient or permanent via the errors package so the dispatcher
// can decide what to retry.
//
// The router's acknowledgement is treated as authoritative; no read-back
// verification is performed after the propagation delay.
type TrafficRouter interface {
	// Name returns the adapter name (e.g. "webhook").
	Name() string

	// SetWeight applies a weight assignment. A nil return is the router's
	// acknowledgement.
	SetWeight(ctx context.Context, req WeightRequest) error
}

// Validate rejects weight requests that can never be applied.
func (r WeightRequest) Validate() error {
	if r.Service == "" {
		return fmt.Errorf("service identifier is required")
	}
	if r.Weight < 0 || r.Weight > 100 {
		return fmt.Errorf("weight %d out of range 0-100", r.Weight)
	}
	return nil
}
