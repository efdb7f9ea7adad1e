package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/systmms/canaryctl/internal/config"
	"github.com/systmms/canaryctl/internal/rollout"
)

// apiClient talks to a running canaryctl serve instance.
type apiClient struct {
	base   string
	client *http.Client
}

func newAPIClient(server string) *apiClient {
	return &apiClient{
		base:   server,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// apiError is the server's machine-readable rejection payload.
type apiError struct {
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

func (e apiError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Reason, e.Message)
	}
	return e.Reason
}

func (c *apiClient) startRollout(doc config.RolloutDocument) (string, error) {
	payload, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("failed to encode rollout: %w", err)
	}

	resp, err := c.client.Post(c.base+"/v1/rollouts", "application/json", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to reach controller at %s: %w", c.base, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusCreated {
		return "", decodeAPIError(resp)
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	return created.ID, nil
}

func (c *apiClient) status(id string) (rollout.Snapshot, error) {
	resp, err := c.client.Get(c.base + "/v1/rollouts/" + id)
	if err != nil {
		return rollout.Snapshot{}, fmt.Errorf("failed to reach controller at %s: %w", c.base, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return rollout.Snapshot{}, decodeAPIError(resp)
	}

	var snap rollout.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return rollout.Snapshot{}, fmt.Errorf("failed to decode response: %w", err)
	}
	return snap, nil
}

func (c *apiClient) list() ([]rollout.Snapshot, error) {
	resp, err := c.client.Get(c.base + "/v1/rollouts")
	if err != nil {
		return nil, fmt.Errorf("failed to reach controller at %s: %w", c.base, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeAPIError(resp)
	}

	var snapshots []rollout.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snapshots); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return snapshots, nil
}

func (c *apiClient) cancel(id string) error {
	req, err := http.NewRequest(http.MethodDelete, c.base+"/v1/rollouts/"+id, nil)
	if err != nil {
		return err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach controller at %s: %w", c.base, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusAccepted {
		return decodeAPIError(resp)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	var apiErr apiError
	if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil || apiErr.Reason == "" {
		return fmt.Errorf("controller returned status %d", resp.StatusCode)
	}
	return apiErr
}

// phaseGlyph returns a one-character marker for table output.
func phaseGlyph(phase rollout.Phase) string {
	switch phase {
	case rollout.PhaseSucceeded:
		return "✓"
	case rollout.PhaseRolledBack, rollout.PhaseFailed:
		return "✗"
	default:
		return "…"
	}
}
