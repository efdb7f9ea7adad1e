package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// SlackConfig holds configuration for Slack webhook notifications.
type SlackConfig struct {
	// WebhookURL is the Slack incoming webhook URL.
	WebhookURL string

	// Channel is the Slack channel to post to (optional, uses webhook default).
	Channel string

	// Events specifies which rollout events trigger notifications.
	// If empty, all events are sent.
	Events []string

	// Mentions specifies who to mention for specific events.
	Mentions *SlackMentions
}

// SlackMentions defines who to mention for specific event types.
type SlackMentions struct {
	// OnRollback lists Slack handles to mention when a rollout is
	// rolled back, e.g. ["@oncall", "@platform-team"].
	OnRollback []string

	// OnFailure lists Slack handles to mention when a rollout fails.
	OnFailure []string
}

// SlackProvider sends rollout notifications to Slack via webhooks.
type SlackProvider struct {
	config SlackConfig
	client *http.Client
}

// NewSlackProvider creates a new Slack notification provider.
func NewSlackProvider(config SlackConfig) *SlackProvider {
	return &SlackProvider{
		config: config,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Name returns the provider name.
func (p *SlackProvider) Name() string {
	return "slack"
}

// SupportsEvent returns true if this provider handles the given event type.
func (p *SlackProvider) SupportsEvent(eventType EventType) bool {
	// If no events are configured, support all
	if len(p.config.Events) == 0 {
		return true
	}

	eventStr := string(eventType)
	for _, e := range p.config.Events {
		if strings.EqualFold(e, eventStr) {
			return true
		}
	}
	return false
}

// Validate checks if the provider configuration is valid.
func (p *SlackProvider) Validate(ctx context.Context) error {
	if p.config.WebhookURL == "" {
		return fmt.Errorf("webhook URL is required")
	}

	parsed, err := url.Parse(p.config.WebhookURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("invalid webhook URL: %s", p.config.WebhookURL)
	}

	return nil
}

// Send sends a notification to Slack for the given rollout event.
func (p *SlackProvider) Send(ctx context.Context, event RolloutEvent) error {
	message := p.buildMessage(event)

	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal Slack message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("slack returned status %d", resp.StatusCode)
	}

	return nil
}

// slackMessage is the webhook payload.
type slackMessage struct {
	Channel string `json:"channel,omitempty"`
	Text    string `json:"text"`
}

// buildMessage builds the Slack message for the event.
func (p *SlackProvider) buildMessage(event RolloutEvent) slackMessage {
	var text strings.Builder

	switch event.Type {
	case EventTypeStarted:
		fmt.Fprintf(&text, ":rocket: Canary rollout started for *%s*", event.Service)
	case EventTypeStepAdvanced:
		fmt.Fprintf(&text, ":arrow_up: Canary for *%s* advanced to %d%% traffic", event.Service, event.Weight)
	case EventTypePromoted:
		fmt.Fprintf(&text, ":white_check_mark: Canary for *%s* promoted to 100%%", event.Service)
	case EventTypeRolledBack:
		fmt.Fprintf(&text, ":rewind: Canary for *%s* rolled back to baseline", event.Service)
	case EventTypeFailed:
		fmt.Fprintf(&text, ":x: Canary rollout for *%s* failed", event.Service)
	default:
		fmt.Fprintf(&text, "Canary rollout event %s for *%s*", event.Type, event.Service)
	}

	if event.RolloutID != "" {
		fmt.Fprintf(&text, " (rollout %s)", event.RolloutID)
	}
	if event.Error != nil {
		fmt.Fprintf(&text, "\n> %v", event.Error)
	}
	if event.Summary != nil {
		fmt.Fprintf(&text, "\nSteps: %d/%d · final weight %d%% · failed evaluations %d",
			event.Summary.StepsCompleted, event.Summary.TotalSteps,
			event.Summary.FinalWeight, event.Summary.FailedEvaluations)
		if event.Summary.Degraded {
			text.WriteString(" · *degraded: revert unacknowledged*")
		}
	}

	mentions := p.mentionsFor(event.Type)
	if len(mentions) > 0 {
		fmt.Fprintf(&text, "\ncc %s", strings.Join(mentions, " "))
	}

	return slackMessage{
		Channel: p.config.Channel,
		Text:    text.String(),
	}
}

// mentionsFor returns the handles to mention for the event type.
func (p *SlackProvider) mentionsFor(eventType EventType) []string {
	if p.config.Mentions == nil {
		return nil
	}
	switch eventType {
	case EventTypeRolledBack:
		return p.config.Mentions.OnRollback
	case EventTypeFailed:
		return p.config.Mentions.OnFailure
	default:
		return nil
	}
}
