package config

import (
	"time"

	"github.com/systmms/canaryctl/internal/notifications"
)

// NotificationConfig holds configuration for rollout notifications.
type NotificationConfig struct {
	// QueueSize bounds the in-memory event queue (default 100).
	QueueSize int `yaml:"queue_size,omitempty"`

	// Slack configuration for Slack webhook notifications.
	Slack *SlackNotificationConfig `yaml:"slack,omitempty"`

	// Webhooks configuration for custom webhook notifications.
	Webhooks []WebhookNotificationConfig `yaml:"webhooks,omitempty"`
}

// SlackNotificationConfig holds Slack webhook configuration for rollout events.
type SlackNotificationConfig struct {
	// WebhookURL is the Slack incoming webhook URL.
	WebhookURL string `yaml:"webhook_url"`

	// Channel is the Slack channel to post to (optional, uses webhook default).
	Channel string `yaml:"channel,omitempty"`

	// Events specifies which rollout events trigger notifications.
	// Valid values: started, step_advanced, promoted, rolled_back, failed.
	// If empty, all events are sent.
	Events []string `yaml:"events,omitempty"`

	// Mentions specifies who to mention for specific event types.
	Mentions *SlackMentionsConfig `yaml:"mentions,omitempty"`
}

// SlackMentionsConfig defines who to mention for specific event types.
type SlackMentionsConfig struct {
	// OnRollback lists Slack handles to mention when a rollout rolls back.
	// Examples: ["@oncall", "@platform-team"]
	OnRollback []string `yaml:"on_rollback,omitempty"`

	// OnFailure lists Slack handles to mention when a rollout fails.
	OnFailure []string `yaml:"on_failure,omitempty"`
}

// WebhookNotificationConfig holds configuration for custom webhook notifications.
type WebhookNotificationConfig struct {
	// Name is a human-readable name for this webhook.
	Name string `yaml:"name"`

	// URL is the webhook endpoint URL.
	URL string `yaml:"url"`

	// Method is the HTTP method to use (default: POST).
	Method string `yaml:"method,omitempty"`

	// Headers are additional HTTP headers to include.
	Headers map[string]string `yaml:"headers,omitempty"`

	// Events specifies which rollout events trigger notifications.
	Events []string `yaml:"events,omitempty"`

	// PayloadTemplate is a Go template for the request body.
	// If empty, a default JSON payload is used.
	PayloadTemplate string `yaml:"payload_template,omitempty"`

	// Retry configuration.
	Retry *WebhookRetryConfig `yaml:"retry,omitempty"`

	// Timeout in seconds (default: 10).
	TimeoutSeconds int `yaml:"timeout,omitempty"`
}

// WebhookRetryConfig holds retry configuration for webhooks.
type WebhookRetryConfig struct {
	// MaxAttempts is the maximum number of retry attempts (default: 3).
	MaxAttempts int `yaml:"max_attempts,omitempty"`

	// Backoff strategy: linear, exponential, fixed (default: exponential).
	Backoff string `yaml:"backoff,omitempty"`
}

// BuildManager creates a notification manager from the configuration.
// Returns nil when no providers are configured.
func (n *NotificationConfig) BuildManager() *notifications.Manager {
	if n == nil || (n.Slack == nil && len(n.Webhooks) == 0) {
		return nil
	}

	queueSize := n.QueueSize
	if queueSize <= 0 {
		queueSize = notifications.DefaultQueueSize
	}
	manager := notifications.NewManager(queueSize)

	if n.Slack != nil {
		slack := notifications.SlackConfig{
			WebhookURL: n.Slack.WebhookURL,
			Channel:    n.Slack.Channel,
			Events:     n.Slack.Events,
		}
		if n.Slack.Mentions != nil {
			slack.Mentions = &notifications.SlackMentions{
				OnRollback: n.Slack.Mentions.OnRollback,
				OnFailure:  n.Slack.Mentions.OnFailure,
			}
		}
		manager.RegisterProvider(notifications.NewSlackProvider(slack))
	}

	for _, hook := range n.Webhooks {
		webhook := notifications.WebhookConfig{
			Name:            hook.Name,
			URL:             hook.URL,
			Method:          hook.Method,
			Headers:         hook.Headers,
			Events:          hook.Events,
			PayloadTemplate: hook.PayloadTemplate,
			Timeout:         time.Duration(hook.TimeoutSeconds) * time.Second,
		}
		if hook.Retry != nil {
			webhook.Retry = &notifications.RetryConfig{
				MaxAttempts: hook.Retry.MaxAttempts,
				Backoff:     hook.Retry.Backoff,
			}
		}
		manager.RegisterProvider(notifications.NewWebhookProvider(webhook))
	}

	return manager
}
