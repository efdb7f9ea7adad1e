package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlackProviderValidate(t *testing.T) {
	t.Parallel()

	provider := NewSlackProvider(SlackConfig{})
	assert.Error(t, provider.Validate(context.Background()))

	provider = NewSlackProvider(SlackConfig{WebhookURL: "not a url"})
	assert.Error(t, provider.Validate(context.Background()))

	provider = NewSlackProvider(SlackConfig{WebhookURL: "https://hooks.slack.com/services/T0/B0/xyz"})
	assert.NoError(t, provider.Validate(context.Background()))
}

func TestSlackProviderSupportsEvent(t *testing.T) {
	t.Parallel()

	provider := NewSlackProvider(SlackConfig{Events: []string{"rolled_back", "failed"}})
	assert.True(t, provider.SupportsEvent(EventTypeRolledBack))
	assert.True(t, provider.SupportsEvent(EventTypeFailed))
	assert.False(t, provider.SupportsEvent(EventTypeStarted))

	// Empty event list supports everything.
	provider = NewSlackProvider(SlackConfig{})
	assert.True(t, provider.SupportsEvent(EventTypeStepAdvanced))
}

func TestSlackProviderSend(t *testing.T) {
	t.Parallel()

	var got slackMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	provider := NewSlackProvider(SlackConfig{
		WebhookURL: server.URL,
		Channel:    "#deploys",
		Mentions: &SlackMentions{
			OnRollback: []string{"@oncall"},
		},
	})

	err := provider.Send(context.Background(), RolloutEvent{
		Type:      EventTypeRolledBack,
		Service:   "payments",
		RolloutID: "ro-123",
		Error:     errors.New("error_rate above maximum"),
		Summary: &Summary{
			StepsCompleted:    1,
			TotalSteps:        3,
			FinalWeight:       0,
			FailedEvaluations: 3,
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "#deploys", got.Channel)
	assert.Contains(t, got.Text, "payments")
	assert.Contains(t, got.Text, "rolled back")
	assert.Contains(t, got.Text, "ro-123")
	assert.Contains(t, got.Text, "error_rate above maximum")
	assert.Contains(t, got.Text, "Steps: 1/3")
	assert.Contains(t, got.Text, "@oncall")
}

func TestSlackProviderSendDegradedSummary(t *testing.T) {
	t.Parallel()

	var got slackMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer server.Close()

	provider := NewSlackProvider(SlackConfig{WebhookURL: server.URL})

	err := provider.Send(context.Background(), RolloutEvent{
		Type:    EventTypeRolledBack,
		Service: "payments",
		Summary: &Summary{Degraded: true, TotalSteps: 2},
	})
	require.NoError(t, err)
	assert.Contains(t, got.Text, "degraded")
}

func TestSlackProviderSendErrorStatus(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	provider := NewSlackProvider(SlackConfig{WebhookURL: server.URL})
	err := provider.Send(context.Background(), RolloutEvent{Type: EventTypePromoted, Service: "payments"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
}
