package notifications

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookProviderName(t *testing.T) {
	t.Parallel()

	provider := NewWebhookProvider(WebhookConfig{URL: "https://example.com/hook"})
	assert.Equal(t, "webhook", provider.Name())

	provider = NewWebhookProvider(WebhookConfig{Name: "deploy-board", URL: "https://example.com/hook"})
	assert.Equal(t, "webhook:deploy-board", provider.Name())
}

func TestWebhookProviderValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		config  WebhookConfig
		wantErr bool
	}{
		{name: "valid", config: WebhookConfig{URL: "https://example.com/hook"}},
		{name: "missing url", config: WebhookConfig{}, wantErr: true},
		{name: "bad url", config: WebhookConfig{URL: "::"}, wantErr: true},
		{name: "bad method", config: WebhookConfig{URL: "https://example.com", Method: "DELETE"}, wantErr: true},
		{
			name:    "bad backoff",
			config:  WebhookConfig{URL: "https://example.com", Retry: &RetryConfig{Backoff: "random"}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := NewWebhookProvider(tt.config)
			err := provider.Validate(context.Background())
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestWebhookProviderDefaultPayload(t *testing.T) {
	t.Parallel()

	var got map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "secret", r.Header.Get("X-Token"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer server.Close()

	provider := NewWebhookProvider(WebhookConfig{
		URL:     server.URL,
		Headers: map[string]string{"X-Token": "secret"},
	})

	err := provider.Send(context.Background(), RolloutEvent{
		Type:      EventTypePromoted,
		Service:   "payments",
		RolloutID: "ro-42",
		Phase:     "Succeeded",
		Weight:    100,
		Timestamp: time.Now(),
		Summary:   &Summary{StepsCompleted: 3, TotalSteps: 3, FinalWeight: 100},
	})
	require.NoError(t, err)

	assert.Equal(t, "promoted", got["event"])
	assert.Equal(t, "payments", got["service"])
	assert.Equal(t, "ro-42", got["rollout_id"])
	assert.Equal(t, "Succeeded", got["phase"])
	assert.Equal(t, float64(100), got["weight"])

	summary, ok := got["summary"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(3), summary["total_steps"])
}

func TestWebhookProviderCustomTemplate(t *testing.T) {
	t.Parallel()

	var body string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		body = string(data)
	}))
	defer server.Close()

	provider := NewWebhookProvider(WebhookConfig{
		URL:             server.URL,
		PayloadTemplate: `{"msg":"{{.Service}} is now {{.Type}} at {{.Weight}}%"}`,
	})

	err := provider.Send(context.Background(), RolloutEvent{
		Type:    EventTypeStepAdvanced,
		Service: "payments",
		Weight:  50,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"msg":"payments is now step_advanced at 50%"}`, body)
}

func TestWebhookProviderRetriesThenSucceeds(t *testing.T) {
	t.Parallel()

	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	provider := NewWebhookProvider(WebhookConfig{
		URL: server.URL,
		Retry: &RetryConfig{
			MaxAttempts: 3,
			Backoff:     "fixed",
			InitialWait: 10 * time.Millisecond,
		},
	})

	err := provider.Send(context.Background(), RolloutEvent{Type: EventTypeStarted, Service: "payments"})
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestWebhookProviderExhaustsRetries(t *testing.T) {
	t.Parallel()

	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	provider := NewWebhookProvider(WebhookConfig{
		URL: server.URL,
		Retry: &RetryConfig{
			MaxAttempts: 2,
			Backoff:     "fixed",
			InitialWait: 10 * time.Millisecond,
		},
	})

	err := provider.Send(context.Background(), RolloutEvent{Type: EventTypeFailed, Service: "payments"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 attempts")
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestCalculateBackoff(t *testing.T) {
	t.Parallel()

	provider := NewWebhookProvider(WebhookConfig{
		URL:   "https://example.com",
		Retry: &RetryConfig{MaxAttempts: 4, Backoff: "exponential", InitialWait: time.Second},
	})

	assert.Equal(t, 1*time.Second, provider.calculateBackoff(1))
	assert.Equal(t, 2*time.Second, provider.calculateBackoff(2))
	assert.Equal(t, 4*time.Second, provider.calculateBackoff(3))

	provider.config.Retry.Backoff = "linear"
	assert.Equal(t, 3*time.Second, provider.calculateBackoff(3))

	provider.config.Retry.Backoff = "fixed"
	assert.Equal(t, time.Second, provider.calculateBackoff(3))
}
