package router

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/systmms/canaryctl/internal/errors"
)

// WebhookConfig holds configuration for the webhook traffic router.
type WebhookConfig struct {
	// BaseURL is the router endpoint base, e.g. "https://mesh.internal".
	// Weight assignments are PUT to {BaseURL}/services/{service}/weight.
	BaseURL string

	// AuthType is one of "bearer", "api_key", "basic" or empty for none.
	AuthType string

	// AuthValue is the credential matching AuthType. For "basic" it is
	// "user:password".
	AuthValue string

	// Headers are additional HTTP headers to include on every request.
	Headers map[string]string

	// Timeout bounds each router call. Default: 10 seconds.
	Timeout time.Duration
}

// WebhookRouter applies traffic weights by calling an HTTP endpoint.
// Service meshes and ingress controllers front this with whatever weighted
// routing primitive they have; the controller only sees the acknowledgement.
type WebhookRouter struct {
	config WebhookConfig
	client *http.Client
}

// NewWebhookRouter creates a webhook traffic router.
func NewWebhookRouter(config WebhookConfig) (*WebhookRouter, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("base_url is required")
	}
	parsed, err := url.Parse(config.BaseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid base_url: %s", config.BaseURL)
	}

	switch config.AuthType {
	case "", "bearer", "api_key", "basic":
		// Valid
	default:
		return nil, fmt.Errorf("unsupported auth type: %s", config.AuthType)
	}

	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}

	return &WebhookRouter{
		config: config,
		client: &http.Client{
			Timeout: config.Timeout,
		},
	}, nil
}

// Name returns the adapter name.
func (r *WebhookRouter) Name() string {
	return "webhook"
}

// SetWeight applies a weight assignment via HTTP PUT.
func (r *WebhookRouter) SetWeight(ctx context.Context, req WeightRequest) error {
	if err := req.Validate(); err != nil {
		return errors.RouterError{
			Service: req.Service,
			Weight:  req.Weight,
			Kind:    errors.KindPermanent,
			Err:     err,
		}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return errors.RouterError{
			Service: req.Service,
			Weight:  req.Weight,
			Kind:    errors.KindPermanent,
			Err:     err,
		}
	}

	endpoint := strings.TrimRight(r.config.BaseURL, "/") +
		"/services/" + url.PathEscape(req.Service) + "/weight"

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(body))
	if err != nil {
		return errors.RouterError{
			Service: req.Service,
			Weight:  req.Weight,
			Kind:    errors.KindPermanent,
			Err:     err,
		}
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Canary-Sequence", fmt.Sprintf("%d", req.Sequence))
	for key, value := range r.config.Headers {
		httpReq.Header.Set(key, value)
	}
	r.addAuthentication(httpReq)

	resp, err := r.client.Do(httpReq)
	if err != nil {
		// Transport failures (timeouts, refused connections) are retryable.
		return errors.RouterError{
			Service: req.Service,
			Weight:  req.Weight,
			Kind:    errors.KindTransient,
			Err:     err,
		}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	// Drain a little of the body for the error message.
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

	return errors.RouterError{
		Service: req.Service,
		Weight:  req.Weight,
		Kind:    classifyStatus(resp.StatusCode),
		Err:     fmt.Errorf("router returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))),
	}
}

// addAuthentication adds credentials to the request.
func (r *WebhookRouter) addAuthentication(req *http.Request) {
	switch r.config.AuthType {
	case "bearer":
		req.Header.Set("Authorization", "Bearer "+r.config.AuthValue)
	case "api_key":
		req.Header.Set("X-API-Key", r.config.AuthValue)
	case "basic":
		if user, pass, ok := strings.Cut(r.config.AuthValue, ":"); ok {
			req.SetBasicAuth(user, pass)
		}
	}
}

// classifyStatus maps an HTTP status to a retry classification.
// Timeouts, throttling and 5xx are transient; auth failures and malformed
// or unknown targets are permanent.
func classifyStatus(status int) errors.Kind {
	switch {
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests:
		return errors.KindTransient
	case status >= 500:
		return errors.KindTransient
	default:
		return errors.KindPermanent
	}
}
