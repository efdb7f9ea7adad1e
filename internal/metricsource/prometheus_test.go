package metricsource

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/canaryctl/internal/errors"
	"github.com/systmms/canaryctl/internal/logging"
)

func promTestConfig(url string) PrometheusConfig {
	return PrometheusConfig{
		URL: url,
		Queries: map[string]string{
			"error_rate":   `canary:error_rate{service="{{.Service}}"}`,
			"latency_p99":  `canary:latency_p99{service="{{.Service}}"}`,
			"availability": `canary:availability{service="{{.Service}}"}`,
		},
	}
}

func vectorResponse(value string) string {
	return fmt.Sprintf(`{"status":"success","data":{"resultType":"vector","result":[{"metric":{},"value":[1724500000.0,"%s"]}]}}`, value)
}

func TestNewPrometheusSourceValidation(t *testing.T) {
	t.Parallel()

	_, err := NewPrometheusSource(PrometheusConfig{}, nil)
	assert.ErrorContains(t, err, "prometheus url is required")

	_, err = NewPrometheusSource(PrometheusConfig{URL: "http://prom:9090"}, nil)
	assert.ErrorContains(t, err, "at least one metric query is required")

	_, err = NewPrometheusSource(PrometheusConfig{
		URL:     "http://prom:9090",
		Queries: map[string]string{"error_rate": `{{.Broken`},
	}, nil)
	assert.ErrorContains(t, err, "invalid query template")
}

func TestPrometheusSourceRead(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query().Get("query")
		assert.Contains(t, query, `service="payments"`)

		w.Header().Set("Content-Type", "application/json")
		switch {
		case query == `canary:error_rate{service="payments"}`:
			fmt.Fprint(w, vectorResponse("0.42"))
		case query == `canary:latency_p99{service="payments"}`:
			fmt.Fprint(w, vectorResponse("125.5"))
		default:
			// Empty vector: metric unavailable.
			fmt.Fprint(w, `{"status":"success","data":{"resultType":"vector","result":[]}}`)
		}
	}))
	defer server.Close()

	source, err := NewPrometheusSource(promTestConfig(server.URL), logging.Discard())
	require.NoError(t, err)
	assert.Equal(t, "prometheus", source.Name())

	readings, err := source.Read(context.Background(),
		"payments", []string{"error_rate", "latency_p99", "availability"})
	require.NoError(t, err)

	assert.Equal(t, map[string]float64{
		"error_rate":  0.42,
		"latency_p99": 125.5,
	}, readings)
	_, hasAvailability := readings["availability"]
	assert.False(t, hasAvailability, "empty vector must be left out of readings")
}

func TestPrometheusSourceUnconfiguredMetricSkipped(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, vectorResponse("1"))
	}))
	defer server.Close()

	source, err := NewPrometheusSource(promTestConfig(server.URL), logging.Discard())
	require.NoError(t, err)

	readings, err := source.Read(context.Background(), "payments", []string{"unknown_metric"})
	require.NoError(t, err)
	assert.Empty(t, readings)
}

func TestPrometheusSourceErrorClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    errors.Kind
	}{
		{
			name: "server error is transient",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusServiceUnavailable)
			},
			want: errors.KindTransient,
		},
		{
			name: "auth failure is permanent",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
			},
			want: errors.KindPermanent,
		},
		{
			name: "query error is permanent",
			handler: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, `{"status":"error","error":"parse error"}`)
			},
			want: errors.KindPermanent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			source, err := NewPrometheusSource(promTestConfig(server.URL), logging.Discard())
			require.NoError(t, err)

			_, err = source.Read(context.Background(), "payments", []string{"error_rate"})
			require.Error(t, err)
			assert.Equal(t, tt.want, errors.KindOf(err))
		})
	}
}

func TestPrometheusSourceUnreachableIsTransient(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	source, err := NewPrometheusSource(promTestConfig(server.URL), logging.Discard())
	require.NoError(t, err)

	_, err = source.Read(context.Background(), "payments", []string{"error_rate"})
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))
}
