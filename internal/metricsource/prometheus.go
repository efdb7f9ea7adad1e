package metricsource

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"text/template"
	"time"

	"github.com/systmms/canaryctl/internal/errors"
	"github.com/systmms/canaryctl/internal/logging"
)

// PrometheusConfig holds configuration for the Prometheus metric source.
type PrometheusConfig struct {
	// URL is the Prometheus base URL, e.g. "http://prometheus:9090".
	URL string

	// Queries maps metric names to PromQL instant query templates.
	// Templates receive {{.Service}} for the target workload, e.g.
	//   sum(rate(http_requests_total{service="{{.Service}}",slice="canary",code=~"5.."}[1m]))
	Queries map[string]string

	// Timeout bounds each read. Default: 5 seconds.
	Timeout time.Duration
}

// PrometheusSource reads canary metrics from the Prometheus HTTP API using
// instant queries.
type PrometheusSource struct {
	config    PrometheusConfig
	templates map[string]*template.Template
	client    *http.Client
	logger    *logging.Logger
}

// NewPrometheusSource creates a Prometheus metric source.
func NewPrometheusSource(config PrometheusConfig, logger *logging.Logger) (*PrometheusSource, error) {
	if config.URL == "" {
		return nil, fmt.Errorf("prometheus url is required")
	}
	parsed, err := url.Parse(config.URL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid prometheus url: %s", config.URL)
	}
	if len(config.Queries) == 0 {
		return nil, fmt.Errorf("at least one metric query is required")
	}
	if config.Timeout == 0 {
		config.Timeout = 5 * time.Second
	}
	if logger == nil {
		logger = logging.Discard()
	}

	templates := make(map[string]*template.Template, len(config.Queries))
	for name, query := range config.Queries {
		tmpl, err := template.New(name).Parse(query)
		if err != nil {
			return nil, fmt.Errorf("invalid query template for metric '%s': %w", name, err)
		}
		templates[name] = tmpl
	}

	return &PrometheusSource{
		config:    config,
		templates: templates,
		client:    &http.Client{Timeout: config.Timeout},
		logger:    logger,
	}, nil
}

// Name returns the adapter name.
func (s *PrometheusSource) Name() string {
	return "prometheus"
}

// Read runs one instant query per requested metric. Metrics without a
// configured query, or whose query returns an empty vector, are left out of
// the result so the analysis engine treats them as unavailable.
func (s *PrometheusSource) Read(ctx context.Context, service string, metricNames []string) (map[string]float64, error) {
	readings := make(map[string]float64, len(metricNames))

	for _, name := range metricNames {
		tmpl, ok := s.templates[name]
		if !ok {
			s.logger.Warn("No query configured for metric '%s'", name)
			continue
		}

		query, err := s.renderQuery(tmpl, service)
		if err != nil {
			return nil, errors.SourceError{
				Service: service,
				Kind:    errors.KindPermanent,
				Err:     fmt.Errorf("rendering query for metric '%s': %w", name, err),
			}
		}

		value, found, err := s.instantQuery(ctx, query)
		if err != nil {
			return nil, err
		}
		if !found {
			s.logger.Debug("Empty result for metric '%s' (query: %s)", name, query)
			continue
		}

		readings[name] = value
	}

	return readings, nil
}

func (s *PrometheusSource) renderQuery(tmpl *template.Template, service string) (string, error) {
	var buf bytes.Buffer
	data := map[string]string{"Service": service}
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// promResponse mirrors the subset of the Prometheus HTTP API response the
// source needs for instant vector queries.
type promResponse struct {
	Status string `json:"status"`
	Error  string `json:"error"`
	Data   struct {
		ResultType string `json:"resultType"`
		Result     []struct {
			Value [2]interface{} `json:"value"`
		} `json:"result"`
	} `json:"data"`
}

// instantQuery runs one query and returns the value of the first sample.
func (s *PrometheusSource) instantQuery(ctx context.Context, query string) (float64, bool, error) {
	endpoint := fmt.Sprintf("%s/api/v1/query?query=%s",
		s.config.URL, url.QueryEscape(query))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, false, errors.SourceError{Kind: errors.KindPermanent, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, false, errors.SourceError{Kind: errors.KindTransient, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return 0, false, errors.SourceError{
			Kind: errors.KindPermanent,
			Err:  fmt.Errorf("prometheus returned status %d", resp.StatusCode),
		}
	}
	if resp.StatusCode != http.StatusOK {
		return 0, false, errors.SourceError{
			Kind: errors.KindTransient,
			Err:  fmt.Errorf("prometheus returned status %d", resp.StatusCode),
		}
	}

	var parsed promResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return 0, false, errors.SourceError{Kind: errors.KindTransient, Err: err}
	}

	if parsed.Status != "success" {
		return 0, false, errors.SourceError{
			Kind: errors.KindPermanent,
			Err:  fmt.Errorf("query failed: %s", parsed.Error),
		}
	}

	if len(parsed.Data.Result) == 0 {
		return 0, false, nil
	}

	raw, ok := parsed.Data.Result[0].Value[1].(string)
	if !ok {
		return 0, false, errors.SourceError{
			Kind: errors.KindPermanent,
			Err:  fmt.Errorf("unexpected sample value type %T", parsed.Data.Result[0].Value[1]),
		}
	}

	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false, errors.SourceError{
			Kind: errors.KindPermanent,
			Err:  fmt.Errorf("parsing sample value %q: %w", raw, err),
		}
	}

	return value, true, nil
}
