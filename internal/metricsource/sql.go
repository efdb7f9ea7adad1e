package metricsource

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	// Drivers for the supported metric warehouses.
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"

	"github.com/systmms/canaryctl/internal/errors"
)

// SQLConfig holds configuration for the SQL metric source.
type SQLConfig struct {
	// Driver is "postgres" or "mysql".
	Driver string

	// DSN is the driver-specific connection string.
	DSN string

	// Query selects readings for one service. It must accept the service
	// identifier as its single placeholder argument and return rows of
	// (metric_name, value), e.g.
	//   SELECT metric, value FROM canary_metrics WHERE service = $1
	Query string

	// Timeout bounds each read. Default: 5 seconds.
	Timeout time.Duration
}

// SQLSource reads canary metrics from a SQL warehouse where an aggregation
// pipeline has already materialized per-service slice metrics.
type SQLSource struct {
	config SQLConfig
	db     *sql.DB
}

// NewSQLSource creates a SQL metric source and opens the connection pool.
func NewSQLSource(config SQLConfig) (*SQLSource, error) {
	switch config.Driver {
	case "postgres", "mysql":
		// Supported
	default:
		return nil, fmt.Errorf("unsupported driver: %s (must be postgres or mysql)", config.Driver)
	}
	if config.DSN == "" {
		return nil, fmt.Errorf("dsn is required")
	}
	if config.Query == "" {
		return nil, fmt.Errorf("query is required")
	}
	if config.Timeout == 0 {
		config.Timeout = 5 * time.Second
	}

	db, err := sql.Open(config.Driver, config.DSN)
	if err != nil {
		return nil, fmt.Errorf("opening %s connection: %w", config.Driver, err)
	}

	return &SQLSource{config: config, db: db}, nil
}

// SetDB replaces the connection, for testing with sqlmock.
func (s *SQLSource) SetDB(db *sql.DB) {
	s.db = db
}

// Name returns the adapter name.
func (s *SQLSource) Name() string {
	return "sql"
}

// Read runs the configured query and keeps only the requested metrics.
func (s *SQLSource) Read(ctx context.Context, service string, metricNames []string) (map[string]float64, error) {
	queryCtx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	rows, err := s.db.QueryContext(queryCtx, s.config.Query, service)
	if err != nil {
		return nil, errors.SourceError{
			Service: service,
			Kind:    errors.ClassifyMessage(err),
			Err:     err,
		}
	}
	defer func() { _ = rows.Close() }()

	wanted := make(map[string]bool, len(metricNames))
	for _, name := range metricNames {
		wanted[name] = true
	}

	readings := make(map[string]float64, len(metricNames))
	for rows.Next() {
		var name string
		var value float64
		if err := rows.Scan(&name, &value); err != nil {
			return nil, errors.SourceError{
				Service: service,
				Kind:    errors.KindPermanent,
				Err:     fmt.Errorf("scanning metric row: %w", err),
			}
		}
		if wanted[name] {
			readings[name] = value
		}
	}
	if err := rows.Err(); err != nil {
		return nil, errors.SourceError{
			Service: service,
			Kind:    errors.KindTransient,
			Err:     err,
		}
	}

	return readings, nil
}

// Close releases the connection pool.
func (s *SQLSource) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
