package checks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mozilla-ai/healthd/internal/domain"
	"github.com/mozilla-ai/healthd/internal/pool"
)

const (
	MetricConnectionLatency = "connection_latency_ms"
	MetricQueryLatency      = "query_latency_ms"
	MetricDatabaseSize      = "database_size_mb"
	MetricTableCount        = "table_count"
	MetricRowCount          = "row_count"
)

// Leaser hands out pooled connections.
type Leaser interface {
	Acquire(ctx context.Context, timeout time.Duration) (*pool.Lease, error)
}

// Querier is the query surface a pooled database connection must offer.
type Querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Dialect supplies the engine-specific size and count queries.
type Dialect interface {
	Name() string
	SizeBytes(ctx context.Context, q Querier) (float64, error)
	TableCount(ctx context.Context, q Querier) (float64, error)
	RowCount(ctx context.Context, q Querier) (float64, error)
}

// DatabaseChecker probes a database through the connection pool.
type DatabaseChecker struct {
	id             string
	leaser         Leaser
	dialect        Dialect
	acquireTimeout time.Duration
	metrics        MetricSet
}

// DatabaseMetrics returns the default metric definitions for database components.
func DatabaseMetrics() MetricSet {
	return MetricSet{
		MetricConnectionLatency: spec(MetricConnectionLatency, "ms", 50, 200, domain.HigherIsWorse),
		MetricQueryLatency:      spec(MetricQueryLatency, "ms", 100, 500, domain.HigherIsWorse),
		MetricDatabaseSize:      spec(MetricDatabaseSize, "MB", 1024, 4096, domain.HigherIsWorse),
		MetricTableCount:        spec(MetricTableCount, "count", 500, 1000, domain.HigherIsWorse),
		MetricRowCount:          spec(MetricRowCount, "count", 1e7, 1e8, domain.HigherIsWorse),
	}
}

// NewDatabaseChecker creates a checker that measures the database behind leaser.
func NewDatabaseChecker(
	id string,
	leaser Leaser,
	dialect Dialect,
	acquireTimeout time.Duration,
	overrides map[string]ThresholdOverride,
) (*DatabaseChecker, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("component id cannot be empty")
	}
	if isNil(leaser) {
		return nil, fmt.Errorf("connection pool cannot be nil")
	}
	if isNil(dialect) {
		return nil, fmt.Errorf("database dialect cannot be nil")
	}
	if acquireTimeout <= 0 {
		return nil, fmt.Errorf("acquire timeout must be positive, got %v", acquireTimeout)
	}

	metrics, err := DatabaseMetrics().Override(overrides)
	if err != nil {
		return nil, err
	}

	return &DatabaseChecker{
		id:             id,
		leaser:         leaser,
		dialect:        dialect,
		acquireTimeout: acquireTimeout,
		metrics:        metrics,
	}, nil
}

// ID implements Checker.
func (c *DatabaseChecker) ID() string {
	return c.id
}

// Type implements Checker.
func (c *DatabaseChecker) Type() domain.ComponentType {
	return domain.ComponentTypeDatabase
}

// Check implements Checker.
func (c *DatabaseChecker) Check(ctx context.Context) domain.ComponentHealth {
	start := time.Now()
	lease, err := c.leaser.Acquire(ctx, c.acquireTimeout)
	if err != nil {
		return Failure(c.id, c.Type(), fmt.Errorf("acquiring connection: %w", err))
	}
	defer lease.Release()

	pingStart := time.Now()
	err = lease.Conn().Ping(ctx)
	lease.Report(time.Since(pingStart), err)
	if err != nil {
		return Failure(c.id, c.Type(), fmt.Errorf("pinging database: %w", err))
	}
	connLatency := time.Since(start)

	q, ok := lease.Conn().(Querier)
	if !ok {
		return Failure(c.id, c.Type(), fmt.Errorf("pooled connection does not support queries"))
	}

	var one int
	queryStart := time.Now()
	err = q.QueryRowContext(ctx, "SELECT 1").Scan(&one)
	queryLatency := time.Since(queryStart)
	lease.Report(queryLatency, err)
	if err != nil {
		return Failure(c.id, c.Type(), fmt.Errorf("round-trip query: %w", err))
	}

	metrics := []domain.Metric{
		c.metrics.Measure(MetricConnectionLatency, milliseconds(connLatency)),
		c.metrics.Measure(MetricQueryLatency, milliseconds(queryLatency)),
	}

	size, err := c.dialect.SizeBytes(ctx, q)
	if err != nil {
		return Failure(c.id, c.Type(), fmt.Errorf("measuring database size: %w", err), metrics...)
	}
	metrics = append(metrics, c.metrics.Measure(MetricDatabaseSize, size/(1024*1024)))

	tables, err := c.dialect.TableCount(ctx, q)
	if err != nil {
		return Failure(c.id, c.Type(), fmt.Errorf("counting tables: %w", err), metrics...)
	}
	metrics = append(metrics, c.metrics.Measure(MetricTableCount, tables))

	rows, err := c.dialect.RowCount(ctx, q)
	if err != nil {
		return Failure(c.id, c.Type(), fmt.Errorf("counting rows: %w", err), metrics...)
	}
	metrics = append(metrics, c.metrics.Measure(MetricRowCount, rows))

	return Healthy(c.id, c.Type(), metrics...)
}

// DialectFor returns the Dialect for a database/sql driver name.
func DialectFor(driver string) (Dialect, error) {
	name, err := pool.DriverName(driver)
	if err != nil {
		return nil, err
	}
	switch name {
	case pool.DriverSQLite:
		return SQLiteDialect{}, nil
	case pool.DriverPostgres:
		return PostgresDialect{}, nil
	default:
		return nil, fmt.Errorf("no dialect for driver: %s", driver)
	}
}

// SQLiteDialect measures SQLite databases.
type SQLiteDialect struct{}

// Name implements Dialect.
func (SQLiteDialect) Name() string {
	return "sqlite"
}

// SizeBytes implements Dialect.
func (SQLiteDialect) SizeBytes(ctx context.Context, q Querier) (float64, error) {
	var size float64
	err := q.QueryRowContext(
		ctx,
		"SELECT page_count * page_size FROM pragma_page_count(), pragma_page_size()",
	).Scan(&size)
	return size, err
}

// TableCount implements Dialect.
func (SQLiteDialect) TableCount(ctx context.Context, q Querier) (float64, error) {
	var n float64
	err := q.QueryRowContext(
		ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%'",
	).Scan(&n)
	return n, err
}

// RowCount implements Dialect by counting every user table; SQLite keeps no cheaper estimate.
func (SQLiteDialect) RowCount(ctx context.Context, q Querier) (float64, error) {
	rows, err := q.QueryContext(
		ctx,
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name",
	)
	if err != nil {
		return 0, err
	}

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			_ = rows.Close()
			return 0, err
		}
		tables = append(tables, name)
	}
	if err := errors.Join(rows.Err(), rows.Close()); err != nil {
		return 0, err
	}

	var total float64
	for _, table := range tables {
		var n float64
		query := "SELECT COUNT(*) FROM " + quoteIdentifier(table)
		if err := q.QueryRowContext(ctx, query).Scan(&n); err != nil {
			return 0, fmt.Errorf("table %s: %w", table, err)
		}
		total += n
	}

	return total, nil
}

// PostgresDialect measures PostgreSQL databases.
type PostgresDialect struct{}

// Name implements Dialect.
func (PostgresDialect) Name() string {
	return "postgres"
}

// SizeBytes implements Dialect.
func (PostgresDialect) SizeBytes(ctx context.Context, q Querier) (float64, error) {
	var size float64
	err := q.QueryRowContext(ctx, "SELECT pg_database_size(current_database())").Scan(&size)
	return size, err
}

// TableCount implements Dialect.
func (PostgresDialect) TableCount(ctx context.Context, q Querier) (float64, error) {
	var n float64
	err := q.QueryRowContext(
		ctx,
		"SELECT COUNT(*) FROM information_schema.tables WHERE table_schema NOT IN ('pg_catalog', 'information_schema')",
	).Scan(&n)
	return n, err
}

// RowCount implements Dialect using the planner's live tuple estimates.
func (PostgresDialect) RowCount(ctx context.Context, q Querier) (float64, error) {
	var n float64
	err := q.QueryRowContext(ctx, "SELECT COALESCE(SUM(n_live_tup), 0) FROM pg_stat_user_tables").Scan(&n)
	return n, err
}

func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
