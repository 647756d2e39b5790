package pool

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	// Registers the "pgx" database/sql driver.
	_ "github.com/jackc/pgx/v5/stdlib"
	// Registers the "sqlite" database/sql driver.
	_ "modernc.org/sqlite"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
)

// SQLConn is a pooled connection backed by a dedicated *sql.Conn.
type SQLConn struct {
	*sql.Conn
}

// Ping implements Conn.
func (c *SQLConn) Ping(ctx context.Context) error {
	return c.PingContext(ctx)
}

// SQLConnector opens dedicated connections from a *sql.DB.
// The *sql.DB is configured not to retain idle connections of its own, so closing an SQLConn
// closes the underlying driver connection and the Manager remains the only pool in play.
type SQLConnector struct {
	db *sql.DB
}

// OpenSQL opens a database handle for driver ("sqlite" or "postgres"/"pgx") and dsn, sized for maxSize pooled connections.
func OpenSQL(driver string, dsn string, maxSize int) (*sql.DB, error) {
	name, err := DriverName(driver)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("database dsn cannot be empty")
	}

	db, err := sql.Open(name, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s database: %w", name, err)
	}
	db.SetMaxOpenConns(maxSize)
	db.SetMaxIdleConns(0)

	return db, nil
}

// DriverName normalizes a configured driver into a registered database/sql driver name.
func DriverName(driver string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "sqlite", "sqlite3":
		return DriverSQLite, nil
	case "postgres", "postgresql", "pgx":
		return DriverPostgres, nil
	default:
		return "", fmt.Errorf("unsupported database driver: %s", driver)
	}
}

// NewSQLConnector creates a Connector that hands out dedicated connections from db.
func NewSQLConnector(db *sql.DB) (*SQLConnector, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle cannot be nil")
	}
	return &SQLConnector{db: db}, nil
}

// Connect implements Connector.
func (c *SQLConnector) Connect(ctx context.Context) (Conn, error) {
	conn, err := c.db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	return &SQLConn{Conn: conn}, nil
}
