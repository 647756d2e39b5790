package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mozilla-ai/healthd/internal/domain"
	"github.com/mozilla-ai/healthd/internal/files"
	"github.com/mozilla-ai/healthd/internal/perms"
	"github.com/mozilla-ai/healthd/internal/pool"
)

// SQLStore persists history through database/sql, on SQLite or PostgreSQL.
type SQLStore struct {
	db     *sql.DB
	driver string

	mu     sync.RWMutex
	closed bool
}

// OpenSQLStore opens the database for driver and dsn and bootstraps the history schema.
func OpenSQLStore(ctx context.Context, driver string, dsn string) (*SQLStore, error) {
	name, err := pool.DriverName(driver)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("history dsn cannot be empty")
	}

	if path := sqliteFile(name, dsn); path != "" {
		if err := files.EnsureParentDir(path); err != nil {
			return nil, fmt.Errorf("preparing history database: %w", err)
		}
		if err := files.EnsureFile(path, perms.SecureFile); err != nil {
			return nil, fmt.Errorf("preparing history database: %w", err)
		}
	}

	db, err := sql.Open(name, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s history database: %w", name, err)
	}
	if name == pool.DriverSQLite {
		// SQLite allows a single writer.
		db.SetMaxOpenConns(1)
	}

	s, err := NewSQLStore(ctx, db, name)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// sqliteFile returns the file behind a SQLite dsn, or "" for in-memory databases and other drivers.
func sqliteFile(driver string, dsn string) string {
	if driver != pool.DriverSQLite {
		return ""
	}
	path := strings.TrimPrefix(strings.TrimSpace(dsn), "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" || strings.HasPrefix(path, ":memory:") {
		return ""
	}
	return path
}

// NewSQLStore wraps an open database handle and bootstraps the history schema.
// The store owns db and closes it on Close.
func NewSQLStore(ctx context.Context, db *sql.DB, driver string) (*SQLStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle cannot be nil")
	}
	name, err := pool.DriverName(driver)
	if err != nil {
		return nil, err
	}

	s := &SQLStore{db: db, driver: name}
	if err := s.migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) migrate(ctx context.Context) error {
	checkID := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if s.driver == pool.DriverPostgres {
		checkID = "BIGSERIAL PRIMARY KEY"
	}

	statements := []string{
		`CREATE TABLE IF NOT EXISTS health_checks (
			id ` + checkID + `,
			component_id TEXT NOT NULL,
			component_type TEXT NOT NULL,
			status TEXT NOT NULL,
			metrics TEXT NOT NULL,
			error TEXT NOT NULL,
			checked_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_health_checks_component_time ON health_checks (component_id, checked_at)`,
		`CREATE INDEX IF NOT EXISTS idx_health_checks_time ON health_checks (checked_at)`,
		`CREATE TABLE IF NOT EXISTS system_events (
			id TEXT PRIMARY KEY,
			component_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			from_status TEXT NOT NULL,
			to_status TEXT NOT NULL,
			message TEXT NOT NULL,
			context TEXT NOT NULL,
			occurred_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_system_events_component_time ON system_events (component_id, occurred_at)`,
		`CREATE INDEX IF NOT EXISTS idx_system_events_time ON system_events (occurred_at)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrapping history schema: %w", err)
		}
	}
	return nil
}

// AppendChecks implements Store. The records are written in one transaction.
func (s *SQLStore) AppendChecks(ctx context.Context, records []domain.CheckRecord) error {
	if len(records) == 0 {
		return nil
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, s.rebind(
			`INSERT INTO health_checks (component_id, component_type, status, metrics, error, checked_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
		))
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, r := range records {
			metrics, err := json.Marshal(nonNil(r.Metrics))
			if err != nil {
				return fmt.Errorf("encoding metrics for '%s': %w", r.ComponentID, err)
			}
			_, err = stmt.ExecContext(ctx,
				r.ComponentID,
				string(r.Type),
				r.Status.String(),
				string(metrics),
				r.Error,
				r.Timestamp.UnixNano(),
			)
			if err != nil {
				return fmt.Errorf("inserting check for '%s': %w", r.ComponentID, err)
			}
		}
		return nil
	})
}

// AppendEvents implements Store. Events without an id are assigned one.
func (s *SQLStore) AppendEvents(ctx context.Context, events []domain.SystemEvent) error {
	if len(events) == 0 {
		return nil
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, s.rebind(
			`INSERT INTO system_events (id, component_id, event_type, from_status, to_status, message, context, occurred_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		))
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, ev := range events {
			id := ev.ID
			if id == "" {
				id = uuid.NewString()
			}
			evCtx, err := json.Marshal(ev.Context)
			if err != nil {
				return fmt.Errorf("encoding event context for '%s': %w", ev.ComponentID, err)
			}
			_, err = stmt.ExecContext(ctx,
				id,
				ev.ComponentID,
				string(ev.Type),
				ev.From.String(),
				ev.To.String(),
				ev.Message,
				string(evCtx),
				ev.Timestamp.UnixNano(),
			)
			if err != nil {
				return fmt.Errorf("inserting event for '%s': %w", ev.ComponentID, err)
			}
		}
		return nil
	})
}

// Checks implements Store.
func (s *SQLStore) Checks(ctx context.Context, q Query) ([]domain.CheckRecord, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if err := s.open(); err != nil {
		return nil, err
	}
	defer s.mu.RUnlock()

	where, args := q.where("checked_at")
	query := s.rebind(`SELECT component_id, component_type, status, metrics, error, checked_at
		FROM health_checks` + where + `
		ORDER BY checked_at DESC, id DESC
		LIMIT ` + strconv.Itoa(q.limit()))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying checks: %w", err)
	}
	defer rows.Close()

	var out []domain.CheckRecord
	for rows.Next() {
		var (
			r       domain.CheckRecord
			typ     string
			status  string
			metrics string
			ts      int64
		)
		if err := rows.Scan(&r.ComponentID, &typ, &status, &metrics, &r.Error, &ts); err != nil {
			return nil, fmt.Errorf("scanning check: %w", err)
		}
		if r.Status, err = domain.ParseStatus(status); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(metrics), &r.Metrics); err != nil {
			return nil, fmt.Errorf("decoding metrics for '%s': %w", r.ComponentID, err)
		}
		r.Type = domain.ComponentType(typ)
		r.Timestamp = time.Unix(0, ts).UTC()
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading checks: %w", err)
	}

	slices.Reverse(out)
	return out, nil
}

// Events implements Store.
func (s *SQLStore) Events(ctx context.Context, q Query) ([]domain.SystemEvent, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if err := s.open(); err != nil {
		return nil, err
	}
	defer s.mu.RUnlock()

	where, args := q.where("occurred_at")
	query := s.rebind(`SELECT id, component_id, event_type, from_status, to_status, message, context, occurred_at
		FROM system_events` + where + `
		ORDER BY occurred_at DESC, id DESC
		LIMIT ` + strconv.Itoa(q.limit()))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	var out []domain.SystemEvent
	for rows.Next() {
		var (
			ev       domain.SystemEvent
			typ      string
			from, to string
			evCtx    string
			ts       int64
		)
		if err := rows.Scan(&ev.ID, &ev.ComponentID, &typ, &from, &to, &ev.Message, &evCtx, &ts); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		if ev.From, err = domain.ParseStatus(from); err != nil {
			return nil, err
		}
		if ev.To, err = domain.ParseStatus(to); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(evCtx), &ev.Context); err != nil {
			return nil, fmt.Errorf("decoding event context for '%s': %w", ev.ComponentID, err)
		}
		ev.Type = domain.EventType(typ)
		ev.Timestamp = time.Unix(0, ts).UTC()
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading events: %w", err)
	}

	slices.Reverse(out)
	return out, nil
}

// PruneBefore implements Store.
func (s *SQLStore) PruneBefore(ctx context.Context, t time.Time) (int64, error) {
	var removed int64

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		for _, stmt := range []string{
			`DELETE FROM health_checks WHERE checked_at < ?`,
			`DELETE FROM system_events WHERE occurred_at < ?`,
		} {
			res, err := tx.ExecContext(ctx, s.rebind(stmt), t.UnixNano())
			if err != nil {
				return err
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			removed += n
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("pruning history: %w", err)
	}

	return removed, nil
}

// Close implements Store.
func (s *SQLStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// open read-locks the store, failing if it is closed. Callers release the lock on success.
func (s *SQLStore) open() error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrStoreClosed
	}
	return nil
}

func (s *SQLStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	if err := s.open(); err != nil {
		return err
	}
	defer s.mu.RUnlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if err != nil {
			err = errors.Join(err, ignoreDone(tx.Rollback()))
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// rebind rewrites ? placeholders into the $n form PostgreSQL expects.
func (s *SQLStore) rebind(query string) string {
	if s.driver != pool.DriverPostgres {
		return query
	}

	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// where renders the query's filters against the timestamp column.
func (q Query) where(tsColumn string) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if q.ComponentID != "" {
		clauses = append(clauses, "component_id = ?")
		args = append(args, q.ComponentID)
	}
	if !q.From.IsZero() {
		clauses = append(clauses, tsColumn+" >= ?")
		args = append(args, q.From.UnixNano())
	}
	if !q.To.IsZero() {
		clauses = append(clauses, tsColumn+" <= ?")
		args = append(args, q.To.UnixNano())
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func ignoreDone(err error) error {
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}

func nonNil(metrics []domain.Metric) []domain.Metric {
	if metrics == nil {
		return []domain.Metric{}
	}
	return metrics
}
