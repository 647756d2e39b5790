// Package history persists probe results and system events as two append-only logs.
//
// Rows are never updated. The only removal is PruneBefore, which callers run on their own
// retention schedule.
package history

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mozilla-ai/healthd/internal/domain"
)

const (
	DriverMemory = "memory"

	// DefaultQueryLimit caps the rows returned by a query that sets no limit.
	DefaultQueryLimit = 1000
)

// ErrStoreClosed is returned by operations on a closed store.
var ErrStoreClosed = errors.New("history store closed")

// Query selects history rows. Zero fields match everything.
type Query struct {
	ComponentID string

	// From and To bound the row timestamp, inclusive.
	From time.Time
	To   time.Time

	// Limit keeps only the most recent rows. Zero means DefaultQueryLimit.
	Limit int
}

// Store is an append-only history log.
type Store interface {
	// AppendChecks records probe results.
	AppendChecks(ctx context.Context, records []domain.CheckRecord) error

	// AppendEvents records system events.
	AppendEvents(ctx context.Context, events []domain.SystemEvent) error

	// Checks returns probe results matching q, oldest first.
	Checks(ctx context.Context, q Query) ([]domain.CheckRecord, error)

	// Events returns events matching q, oldest first.
	Events(ctx context.Context, q Query) ([]domain.SystemEvent, error)

	// PruneBefore removes every row older than t and returns the number removed.
	PruneBefore(ctx context.Context, t time.Time) (int64, error)

	// Close releases the store's resources.
	Close() error
}

// Open creates the Store for driver: "memory", "sqlite" or "postgres".
func Open(ctx context.Context, driver string, dsn string) (Store, error) {
	if strings.EqualFold(strings.TrimSpace(driver), DriverMemory) {
		return NewMemoryStore(), nil
	}

	s, err := OpenSQLStore(ctx, driver, dsn)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// QueryError reports an invalid Query.
type QueryError struct {
	Reason string
}

func (e *QueryError) Error() string {
	return "invalid history query: " + e.Reason
}

// Validate checks that the time bounds are ordered and the limit is not negative.
func (q Query) Validate() error {
	if !q.From.IsZero() && !q.To.IsZero() && q.From.After(q.To) {
		return &QueryError{Reason: fmt.Sprintf(
			"start %s is after end %s", q.From.Format(time.RFC3339), q.To.Format(time.RFC3339),
		)}
	}
	if q.Limit < 0 {
		return &QueryError{Reason: "limit cannot be negative"}
	}
	return nil
}

func (q Query) limit() int {
	if q.Limit <= 0 {
		return DefaultQueryLimit
	}
	return q.Limit
}

func (q Query) matches(componentID string, ts time.Time) bool {
	if q.ComponentID != "" && componentID != q.ComponentID {
		return false
	}
	if !q.From.IsZero() && ts.Before(q.From) {
		return false
	}
	if !q.To.IsZero() && ts.After(q.To) {
		return false
	}
	return true
}
