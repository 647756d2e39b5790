package history

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/mozilla-ai/healthd/internal/domain"
)

// MemoryStore keeps history in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	checks []domain.CheckRecord
	events []domain.SystemEvent
	closed bool
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// AppendChecks implements Store.
func (s *MemoryStore) AppendChecks(_ context.Context, records []domain.CheckRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	for _, r := range records {
		r.Metrics = slices.Clone(r.Metrics)
		s.checks = append(s.checks, r)
	}
	return nil
}

// AppendEvents implements Store.
func (s *MemoryStore) AppendEvents(_ context.Context, events []domain.SystemEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	for _, ev := range events {
		ev.Context = maps.Clone(ev.Context)
		s.events = append(s.events, ev)
	}
	return nil
}

// Checks implements Store.
func (s *MemoryStore) Checks(_ context.Context, q Query) ([]domain.CheckRecord, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	var out []domain.CheckRecord
	for _, r := range s.checks {
		if q.matches(r.ComponentID, r.Timestamp) {
			r.Metrics = slices.Clone(r.Metrics)
			out = append(out, r)
		}
	}
	slices.SortStableFunc(out, func(a, b domain.CheckRecord) int {
		return a.Timestamp.Compare(b.Timestamp)
	})

	return newest(out, q.limit()), nil
}

// Events implements Store.
func (s *MemoryStore) Events(_ context.Context, q Query) ([]domain.SystemEvent, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	var out []domain.SystemEvent
	for _, ev := range s.events {
		if q.matches(ev.ComponentID, ev.Timestamp) {
			ev.Context = maps.Clone(ev.Context)
			out = append(out, ev)
		}
	}
	slices.SortStableFunc(out, func(a, b domain.SystemEvent) int {
		return a.Timestamp.Compare(b.Timestamp)
	})

	return newest(out, q.limit()), nil
}

// PruneBefore implements Store.
func (s *MemoryStore) PruneBefore(_ context.Context, t time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrStoreClosed
	}

	before := len(s.checks) + len(s.events)
	s.checks = slices.DeleteFunc(s.checks, func(r domain.CheckRecord) bool { return r.Timestamp.Before(t) })
	s.events = slices.DeleteFunc(s.events, func(ev domain.SystemEvent) bool { return ev.Timestamp.Before(t) })

	return int64(before - len(s.checks) - len(s.events)), nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}

// newest keeps the last n items of a time-ordered slice.
func newest[T any](items []T, n int) []T {
	if len(items) > n {
		return items[len(items)-n:]
	}
	return items
}
