package api

import (
	"fmt"
	"strings"
	"time"

	"github.com/mozilla-ai/healthd/internal/errors"
)

// WindowRequest is the shared time window of history queries.
type WindowRequest struct {
	From string `doc:"Start of the window (RFC3339 or a duration before now, e.g. 1h)" example:"2026-01-01T00:00:00Z" query:"from"`
	To   string `doc:"End of the window (RFC3339 or a duration before now); defaults to now"   example:"15m"                  query:"to"`
}

// window resolves the request into absolute bounds. An empty from means unbounded.
func (w WindowRequest) window(now time.Time) (time.Time, time.Time, error) {
	from, err := parseInstant(w.From, now, time.Time{})
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: from: %w", errors.ErrBadRequest, err)
	}
	to, err := parseInstant(w.To, now, now)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: to: %w", errors.ErrBadRequest, err)
	}
	if !from.IsZero() && from.After(to) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: from must not be after to", errors.ErrBadRequest)
	}
	return from, to, nil
}

// parseInstant accepts an RFC3339 timestamp or a duration measured back from now.
func parseInstant(value string, now time.Time, fallback time.Time) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil || d < 0 {
		return time.Time{}, fmt.Errorf("'%s' is neither an RFC3339 time nor a non-negative duration", value)
	}
	return now.Add(-d), nil
}
