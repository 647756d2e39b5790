package domain

import (
	"fmt"
	"strings"
)

const (
	StatusHealthy Status = iota
	StatusWarning
	StatusCritical
	StatusDown
)

// Status is the ordered severity of a metric, component or system.
// Higher values are more severe, so the worst of several statuses is their maximum.
type Status int

// AllStatuses returns every Status in ascending severity.
func AllStatuses() []Status {
	return []Status{StatusHealthy, StatusWarning, StatusCritical, StatusDown}
}

// ParseStatus converts the textual form of a Status (case-insensitive) back into a Status.
func ParseStatus(s string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "healthy":
		return StatusHealthy, nil
	case "warning":
		return StatusWarning, nil
	case "critical":
		return StatusCritical, nil
	case "down":
		return StatusDown, nil
	default:
		return StatusHealthy, fmt.Errorf("unknown health status: %s", s)
	}
}

func (s Status) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusWarning:
		return "warning"
	case StatusCritical:
		return "critical"
	case StatusDown:
		return "down"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Valid reports whether s is one of the defined statuses.
func (s Status) Valid() bool {
	return s >= StatusHealthy && s <= StatusDown
}

// WorseThan reports whether s is strictly more severe than other.
func (s Status) WorseThan(other Status) bool {
	return s > other
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("unknown health status: %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(text []byte) error {
	parsed, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Worst returns the most severe of the supplied statuses, or StatusHealthy when none are supplied.
func Worst(statuses ...Status) Status {
	worst := StatusHealthy
	for _, s := range statuses {
		if s > worst {
			worst = s
		}
	}
	return worst
}
