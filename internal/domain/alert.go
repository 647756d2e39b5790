package domain

import (
	"fmt"
	"strings"
	"time"
)

const (
	AlertStateOpen         AlertState = "open"
	AlertStateAcknowledged AlertState = "acknowledged"
	AlertStateResolved     AlertState = "resolved"
)

// AlertState is the lifecycle position of an Alert.
type AlertState string

// Alert is a notification raised for a (component, severity) pair, tracked until it is resolved.
type Alert struct {
	ID              string            `json:"id"                        yaml:"id"`
	ComponentID     string            `json:"component_id"              yaml:"component_id"`
	Severity        Status            `json:"severity"                  yaml:"severity"`
	Message         string            `json:"message"                   yaml:"message"`
	Context         map[string]string `json:"context,omitempty"         yaml:"context,omitempty"`
	State           AlertState        `json:"state"                     yaml:"state"`
	Escalated       bool              `json:"escalated"                 yaml:"escalated"`
	SuppressedCount int               `json:"suppressed_count"          yaml:"suppressed_count"`
	CreatedAt       time.Time         `json:"created_at"                yaml:"created_at"`
	LastNotifiedAt  time.Time         `json:"last_notified_at"          yaml:"last_notified_at"`
	AcknowledgedAt  *time.Time        `json:"acknowledged_at,omitempty" yaml:"acknowledged_at,omitempty"`
	ResolvedAt      *time.Time        `json:"resolved_at,omitempty"     yaml:"resolved_at,omitempty"`
}

// ParseAlertState converts the textual form of an AlertState.
func ParseAlertState(s string) (AlertState, error) {
	state := AlertState(strings.ToLower(strings.TrimSpace(s)))
	switch state {
	case AlertStateOpen, AlertStateAcknowledged, AlertStateResolved:
		return state, nil
	default:
		return "", fmt.Errorf("unknown alert state: %s", s)
	}
}

// Active reports whether the alert has not yet been resolved.
func (a Alert) Active() bool {
	return a.State != AlertStateResolved
}
