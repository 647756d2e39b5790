package domain

import "time"

const (
	EventTransition            EventType = "transition"
	EventRecoverySucceeded     EventType = "recovery_succeeded"
	EventRecoveryFailed        EventType = "recovery_failed"
	EventRecoverySkipped       EventType = "recovery_skipped"
	EventAlertFired            EventType = "alert_fired"
	EventAlertSuppressed       EventType = "alert_suppressed"
	EventAlertEscalated        EventType = "alert_escalated"
	EventAlertAcknowledged     EventType = "alert_acknowledged"
	EventAlertResolved         EventType = "alert_resolved"
	EventComponentRegistered   EventType = "component_registered"
	EventComponentUnregistered EventType = "component_unregistered"
)

// EventType classifies a SystemEvent.
type EventType string

// SystemEvent is one discrete, append-only occurrence: a transition, a recovery attempt or an alert.
type SystemEvent struct {
	ID          string            `json:"id"                yaml:"id"`
	ComponentID string            `json:"component_id"      yaml:"component_id"`
	Type        EventType         `json:"type"              yaml:"type"`
	From        Status            `json:"from"              yaml:"from"`
	To          Status            `json:"to"                yaml:"to"`
	Message     string            `json:"message"           yaml:"message"`
	Context     map[string]string `json:"context,omitempty" yaml:"context,omitempty"`
	Timestamp   time.Time         `json:"timestamp"         yaml:"timestamp"`
}

// CheckRecord is the persisted outcome of one probe of one component.
type CheckRecord struct {
	ComponentID string        `json:"component_id" yaml:"component_id"`
	Type        ComponentType `json:"type"         yaml:"type"`
	Status      Status        `json:"status"       yaml:"status"`
	Metrics     []Metric      `json:"metrics"      yaml:"metrics"`
	Error       string        `json:"error"        yaml:"error"`
	Timestamp   time.Time     `json:"timestamp"    yaml:"timestamp"`
}

// NewCheckRecord captures a component's state as a history row.
func NewCheckRecord(c ComponentHealth) CheckRecord {
	return CheckRecord{
		ComponentID: c.ID,
		Type:        c.Type,
		Status:      c.Status,
		Metrics:     c.Clone().Metrics,
		Error:       c.LastError,
		Timestamp:   c.LastCheck,
	}
}
