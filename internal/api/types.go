package api

import (
	"fmt"
	"time"

	"github.com/mozilla-ai/healthd/internal/domain"
	"github.com/mozilla-ai/healthd/internal/monitor"
	"github.com/mozilla-ai/healthd/internal/recovery"
)

type Convertible[T any] interface {
	// ToAPIType can be used to convert a wrapped domain type to an API-safe type.
	// It should be responsible for any normalization required to ensure consistency
	// across the API boundary.
	ToAPIType() (T, error)
}

var (
	_ Convertible[ComponentHealth] = DomainComponentHealth{}
	_ Convertible[SystemHealth]    = DomainSystemHealth{}
	_ Convertible[Event]           = DomainEvent{}
	_ Convertible[CheckRecord]     = DomainCheckRecord{}
	_ Convertible[Alert]           = DomainAlert{}
)

// Wrappers that allow receivers to be declared in the API package that deal with domain types.
type (
	DomainComponentHealth domain.ComponentHealth
	DomainSystemHealth    domain.SystemHealth
	DomainEvent           domain.SystemEvent
	DomainCheckRecord     domain.CheckRecord
	DomainAlert           domain.Alert
)

// Metric is a single measured value of a component.
type Metric struct {
	Name      string    `json:"name"`
	Value     float64   `json:"value"`
	Unit      string    `json:"unit"`
	Status    string    `enum:"healthy,warning,critical,down" json:"status"`
	Warning   float64   `json:"warning"`
	Critical  float64   `json:"critical"`
	Direction string    `enum:"higher_is_worse,lower_is_worse" json:"direction"`
	Timestamp time.Time `json:"timestamp"`
}

// ComponentHealth is the health of one component as of its last probe.
type ComponentHealth struct {
	ID               string     `json:"id"`
	Type             string     `json:"type"`
	Status           string     `enum:"healthy,warning,critical,down" json:"status"`
	Metrics          []Metric   `json:"metrics"`
	LastCheck        *time.Time `json:"lastCheck,omitempty"`
	UptimeSeconds    float64    `json:"uptimeSeconds"`
	ErrorCount       int        `json:"errorCount"`
	LastError        string     `json:"lastError,omitempty"`
	RecoveryAttempts int        `json:"recoveryAttempts"`
}

// Statistics are the counts derived from a system health snapshot.
type Statistics struct {
	Total         int     `json:"total"`
	Healthy       int     `json:"healthy"`
	Warning       int     `json:"warning"`
	Critical      int     `json:"critical"`
	Down          int     `json:"down"`
	UptimePercent float64 `json:"uptimePercent"`
	UptimeWindow  string  `doc:"Window the uptime percentage covers" example:"24h0m0s" json:"uptimeWindow"`
}

// SystemHealth is the aggregated health of every component from one monitor cycle.
type SystemHealth struct {
	OverallStatus string            `enum:"healthy,warning,critical" json:"overallStatus"`
	Components    []ComponentHealth `json:"components"`
	Timestamp     time.Time         `json:"timestamp"`
	Statistics    Statistics        `json:"statistics"`
}

// Component is a registered component, with its health once it has been probed.
type Component struct {
	ID      string           `json:"id"`
	Type    string           `json:"type"`
	Checked bool             `json:"checked"`
	Health  *ComponentHealth `json:"health,omitempty"`
}

// Event is a recorded system event.
type Event struct {
	ID          string            `json:"id"`
	ComponentID string            `json:"componentId"`
	Type        string            `json:"type"`
	From        string            `json:"from"`
	To          string            `json:"to"`
	Message     string            `json:"message"`
	Context     map[string]string `json:"context,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
}

// CheckRecord is one recorded probe result.
type CheckRecord struct {
	ComponentID string    `json:"componentId"`
	Type        string    `json:"type"`
	Status      string    `enum:"healthy,warning,critical,down" json:"status"`
	Metrics     []Metric  `json:"metrics"`
	Error       string    `json:"error,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Alert is a tracked alert.
type Alert struct {
	ID              string            `json:"id"`
	ComponentID     string            `json:"componentId"`
	Severity        string            `enum:"warning,critical,down" json:"severity"`
	Message         string            `json:"message"`
	Context         map[string]string `json:"context,omitempty"`
	State           string            `enum:"open,acknowledged,resolved" json:"state"`
	Escalated       bool              `json:"escalated"`
	SuppressedCount int               `json:"suppressedCount"`
	CreatedAt       time.Time         `json:"createdAt"`
	LastNotifiedAt  time.Time         `json:"lastNotifiedAt"`
	AcknowledgedAt  *time.Time        `json:"acknowledgedAt,omitempty"`
	ResolvedAt      *time.Time        `json:"resolvedAt,omitempty"`
}

// MonitorStatus is the run state of the monitor loop.
type MonitorStatus struct {
	Running    bool       `json:"running"`
	Interval   string     `example:"30s" json:"interval"`
	Components int        `json:"components"`
	LastCycle  *time.Time `json:"lastCycle,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// Breaker is the recovery circuit breaker state of a component.
type Breaker struct {
	ComponentID         string     `json:"componentId"`
	State               string     `enum:"closed,open,half_open" json:"state"`
	ConsecutiveFailures int        `json:"consecutiveFailures"`
	LastAttempt         *time.Time `json:"lastAttempt,omitempty"`
	OpenedAt            *time.Time `json:"openedAt,omitempty"`
}

func status(s domain.Status) (string, error) {
	if !s.Valid() {
		return "", fmt.Errorf("unknown health status: %d", int(s))
	}
	return s.String(), nil
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func metrics(in []domain.Metric) ([]Metric, error) {
	out := make([]Metric, 0, len(in))
	for _, m := range in {
		s, err := status(m.Status)
		if err != nil {
			return nil, fmt.Errorf("metric '%s': %w", m.Name, err)
		}
		out = append(out, Metric{
			Name:      m.Name,
			Value:     m.Value,
			Unit:      m.Unit,
			Status:    s,
			Warning:   m.Threshold.Warning,
			Critical:  m.Threshold.Critical,
			Direction: m.Threshold.Direction.String(),
			Timestamp: m.Timestamp,
		})
	}
	return out, nil
}

// ToAPIType converts the component health.
func (d DomainComponentHealth) ToAPIType() (ComponentHealth, error) {
	s, err := status(d.Status)
	if err != nil {
		return ComponentHealth{}, err
	}
	ms, err := metrics(d.Metrics)
	if err != nil {
		return ComponentHealth{}, err
	}

	return ComponentHealth{
		ID:               d.ID,
		Type:             string(d.Type),
		Status:           s,
		Metrics:          ms,
		LastCheck:        optionalTime(d.LastCheck),
		UptimeSeconds:    d.UptimeSeconds,
		ErrorCount:       d.ErrorCount,
		LastError:        d.LastError,
		RecoveryAttempts: d.RecoveryAttempts,
	}, nil
}

// ToAPIType converts the snapshot, listing components in id order.
func (d DomainSystemHealth) ToAPIType() (SystemHealth, error) {
	snapshot := domain.SystemHealth(d)

	overall, err := status(snapshot.OverallStatus)
	if err != nil {
		return SystemHealth{}, err
	}

	components := make([]ComponentHealth, 0, len(snapshot.Components))
	for _, c := range snapshot.Sorted() {
		data, err := DomainComponentHealth(c).ToAPIType()
		if err != nil {
			return SystemHealth{}, err
		}
		components = append(components, data)
	}

	st := snapshot.Statistics
	return SystemHealth{
		OverallStatus: overall,
		Components:    components,
		Timestamp:     snapshot.Timestamp,
		Statistics: Statistics{
			Total:         st.Total,
			Healthy:       st.Healthy,
			Warning:       st.Warning,
			Critical:      st.Critical,
			Down:          st.Down,
			UptimePercent: st.UptimePercent,
			UptimeWindow:  st.UptimeWindow.String(),
		},
	}, nil
}

// ToAPIType converts the event.
func (d DomainEvent) ToAPIType() (Event, error) {
	from, err := status(d.From)
	if err != nil {
		return Event{}, err
	}
	to, err := status(d.To)
	if err != nil {
		return Event{}, err
	}

	return Event{
		ID:          d.ID,
		ComponentID: d.ComponentID,
		Type:        string(d.Type),
		From:        from,
		To:          to,
		Message:     d.Message,
		Context:     d.Context,
		Timestamp:   d.Timestamp,
	}, nil
}

// ToAPIType converts the check record.
func (d DomainCheckRecord) ToAPIType() (CheckRecord, error) {
	s, err := status(d.Status)
	if err != nil {
		return CheckRecord{}, err
	}
	ms, err := metrics(d.Metrics)
	if err != nil {
		return CheckRecord{}, err
	}

	return CheckRecord{
		ComponentID: d.ComponentID,
		Type:        string(d.Type),
		Status:      s,
		Metrics:     ms,
		Error:       d.Error,
		Timestamp:   d.Timestamp,
	}, nil
}

// ToAPIType converts the alert.
func (d DomainAlert) ToAPIType() (Alert, error) {
	severity, err := status(d.Severity)
	if err != nil {
		return Alert{}, err
	}

	return Alert{
		ID:              d.ID,
		ComponentID:     d.ComponentID,
		Severity:        severity,
		Message:         d.Message,
		Context:         d.Context,
		State:           string(d.State),
		Escalated:       d.Escalated,
		SuppressedCount: d.SuppressedCount,
		CreatedAt:       d.CreatedAt,
		LastNotifiedAt:  d.LastNotifiedAt,
		AcknowledgedAt:  d.AcknowledgedAt,
		ResolvedAt:      d.ResolvedAt,
	}, nil
}

func component(info monitor.ComponentInfo) (Component, error) {
	c := Component{ID: info.ID, Type: string(info.Type), Checked: info.Checked}
	if !info.Checked {
		return c, nil
	}

	health, err := DomainComponentHealth(info.Health).ToAPIType()
	if err != nil {
		return Component{}, err
	}
	c.Health = &health
	return c, nil
}

func monitorStatus(s monitor.Status) MonitorStatus {
	return MonitorStatus{
		Running:    s.Running,
		Interval:   s.Interval.String(),
		Components: s.Components,
		LastCycle:  optionalTime(s.LastCycle),
		Error:      s.Error,
	}
}

func breaker(b recovery.BreakerStatus) Breaker {
	return Breaker{
		ComponentID:         b.ComponentID,
		State:               string(b.State),
		ConsecutiveFailures: b.ConsecutiveFailures,
		LastAttempt:         optionalTime(b.LastAttempt),
		OpenedAt:            optionalTime(b.OpenedAt),
	}
}

// convertAll converts a slice of domain values to API types.
func convertAll[D any, T any](in []D, convert func(D) (T, error)) ([]T, error) {
	out := make([]T, 0, len(in))
	for _, v := range in {
		data, err := convert(v)
		if err != nil {
			return nil, err
		}
		out = append(out, data)
	}
	return out, nil
}
