// Package alert tracks alerts raised for degraded components and delivers them to notification channels.
//
// Alerts are keyed by (component, severity). A repeat of an open key inside the cooldown window
// is suppressed and counted; an acknowledged alert is never re-notified but is still resolved
// when its component recovers. An alert is resolved as soon as the component is confirmed at a
// less severe status, so only critical and down conditions that persist for EscalateAfter
// cooldown periods are re-delivered once to the escalation channels.
package alert

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"golang.org/x/sync/errgroup"

	"github.com/mozilla-ai/healthd/internal/domain"
	healthderrors "github.com/mozilla-ai/healthd/internal/errors"
)

// Event is a request to alert on a component.
type Event struct {
	Severity    domain.Status
	ComponentID string
	Message     string
	Context     map[string]string
}

// Result reports what Notify did with an Event.
type Result struct {
	Alert      domain.Alert
	Kind       Kind
	Delivered  bool
	Suppressed bool

	// Err holds channel delivery failures. A delivery error on one channel does not affect the others.
	Err error
}

// Filter selects alerts in List. Zero fields match everything.
type Filter struct {
	State       domain.AlertState
	ComponentID string

	// From and To bound the alert creation time, inclusive.
	From time.Time
	To   time.Time
}

// Stats are cumulative alert counters.
type Stats struct {
	Open             int   `json:"open"`
	Acknowledged     int   `json:"acknowledged"`
	Fired            int64 `json:"fired"`
	Repeated         int64 `json:"repeated"`
	Suppressed       int64 `json:"suppressed"`
	Escalated        int64 `json:"escalated"`
	Resolved         int64 `json:"resolved"`
	DeliveryFailures int64 `json:"delivery_failures"`
}

type alertKey struct {
	componentID string
	severity    domain.Status
}

// Manager is the alert state machine and delivery fan-out.
type Manager struct {
	logger     hclog.Logger
	opts       Options
	now        func() time.Time
	channels   []Channel
	escalation []Channel

	mu     sync.Mutex
	alerts map[string]*domain.Alert
	active map[alertKey]string
	stats  Stats
}

// NewManager creates a Manager delivering to channels, and escalations to escalation.
// When escalation is empty, escalations go to channels.
func NewManager(logger hclog.Logger, channels []Channel, escalation []Channel, opt ...Option) (*Manager, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	for _, c := range slices.Concat(channels, escalation) {
		if c == nil {
			return nil, fmt.Errorf("alert channel cannot be nil")
		}
	}

	opts, err := NewOptions(opt...)
	if err != nil {
		return nil, err
	}

	if len(escalation) == 0 {
		escalation = channels
	}

	return &Manager{
		logger:     logger.Named("alerts"),
		opts:       opts,
		now:        time.Now,
		channels:   slices.Clone(channels),
		escalation: slices.Clone(escalation),
		alerts:     map[string]*domain.Alert{},
		active:     map[alertKey]string{},
	}, nil
}

// Notify raises or repeats the alert for (event.ComponentID, event.Severity).
func (m *Manager) Notify(ctx context.Context, event Event) Result {
	if strings.TrimSpace(event.ComponentID) == "" {
		return Result{Err: fmt.Errorf("%w: alert component id cannot be empty", healthderrors.ErrBadRequest)}
	}
	if !event.Severity.Valid() || event.Severity == domain.StatusHealthy {
		return Result{Err: fmt.Errorf("%w: alert severity must be warning or worse", healthderrors.ErrBadRequest)}
	}

	key := alertKey{componentID: event.ComponentID, severity: event.Severity}

	m.mu.Lock()
	now := m.now().UTC()

	var kind Kind
	var a *domain.Alert
	if id, ok := m.active[key]; ok {
		a = m.alerts[id]
		if a.State == domain.AlertStateAcknowledged || now.Sub(a.LastNotifiedAt) < m.opts.Cooldown {
			a.SuppressedCount++
			m.stats.Suppressed++
			snapshot := cloneAlert(a)
			m.mu.Unlock()

			m.logger.Info(
				"Suppressed repeated alert",
				"alert", snapshot.ID,
				"component", snapshot.ComponentID,
				"severity", snapshot.Severity,
				"suppressed", snapshot.SuppressedCount,
			)
			m.emit(snapshot, domain.EventAlertSuppressed, snapshot.Severity)
			return Result{Alert: snapshot, Suppressed: true}
		}

		kind = KindRepeated
		a.Message = event.Message
		a.Context = maps.Clone(event.Context)
		a.LastNotifiedAt = now
		m.stats.Repeated++
	} else {
		kind = KindFired
		a = &domain.Alert{
			ID:             uuid.NewString(),
			ComponentID:    event.ComponentID,
			Severity:       event.Severity,
			Message:        event.Message,
			Context:        maps.Clone(event.Context),
			State:          domain.AlertStateOpen,
			CreatedAt:      now,
			LastNotifiedAt: now,
		}
		m.alerts[a.ID] = a
		m.active[key] = a.ID
		m.stats.Fired++
	}
	snapshot := cloneAlert(a)
	m.mu.Unlock()

	err := m.deliver(ctx, m.channels, Notification{Kind: kind, Alert: snapshot})
	m.emit(snapshot, domain.EventAlertFired, snapshot.Severity)

	return Result{Alert: snapshot, Kind: kind, Delivered: true, Err: err}
}

// Tick escalates long-lived critical alerts and forgets resolved alerts older than retention.
// It returns the alerts escalated by this call.
func (m *Manager) Tick(ctx context.Context, retention time.Duration) []domain.Alert {
	threshold := time.Duration(m.opts.EscalateAfter) * m.opts.Cooldown

	m.mu.Lock()
	now := m.now().UTC()

	var escalated []domain.Alert
	for _, id := range slices.Sorted(maps.Keys(m.alerts)) {
		a := m.alerts[id]
		switch {
		case a.State == domain.AlertStateResolved:
			if retention > 0 && a.ResolvedAt != nil && now.Sub(*a.ResolvedAt) > retention {
				delete(m.alerts, id)
			}
		case a.State == domain.AlertStateOpen &&
			!a.Escalated &&
			a.Severity >= domain.StatusCritical &&
			now.Sub(a.CreatedAt) >= threshold:
			a.Escalated = true
			a.LastNotifiedAt = now
			m.stats.Escalated++
			escalated = append(escalated, cloneAlert(a))
		}
	}
	m.mu.Unlock()

	for _, a := range escalated {
		m.logger.Warn("Escalating unresolved alert", "alert", a.ID, "component", a.ComponentID, "severity", a.Severity)
		_ = m.deliver(ctx, m.escalation, Notification{Kind: KindEscalated, Alert: a})
		m.emit(a, domain.EventAlertEscalated, a.Severity)
	}

	return escalated
}

// Acknowledge marks an alert as seen. Acknowledging an acknowledged alert is a no-op.
func (m *Manager) Acknowledge(_ context.Context, id string) (domain.Alert, error) {
	m.mu.Lock()
	a, ok := m.alerts[id]
	if !ok {
		m.mu.Unlock()
		return domain.Alert{}, fmt.Errorf("%w: %s", healthderrors.ErrAlertNotFound, id)
	}
	if a.State == domain.AlertStateResolved {
		m.mu.Unlock()
		return domain.Alert{}, fmt.Errorf("%w: %s", healthderrors.ErrAlertResolved, id)
	}
	if a.State == domain.AlertStateAcknowledged {
		snapshot := cloneAlert(a)
		m.mu.Unlock()
		return snapshot, nil
	}

	now := m.now().UTC()
	a.State = domain.AlertStateAcknowledged
	a.AcknowledgedAt = &now
	snapshot := cloneAlert(a)
	m.mu.Unlock()

	m.logger.Info("Alert acknowledged", "alert", id, "component", snapshot.ComponentID)
	m.emit(snapshot, domain.EventAlertAcknowledged, snapshot.Severity)

	return snapshot, nil
}

// Resolve closes an alert and notifies the channels.
func (m *Manager) Resolve(ctx context.Context, id string) (domain.Alert, error) {
	m.mu.Lock()
	a, ok := m.alerts[id]
	if !ok {
		m.mu.Unlock()
		return domain.Alert{}, fmt.Errorf("%w: %s", healthderrors.ErrAlertNotFound, id)
	}
	if a.State == domain.AlertStateResolved {
		m.mu.Unlock()
		return domain.Alert{}, fmt.Errorf("%w: %s", healthderrors.ErrAlertResolved, id)
	}
	snapshot := m.resolveLocked(a)
	m.mu.Unlock()

	m.announceResolved(ctx, snapshot, "manual")

	return snapshot, nil
}

// Observe reports a confirmed component status. Every active alert for the component that is more
// severe than status is resolved: a healthy status clears them all, and a critical alert does not
// outlive an improvement to warning. It returns the alerts resolved by this call.
func (m *Manager) Observe(ctx context.Context, componentID string, status domain.Status) []domain.Alert {
	if !status.Valid() {
		return nil
	}

	m.mu.Lock()
	var resolved []domain.Alert
	for _, sev := range domain.AllStatuses() {
		if !sev.WorseThan(status) {
			continue
		}
		id, ok := m.active[alertKey{componentID: componentID, severity: sev}]
		if !ok {
			continue
		}
		resolved = append(resolved, m.resolveLocked(m.alerts[id]))
	}
	m.mu.Unlock()

	reason := "component recovered"
	if status != domain.StatusHealthy {
		reason = "component improved to " + status.String()
	}
	for _, a := range resolved {
		m.announceResolved(ctx, a, reason)
	}

	return resolved
}

// Get returns the alert with id.
func (m *Manager) Get(id string) (domain.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.alerts[id]
	if !ok {
		return domain.Alert{}, fmt.Errorf("%w: %s", healthderrors.ErrAlertNotFound, id)
	}
	return cloneAlert(a), nil
}

// List returns the alerts matching f, oldest first.
func (m *Manager) List(f Filter) []domain.Alert {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]domain.Alert, 0, len(m.alerts))
	for _, a := range m.alerts {
		if f.State != "" && a.State != f.State {
			continue
		}
		if f.ComponentID != "" && a.ComponentID != f.ComponentID {
			continue
		}
		if !f.From.IsZero() && a.CreatedAt.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && a.CreatedAt.After(f.To) {
			continue
		}
		out = append(out, cloneAlert(a))
	}

	slices.SortFunc(out, func(a, b domain.Alert) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})

	return out
}

// Stats returns the alert counters.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.stats
	for _, a := range m.alerts {
		switch a.State {
		case domain.AlertStateOpen:
			s.Open++
		case domain.AlertStateAcknowledged:
			s.Acknowledged++
		}
	}
	return s
}

// Forget resolves every active alert for a component that is no longer monitored, without notifying channels.
func (m *Manager) Forget(componentID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key, id := range m.active {
		if key.componentID == componentID {
			m.resolveLocked(m.alerts[id])
		}
	}
}

func (m *Manager) resolveLocked(a *domain.Alert) domain.Alert {
	now := m.now().UTC()
	a.State = domain.AlertStateResolved
	a.ResolvedAt = &now
	delete(m.active, alertKey{componentID: a.ComponentID, severity: a.Severity})
	m.stats.Resolved++
	return cloneAlert(a)
}

func (m *Manager) announceResolved(ctx context.Context, a domain.Alert, reason string) {
	m.logger.Info("Alert resolved", "alert", a.ID, "component", a.ComponentID, "reason", reason)
	_ = m.deliver(ctx, m.channels, Notification{Kind: KindResolved, Alert: a})
	m.emit(a, domain.EventAlertResolved, domain.StatusHealthy)
}

// deliver sends n to every channel concurrently, each under its own timeout.
func (m *Manager) deliver(ctx context.Context, channels []Channel, n Notification) error {
	errs := make([]error, len(channels))

	var g errgroup.Group
	for i, c := range channels {
		g.Go(func() error {
			sendCtx, cancel := context.WithTimeout(ctx, m.opts.DeliveryTimeout)
			defer cancel()

			defer func() {
				if r := recover(); r != nil {
					errs[i] = fmt.Errorf("%s: channel panicked: %v", c.Name(), r)
				}
			}()

			if err := c.Send(sendCtx, n); err != nil {
				errs[i] = fmt.Errorf("%s: %w", c.Name(), err)
			}
			return nil
		})
	}
	_ = g.Wait()

	err := errors.Join(errs...)
	if err != nil {
		failed := 0
		for _, e := range errs {
			if e != nil {
				failed++
			}
		}
		m.mu.Lock()
		m.stats.DeliveryFailures += int64(failed)
		m.mu.Unlock()

		m.logger.Error("Alert delivery failed", "alert", n.Alert.ID, "kind", n.Kind, "error", err)
	}

	return err
}

func (m *Manager) emit(a domain.Alert, eventType domain.EventType, to domain.Status) {
	if m.opts.EventSink == nil {
		return
	}

	m.opts.EventSink(domain.SystemEvent{
		ID:          uuid.NewString(),
		ComponentID: a.ComponentID,
		Type:        eventType,
		From:        a.Severity,
		To:          to,
		Message:     a.Message,
		Context: map[string]string{
			"alert_id":   a.ID,
			"state":      string(a.State),
			"suppressed": strconv.Itoa(a.SuppressedCount),
		},
		Timestamp: m.now().UTC(),
	})
}

func cloneAlert(a *domain.Alert) domain.Alert {
	out := *a
	out.Context = maps.Clone(a.Context)
	if a.AcknowledgedAt != nil {
		t := *a.AcknowledgedAt
		out.AcknowledgedAt = &t
	}
	if a.ResolvedAt != nil {
		t := *a.ResolvedAt
		out.ResolvedAt = &t
	}
	return out
}
