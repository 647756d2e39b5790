package api

import (
	"context"
	"sort"
	"time"

	"github.com/mozilla-ai/healthd/internal/alert"
	"github.com/mozilla-ai/healthd/internal/checks"
	"github.com/mozilla-ai/healthd/internal/domain"
	"github.com/mozilla-ai/healthd/internal/errors"
	"github.com/mozilla-ai/healthd/internal/monitor"
	"github.com/mozilla-ai/healthd/internal/pool"
	"github.com/mozilla-ai/healthd/internal/recovery"
)

// fakeMonitor implements contracts.HealthMonitor and contracts.ComponentRegistrar for testing.
type fakeMonitor struct {
	snapshot   *domain.SystemHealth
	components map[string]monitor.ComponentInfo
	records    []domain.CheckRecord
	events     []domain.SystemEvent
	status     monitor.Status
	forced     int
	startErr   error

	historyID   string
	historyFrom time.Time
	historyTo   time.Time
	lastAdded   checks.Definition
}

func newFakeMonitor() *fakeMonitor {
	return &fakeMonitor{
		components: make(map[string]monitor.ComponentInfo),
		status:     monitor.Status{Interval: 30 * time.Second},
	}
}

func (f *fakeMonitor) Current() (*domain.SystemHealth, error) {
	if f.snapshot == nil {
		return nil, errors.ErrDataUnavailable
	}
	return f.snapshot, nil
}

func (f *fakeMonitor) ForceCheck(_ context.Context) (*domain.SystemHealth, error) {
	f.forced++
	return f.Current()
}

func (f *fakeMonitor) Components() []monitor.ComponentInfo {
	out := make([]monitor.ComponentInfo, 0, len(f.components))
	for _, c := range f.components {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (f *fakeMonitor) Component(id string) (monitor.ComponentInfo, error) {
	c, ok := f.components[id]
	if !ok {
		return monitor.ComponentInfo{}, errors.ErrComponentNotFound
	}
	return c, nil
}

func (f *fakeMonitor) History(_ context.Context, id string, from time.Time, to time.Time) ([]domain.CheckRecord, error) {
	f.historyID, f.historyFrom, f.historyTo = id, from, to
	return f.records, nil
}

func (f *fakeMonitor) Events(_ context.Context, id string, _ time.Time, _ time.Time) ([]domain.SystemEvent, error) {
	var out []domain.SystemEvent
	for _, e := range f.events {
		if id == "" || e.ComponentID == id {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeMonitor) Status() monitor.Status { return f.status }

func (f *fakeMonitor) Start(_ context.Context) error {
	if f.startErr != nil {
		return f.startErr
	}
	if f.status.Running {
		return errors.ErrMonitorRunning
	}
	f.status.Running = true
	return nil
}

func (f *fakeMonitor) Stop(_ context.Context) error {
	if !f.status.Running {
		return errors.ErrMonitorStopped
	}
	f.status.Running = false
	return nil
}

func (f *fakeMonitor) SetInterval(d time.Duration) error {
	if d <= 0 {
		return errors.ErrBadRequest
	}
	f.status.Interval = d
	return nil
}

func (f *fakeMonitor) Add(def checks.Definition) (monitor.ComponentInfo, error) {
	if _, ok := f.components[def.ID]; ok {
		return monitor.ComponentInfo{}, errors.ErrComponentExists
	}
	f.lastAdded = def
	info := monitor.ComponentInfo{ID: def.ID, Type: def.Type}
	f.components[def.ID] = info
	return info, nil
}

func (f *fakeMonitor) Remove(id string) error {
	if _, ok := f.components[id]; !ok {
		return errors.ErrComponentNotFound
	}
	delete(f.components, id)
	return nil
}

// fakeAlerts implements contracts.AlertManager for testing.
type fakeAlerts struct {
	alerts     map[string]domain.Alert
	lastFilter alert.Filter
	stats      alert.Stats
}

func (f *fakeAlerts) List(filter alert.Filter) []domain.Alert {
	f.lastFilter = filter
	out := make([]domain.Alert, 0, len(f.alerts))
	for _, a := range f.alerts {
		if filter.State != "" && a.State != filter.State {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (f *fakeAlerts) Get(id string) (domain.Alert, error) {
	a, ok := f.alerts[id]
	if !ok {
		return domain.Alert{}, errors.ErrAlertNotFound
	}
	return a, nil
}

func (f *fakeAlerts) Acknowledge(_ context.Context, id string) (domain.Alert, error) {
	a, err := f.Get(id)
	if err != nil {
		return domain.Alert{}, err
	}
	now := time.Now()
	a.State = domain.AlertStateAcknowledged
	a.AcknowledgedAt = &now
	f.alerts[id] = a
	return a, nil
}

func (f *fakeAlerts) Resolve(_ context.Context, id string) (domain.Alert, error) {
	a, err := f.Get(id)
	if err != nil {
		return domain.Alert{}, err
	}
	if a.State == domain.AlertStateResolved {
		return domain.Alert{}, errors.ErrAlertResolved
	}
	now := time.Now()
	a.State = domain.AlertStateResolved
	a.ResolvedAt = &now
	f.alerts[id] = a
	return a, nil
}

func (f *fakeAlerts) Stats() alert.Stats { return f.stats }

// fakeRecovery implements contracts.RecoveryController for testing.
type fakeRecovery struct {
	breakers map[string]recovery.BreakerStatus
}

func (f *fakeRecovery) Breaker(id string) recovery.BreakerStatus {
	b, ok := f.breakers[id]
	if !ok {
		return recovery.BreakerStatus{ComponentID: id, State: recovery.BreakerClosed}
	}
	return b
}

func (f *fakeRecovery) Reset(id string) {
	delete(f.breakers, id)
}

// fakePool implements contracts.PoolInspector for testing.
type fakePool struct {
	stats pool.Stats
	conns []pool.ConnectionInfo
}

func (f *fakePool) Stats() pool.Stats { return f.stats }

func (f *fakePool) Connections() []pool.ConnectionInfo { return f.conns }

func testSnapshot(t time.Time) *domain.SystemHealth {
	latency := domain.NewMetric("latency_ms", 12, "ms", domain.Threshold{Warning: 100, Critical: 500})
	return &domain.SystemHealth{
		OverallStatus: domain.StatusWarning,
		Components: map[string]domain.ComponentHealth{
			"orders-db": {
				ID:        "orders-db",
				Type:      domain.ComponentTypeDatabase,
				Status:    domain.StatusHealthy,
				Metrics:   []domain.Metric{latency},
				LastCheck: t,
			},
			"api": {
				ID:         "api",
				Type:       domain.ComponentTypeAPIServer,
				Status:     domain.StatusWarning,
				LastCheck:  t,
				ErrorCount: 1,
				LastError:  "slow",
			},
		},
		Timestamp: t,
		Statistics: domain.Statistics{
			Total:         2,
			Healthy:       1,
			Warning:       1,
			UptimePercent: 100,
			UptimeWindow:  24 * time.Hour,
		},
	}
}
