package monitor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/require"

	"github.com/mozilla-ai/healthd/internal/alert"
	"github.com/mozilla-ai/healthd/internal/checks"
	"github.com/mozilla-ai/healthd/internal/domain"
	healthderrors "github.com/mozilla-ai/healthd/internal/errors"
	"github.com/mozilla-ai/healthd/internal/recovery"
)

// switchable is a checker whose next status can be changed between cycles.
type switchable struct {
	id     string
	ctype  domain.ComponentType
	status atomic.Int64
	calls  atomic.Int64
}

func newSwitchable(id string, status domain.Status) *switchable {
	s := &switchable{id: id, ctype: domain.ComponentTypeDatabase}
	s.set(status)
	return s
}

func (s *switchable) set(status domain.Status) {
	s.status.Store(int64(status))
}

func (s *switchable) ID() string {
	return s.id
}

func (s *switchable) Type() domain.ComponentType {
	return s.ctype
}

func (s *switchable) Check(context.Context) domain.ComponentHealth {
	s.calls.Add(1)
	status := domain.Status(s.status.Load())
	if status == domain.StatusDown {
		return checks.Failure(s.id, s.ctype, errors.New("connection refused"))
	}

	threshold := domain.Threshold{Warning: 1, Critical: 2}
	return checks.Healthy(s.id, s.ctype, domain.NewMetric("level", float64(status), "", threshold))
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestMonitor(t *testing.T, deps Dependencies, opts ...Option) (*Monitor, *clock) {
	t.Helper()

	if deps.Logger == nil {
		deps.Logger = hclog.NewNullLogger()
	}
	opts = append([]Option{WithInterval(time.Second), WithProbeTimeout(200 * time.Millisecond)}, opts...)

	m, err := New(deps, opts...)
	require.NoError(t, err)

	c := &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	m.now = c.Now
	return m, c
}

func forceCheck(t *testing.T, m *Monitor) *domain.SystemHealth {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	snap, err := m.ForceCheck(ctx)
	require.NoError(t, err)
	require.NoError(t, m.Wait(ctx))
	return snap
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	_, err := New(Dependencies{})
	require.Error(t, err)

	_, err = New(Dependencies{Logger: hclog.NewNullLogger()}, WithInterval(time.Second), WithProbeTimeout(time.Second))
	require.ErrorContains(t, err, "must be shorter than the interval")

	_, err = New(Dependencies{Logger: hclog.NewNullLogger()}, WithDebounce(0))
	require.Error(t, err)

	_, err = New(Dependencies{Logger: hclog.NewNullLogger()}, WithAggregation(1.5, 0.5))
	require.Error(t, err)
}

func TestMonitor_Registration(t *testing.T) {
	t.Parallel()

	m, _ := newTestMonitor(t, Dependencies{})

	require.NoError(t, m.Register(newSwitchable("db", domain.StatusHealthy)))
	require.NoError(t, m.Register(newSwitchable("cache", domain.StatusHealthy)))
	require.ErrorIs(t, m.Register(newSwitchable("db", domain.StatusHealthy)), healthderrors.ErrComponentExists)
	require.ErrorIs(t, m.Register(newSwitchable(" ", domain.StatusHealthy)), healthderrors.ErrBadRequest)
	require.ErrorIs(t, m.Register(nil), healthderrors.ErrBadRequest)

	components := m.Components()
	require.Len(t, components, 2)
	require.Equal(t, "cache", components[0].ID)
	require.False(t, components[0].Checked)

	_, err := m.Component("missing")
	require.ErrorIs(t, err, healthderrors.ErrComponentNotFound)

	require.NoError(t, m.Unregister("cache"))
	require.ErrorIs(t, m.Unregister("cache"), healthderrors.ErrComponentNotFound)

	snap := forceCheck(t, m)
	require.Len(t, snap.Components, 1)

	got, err := m.Component("db")
	require.NoError(t, err)
	require.True(t, got.Checked)
	require.Equal(t, domain.StatusHealthy, got.Health.Status)

	events, err := m.Events(context.Background(), "cache", time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, domain.EventComponentRegistered, events[0].Type)
	require.Equal(t, domain.EventComponentUnregistered, events[1].Type)
}

func TestMonitor_CurrentBeforeFirstCycle(t *testing.T) {
	t.Parallel()

	m, _ := newTestMonitor(t, Dependencies{})

	_, err := m.Current()
	require.ErrorIs(t, err, healthderrors.ErrDataUnavailable)

	forceCheck(t, m)
	snap, err := m.Current()
	require.NoError(t, err)
	require.Equal(t, domain.StatusHealthy, snap.OverallStatus)
	require.Equal(t, 0, snap.Statistics.Total)
}

func TestMonitor_OneCriticalOfFiveIsWarning(t *testing.T) {
	t.Parallel()

	m, _ := newTestMonitor(t, Dependencies{})
	for _, id := range []string{"a", "b", "c", "d"} {
		require.NoError(t, m.Register(newSwitchable(id, domain.StatusHealthy)))
	}
	require.NoError(t, m.Register(newSwitchable("disk", domain.StatusCritical)))

	snap := forceCheck(t, m)

	require.Equal(t, domain.StatusWarning, snap.OverallStatus)
	require.Equal(t, 5, snap.Statistics.Total)
	require.Equal(t, 4, snap.Statistics.Healthy)
	require.Equal(t, 1, snap.Statistics.Critical)
	require.Equal(t, float64(80), snap.Statistics.UptimePercent)
	require.Equal(t, DefaultUptimeWindow(), snap.Statistics.UptimeWindow)
}

func TestMonitor_TimedOutProbeIsDown(t *testing.T) {
	t.Parallel()

	m, _ := newTestMonitor(t, Dependencies{}, WithProbeTimeout(50*time.Millisecond))
	require.NoError(t, m.Register(newSwitchable("db", domain.StatusHealthy)))
	require.NoError(t, m.Register(checks.NewCheckerFunc("api", domain.ComponentTypeAPIServer, func(ctx context.Context) domain.ComponentHealth {
		<-ctx.Done()
		time.Sleep(100 * time.Millisecond)
		return domain.ComponentHealth{}
	})))

	snap := forceCheck(t, m)

	api := snap.Components["api"]
	require.Equal(t, domain.StatusDown, api.Status)
	require.Contains(t, api.LastError, checks.ErrProbeTimeout.Error())
	require.Equal(t, 1, api.ErrorCount)
	require.Equal(t, domain.StatusHealthy, snap.Components["db"].Status)
	require.Equal(t, domain.StatusCritical, snap.OverallStatus)
}

func TestMonitor_PanickingProbeIsDown(t *testing.T) {
	t.Parallel()

	m, _ := newTestMonitor(t, Dependencies{})
	require.NoError(t, m.Register(checks.NewCheckerFunc("broken", domain.ComponentTypeExternalAPI, func(context.Context) domain.ComponentHealth {
		panic("nil map")
	})))

	snap := forceCheck(t, m)
	require.Equal(t, domain.StatusDown, snap.Components["broken"].Status)
	require.Contains(t, snap.Components["broken"].LastError, "nil map")
}

func TestMonitor_StatusNeverHealthierThanMetrics(t *testing.T) {
	t.Parallel()

	m, _ := newTestMonitor(t, Dependencies{})
	require.NoError(t, m.Register(checks.NewCheckerFunc("db", domain.ComponentTypeDatabase, func(context.Context) domain.ComponentHealth {
		return domain.ComponentHealth{
			Status:  domain.StatusHealthy,
			Metrics: []domain.Metric{domain.NewMetric("latency", 300, "ms", domain.Threshold{Warning: 50, Critical: 200})},
		}
	})))
	require.NoError(t, m.Register(checks.NewCheckerFunc("odd", domain.ComponentTypeDatabase, func(context.Context) domain.ComponentHealth {
		return domain.ComponentHealth{Status: domain.Status(42)}
	})))

	snap := forceCheck(t, m)
	require.Equal(t, domain.StatusCritical, snap.Components["db"].Status)
	require.Equal(t, domain.StatusDown, snap.Components["odd"].Status)
	require.Contains(t, snap.Components["odd"].LastError, "unknown status 42")
}

func TestMonitor_UptimeAndErrorCount(t *testing.T) {
	t.Parallel()

	m, c := newTestMonitor(t, Dependencies{})
	db := newSwitchable("db", domain.StatusHealthy)
	require.NoError(t, m.Register(db))

	step := func(status domain.Status) domain.ComponentHealth {
		db.set(status)
		snap := forceCheck(t, m)
		c.Advance(10 * time.Second)
		return snap.Components["db"]
	}

	require.Equal(t, float64(0), step(domain.StatusHealthy).UptimeSeconds)
	require.Equal(t, float64(10), step(domain.StatusHealthy).UptimeSeconds)

	down := step(domain.StatusDown)
	require.Equal(t, float64(20), down.UptimeSeconds)
	require.Equal(t, 1, down.ErrorCount)

	down = step(domain.StatusDown)
	require.Equal(t, float64(20), down.UptimeSeconds)
	require.Equal(t, 2, down.ErrorCount)
	require.Equal(t, "connection refused", down.LastError)

	// Back to healthy after a full outage: uptime and error count restart.
	up := step(domain.StatusHealthy)
	require.Equal(t, float64(0), up.UptimeSeconds)
	require.Equal(t, 0, up.ErrorCount)
	require.Empty(t, up.LastError)

	require.Equal(t, float64(10), step(domain.StatusHealthy).UptimeSeconds)
}

func TestMonitor_PartialRecoveryResumesUptime(t *testing.T) {
	t.Parallel()

	m, c := newTestMonitor(t, Dependencies{})
	db := newSwitchable("db", domain.StatusHealthy)
	require.NoError(t, m.Register(db))

	forceCheck(t, m)
	c.Advance(10 * time.Second)

	db.set(domain.StatusDown)
	forceCheck(t, m)
	c.Advance(10 * time.Second)

	db.set(domain.StatusWarning)
	warn := forceCheck(t, m).Components["db"]
	require.Equal(t, float64(10), warn.UptimeSeconds)
	require.Equal(t, 1, warn.ErrorCount)
}

func TestMonitor_RecordsTransitionsAndHistory(t *testing.T) {
	t.Parallel()

	m, c := newTestMonitor(t, Dependencies{})
	db := newSwitchable("db", domain.StatusHealthy)
	require.NoError(t, m.Register(db))

	forceCheck(t, m)
	c.Advance(time.Second)
	db.set(domain.StatusDown)
	forceCheck(t, m)

	ctx := context.Background()
	records, err := m.History(ctx, "db", time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, domain.StatusDown, records[1].Status)
	require.Equal(t, "connection refused", records[1].Error)

	events, err := m.Events(ctx, "db", time.Time{}, time.Time{})
	require.NoError(t, err)

	var transitions []domain.SystemEvent
	for _, ev := range events {
		if ev.Type == domain.EventTransition {
			transitions = append(transitions, ev)
		}
	}
	require.Len(t, transitions, 1)
	require.Equal(t, domain.StatusHealthy, transitions[0].From)
	require.Equal(t, domain.StatusDown, transitions[0].To)
	require.Equal(t, "connection refused", transitions[0].Context["error"])

	_, err = m.History(ctx, "db", time.Now(), time.Now().Add(-time.Hour))
	require.ErrorIs(t, err, healthderrors.ErrBadRequest)
}

func TestMonitor_RecoveryOnDegradation(t *testing.T) {
	t.Parallel()

	reg, err := recovery.NewRegistry(hclog.NewNullLogger())
	require.NoError(t, err)

	var calls atomic.Int64
	require.NoError(t, reg.Register(domain.ComponentTypeDatabase, recovery.HandlerFunc(
		func(context.Context, domain.ComponentHealth) error {
			calls.Add(1)
			return nil
		},
	)))

	m, _ := newTestMonitor(t, Dependencies{Recovery: reg})
	db := newSwitchable("db", domain.StatusHealthy)
	require.NoError(t, m.Register(db))

	forceCheck(t, m)
	require.Zero(t, calls.Load())

	db.set(domain.StatusWarning)
	forceCheck(t, m)
	require.Equal(t, int64(1), calls.Load())

	// Staying in warning is not a degradation.
	forceCheck(t, m)
	require.Equal(t, int64(1), calls.Load())

	// The count from the earlier attempt is carried in the published health.
	db.set(domain.StatusCritical)
	snap := forceCheck(t, m)
	require.Equal(t, int64(2), calls.Load())
	require.Equal(t, 1, snap.Components["db"].RecoveryAttempts)

	db.set(domain.StatusHealthy)
	require.Zero(t, forceCheck(t, m).Components["db"].RecoveryAttempts)

	events, err := m.Events(context.Background(), "db", time.Time{}, time.Time{})
	require.NoError(t, err)
	succeeded := 0
	for _, ev := range events {
		if ev.Type == domain.EventRecoverySucceeded {
			succeeded++
		}
	}
	require.Equal(t, 2, succeeded)
}

func TestMonitor_RecoveryBreakerStopsAttempts(t *testing.T) {
	t.Parallel()

	reg, err := recovery.NewRegistry(hclog.NewNullLogger(),
		recovery.WithMaxAttempts(2),
		recovery.WithBackoff(0, 0, 1),
		recovery.WithCooldown(time.Hour),
	)
	require.NoError(t, err)

	var calls atomic.Int64
	require.NoError(t, reg.Register(domain.ComponentTypeDatabase, recovery.HandlerFunc(
		func(context.Context, domain.ComponentHealth) error {
			calls.Add(1)
			return errors.New("still broken")
		},
	)))

	m, _ := newTestMonitor(t, Dependencies{Recovery: reg})
	require.NoError(t, m.Register(newSwitchable("db", domain.StatusDown)))

	for range 5 {
		forceCheck(t, m)
	}

	require.Equal(t, int64(2), calls.Load())
	require.Equal(t, recovery.BreakerOpen, reg.Breaker("db").State)

	got, err := m.Component("db")
	require.NoError(t, err)
	require.Equal(t, 2, got.Health.RecoveryAttempts)

	events, err := m.Events(context.Background(), "db", time.Time{}, time.Time{})
	require.NoError(t, err)
	failed := 0
	for _, ev := range events {
		if ev.Type == domain.EventRecoveryFailed {
			failed++
			require.Equal(t, "still broken", ev.Context["error"])
		}
	}
	require.Equal(t, 2, failed)
}

type recordingChannel struct {
	mu    sync.Mutex
	kinds []alert.Kind
	subj  []string
}

func (c *recordingChannel) Name() string {
	return "rec"
}

func (c *recordingChannel) Send(_ context.Context, n alert.Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.kinds = append(c.kinds, n.Kind)
	c.subj = append(c.subj, n.Subject())
	return nil
}

func (c *recordingChannel) sent() []alert.Kind {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]alert.Kind(nil), c.kinds...)
}

func TestMonitor_DebouncedAlerting(t *testing.T) {
	t.Parallel()

	ch := &recordingChannel{}
	alerts, err := alert.NewManager(hclog.NewNullLogger(), []alert.Channel{ch}, nil)
	require.NoError(t, err)

	m, _ := newTestMonitor(t, Dependencies{Alerts: alerts}, WithDebounce(2))
	db := newSwitchable("db", domain.StatusHealthy)
	require.NoError(t, m.Register(db))

	forceCheck(t, m)

	// A single flip is not confirmed.
	db.set(domain.StatusDown)
	forceCheck(t, m)
	db.set(domain.StatusHealthy)
	forceCheck(t, m)
	require.Empty(t, ch.sent())

	db.set(domain.StatusDown)
	forceCheck(t, m)
	forceCheck(t, m)
	require.Equal(t, []alert.Kind{alert.KindFired}, ch.sent())

	open := alerts.List(alert.Filter{State: domain.AlertStateOpen})
	require.Len(t, open, 1)
	require.Equal(t, domain.StatusDown, open[0].Severity)
	require.Contains(t, open[0].Message, "db is down: connection refused")

	// Resolution also needs a full debounce window.
	db.set(domain.StatusHealthy)
	forceCheck(t, m)
	require.Len(t, alerts.List(alert.Filter{State: domain.AlertStateOpen}), 1)
	forceCheck(t, m)
	require.Empty(t, alerts.List(alert.Filter{State: domain.AlertStateOpen}))
	require.Equal(t, []alert.Kind{alert.KindFired, alert.KindResolved}, ch.sent())
}

func TestMonitor_ImprovementClosesSevereAlert(t *testing.T) {
	t.Parallel()

	ch := &recordingChannel{}
	pager := &recordingChannel{}
	alerts, err := alert.NewManager(hclog.NewNullLogger(), []alert.Channel{ch}, []alert.Channel{pager},
		alert.WithCooldown(20*time.Millisecond),
		alert.WithEscalateAfter(1),
	)
	require.NoError(t, err)

	m, _ := newTestMonitor(t, Dependencies{Alerts: alerts}, WithDebounce(1))
	db := newSwitchable("db", domain.StatusHealthy)
	require.NoError(t, m.Register(db))

	forceCheck(t, m)
	db.set(domain.StatusCritical)
	forceCheck(t, m)
	db.set(domain.StatusWarning)
	forceCheck(t, m)

	time.Sleep(60 * time.Millisecond)
	forceCheck(t, m)

	require.Empty(t, pager.sent())
	require.Empty(t, alerts.List(alert.Filter{State: domain.AlertStateOpen}))

	resolved := alerts.List(alert.Filter{State: domain.AlertStateResolved})
	require.Len(t, resolved, 1)
	require.Equal(t, domain.StatusCritical, resolved[0].Severity)
	require.Equal(t, []alert.Kind{alert.KindFired, alert.KindResolved}, ch.sent())
}

func TestMonitor_AlertsFollowCycleOrder(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ch := &recordingChannel{}
	alerts, err := alert.NewManager(hclog.NewNullLogger(), []alert.Channel{ch}, nil)
	require.NoError(t, err)

	m, _ := newTestMonitor(t, Dependencies{Alerts: alerts}, WithDebounce(1))
	db := newSwitchable("db", domain.StatusHealthy)
	require.NoError(t, m.Register(db))

	for range 10 {
		db.set(domain.StatusDown)
		_, err := m.ForceCheck(ctx)
		require.NoError(t, err)
		db.set(domain.StatusHealthy)
		_, err = m.ForceCheck(ctx)
		require.NoError(t, err)
	}
	require.NoError(t, m.Wait(ctx))

	require.Empty(t, alerts.List(alert.Filter{State: domain.AlertStateOpen}))

	sent := ch.sent()
	require.Len(t, sent, 20)
	for i, kind := range sent {
		want := alert.KindFired
		if i%2 == 1 {
			want = alert.KindResolved
		}
		require.Equal(t, want, kind, "notification %d", i)
	}
}

func TestMonitor_StartStop(t *testing.T) {
	t.Parallel()

	m, _ := newTestMonitor(t, Dependencies{}, WithInterval(20*time.Millisecond), WithProbeTimeout(10*time.Millisecond))
	db := newSwitchable("db", domain.StatusHealthy)
	require.NoError(t, m.Register(db))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.ErrorIs(t, m.Stop(ctx), healthderrors.ErrMonitorStopped)
	require.NoError(t, m.Start(ctx))
	require.ErrorIs(t, m.Start(ctx), healthderrors.ErrMonitorRunning)
	require.True(t, m.Running())

	require.Eventually(t, func() bool { return db.calls.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)

	snap, err := m.Current()
	require.NoError(t, err)
	require.Equal(t, domain.StatusHealthy, snap.OverallStatus)

	require.NoError(t, m.Stop(ctx))
	require.False(t, m.Running())

	calls := db.calls.Load()
	time.Sleep(60 * time.Millisecond)
	require.Equal(t, calls, db.calls.Load())

	// A stopped monitor can be restarted.
	require.NoError(t, m.Start(ctx))
	require.NoError(t, m.Stop(ctx))
}

func TestMonitor_StopsWithParentContext(t *testing.T) {
	t.Parallel()

	m, _ := newTestMonitor(t, Dependencies{})

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, m.Start(ctx))
	cancel()

	require.Eventually(t, func() bool { return !m.Running() }, 2*time.Second, 5*time.Millisecond)
}

func TestMonitor_SetInterval(t *testing.T) {
	t.Parallel()

	m, _ := newTestMonitor(t, Dependencies{}, WithInterval(time.Hour), WithProbeTimeout(10*time.Millisecond))
	db := newSwitchable("db", domain.StatusHealthy)
	require.NoError(t, m.Register(db))

	require.ErrorIs(t, m.SetInterval(5*time.Millisecond), healthderrors.ErrBadRequest)
	require.Equal(t, time.Hour, m.Interval())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.Start(ctx))
	t.Cleanup(func() { _ = m.Stop(context.Background()) })

	require.Eventually(t, func() bool { return db.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, m.SetInterval(20*time.Millisecond))
	require.Equal(t, 20*time.Millisecond, m.Interval())
	require.Eventually(t, func() bool { return db.calls.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)

	st := m.Status()
	require.True(t, st.Running)
	require.Equal(t, 1, st.Components)
	require.False(t, st.LastCycle.IsZero())
}

func TestMonitor_InvariantViolationStops(t *testing.T) {
	t.Parallel()

	m, _ := newTestMonitor(t, Dependencies{})
	require.NoError(t, m.Register(newSwitchable("db", domain.StatusDown)))
	m.aggregate = func(domain.Statistics) domain.Status { return domain.StatusHealthy }

	ctx := context.Background()
	_, err := m.ForceCheck(ctx)
	require.ErrorIs(t, err, errInvariant)
	require.ErrorIs(t, m.Err(), errInvariant)

	_, err = m.Current()
	require.ErrorIs(t, err, healthderrors.ErrDataUnavailable)

	_, err = m.ForceCheck(ctx)
	require.ErrorIs(t, err, healthderrors.ErrMonitorFailed)
	require.ErrorIs(t, m.Start(ctx), healthderrors.ErrMonitorFailed)
	require.NotEmpty(t, m.Status().Error)
}

type countingObserver struct {
	probes     atomic.Int64
	cycles     atomic.Int64
	recoveries atomic.Int64
}

func (o *countingObserver) ProbeCompleted(domain.ComponentHealth, time.Duration) {
	o.probes.Add(1)
}

func (o *countingObserver) CycleCompleted(*domain.SystemHealth, time.Duration) {
	o.cycles.Add(1)
}

func (o *countingObserver) RecoveryCompleted(recovery.Outcome) {
	o.recoveries.Add(1)
}

func TestMonitor_Observer(t *testing.T) {
	t.Parallel()

	reg, err := recovery.NewRegistry(hclog.NewNullLogger())
	require.NoError(t, err)

	obs := &countingObserver{}
	m, _ := newTestMonitor(t, Dependencies{Observer: obs, Recovery: reg})
	require.NoError(t, m.Register(newSwitchable("db", domain.StatusHealthy)))
	require.NoError(t, m.Register(newSwitchable("cache", domain.StatusDown)))

	forceCheck(t, m)
	forceCheck(t, m)

	require.Equal(t, int64(4), obs.probes.Load())
	require.Equal(t, int64(2), obs.cycles.Load())
	require.Equal(t, int64(2), obs.recoveries.Load())
}

func TestVerify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		overall domain.Status
		stats   domain.Statistics
		wantErr bool
	}{
		{name: "empty", overall: domain.StatusHealthy, stats: domain.Statistics{}},
		{name: "down taints", overall: domain.StatusCritical, stats: domain.Statistics{Total: 2, Healthy: 1, Down: 1}},
		{name: "down not critical", overall: domain.StatusWarning, stats: domain.Statistics{Total: 2, Healthy: 1, Down: 1}, wantErr: true},
		{name: "critical hidden", overall: domain.StatusHealthy, stats: domain.Statistics{Total: 5, Healthy: 4, Critical: 1}, wantErr: true},
		{name: "all healthy but warning", overall: domain.StatusWarning, stats: domain.Statistics{Total: 1, Healthy: 1}, wantErr: true},
		{name: "down is not aggregate", overall: domain.StatusDown, stats: domain.Statistics{Total: 1, Down: 1}, wantErr: true},
		{name: "miscounted", overall: domain.StatusHealthy, stats: domain.Statistics{Total: 2, Healthy: 1}, wantErr: true},
		{name: "minority warning", overall: domain.StatusHealthy, stats: domain.Statistics{Total: 3, Healthy: 2, Warning: 1}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			err := verify(tc.overall, tc.stats)
			if tc.wantErr {
				require.ErrorIs(t, err, errInvariant)
				return
			}
			require.NoError(t, err)
		})
	}
}
