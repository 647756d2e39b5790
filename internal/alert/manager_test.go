package alert

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/require"

	"github.com/mozilla-ai/healthd/internal/domain"
	healthderrors "github.com/mozilla-ai/healthd/internal/errors"
)

type recordingChannel struct {
	name string
	err  error

	mu   sync.Mutex
	sent []Notification
}

func (c *recordingChannel) Name() string {
	return c.name
}

func (c *recordingChannel) Send(_ context.Context, n Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, n)
	return c.err
}

func (c *recordingChannel) kinds() []Kind {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Kind, 0, len(c.sent))
	for _, n := range c.sent {
		out = append(out, n.Kind)
	}
	return out
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

type eventLog struct {
	mu     sync.Mutex
	events []domain.SystemEvent
}

func (l *eventLog) record(ev domain.SystemEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) types() []domain.EventType {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.EventType, 0, len(l.events))
	for _, ev := range l.events {
		out = append(out, ev.Type)
	}
	return out
}

func newTestManager(t *testing.T, channels []Channel, escalation []Channel, opts ...Option) (*Manager, *clock) {
	t.Helper()

	m, err := NewManager(hclog.NewNullLogger(), channels, escalation, opts...)
	require.NoError(t, err)

	c := &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	m.now = c.Now
	return m, c
}

func critical(component string) Event {
	return Event{Severity: domain.StatusCritical, ComponentID: component, Message: "disk nearly full"}
}

func TestManager_SuppressesWithinCooldown(t *testing.T) {
	t.Parallel()

	ch := &recordingChannel{name: "rec"}
	m, c := newTestManager(t, []Channel{ch}, nil, WithCooldown(15*time.Minute))
	ctx := context.Background()

	first := m.Notify(ctx, critical("db"))
	require.True(t, first.Delivered)
	require.Equal(t, KindFired, first.Kind)
	require.NoError(t, first.Err)

	c.Advance(time.Minute)
	second := m.Notify(ctx, critical("db"))
	require.True(t, second.Suppressed)
	require.False(t, second.Delivered)
	require.Equal(t, first.Alert.ID, second.Alert.ID)
	require.Equal(t, 1, second.Alert.SuppressedCount)

	require.Len(t, ch.kinds(), 1)
	stats := m.Stats()
	require.Equal(t, int64(1), stats.Fired)
	require.Equal(t, int64(1), stats.Suppressed)
	require.Equal(t, 1, stats.Open)
}

func TestManager_RepeatsAfterCooldown(t *testing.T) {
	t.Parallel()

	ch := &recordingChannel{name: "rec"}
	m, c := newTestManager(t, []Channel{ch}, nil, WithCooldown(15*time.Minute))
	ctx := context.Background()

	first := m.Notify(ctx, critical("db"))
	c.Advance(15 * time.Minute)
	again := m.Notify(ctx, critical("db"))

	require.True(t, again.Delivered)
	require.Equal(t, KindRepeated, again.Kind)
	require.Equal(t, first.Alert.ID, again.Alert.ID)
	require.Equal(t, []Kind{KindFired, KindRepeated}, ch.kinds())
}

func TestManager_KeyIncludesSeverityAndComponent(t *testing.T) {
	t.Parallel()

	ch := &recordingChannel{name: "rec"}
	m, _ := newTestManager(t, []Channel{ch}, nil)
	ctx := context.Background()

	a := m.Notify(ctx, critical("db"))
	b := m.Notify(ctx, Event{Severity: domain.StatusDown, ComponentID: "db", Message: "unreachable"})
	c := m.Notify(ctx, critical("cache"))

	require.True(t, a.Delivered)
	require.True(t, b.Delivered)
	require.True(t, c.Delivered)
	require.Len(t, ch.kinds(), 3)
	require.Len(t, m.List(Filter{State: domain.AlertStateOpen}), 3)
}

func TestManager_NotifyValidation(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager(t, nil, nil)

	res := m.Notify(context.Background(), Event{Severity: domain.StatusHealthy, ComponentID: "db"})
	require.ErrorIs(t, res.Err, healthderrors.ErrBadRequest)

	res = m.Notify(context.Background(), Event{Severity: domain.StatusCritical})
	require.ErrorIs(t, res.Err, healthderrors.ErrBadRequest)
}

func TestManager_FailingChannelDoesNotBlockOthers(t *testing.T) {
	t.Parallel()

	broken := &recordingChannel{name: "broken", err: errors.New("smtp down")}
	ok := &recordingChannel{name: "ok"}
	m, _ := newTestManager(t, []Channel{broken, ok}, nil)

	res := m.Notify(context.Background(), critical("db"))
	require.True(t, res.Delivered)
	require.ErrorContains(t, res.Err, "broken: smtp down")
	require.Len(t, ok.kinds(), 1)
	require.Equal(t, int64(1), m.Stats().DeliveryFailures)
}

func TestManager_Escalation(t *testing.T) {
	t.Parallel()

	normal := &recordingChannel{name: "normal"}
	pager := &recordingChannel{name: "pager"}
	m, c := newTestManager(t, []Channel{normal}, []Channel{pager},
		WithCooldown(10*time.Minute),
		WithEscalateAfter(3),
	)
	ctx := context.Background()

	crit := m.Notify(ctx, critical("db"))
	m.Notify(ctx, Event{Severity: domain.StatusWarning, ComponentID: "api", Message: "slow"})

	c.Advance(29 * time.Minute)
	require.Empty(t, m.Tick(ctx, 0))

	c.Advance(time.Minute)
	escalated := m.Tick(ctx, 0)
	require.Len(t, escalated, 1)
	require.Equal(t, crit.Alert.ID, escalated[0].ID)
	require.True(t, escalated[0].Escalated)
	require.Equal(t, []Kind{KindEscalated}, pager.kinds())

	// Escalation happens once.
	c.Advance(time.Hour)
	require.Empty(t, m.Tick(ctx, 0))
	require.Len(t, pager.kinds(), 1)
}

func TestManager_AcknowledgedAlertsAreNotRenotifiedOrEscalated(t *testing.T) {
	t.Parallel()

	ch := &recordingChannel{name: "rec"}
	m, c := newTestManager(t, []Channel{ch}, []Channel{ch}, WithCooldown(time.Minute), WithEscalateAfter(1))
	ctx := context.Background()

	res := m.Notify(ctx, critical("db"))
	acked, err := m.Acknowledge(ctx, res.Alert.ID)
	require.NoError(t, err)
	require.Equal(t, domain.AlertStateAcknowledged, acked.State)
	require.NotNil(t, acked.AcknowledgedAt)

	c.Advance(10 * time.Minute)
	again := m.Notify(ctx, critical("db"))
	require.True(t, again.Suppressed)
	require.Empty(t, m.Tick(ctx, 0))
	require.Len(t, ch.kinds(), 1)

	// Acknowledgement does not stop resolution tracking.
	resolved := m.Observe(ctx, "db", domain.StatusHealthy)
	require.Len(t, resolved, 1)
	require.Equal(t, domain.AlertStateResolved, resolved[0].State)
}

func TestManager_ObserveResolves(t *testing.T) {
	t.Parallel()

	ch := &recordingChannel{name: "rec"}
	events := &eventLog{}
	m, _ := newTestManager(t, []Channel{ch}, nil, WithEventSink(events.record))
	ctx := context.Background()

	m.Notify(ctx, critical("db"))
	m.Notify(ctx, Event{Severity: domain.StatusDown, ComponentID: "db"})
	m.Notify(ctx, critical("cache"))

	require.Nil(t, m.Observe(ctx, "db", domain.StatusDown))

	resolved := m.Observe(ctx, "db", domain.StatusHealthy)
	require.Len(t, resolved, 2)
	require.Len(t, m.List(Filter{State: domain.AlertStateResolved}), 2)
	require.Len(t, m.List(Filter{State: domain.AlertStateOpen, ComponentID: "cache"}), 1)

	// A new incident after resolution opens a new alert.
	fresh := m.Notify(ctx, critical("db"))
	require.True(t, fresh.Delivered)
	require.Equal(t, KindFired, fresh.Kind)
	require.NotEqual(t, resolved[0].ID, fresh.Alert.ID)

	require.Contains(t, events.types(), domain.EventAlertResolved)
	require.Contains(t, ch.kinds(), KindResolved)
}

func TestManager_AcknowledgeAndResolveErrors(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager(t, nil, nil)
	ctx := context.Background()

	_, err := m.Acknowledge(ctx, "missing")
	require.ErrorIs(t, err, healthderrors.ErrAlertNotFound)
	_, err = m.Resolve(ctx, "missing")
	require.ErrorIs(t, err, healthderrors.ErrAlertNotFound)

	res := m.Notify(ctx, critical("db"))
	_, err = m.Resolve(ctx, res.Alert.ID)
	require.NoError(t, err)

	_, err = m.Resolve(ctx, res.Alert.ID)
	require.ErrorIs(t, err, healthderrors.ErrAlertResolved)
	_, err = m.Acknowledge(ctx, res.Alert.ID)
	require.ErrorIs(t, err, healthderrors.ErrAlertResolved)

	got, err := m.Get(res.Alert.ID)
	require.NoError(t, err)
	require.Equal(t, domain.AlertStateResolved, got.State)
	require.NotNil(t, got.ResolvedAt)
}

func TestManager_ListFilters(t *testing.T) {
	t.Parallel()

	m, c := newTestManager(t, nil, nil)
	ctx := context.Background()

	start := c.Now()
	m.Notify(ctx, critical("db"))
	c.Advance(time.Hour)
	m.Notify(ctx, critical("cache"))
	c.Advance(time.Hour)
	m.Notify(ctx, critical("api"))

	all := m.List(Filter{})
	require.Len(t, all, 3)
	require.Equal(t, []string{"db", "cache", "api"}, []string{all[0].ComponentID, all[1].ComponentID, all[2].ComponentID})

	windowed := m.List(Filter{From: start.Add(30 * time.Minute), To: start.Add(90 * time.Minute)})
	require.Len(t, windowed, 1)
	require.Equal(t, "cache", windowed[0].ComponentID)

	require.Len(t, m.List(Filter{ComponentID: "api"}), 1)
}

func TestManager_TickForgetsOldResolved(t *testing.T) {
	t.Parallel()

	m, c := newTestManager(t, nil, nil)
	ctx := context.Background()

	res := m.Notify(ctx, critical("db"))
	m.Observe(ctx, "db", domain.StatusHealthy)

	c.Advance(2 * time.Hour)
	m.Tick(ctx, time.Hour)

	_, err := m.Get(res.Alert.ID)
	require.ErrorIs(t, err, healthderrors.ErrAlertNotFound)
}

func TestManager_ReturnedAlertsAreCopies(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager(t, nil, nil)
	res := m.Notify(context.Background(), Event{
		Severity:    domain.StatusCritical,
		ComponentID: "db",
		Context:     map[string]string{"metric": "disk_used_percent"},
	})
	res.Alert.Context["metric"] = "changed"

	got, err := m.Get(res.Alert.ID)
	require.NoError(t, err)
	require.Equal(t, "disk_used_percent", got.Context["metric"])
}

func TestManager_ObserveImprovementResolvesMoreSevere(t *testing.T) {
	t.Parallel()

	ch := &recordingChannel{name: "rec"}
	m, _ := newTestManager(t, []Channel{ch}, nil)
	ctx := context.Background()

	m.Notify(ctx, Event{Severity: domain.StatusWarning, ComponentID: "db"})
	down := m.Notify(ctx, Event{Severity: domain.StatusDown, ComponentID: "db"})
	crit := m.Notify(ctx, critical("db"))

	resolved := m.Observe(ctx, "db", domain.StatusCritical)
	require.Len(t, resolved, 1)
	require.Equal(t, down.Alert.ID, resolved[0].ID)

	resolved = m.Observe(ctx, "db", domain.StatusWarning)
	require.Len(t, resolved, 1)
	require.Equal(t, crit.Alert.ID, resolved[0].ID)

	open := m.List(Filter{State: domain.AlertStateOpen, ComponentID: "db"})
	require.Len(t, open, 1)
	require.Equal(t, domain.StatusWarning, open[0].Severity)
}

func TestManager_NoEscalationAfterImprovement(t *testing.T) {
	t.Parallel()

	ch := &recordingChannel{name: "rec"}
	m, c := newTestManager(t, []Channel{ch}, []Channel{ch}, WithCooldown(time.Minute), WithEscalateAfter(1))
	ctx := context.Background()

	m.Notify(ctx, critical("db"))
	m.Observe(ctx, "db", domain.StatusWarning)

	c.Advance(10 * time.Minute)
	require.Empty(t, m.Tick(ctx, 0))
	require.NotContains(t, ch.kinds(), KindEscalated)
}
