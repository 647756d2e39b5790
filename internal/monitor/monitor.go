// Package monitor runs the periodic health-check cycle and publishes the system health snapshot.
//
// Each cycle probes every registered checker concurrently, folds the results into per-component
// state, reacts to degradations with recovery and alerting, and atomically publishes an immutable
// SystemHealth. Readers only ever see the result of a fully completed cycle.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"github.com/mozilla-ai/healthd/internal/checks"
	"github.com/mozilla-ai/healthd/internal/domain"
	healthderrors "github.com/mozilla-ai/healthd/internal/errors"
	"github.com/mozilla-ai/healthd/internal/history"
)

// Monitor owns the registered checkers and runs probe cycles against them.
type Monitor struct {
	logger   hclog.Logger
	opts     Options
	recovery Recoverer
	alerts   Alerter
	history  history.Store
	recorder Recorder
	observer Observer
	now      func() time.Time

	// aggregate folds component counts into the system status.
	aggregate func(domain.Statistics) domain.Status

	// mu guards the fields below it.
	mu       sync.RWMutex
	interval time.Duration
	checkers map[string]checks.Checker
	states   map[string]*componentState
	samples  []uptimeSample
	running  bool
	cancel   context.CancelFunc
	loopDone chan struct{}
	resets   chan time.Duration

	// cycleMu serializes cycles.
	cycleMu sync.Mutex

	current atomic.Pointer[domain.SystemHealth]
	failure atomic.Pointer[error]

	background sync.WaitGroup

	// fwdMu guards the alert forwarding queue.
	fwdMu      sync.Mutex
	fwdQueue   [][]notice
	fwdRunning bool
}

// uptimeSample is the up/total count of one cycle.
type uptimeSample struct {
	at    time.Time
	up    int
	total int
}

// ComponentInfo describes a registered component.
type ComponentInfo struct {
	ID      string                 `json:"id"`
	Type    domain.ComponentType   `json:"type"`
	Checked bool                   `json:"checked"`
	Health  domain.ComponentHealth `json:"health"`
}

// Status is the run state of the monitor.
type Status struct {
	Running    bool          `json:"running"`
	Interval   time.Duration `json:"interval"`
	Components int           `json:"components"`
	LastCycle  time.Time     `json:"last_cycle,omitzero"`
	Error      string        `json:"error,omitempty"`
}

// New creates a stopped Monitor.
func New(deps Dependencies, opt ...Option) (*Monitor, error) {
	if err := deps.Validate(); err != nil {
		return nil, err
	}
	opts, err := NewOptions(opt...)
	if err != nil {
		return nil, err
	}

	logger := deps.Logger.Named("monitor")

	store := deps.History
	if store == nil {
		store = history.NewMemoryStore()
	}
	recorder := deps.Recorder
	if recorder == nil {
		recorder = storeRecorder{logger: logger, store: store}
	}

	return &Monitor{
		logger:    logger,
		opts:      opts,
		recovery:  deps.Recovery,
		alerts:    deps.Alerts,
		history:   store,
		recorder:  recorder,
		observer:  deps.Observer,
		now:       time.Now,
		aggregate: opts.Aggregation.Aggregate,
		interval:  opts.Interval,
		checkers:  map[string]checks.Checker{},
		states:    map[string]*componentState{},
		resets:    make(chan time.Duration, 1),
	}, nil
}

// Register adds a checker. Its component is probed from the next cycle on.
func (m *Monitor) Register(checker checks.Checker) error {
	if checker == nil {
		return fmt.Errorf("%w: checker cannot be nil", healthderrors.ErrBadRequest)
	}
	id := checker.ID()
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: component id cannot be empty", healthderrors.ErrBadRequest)
	}

	m.mu.Lock()
	if _, exists := m.checkers[id]; exists {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", healthderrors.ErrComponentExists, id)
	}
	m.checkers[id] = checker
	m.states[id] = &componentState{health: domain.ComponentHealth{ID: id, Type: checker.Type()}}
	m.mu.Unlock()

	m.logger.Info("Registered component", "component", id, "type", checker.Type())
	m.record(newEvent(domain.EventComponentRegistered, id, domain.StatusHealthy, domain.StatusHealthy,
		fmt.Sprintf("component '%s' registered", id), map[string]string{"type": string(checker.Type())}, m.now()))

	return nil
}

// Unregister removes a component. Its alerts are resolved and its recovery state dropped.
// The current snapshot keeps the component until the next cycle completes.
func (m *Monitor) Unregister(id string) error {
	m.mu.Lock()
	checker, exists := m.checkers[id]
	if !exists {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", healthderrors.ErrComponentNotFound, id)
	}
	last := m.states[id].health.Status
	delete(m.checkers, id)
	delete(m.states, id)
	m.mu.Unlock()

	if m.recovery != nil {
		m.recovery.Forget(id)
	}
	if m.alerts != nil {
		m.alerts.Forget(id)
	}

	m.logger.Info("Unregistered component", "component", id, "type", checker.Type())
	m.record(newEvent(domain.EventComponentUnregistered, id, last, last,
		fmt.Sprintf("component '%s' unregistered", id), nil, m.now()))

	return nil
}

// Components returns every registered component, ordered by id.
func (m *Monitor) Components() []ComponentInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := slices.Sorted(maps.Keys(m.checkers))
	out := make([]ComponentInfo, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.infoLocked(id))
	}
	return out
}

// Component returns one registered component.
func (m *Monitor) Component(id string) (ComponentInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.checkers[id]; !ok {
		return ComponentInfo{}, fmt.Errorf("%w: %s", healthderrors.ErrComponentNotFound, id)
	}
	return m.infoLocked(id), nil
}

func (m *Monitor) infoLocked(id string) ComponentInfo {
	c := m.checkers[id]
	s := m.states[id]
	return ComponentInfo{
		ID:      id,
		Type:    c.Type(),
		Checked: s.checked,
		Health:  s.health.Clone(),
	}
}

// Start runs the periodic loop until Stop is called or ctx is canceled.
// The first cycle runs immediately.
func (m *Monitor) Start(ctx context.Context) error {
	if err := m.Err(); err != nil {
		return fmt.Errorf("%w: %w", healthderrors.ErrMonitorFailed, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return healthderrors.ErrMonitorRunning
	}

	loopCtx, cancel := context.WithCancel(ctx)
	m.running = true
	m.cancel = cancel
	m.loopDone = make(chan struct{})

	go m.loop(loopCtx, m.interval, m.loopDone)

	m.logger.Info("Monitor started", "interval", m.interval, "probeTimeout", m.opts.ProbeTimeout)
	return nil
}

// Stop halts the loop. In-flight probes are canceled and their cycle is discarded.
// Stop returns once the loop has exited and background recovery and alerting have finished, or ctx is done.
func (m *Monitor) Stop(ctx context.Context) error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return healthderrors.ErrMonitorStopped
	}
	cancel, done := m.cancel, m.loopDone
	m.mu.Unlock()

	cancel()

	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("waiting for monitor loop: %w", ctx.Err())
	}

	if err := m.Wait(ctx); err != nil {
		return err
	}

	m.logger.Info("Monitor stopped")
	return nil
}

// Wait blocks until background recovery and alert delivery started by completed cycles have finished.
func (m *Monitor) Wait(ctx context.Context) error {
	idle := make(chan struct{})
	go func() {
		m.background.Wait()
		close(idle)
	}()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for background work: %w", ctx.Err())
	}
}

// Running reports whether the periodic loop is active.
func (m *Monitor) Running() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.running
}

// Interval returns the configured cycle interval.
func (m *Monitor) Interval() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.interval
}

// SetInterval changes the cycle interval. A running loop picks it up immediately.
func (m *Monitor) SetInterval(d time.Duration) error {
	if d <= m.opts.ProbeTimeout {
		return fmt.Errorf(
			"%w: interval (%s) must be longer than the probe timeout (%s)",
			healthderrors.ErrBadRequest, d, m.opts.ProbeTimeout,
		)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.interval = d
	if m.running {
		select {
		case <-m.resets:
		default:
		}
		m.resets <- d
	}

	m.logger.Info("Monitor interval changed", "interval", d)
	return nil
}

// Status returns the run state of the monitor.
func (m *Monitor) Status() Status {
	m.mu.RLock()
	st := Status{Running: m.running, Interval: m.interval, Components: len(m.checkers)}
	m.mu.RUnlock()

	if snap := m.current.Load(); snap != nil {
		st.LastCycle = snap.Timestamp
	}
	if err := m.Err(); err != nil {
		st.Error = err.Error()
	}
	return st
}

// Current returns the snapshot of the last completed cycle.
// The snapshot is shared and must not be modified.
func (m *Monitor) Current() (*domain.SystemHealth, error) {
	snap := m.current.Load()
	if snap == nil {
		return nil, fmt.Errorf("%w: no health check cycle has completed yet", healthderrors.ErrDataUnavailable)
	}
	return snap, nil
}

// ForceCheck runs one cycle immediately and returns its snapshot.
// It waits for any cycle already in progress.
func (m *Monitor) ForceCheck(ctx context.Context) (*domain.SystemHealth, error) {
	if err := m.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", healthderrors.ErrMonitorFailed, err)
	}
	return m.cycle(ctx)
}

// History returns the probe results of a component within [from, to].
func (m *Monitor) History(ctx context.Context, id string, from time.Time, to time.Time) ([]domain.CheckRecord, error) {
	records, err := m.history.Checks(ctx, history.Query{ComponentID: id, From: from, To: to})
	if err != nil {
		return nil, historyError(err)
	}
	return records, nil
}

// Events returns system events within [from, to], optionally for a single component.
func (m *Monitor) Events(ctx context.Context, id string, from time.Time, to time.Time) ([]domain.SystemEvent, error) {
	events, err := m.history.Events(ctx, history.Query{ComponentID: id, From: from, To: to})
	if err != nil {
		return nil, historyError(err)
	}
	return events, nil
}

// Err returns the invariant violation that stopped the monitor, if any.
func (m *Monitor) Err() error {
	if p := m.failure.Load(); p != nil {
		return *p
	}
	return nil
}

func (m *Monitor) loop(ctx context.Context, interval time.Duration, done chan struct{}) {
	defer close(done)
	defer func() {
		m.mu.Lock()
		m.running = false
		m.cancel = nil
		m.mu.Unlock()
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case d := <-m.resets:
			ticker.Reset(d)
		case <-ticker.C:
			if !m.tick(ctx) {
				return
			}
		}
	}
}

// tick runs one scheduled cycle and reports whether the loop should continue.
func (m *Monitor) tick(ctx context.Context) bool {
	_, err := m.cycle(ctx)
	if ctx.Err() != nil {
		return false
	}
	if err == nil {
		return true
	}
	if errors.Is(err, errInvariant) {
		m.logger.Error("Monitor stopped after an invariant violation", "error", err)
		return false
	}
	m.logger.Error("Health check cycle failed", "error", err)
	return true
}

func (m *Monitor) record(events ...domain.SystemEvent) {
	if len(events) > 0 {
		m.recorder.WriteEvents(events...)
	}
}

func newEvent(
	eventType domain.EventType,
	componentID string,
	from domain.Status,
	to domain.Status,
	message string,
	fields map[string]string,
	at time.Time,
) domain.SystemEvent {
	return domain.SystemEvent{
		ID:          uuid.NewString(),
		ComponentID: componentID,
		Type:        eventType,
		From:        from,
		To:          to,
		Message:     message,
		Context:     fields,
		Timestamp:   at.UTC(),
	}
}

func historyError(err error) error {
	var qerr *history.QueryError
	if errors.As(err, &qerr) {
		return fmt.Errorf("%w: %w", healthderrors.ErrBadRequest, err)
	}
	return fmt.Errorf("%w: %w", healthderrors.ErrHistoryFailed, err)
}
