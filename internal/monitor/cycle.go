package monitor

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mozilla-ai/healthd/internal/alert"
	"github.com/mozilla-ai/healthd/internal/checks"
	"github.com/mozilla-ai/healthd/internal/domain"
	"github.com/mozilla-ai/healthd/internal/recovery"
)

// errInvariant marks a cycle whose aggregate contradicts its component statuses.
var errInvariant = errors.New("health aggregation invariant violated")

type target struct {
	checker checks.Checker
	state   *componentState
}

type probeResult struct {
	target   target
	health   domain.ComponentHealth
	duration time.Duration
}

type recoveryRequest struct {
	state    *componentState
	health   domain.ComponentHealth
	announce bool
}

// notice is a confirmed status change to forward to the alert manager.
// A degradation fires an alert; any other change is observed so that more severe alerts close.
type notice struct {
	event    alert.Event
	status   domain.Status
	degraded bool
}

// cycle probes every registered component once, folds the results and publishes the snapshot.
func (m *Monitor) cycle(ctx context.Context) (*domain.SystemHealth, error) {
	m.cycleMu.Lock()
	defer m.cycleMu.Unlock()

	started := time.Now()

	m.mu.RLock()
	targets := make([]target, 0, len(m.checkers))
	for id, c := range m.checkers {
		targets = append(targets, target{checker: c, state: m.states[id]})
	}
	m.mu.RUnlock()

	results := make([]probeResult, len(targets))
	var g errgroup.Group
	for i, t := range targets {
		g.Go(func() error {
			began := time.Now()
			h := checks.Run(ctx, t.checker, m.opts.ProbeTimeout)
			results[i] = probeResult{target: t, health: h, duration: time.Since(began)}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("health check cycle canceled: %w", err)
	}

	now := m.now()

	var (
		events     []domain.SystemEvent
		records    []domain.CheckRecord
		recoveries []recoveryRequest
		notices    []notice
		probed     []probeResult
	)
	components := make(map[string]domain.ComponentHealth, len(results))

	m.mu.Lock()
	for _, r := range results {
		id := r.target.checker.ID()
		if m.states[id] != r.target.state {
			// Unregistered while the probe was running.
			continue
		}
		state := r.target.state

		published, tr := state.fold(normalize(r.health), now)
		components[id] = published
		records = append(records, domain.NewCheckRecord(published))
		probed = append(probed, probeResult{target: r.target, health: published, duration: r.duration})

		if tr != nil {
			events = append(events, m.transitionEvent(published, tr, now))
		}

		if req, ok := m.recoveryFor(state, published, tr); ok {
			recoveries = append(recoveries, req)
		}

		if prev, changed := state.confirm(published.Status, m.opts.Debounce); changed {
			notices = append(notices, noticeFor(published, prev))
		}
	}

	snapshot, err := m.aggregateLocked(components, now)
	m.mu.Unlock()

	if err != nil {
		m.failure.Store(&err)
		return nil, err
	}

	m.current.Store(snapshot)

	m.recorder.WriteChecks(records...)
	m.record(events...)

	if m.observer != nil {
		for _, p := range probed {
			m.observer.ProbeCompleted(p.health, p.duration)
		}
		m.observer.CycleCompleted(snapshot, time.Since(started))
	}

	bg := context.WithoutCancel(ctx)
	for _, req := range recoveries {
		m.background.Add(1)
		go m.recover(bg, req)
	}
	if m.alerts != nil {
		m.enqueue(bg, notices)
	}

	m.logger.Debug(
		"Health check cycle completed",
		"components", snapshot.Statistics.Total,
		"status", snapshot.OverallStatus,
		"duration", time.Since(started),
	)

	return snapshot, nil
}

// normalize makes sure a probe result is never healthier than its own metrics.
func normalize(h domain.ComponentHealth) domain.ComponentHealth {
	if !h.Status.Valid() {
		h.LastError = fmt.Sprintf("checker reported an unknown status %d", int(h.Status))
		h.Status = domain.StatusDown
		return h
	}
	h.Status = domain.Worst(h.Status, h.MetricsStatus())
	return h
}

func (m *Monitor) transitionEvent(h domain.ComponentHealth, tr *transition, now time.Time) domain.SystemEvent {
	fields := map[string]string{"type": string(h.Type)}
	if h.LastError != "" {
		fields["error"] = h.LastError
	}

	if tr.to.WorseThan(tr.from) {
		m.logger.Warn("Component degraded", "component", h.ID, "from", tr.from, "to", tr.to, "error", h.LastError)
	} else {
		m.logger.Info("Component improved", "component", h.ID, "from", tr.from, "to", tr.to)
	}

	return newEvent(
		domain.EventTransition,
		h.ID,
		tr.from,
		tr.to,
		fmt.Sprintf("%s changed from %s to %s", h.ID, tr.from, tr.to),
		fields,
		now,
	)
}

// recoveryFor decides whether a component needs a recovery attempt.
// A degradation always asks for one; a component that stays critical or down keeps asking,
// and the registry's backoff and breaker decide whether a handler actually runs.
func (m *Monitor) recoveryFor(state *componentState, h domain.ComponentHealth, tr *transition) (recoveryRequest, bool) {
	if m.recovery == nil || state.recovering || h.Status == domain.StatusHealthy {
		return recoveryRequest{}, false
	}

	degraded := tr != nil && tr.to.WorseThan(tr.from)
	persistent := tr == nil && h.Status >= domain.StatusCritical
	if !degraded && !persistent {
		return recoveryRequest{}, false
	}

	state.recovering = true
	return recoveryRequest{state: state, health: h.Clone(), announce: degraded}, true
}

func noticeFor(h domain.ComponentHealth, prev domain.Status) notice {
	if h.Status.WorseThan(prev) {
		return notice{event: alertEvent(h, prev), status: h.Status, degraded: true}
	}
	return notice{event: alert.Event{ComponentID: h.ID}, status: h.Status}
}

func alertEvent(h domain.ComponentHealth, prev domain.Status) alert.Event {
	fields := map[string]string{
		"type": string(h.Type),
		"from": prev.String(),
	}

	var breached []string
	for _, metric := range h.Metrics {
		if metric.Status != domain.StatusHealthy {
			breached = append(breached, fmt.Sprintf("%s=%s%s (%s)",
				metric.Name, strconv.FormatFloat(metric.Value, 'f', -1, 64), metric.Unit, metric.Status))
			fields[metric.Name] = strconv.FormatFloat(metric.Value, 'f', -1, 64)
		}
	}

	msg := fmt.Sprintf("%s is %s", h.ID, h.Status)
	switch {
	case h.LastError != "":
		msg += ": " + h.LastError
		fields["error"] = h.LastError
	case len(breached) > 0:
		msg += ": " + strings.Join(breached, ", ")
	}

	return alert.Event{
		Severity:    h.Status,
		ComponentID: h.ID,
		Message:     msg,
		Context:     fields,
	}
}

// aggregateLocked builds the snapshot for a cycle and checks it against the component statuses.
func (m *Monitor) aggregateLocked(components map[string]domain.ComponentHealth, now time.Time) (*domain.SystemHealth, error) {
	list := make([]domain.ComponentHealth, 0, len(components))
	for _, c := range components {
		list = append(list, c)
	}

	stats := domain.Count(list)
	stats.UptimeWindow = m.opts.UptimeWindow
	stats.UptimePercent = m.sampleLocked(stats, now)

	overall := m.aggregate(stats)
	if err := verify(overall, stats); err != nil {
		return nil, err
	}

	return &domain.SystemHealth{
		OverallStatus: overall,
		Components:    components,
		Timestamp:     now.UTC(),
		Statistics:    stats,
	}, nil
}

// sampleLocked records the cycle's counts and returns the up percentage over the uptime window.
func (m *Monitor) sampleLocked(stats domain.Statistics, now time.Time) float64 {
	m.samples = append(m.samples, uptimeSample{at: now, up: stats.Healthy + stats.Warning, total: stats.Total})

	cutoff := now.Add(-m.opts.UptimeWindow)
	keep := 0
	for keep < len(m.samples) && m.samples[keep].at.Before(cutoff) {
		keep++
	}
	m.samples = m.samples[keep:]

	var up, total int
	for _, s := range m.samples {
		up += s.up
		total += s.total
	}
	if total == 0 {
		return 100
	}
	return float64(up) / float64(total) * 100
}

// verify rejects a system status that is healthier than the rule allows, or outside its range.
func verify(overall domain.Status, stats domain.Statistics) error {
	counted := stats.Healthy + stats.Warning + stats.Critical + stats.Down

	switch {
	case counted != stats.Total:
		return fmt.Errorf("%w: %d of %d components have a known status", errInvariant, counted, stats.Total)
	case !overall.Valid() || overall == domain.StatusDown:
		return fmt.Errorf("%w: system status %s is not an aggregate status", errInvariant, overall)
	case stats.Down > 0 && overall != domain.StatusCritical:
		return fmt.Errorf("%w: %d components down but system is %s", errInvariant, stats.Down, overall)
	case stats.Critical > 0 && overall == domain.StatusHealthy:
		return fmt.Errorf("%w: %d components critical but system is healthy", errInvariant, stats.Critical)
	case stats.Healthy == stats.Total && overall != domain.StatusHealthy:
		return fmt.Errorf("%w: every component is healthy but system is %s", errInvariant, overall)
	}
	return nil
}

func (m *Monitor) recover(ctx context.Context, req recoveryRequest) {
	defer m.background.Done()

	out := m.recovery.Attempt(ctx, req.health)

	m.mu.Lock()
	req.state.recovering = false
	if out.Attempted {
		req.state.recoveryAttempts = out.Attempts
	}
	m.mu.Unlock()

	if m.observer != nil {
		m.observer.RecoveryCompleted(out)
	}

	h := req.health
	fields := map[string]string{
		"type":     string(h.Type),
		"attempts": strconv.Itoa(out.Attempts),
	}
	now := m.now()

	switch {
	case out.Succeeded:
		fields["duration"] = out.Duration.String()
		m.record(newEvent(domain.EventRecoverySucceeded, h.ID, h.Status, h.Status,
			fmt.Sprintf("recovery of %s succeeded", h.ID), fields, now))
	case out.Attempted:
		fields["duration"] = out.Duration.String()
		fields["error"] = out.Err.Error()
		m.record(newEvent(domain.EventRecoveryFailed, h.ID, h.Status, h.Status,
			fmt.Sprintf("recovery of %s failed: %s", h.ID, out.Err), fields, now))
	case req.announce && out.Skipped != recovery.SkipNoHandler:
		fields["reason"] = string(out.Skipped)
		m.record(newEvent(domain.EventRecoverySkipped, h.ID, h.Status, h.Status,
			fmt.Sprintf("recovery of %s skipped: %s", h.ID, out.Skipped), fields, now))
	}
}

// enqueue queues one cycle's notices behind those of earlier cycles.
// Callers hold cycleMu, so batches are queued in cycle order and a single worker drains them.
func (m *Monitor) enqueue(ctx context.Context, notices []notice) {
	m.fwdMu.Lock()
	defer m.fwdMu.Unlock()

	m.fwdQueue = append(m.fwdQueue, notices)
	if m.fwdRunning {
		return
	}
	m.fwdRunning = true
	m.background.Add(1)
	go m.forward(ctx)
}

// forward drains queued batches until the queue is empty.
func (m *Monitor) forward(ctx context.Context) {
	defer m.background.Done()

	for {
		m.fwdMu.Lock()
		if len(m.fwdQueue) == 0 {
			m.fwdRunning = false
			m.fwdMu.Unlock()
			return
		}
		batch := m.fwdQueue[0]
		m.fwdQueue[0] = nil
		m.fwdQueue = m.fwdQueue[1:]
		m.fwdMu.Unlock()

		m.deliver(ctx, batch)
	}
}

// deliver hands confirmed changes to the alert manager, then lets it escalate and prune.
func (m *Monitor) deliver(ctx context.Context, notices []notice) {
	for _, n := range notices {
		if !n.degraded {
			m.alerts.Observe(ctx, n.event.ComponentID, n.status)
			continue
		}
		if res := m.alerts.Notify(ctx, n.event); res.Err != nil {
			m.logger.Warn("Alert delivery incomplete", "component", n.event.ComponentID, "error", res.Err)
		}
	}

	m.alerts.Tick(ctx, m.opts.AlertRetention)
}
