// Package recovery runs component-specific remediation when a monitored component degrades.
//
// Each component has its own circuit breaker. Consecutive failed recoveries back off
// exponentially, and after MaxAttempts consecutive failures the breaker opens and no further
// automatic attempt runs until the component is reset or the cooldown elapses.
package recovery

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-hclog"

	"github.com/mozilla-ai/healthd/internal/domain"
)

var (
	// ErrRecoveryTimeout is returned when a handler does not finish within the registry's timeout.
	ErrRecoveryTimeout = errors.New("recovery timed out")

	// ErrRecoveryPanic is returned when a handler panics.
	ErrRecoveryPanic = errors.New("recovery handler panicked")
)

// Handler attempts to remediate a degraded component.
type Handler interface {
	Recover(ctx context.Context, health domain.ComponentHealth) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, health domain.ComponentHealth) error

// Recover implements Handler.
func (f HandlerFunc) Recover(ctx context.Context, health domain.ComponentHealth) error {
	return f(ctx, health)
}

// SkipReason explains why Attempt did not run a handler.
type SkipReason string

const (
	SkipNone        SkipReason = ""
	SkipNoHandler   SkipReason = "no_handler"
	SkipCircuitOpen SkipReason = "circuit_open"
	SkipBackoff     SkipReason = "backoff"
	SkipInProgress  SkipReason = "in_progress"
)

// Outcome reports what Attempt did.
type Outcome struct {
	ComponentID string
	Attempted   bool
	Succeeded   bool
	Skipped     SkipReason

	// Attempts is the number of attempts in the component's current failure streak, including this one,
	// capped at MaxAttempts. Half-open trials after a cooldown do not raise it further.
	Attempts int

	Duration time.Duration
	Err      error
}

// BreakerState is the breaker state for one component.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
)

// BreakerStatus is a point-in-time view of a component's breaker.
type BreakerStatus struct {
	ComponentID         string       `json:"component_id"`
	State               BreakerState `json:"state"`
	ConsecutiveFailures int          `json:"consecutive_failures"`
	LastAttempt         time.Time    `json:"last_attempt,omitzero"`
	OpenedAt            time.Time    `json:"opened_at,omitzero"`
}

type breaker struct {
	state       BreakerState
	failures    int
	lastAttempt time.Time
	openedAt    time.Time
	inFlight    bool

	// delay yields the wait after each failure; wait is the one currently in force.
	delay *backoff.ExponentialBackOff
	wait  time.Duration
}

// Registry maps component types to handlers and enforces timeouts, backoff and per-component breakers.
type Registry struct {
	logger hclog.Logger
	opts   Options
	now    func() time.Time

	mu       sync.Mutex
	handlers map[domain.ComponentType]Handler
	breakers map[string]*breaker
}

// NewRegistry creates an empty Registry.
func NewRegistry(logger hclog.Logger, opt ...Option) (*Registry, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	opts, err := NewOptions(opt...)
	if err != nil {
		return nil, err
	}

	return &Registry{
		logger:   logger.Named("recovery"),
		opts:     opts,
		now:      time.Now,
		handlers: map[domain.ComponentType]Handler{},
		breakers: map[string]*breaker{},
	}, nil
}

// Register installs handler for componentType. A later registration replaces an earlier one.
func (r *Registry) Register(componentType domain.ComponentType, handler Handler) error {
	if strings.TrimSpace(string(componentType)) == "" {
		return fmt.Errorf("component type cannot be empty")
	}
	if handler == nil {
		return fmt.Errorf("recovery handler cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.handlers[componentType]; ok {
		r.logger.Warn("Replacing existing recovery handler", "componentType", componentType)
	}
	r.handlers[componentType] = handler

	return nil
}

// Types returns the component types that have a handler, sorted.
func (r *Registry) Types() []domain.ComponentType {
	r.mu.Lock()
	defer r.mu.Unlock()

	return slices.Sorted(maps.Keys(r.handlers))
}

// Options returns the registry configuration.
func (r *Registry) Options() Options {
	return r.opts
}

// Attempt runs the handler for health.Type, unless the component has no handler, is already recovering,
// is backing off after a failure, or has an open breaker.
// Handler errors are contained in the returned Outcome.
func (r *Registry) Attempt(ctx context.Context, health domain.ComponentHealth) Outcome {
	out := Outcome{ComponentID: health.ID}

	r.mu.Lock()
	handler, ok := r.handlers[health.Type]
	if !ok {
		r.mu.Unlock()
		out.Skipped = SkipNoHandler
		return out
	}

	b := r.breakerLocked(health.ID)
	now := r.now()
	out.Attempts = min(b.failures, r.opts.MaxAttempts)

	switch {
	case b.inFlight:
		out.Skipped = SkipInProgress
	case b.state == BreakerOpen && now.Sub(b.openedAt) < r.opts.Cooldown:
		out.Skipped = SkipCircuitOpen
	case b.state == BreakerClosed && b.failures > 0 && now.Sub(b.lastAttempt) < b.wait:
		out.Skipped = SkipBackoff
	}
	if out.Skipped != SkipNone {
		r.mu.Unlock()
		return out
	}

	if b.state == BreakerOpen {
		b.state = BreakerHalfOpen
		r.logger.Info("Recovery breaker half-open, allowing trial attempt", "component", health.ID)
	}
	b.inFlight = true
	b.lastAttempt = now
	r.mu.Unlock()

	start := time.Now()
	err := r.run(ctx, handler, health)
	out.Duration = time.Since(start)
	out.Attempted = true
	out.Err = err
	out.Succeeded = err == nil

	r.mu.Lock()
	defer r.mu.Unlock()

	b.inFlight = false
	if err == nil {
		out.Attempts = min(b.failures+1, r.opts.MaxAttempts)
		b.failures = 0
		b.state = BreakerClosed
		b.openedAt = time.Time{}
		b.delay.Reset()
		b.wait = 0
		r.logger.Info("Recovery succeeded", "component", health.ID, "duration", out.Duration)
		return out
	}

	b.failures++
	b.wait = b.delay.NextBackOff()
	out.Attempts = min(b.failures, r.opts.MaxAttempts)
	r.logger.Warn("Recovery failed", "component", health.ID, "attempt", b.failures, "error", err)

	if b.state == BreakerHalfOpen || b.failures >= r.opts.MaxAttempts {
		b.state = BreakerOpen
		b.openedAt = r.now()
		r.logger.Warn(
			"Recovery breaker opened",
			"component", health.ID,
			"failures", b.failures,
			"cooldown", r.opts.Cooldown,
		)
	}

	return out
}

// Reset closes the breaker for componentID and clears its failure streak.
func (r *Registry) Reset(componentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.breakers[componentID]
	if !ok {
		return
	}
	inFlight := b.inFlight
	*b = breaker{state: BreakerClosed, inFlight: inFlight, delay: r.opts.newBackOff()}
	r.logger.Info("Recovery breaker reset", "component", componentID)
}

// Forget drops all breaker state for componentID.
func (r *Registry) Forget(componentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.breakers, componentID)
}

// Breaker returns the breaker status for componentID.
// Components that never attempted recovery report a closed breaker.
func (r *Registry) Breaker(componentID string) BreakerStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	status := BreakerStatus{ComponentID: componentID, State: BreakerClosed}
	b, ok := r.breakers[componentID]
	if !ok {
		return status
	}

	status.State = b.state
	status.ConsecutiveFailures = b.failures
	status.LastAttempt = b.lastAttempt
	status.OpenedAt = b.openedAt
	return status
}

func (r *Registry) breakerLocked(componentID string) *breaker {
	b, ok := r.breakers[componentID]
	if !ok {
		b = &breaker{state: BreakerClosed, delay: r.opts.newBackOff()}
		r.breakers[componentID] = b
	}
	return b
}

// run invokes handler under the hard timeout. It returns once the timeout elapses even if the handler ignores ctx.
func (r *Registry) run(ctx context.Context, handler Handler, health domain.ComponentHealth) error {
	runCtx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				errCh <- fmt.Errorf("%w: %v", ErrRecoveryPanic, rec)
			}
		}()
		errCh <- handler.Recover(runCtx, health.Clone())
	}()

	select {
	case err := <-errCh:
		return err
	case <-runCtx.Done():
		if ctx.Err() != nil {
			return fmt.Errorf("recovery canceled: %w", ctx.Err())
		}
		return fmt.Errorf("%w after %s", ErrRecoveryTimeout, r.opts.Timeout)
	}
}
