// Package checks defines the health checker capability and the built-in checkers.
//
// A Checker never returns an error: a probe that cannot reach its target reports
// a ComponentHealth with StatusDown and LastError populated, so that one failing
// component cannot stall the monitor.
package checks

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"reflect"
	"slices"
	"time"

	"github.com/mozilla-ai/healthd/internal/domain"
)

var (
	// ErrProbeTimeout is recorded as the last error of a component whose probe exceeded its timeout.
	ErrProbeTimeout = errors.New("probe timed out")

	// ErrProbePanic is recorded as the last error of a component whose probe panicked.
	ErrProbePanic = errors.New("probe panicked")

	// ErrUnknownMetric is returned when a threshold override names a metric the checker does not produce.
	ErrUnknownMetric = errors.New("unknown metric")
)

// Checker probes one component and reports its health.
type Checker interface {
	// ID returns the unique component id this checker reports for.
	ID() string

	// Type returns the component type.
	Type() domain.ComponentType

	// Check performs one probe. It must honor ctx cancellation and must not panic for ordinary failures.
	Check(ctx context.Context) domain.ComponentHealth
}

// MetricSpec is the fixed definition of a metric produced by a checker.
type MetricSpec struct {
	Name      string
	Unit      string
	Threshold domain.Threshold
}

// MetricSet maps metric names to their definitions.
type MetricSet map[string]MetricSpec

// CheckerFunc adapts a probe function into a Checker.
type CheckerFunc struct {
	id    string
	ctype domain.ComponentType
	fn    func(ctx context.Context) domain.ComponentHealth
}

// NewCheckerFunc returns a Checker for id and ctype backed by fn.
func NewCheckerFunc(id string, ctype domain.ComponentType, fn func(ctx context.Context) domain.ComponentHealth) *CheckerFunc {
	return &CheckerFunc{id: id, ctype: ctype, fn: fn}
}

// ID implements Checker.
func (c *CheckerFunc) ID() string {
	return c.id
}

// Type implements Checker.
func (c *CheckerFunc) Type() domain.ComponentType {
	return c.ctype
}

// Check implements Checker.
func (c *CheckerFunc) Check(ctx context.Context) domain.ComponentHealth {
	return c.fn(ctx)
}

// Run invokes checker with an enforced timeout.
// A probe that does not return in time, or that panics, is reported as down.
// Run returns as soon as the timeout elapses even if the probe ignores cancellation.
func Run(ctx context.Context, checker Checker, timeout time.Duration) domain.ComponentHealth {
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resultCh := make(chan domain.ComponentHealth, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				resultCh <- Failure(checker.ID(), checker.Type(), fmt.Errorf("%w: %v", ErrProbePanic, r))
			}
		}()
		resultCh <- checker.Check(probeCtx)
	}()

	select {
	case result := <-resultCh:
		result.ID = checker.ID()
		result.Type = checker.Type()
		if result.LastCheck.IsZero() {
			result.LastCheck = time.Now().UTC()
		}
		return result
	case <-probeCtx.Done():
		err := fmt.Errorf("%w after %s", ErrProbeTimeout, timeout)
		if ctx.Err() != nil {
			err = fmt.Errorf("probe canceled: %w", ctx.Err())
		}
		return Failure(checker.ID(), checker.Type(), err)
	}
}

// Failure builds a down ComponentHealth for a probe that could not complete.
// Any metrics gathered before the failure are kept for history.
func Failure(id string, ctype domain.ComponentType, err error, metrics ...domain.Metric) domain.ComponentHealth {
	msg := "probe failed"
	if err != nil {
		msg = err.Error()
	}
	return domain.ComponentHealth{
		ID:        id,
		Type:      ctype,
		Status:    domain.StatusDown,
		Metrics:   metrics,
		LastCheck: time.Now().UTC(),
		LastError: msg,
	}
}

// Healthy builds a ComponentHealth whose status is the worst of metrics.
func Healthy(id string, ctype domain.ComponentType, metrics ...domain.Metric) domain.ComponentHealth {
	c := domain.ComponentHealth{
		ID:        id,
		Type:      ctype,
		Metrics:   metrics,
		LastCheck: time.Now().UTC(),
	}
	c.Status = c.MetricsStatus()
	return c
}

// Measure creates a metric from its definition in the set. Measuring an undefined metric is a programming error.
func (s MetricSet) Measure(name string, value float64) domain.Metric {
	spec, ok := s[name]
	if !ok {
		panic(fmt.Sprintf("metric %q is not defined", name))
	}
	return domain.NewMetric(spec.Name, value, spec.Unit, spec.Threshold)
}

// MeasureAs creates a metric named metricName using the definition of specName.
// It is used for metric families such as per-endpoint latency.
func (s MetricSet) MeasureAs(specName string, metricName string, value float64) domain.Metric {
	m := s.Measure(specName, value)
	m.Name = metricName
	return m
}

// ThresholdOverride replaces the bounds of a metric, and optionally its breach direction.
type ThresholdOverride struct {
	Warning  float64
	Critical float64

	// Direction, when set, replaces the metric's default direction.
	Direction *domain.Direction
}

// Override returns a copy of s with thresholds replaced by overrides.
// Every override must name a metric in s and must result in a valid threshold.
func (s MetricSet) Override(overrides map[string]ThresholdOverride) (MetricSet, error) {
	out := maps.Clone(s)

	for _, name := range slices.Sorted(maps.Keys(overrides)) {
		spec, ok := out[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownMetric, name)
		}
		o := overrides[name]
		th := domain.Threshold{
			Warning:   o.Warning,
			Critical:  o.Critical,
			Direction: spec.Threshold.Direction,
		}
		if o.Direction != nil {
			th.Direction = *o.Direction
		}
		if err := th.Validate(); err != nil {
			return nil, fmt.Errorf("metric %s: %w", name, err)
		}
		spec.Threshold = th
		out[name] = spec
	}

	return out, nil
}

// Names returns the metric names in the set, sorted.
func (s MetricSet) Names() []string {
	return slices.Sorted(maps.Keys(s))
}

func spec(name string, unit string, warning float64, critical float64, direction domain.Direction) MetricSpec {
	return MetricSpec{
		Name: name,
		Unit: unit,
		Threshold: domain.Threshold{
			Warning:   warning,
			Critical:  critical,
			Direction: direction,
		},
	}
}

func milliseconds(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// isNil reports whether v is nil or a typed nil pointer, map, slice, func, chan or interface.
func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return rv.IsNil()
	default:
		return false
	}
}
