package daemon

import (
	stdErrors "errors"
	"fmt"

	"github.com/mozilla-ai/healthd/internal/checks"
	"github.com/mozilla-ai/healthd/internal/contracts"
	"github.com/mozilla-ai/healthd/internal/errors"
	"github.com/mozilla-ai/healthd/internal/monitor"
)

var _ contracts.ComponentRegistrar = (*Registrar)(nil)

// componentMonitor is the part of the monitor a Registrar drives.
type componentMonitor interface {
	Register(checker checks.Checker) error
	Unregister(id string) error
	Component(id string) (monitor.ComponentInfo, error)
}

// Registrar builds checkers from definitions and registers them with the monitor.
// NewRegistrar should be used to create instances of Registrar.
type Registrar struct {
	monitor componentMonitor
	deps    checks.Dependencies
}

// NewRegistrar creates a Registrar that builds checkers with deps.
func NewRegistrar(m componentMonitor, deps checks.Dependencies) (*Registrar, error) {
	if isNil(m) {
		return nil, fmt.Errorf("monitor cannot be nil")
	}
	return &Registrar{monitor: m, deps: deps}, nil
}

// Add builds a checker for def and registers it.
// Definitions that cannot be built are reported as errors.ErrBadRequest.
func (r *Registrar) Add(def checks.Definition) (monitor.ComponentInfo, error) {
	checker, err := checks.Build(def, r.deps)
	if err != nil {
		return monitor.ComponentInfo{}, fmt.Errorf("%w: %w", errors.ErrBadRequest, err)
	}

	if err := r.monitor.Register(checker); err != nil {
		return monitor.ComponentInfo{}, err
	}

	return r.monitor.Component(checker.ID())
}

// Remove unregisters the component with id.
func (r *Registrar) Remove(id string) error {
	return r.monitor.Unregister(id)
}

// AddAll registers every definition and reports every failure.
func (r *Registrar) AddAll(defs []checks.Definition) error {
	var errs []error
	for _, def := range defs {
		if _, err := r.Add(def); err != nil {
			errs = append(errs, fmt.Errorf("component '%s': %w", def.ID, err))
		}
	}
	return stdErrors.Join(errs...)
}
