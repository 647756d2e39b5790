// Package contracts declares the interfaces the HTTP API depends on.
package contracts

import (
	"context"
	"time"

	"github.com/mozilla-ai/healthd/internal/alert"
	"github.com/mozilla-ai/healthd/internal/checks"
	"github.com/mozilla-ai/healthd/internal/domain"
	"github.com/mozilla-ai/healthd/internal/monitor"
	"github.com/mozilla-ai/healthd/internal/pool"
	"github.com/mozilla-ai/healthd/internal/recovery"
)

// HealthMonitor provides access to aggregated health and the monitor loop.
type HealthMonitor interface {
	// Current returns the snapshot from the last completed cycle.
	Current() (*domain.SystemHealth, error)

	// ForceCheck runs a cycle now and returns its snapshot.
	ForceCheck(ctx context.Context) (*domain.SystemHealth, error)

	// Components returns every registered component, sorted by id.
	Components() []monitor.ComponentInfo

	// Component returns one registered component.
	Component(id string) (monitor.ComponentInfo, error)

	// History returns the probe results recorded for a component.
	History(ctx context.Context, id string, from time.Time, to time.Time) ([]domain.CheckRecord, error)

	// Events returns recorded system events, optionally for a single component.
	Events(ctx context.Context, id string, from time.Time, to time.Time) ([]domain.SystemEvent, error)

	Status() monitor.Status
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	SetInterval(d time.Duration) error
}

// ComponentRegistrar adds and removes monitored components at runtime.
type ComponentRegistrar interface {
	// Add builds a checker for def and registers it with the monitor.
	Add(def checks.Definition) (monitor.ComponentInfo, error)

	// Remove unregisters the component with id.
	Remove(id string) error
}

// AlertManager provides access to tracked alerts.
type AlertManager interface {
	List(f alert.Filter) []domain.Alert
	Get(id string) (domain.Alert, error)
	Acknowledge(ctx context.Context, id string) (domain.Alert, error)
	Resolve(ctx context.Context, id string) (domain.Alert, error)
	Stats() alert.Stats
}

// RecoveryController exposes per-component recovery breakers.
type RecoveryController interface {
	Breaker(componentID string) recovery.BreakerStatus
	Reset(componentID string)
}

// PoolInspector reports on the database connection pool.
type PoolInspector interface {
	Stats() pool.Stats
	Connections() []pool.ConnectionInfo
}
