package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/mozilla-ai/healthd/internal/alert"
	"github.com/mozilla-ai/healthd/internal/domain"
	"github.com/mozilla-ai/healthd/internal/history"
	"github.com/mozilla-ai/healthd/internal/recovery"
)

// Recoverer runs recovery handlers for unhealthy components.
type Recoverer interface {
	Attempt(ctx context.Context, health domain.ComponentHealth) recovery.Outcome
	Forget(componentID string)
}

// Alerter receives confirmed status changes.
type Alerter interface {
	Notify(ctx context.Context, event alert.Event) alert.Result
	Observe(ctx context.Context, componentID string, status domain.Status) []domain.Alert
	Tick(ctx context.Context, retention time.Duration) []domain.Alert
	Forget(componentID string)
}

// Recorder queues history rows for persistence without blocking.
type Recorder interface {
	WriteChecks(records ...domain.CheckRecord)
	WriteEvents(events ...domain.SystemEvent)
}

// Observer is notified as the monitor works. Implementations must not block.
type Observer interface {
	ProbeCompleted(health domain.ComponentHealth, duration time.Duration)
	CycleCompleted(snapshot *domain.SystemHealth, duration time.Duration)
	RecoveryCompleted(outcome recovery.Outcome)
}

// Dependencies contains the collaborators of a Monitor.
// Only Logger is required; a Monitor without a History keeps history in memory.
type Dependencies struct {
	Logger hclog.Logger

	// Recovery runs handlers when a component degrades.
	Recovery Recoverer

	// Alerts receives confirmed degradations and recoveries.
	Alerts Alerter

	// History answers history queries.
	History history.Store

	// Recorder persists probe results and events. Defaults to writing directly to History.
	Recorder Recorder

	// Observer receives probe, cycle and recovery notifications.
	Observer Observer
}

// Validate ensures all required dependencies are provided.
func (d Dependencies) Validate() error {
	if d.Logger == nil {
		return fmt.Errorf("logger cannot be nil")
	}
	if d.Recorder != nil && d.History == nil {
		return fmt.Errorf("a recorder requires a history store to read from")
	}
	return nil
}

// storeRecorder writes rows to a Store synchronously.
type storeRecorder struct {
	logger hclog.Logger
	store  history.Store
}

func (r storeRecorder) WriteChecks(records ...domain.CheckRecord) {
	if err := r.store.AppendChecks(context.Background(), records); err != nil {
		r.logger.Error("Failed to persist check history", "rows", len(records), "error", err)
	}
}

func (r storeRecorder) WriteEvents(events ...domain.SystemEvent) {
	if err := r.store.AppendEvents(context.Background(), events); err != nil {
		r.logger.Error("Failed to persist events", "rows", len(events), "error", err)
	}
}
