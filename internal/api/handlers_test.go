package api

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mozilla-ai/healthd/internal/alert"
	"github.com/mozilla-ai/healthd/internal/domain"
	"github.com/mozilla-ai/healthd/internal/errors"
	"github.com/mozilla-ai/healthd/internal/monitor"
)

func TestHandleSystemHealth(t *testing.T) {
	t.Parallel()

	m := newFakeMonitor()
	_, err := handleSystemHealth(m)
	require.ErrorIs(t, err, errors.ErrDataUnavailable)

	m.snapshot = testSnapshot(time.Now())
	resp, err := handleSystemHealth(m)
	require.NoError(t, err)
	require.Equal(t, "warning", resp.Body.OverallStatus)
	require.Len(t, resp.Body.Components, 2)
}

func TestHandleForceCheck(t *testing.T) {
	t.Parallel()

	m := newFakeMonitor()
	m.snapshot = testSnapshot(time.Now())

	resp, err := handleForceCheck(context.Background(), m)
	require.NoError(t, err)
	require.Equal(t, 1, m.forced)
	require.Equal(t, 2, resp.Body.Statistics.Total)
}

func TestHandleComponents(t *testing.T) {
	t.Parallel()

	m := newFakeMonitor()
	m.components["b"] = monitor.ComponentInfo{ID: "b", Type: domain.ComponentTypeCache}
	m.components["a"] = monitor.ComponentInfo{
		ID:      "a",
		Type:    domain.ComponentTypeDatabase,
		Checked: true,
		Health:  domain.ComponentHealth{ID: "a", Type: domain.ComponentTypeDatabase, Status: domain.StatusHealthy},
	}

	resp, err := handleComponents(m)
	require.NoError(t, err)
	require.Len(t, resp.Body, 2)
	require.Equal(t, "a", resp.Body[0].ID)
	require.NotNil(t, resp.Body[0].Health)
	require.Nil(t, resp.Body[1].Health)

	_, err = handleComponent(m, "missing")
	require.ErrorIs(t, err, errors.ErrComponentNotFound)

	one, err := handleComponent(m, "b")
	require.NoError(t, err)
	require.Equal(t, "cache", one.Body.Type)
}

func TestHandleRegisterComponent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		body    RegisterComponentBody
		wantErr error
	}{
		{
			name: "valid",
			body: RegisterComponentBody{
				ID:   " edge ",
				Type: "external_api",
				URL:  "https://example.com/status",
				Thresholds: map[string]ThresholdBody{
					"availability_pct": {Warning: 99, Critical: 95, Direction: "lower_is_worse"},
				},
			},
		},
		{
			name:    "blank id",
			body:    RegisterComponentBody{ID: "  ", Type: "cache"},
			wantErr: errors.ErrBadRequest,
		},
		{
			name: "bad direction",
			body: RegisterComponentBody{
				ID:         "edge",
				Type:       "external_api",
				Thresholds: map[string]ThresholdBody{"latency_ms": {Direction: "sideways"}},
			},
			wantErr: errors.ErrBadRequest,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			m := newFakeMonitor()
			resp, err := handleRegisterComponent(m, tc.body)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, "edge", resp.Body.ID)
			require.Equal(t, domain.ComponentTypeExternalAPI, m.lastAdded.Type)

			override := m.lastAdded.Thresholds["availability_pct"]
			require.NotNil(t, override.Direction)
			require.Equal(t, domain.LowerIsWorse, *override.Direction)
		})
	}
}

func TestHandleRegisterComponent_Duplicate(t *testing.T) {
	t.Parallel()

	m := newFakeMonitor()
	body := RegisterComponentBody{ID: "cache", Type: "cache", URL: "redis://localhost:6379"}

	_, err := handleRegisterComponent(m, body)
	require.NoError(t, err)

	_, err = handleRegisterComponent(m, body)
	require.ErrorIs(t, err, errors.ErrComponentExists)
}

func TestHandleComponentHistory(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m := newFakeMonitor()
	m.records = []domain.CheckRecord{
		{ComponentID: "orders-db", Type: domain.ComponentTypeDatabase, Status: domain.StatusCritical, Timestamp: now},
	}

	input := &ComponentHistoryRequest{ID: "orders-db", WindowRequest: WindowRequest{From: "2h"}}
	resp, err := handleComponentHistory(context.Background(), m, input, now)
	require.NoError(t, err)
	require.Len(t, resp.Body, 1)
	require.Equal(t, "critical", resp.Body[0].Status)
	require.Equal(t, "orders-db", m.historyID)
	require.Equal(t, now.Add(-2*time.Hour), m.historyFrom)
	require.Equal(t, now, m.historyTo)

	input.From = "not-a-time"
	_, err = handleComponentHistory(context.Background(), m, input, now)
	require.ErrorIs(t, err, errors.ErrBadRequest)
}

func TestHandleEvents(t *testing.T) {
	t.Parallel()

	m := newFakeMonitor()
	m.events = []domain.SystemEvent{
		{ID: "1", ComponentID: "a", Type: domain.EventTransition, From: domain.StatusHealthy, To: domain.StatusDown},
		{ID: "2", ComponentID: "b", Type: domain.EventRecoverySucceeded, From: domain.StatusDown, To: domain.StatusHealthy},
	}

	all, err := handleEvents(context.Background(), m, &EventsRequest{}, time.Now())
	require.NoError(t, err)
	require.Len(t, all.Body, 2)

	only, err := handleEvents(context.Background(), m, &EventsRequest{Component: "b"}, time.Now())
	require.NoError(t, err)
	require.Len(t, only.Body, 1)
	require.Equal(t, "recovery_succeeded", only.Body[0].Type)
}

func TestHandleSetInterval(t *testing.T) {
	t.Parallel()

	m := newFakeMonitor()
	resp, err := handleSetInterval(m, "45s")
	require.NoError(t, err)
	require.Equal(t, "45s", resp.Body.Interval)

	_, err = handleSetInterval(m, "often")
	require.ErrorIs(t, err, errors.ErrBadRequest)
}

func TestHandleAlerts(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a := &fakeAlerts{alerts: map[string]domain.Alert{
		"1": {ID: "1", ComponentID: "a", Severity: domain.StatusCritical, State: domain.AlertStateOpen},
		"2": {ID: "2", ComponentID: "a", Severity: domain.StatusWarning, State: domain.AlertStateResolved},
	}}

	resp, err := handleAlerts(a, &AlertsRequest{State: "open", Component: "a", WindowRequest: WindowRequest{From: "1h"}}, now)
	require.NoError(t, err)
	require.Len(t, resp.Body, 1)
	require.Equal(t, "1", resp.Body[0].ID)
	require.Equal(t, alert.Filter{
		State:       domain.AlertStateOpen,
		ComponentID: "a",
		From:        now.Add(-time.Hour),
		To:          now,
	}, a.lastFilter)

	_, err = handleAlerts(a, &AlertsRequest{State: "snoozed"}, now)
	require.ErrorIs(t, err, errors.ErrBadRequest)
}

func TestAlertResponse(t *testing.T) {
	t.Parallel()

	a := &fakeAlerts{alerts: map[string]domain.Alert{
		"1": {ID: "1", Severity: domain.StatusCritical, State: domain.AlertStateOpen},
	}}

	resp, err := alertResponse(a.Acknowledge(context.Background(), "1"))
	require.NoError(t, err)
	require.Equal(t, "acknowledged", resp.Body.State)
	require.NotNil(t, resp.Body.AcknowledgedAt)

	_, err = alertResponse(a.Resolve(context.Background(), "1"))
	require.NoError(t, err)

	_, err = alertResponse(a.Resolve(context.Background(), "1"))
	require.ErrorIs(t, err, errors.ErrAlertResolved)

	_, err = alertResponse(a.Get("missing"))
	require.ErrorIs(t, err, errors.ErrAlertNotFound)
}
