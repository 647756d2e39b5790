package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/mozilla-ai/healthd/internal/alert"
	"github.com/mozilla-ai/healthd/internal/contracts"
	"github.com/mozilla-ai/healthd/internal/domain"
	"github.com/mozilla-ai/healthd/internal/errors"
)

// AlertsRequest is the request for GET /alerts.
type AlertsRequest struct {
	WindowRequest

	State     string `doc:"Only return alerts in this state (open, acknowledged or resolved)" query:"state"`
	Component string `doc:"Only return alerts of this component" example:"orders-db"              query:"component"`
}

// AlertRequest identifies an alert by id.
type AlertRequest struct {
	ID string `doc:"Alert id" path:"id"`
}

// AlertsResponse is the response for GET /alerts.
type AlertsResponse struct {
	Body []Alert
}

// AlertResponse is the response for a single alert.
type AlertResponse struct {
	Body Alert
}

// AlertStatsResponse is the response for GET /alerts/stats.
type AlertStatsResponse struct {
	Body AlertStats
}

// AlertStats are the alert manager counters.
type AlertStats struct {
	Open             int   `json:"open"`
	Acknowledged     int   `json:"acknowledged"`
	Fired            int64 `json:"fired"`
	Repeated         int64 `json:"repeated"`
	Suppressed       int64 `json:"suppressed"`
	Escalated        int64 `json:"escalated"`
	Resolved         int64 `json:"resolved"`
	DeliveryFailures int64 `json:"deliveryFailures"`
}

// RegisterAlertRoutes sets up routes for listing and handling alerts.
func RegisterAlertRoutes(routerAPI huma.API, alerts contracts.AlertManager, apiPathPrefix string) {
	alertsAPI := huma.NewGroup(routerAPI, apiPathPrefix)
	tags := []string{"Alerts"}

	huma.Register(
		alertsAPI,
		huma.Operation{
			OperationID: "listAlerts",
			Method:      http.MethodGet,
			Summary:     "List tracked alerts",
			Tags:        tags,
		},
		func(ctx context.Context, input *AlertsRequest) (*AlertsResponse, error) {
			return handleAlerts(alerts, input, time.Now())
		},
	)

	huma.Register(
		alertsAPI,
		huma.Operation{
			OperationID: "getAlertStats",
			Method:      http.MethodGet,
			Path:        "/stats",
			Summary:     "Get alert counters",
			Tags:        tags,
		},
		func(ctx context.Context, _ *struct{}) (*AlertStatsResponse, error) {
			return &AlertStatsResponse{Body: alertStats(alerts.Stats())}, nil
		},
	)

	huma.Register(
		alertsAPI,
		huma.Operation{
			OperationID: "getAlert",
			Method:      http.MethodGet,
			Path:        "/{id}",
			Summary:     "Get an alert",
			Tags:        tags,
		},
		func(ctx context.Context, input *AlertRequest) (*AlertResponse, error) {
			return alertResponse(alerts.Get(input.ID))
		},
	)

	huma.Register(
		alertsAPI,
		huma.Operation{
			OperationID: "acknowledgeAlert",
			Method:      http.MethodPost,
			Path:        "/{id}/acknowledge",
			Summary:     "Acknowledge an alert, stopping escalation",
			Tags:        tags,
		},
		func(ctx context.Context, input *AlertRequest) (*AlertResponse, error) {
			return alertResponse(alerts.Acknowledge(ctx, input.ID))
		},
	)

	huma.Register(
		alertsAPI,
		huma.Operation{
			OperationID: "resolveAlert",
			Method:      http.MethodPost,
			Path:        "/{id}/resolve",
			Summary:     "Resolve an alert",
			Tags:        tags,
		},
		func(ctx context.Context, input *AlertRequest) (*AlertResponse, error) {
			return alertResponse(alerts.Resolve(ctx, input.ID))
		},
	)
}

// handleAlerts returns the alerts matching the request filter.
func handleAlerts(alerts contracts.AlertManager, input *AlertsRequest, now time.Time) (*AlertsResponse, error) {
	from, to, err := input.window(now)
	if err != nil {
		return nil, err
	}

	f := alert.Filter{ComponentID: input.Component, From: from, To: to}
	if input.State != "" {
		state, err := domain.ParseAlertState(input.State)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", errors.ErrBadRequest, err)
		}
		f.State = state
	}

	data, err := convertAll(alerts.List(f), func(a domain.Alert) (Alert, error) {
		return DomainAlert(a).ToAPIType()
	})
	if err != nil {
		return nil, err
	}
	return &AlertsResponse{Body: data}, nil
}

func alertResponse(a domain.Alert, err error) (*AlertResponse, error) {
	if err != nil {
		return nil, err
	}
	data, err := DomainAlert(a).ToAPIType()
	if err != nil {
		return nil, err
	}
	return &AlertResponse{Body: data}, nil
}

func alertStats(s alert.Stats) AlertStats {
	return AlertStats{
		Open:             s.Open,
		Acknowledged:     s.Acknowledged,
		Fired:            s.Fired,
		Repeated:         s.Repeated,
		Suppressed:       s.Suppressed,
		Escalated:        s.Escalated,
		Resolved:         s.Resolved,
		DeliveryFailures: s.DeliveryFailures,
	}
}
