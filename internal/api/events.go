package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/mozilla-ai/healthd/internal/contracts"
	"github.com/mozilla-ai/healthd/internal/domain"
)

// EventsRequest is the request for GET /events.
type EventsRequest struct {
	WindowRequest

	Component string `doc:"Only return events of this component" example:"orders-db" query:"component"`
}

// EventsResponse is the response for GET /events.
type EventsResponse struct {
	Body []Event
}

// RegisterEventRoutes sets up routes for querying recorded system events.
func RegisterEventRoutes(routerAPI huma.API, monitor contracts.HealthMonitor, apiPathPrefix string) {
	eventsAPI := huma.NewGroup(routerAPI, apiPathPrefix)
	tags := []string{"Events", "History"}

	huma.Register(
		eventsAPI,
		huma.Operation{
			OperationID: "listEvents",
			Method:      http.MethodGet,
			Summary:     "List recorded transitions, recoveries and alert activity",
			Tags:        tags,
		},
		func(ctx context.Context, input *EventsRequest) (*EventsResponse, error) {
			return handleEvents(ctx, monitor, input, time.Now())
		},
	)
}

// handleEvents returns recorded events within the requested window.
func handleEvents(
	ctx context.Context,
	monitor contracts.HealthMonitor,
	input *EventsRequest,
	now time.Time,
) (*EventsResponse, error) {
	from, to, err := input.window(now)
	if err != nil {
		return nil, err
	}

	events, err := monitor.Events(ctx, input.Component, from, to)
	if err != nil {
		return nil, err
	}

	data, err := convertAll(events, func(e domain.SystemEvent) (Event, error) {
		return DomainEvent(e).ToAPIType()
	})
	if err != nil {
		return nil, err
	}
	return &EventsResponse{Body: data}, nil
}
