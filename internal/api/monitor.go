package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/mozilla-ai/healthd/internal/contracts"
	"github.com/mozilla-ai/healthd/internal/errors"
)

// MonitorStatusResponse is the response for monitor control routes.
type MonitorStatusResponse struct {
	Body MonitorStatus
}

// IntervalRequest is the request for PUT /monitor/interval.
type IntervalRequest struct {
	Body struct {
		Interval string `doc:"Time between monitor cycles" example:"30s" json:"interval" minLength:"1"`
	}
}

// RegisterMonitorRoutes sets up routes for controlling the monitor loop.
func RegisterMonitorRoutes(routerAPI huma.API, monitor contracts.HealthMonitor, apiPathPrefix string) {
	monitorAPI := huma.NewGroup(routerAPI, apiPathPrefix)
	tags := []string{"Monitor"}

	huma.Register(
		monitorAPI,
		huma.Operation{
			OperationID: "getMonitorStatus",
			Method:      http.MethodGet,
			Summary:     "Get the run state of the monitor loop",
			Tags:        tags,
		},
		func(ctx context.Context, _ *struct{}) (*MonitorStatusResponse, error) {
			return &MonitorStatusResponse{Body: monitorStatus(monitor.Status())}, nil
		},
	)

	huma.Register(
		monitorAPI,
		huma.Operation{
			OperationID: "setMonitorInterval",
			Method:      http.MethodPut,
			Path:        "/interval",
			Summary:     "Change the time between monitor cycles",
			Tags:        tags,
		},
		func(ctx context.Context, input *IntervalRequest) (*MonitorStatusResponse, error) {
			return handleSetInterval(monitor, input.Body.Interval)
		},
	)

	huma.Register(
		monitorAPI,
		huma.Operation{
			OperationID: "startMonitor",
			Method:      http.MethodPost,
			Path:        "/start",
			Summary:     "Start the monitor loop",
			Tags:        tags,
		},
		func(ctx context.Context, _ *struct{}) (*MonitorStatusResponse, error) {
			// The loop outlives the request that started it.
			if err := monitor.Start(context.WithoutCancel(ctx)); err != nil {
				return nil, err
			}
			return &MonitorStatusResponse{Body: monitorStatus(monitor.Status())}, nil
		},
	)

	huma.Register(
		monitorAPI,
		huma.Operation{
			OperationID: "stopMonitor",
			Method:      http.MethodPost,
			Path:        "/stop",
			Summary:     "Stop the monitor loop after the current cycle",
			Tags:        tags,
		},
		func(ctx context.Context, _ *struct{}) (*MonitorStatusResponse, error) {
			if err := monitor.Stop(ctx); err != nil {
				return nil, err
			}
			return &MonitorStatusResponse{Body: monitorStatus(monitor.Status())}, nil
		},
	)
}

// handleSetInterval parses and applies a new cycle interval.
func handleSetInterval(monitor contracts.HealthMonitor, value string) (*MonitorStatusResponse, error) {
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid interval '%s': %w", errors.ErrBadRequest, value, err)
	}
	if err := monitor.SetInterval(d); err != nil {
		return nil, err
	}
	return &MonitorStatusResponse{Body: monitorStatus(monitor.Status())}, nil
}
