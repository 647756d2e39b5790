package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/mozilla-ai/healthd/internal/contracts"
	"github.com/mozilla-ai/healthd/internal/domain"
)

// SystemHealthResponse is the response for GET /health and POST /health/check.
type SystemHealthResponse struct {
	Body SystemHealth
}

// RegisterHealthRoutes sets up routes reporting aggregated system health.
func RegisterHealthRoutes(routerAPI huma.API, monitor contracts.HealthMonitor, apiPathPrefix string) {
	healthAPI := huma.NewGroup(routerAPI, apiPathPrefix)
	tags := []string{"Health"}

	huma.Register(
		healthAPI,
		huma.Operation{
			OperationID: "getSystemHealth",
			Method:      http.MethodGet,
			Summary:     "Get the system health from the last completed cycle",
			Tags:        tags,
		},
		func(ctx context.Context, _ *struct{}) (*SystemHealthResponse, error) {
			return handleSystemHealth(monitor)
		},
	)

	huma.Register(
		healthAPI,
		huma.Operation{
			OperationID: "forceHealthCheck",
			Method:      http.MethodPost,
			Path:        "/check",
			Summary:     "Probe every component now and return the result",
			Tags:        tags,
		},
		func(ctx context.Context, _ *struct{}) (*SystemHealthResponse, error) {
			return handleForceCheck(ctx, monitor)
		},
	)
}

// handleSystemHealth returns the current snapshot.
func handleSystemHealth(monitor contracts.HealthMonitor) (*SystemHealthResponse, error) {
	snapshot, err := monitor.Current()
	if err != nil {
		return nil, err
	}
	return systemHealthResponse(snapshot)
}

// handleForceCheck runs a cycle and returns its snapshot.
func handleForceCheck(ctx context.Context, monitor contracts.HealthMonitor) (*SystemHealthResponse, error) {
	snapshot, err := monitor.ForceCheck(ctx)
	if err != nil {
		return nil, err
	}
	return systemHealthResponse(snapshot)
}

func systemHealthResponse(snapshot *domain.SystemHealth) (*SystemHealthResponse, error) {
	data, err := DomainSystemHealth(*snapshot).ToAPIType()
	if err != nil {
		return nil, err
	}
	return &SystemHealthResponse{Body: data}, nil
}
