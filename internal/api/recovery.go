package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/mozilla-ai/healthd/internal/contracts"
)

// BreakerResponse is the response for recovery routes.
type BreakerResponse struct {
	Body Breaker
}

// RegisterRecoveryRoutes sets up routes for inspecting and resetting recovery breakers.
func RegisterRecoveryRoutes(routerAPI huma.API, recovery contracts.RecoveryController, apiPathPrefix string) {
	recoveryAPI := huma.NewGroup(routerAPI, apiPathPrefix)
	tags := []string{"Recovery"}

	huma.Register(
		recoveryAPI,
		huma.Operation{
			OperationID: "getRecoveryBreaker",
			Method:      http.MethodGet,
			Path:        "/{id}",
			Summary:     "Get the recovery breaker of a component",
			Tags:        tags,
		},
		func(ctx context.Context, input *ComponentRequest) (*BreakerResponse, error) {
			return &BreakerResponse{Body: breaker(recovery.Breaker(input.ID))}, nil
		},
	)

	huma.Register(
		recoveryAPI,
		huma.Operation{
			OperationID: "resetRecoveryBreaker",
			Method:      http.MethodPost,
			Path:        "/{id}/reset",
			Summary:     "Close the recovery breaker of a component",
			Tags:        tags,
		},
		func(ctx context.Context, input *ComponentRequest) (*BreakerResponse, error) {
			recovery.Reset(input.ID)
			return &BreakerResponse{Body: breaker(recovery.Breaker(input.ID))}, nil
		},
	)
}
