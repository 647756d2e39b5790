package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/mozilla-ai/healthd/internal/checks"
	"github.com/mozilla-ai/healthd/internal/contracts"
	"github.com/mozilla-ai/healthd/internal/domain"
	"github.com/mozilla-ai/healthd/internal/errors"
)

// ComponentsResponse is the response for GET /components.
type ComponentsResponse struct {
	Body []Component
}

// ComponentResponse is the response for a single component.
type ComponentResponse struct {
	Body Component
}

// ComponentRequest identifies a component by id.
type ComponentRequest struct {
	ID string `doc:"Component id" example:"orders-db" path:"id"`
}

// ThresholdBody overrides one metric threshold of a new component.
type ThresholdBody struct {
	Warning   float64 `json:"warning"`
	Critical  float64 `json:"critical"`
	Direction string  `enum:"higher_is_worse,lower_is_worse" json:"direction,omitempty" required:"false"`
}

// RegisterComponentBody describes a component to start monitoring.
type RegisterComponentBody struct {
	ID         string                   `doc:"Unique component id"                                      json:"id"                   minLength:"1"`
	Type       string                   `enum:"database,api_server,system_resources,external_api,cache,mcp_server" json:"type"`
	URL        string                   `doc:"Probe target for HTTP, cache and MCP components"          json:"url,omitempty"        required:"false"`
	Endpoints  []string                 `doc:"Paths probed on an api_server component"                  json:"endpoints,omitempty"  required:"false"`
	Method     string                   `doc:"HTTP method for external_api probes"                      json:"method,omitempty"     required:"false"`
	Headers    map[string]string        `doc:"Headers sent with external_api probes"                    json:"headers,omitempty"    required:"false"`
	DiskPath   string                   `doc:"Filesystem measured by a system_resources component"      json:"diskPath,omitempty"   required:"false"`
	Thresholds map[string]ThresholdBody `doc:"Threshold overrides keyed by metric name"                 json:"thresholds,omitempty" required:"false"`
}

// RegisterComponentRequest is the request for POST /components.
type RegisterComponentRequest struct {
	Body RegisterComponentBody
}

// ComponentHistoryRequest is the request for GET /components/{id}/history.
type ComponentHistoryRequest struct {
	WindowRequest

	ID string `doc:"Component id" example:"orders-db" path:"id"`
}

// ComponentHistoryResponse is the response for GET /components/{id}/history.
type ComponentHistoryResponse struct {
	Body []CheckRecord
}

// RegisterComponentRoutes sets up routes for listing, registering and removing components.
func RegisterComponentRoutes(
	routerAPI huma.API,
	monitor contracts.HealthMonitor,
	registrar contracts.ComponentRegistrar,
	apiPathPrefix string,
) {
	componentsAPI := huma.NewGroup(routerAPI, apiPathPrefix)
	tags := []string{"Components"}

	huma.Register(
		componentsAPI,
		huma.Operation{
			OperationID: "listComponents",
			Method:      http.MethodGet,
			Summary:     "List registered components",
			Tags:        tags,
		},
		func(ctx context.Context, _ *struct{}) (*ComponentsResponse, error) {
			return handleComponents(monitor)
		},
	)

	huma.Register(
		componentsAPI,
		huma.Operation{
			OperationID: "getComponent",
			Method:      http.MethodGet,
			Path:        "/{id}",
			Summary:     "Get a registered component",
			Tags:        tags,
		},
		func(ctx context.Context, input *ComponentRequest) (*ComponentResponse, error) {
			return handleComponent(monitor, input.ID)
		},
	)

	huma.Register(
		componentsAPI,
		huma.Operation{
			OperationID:   "registerComponent",
			Method:        http.MethodPost,
			Summary:       "Start monitoring a component",
			Tags:          tags,
			DefaultStatus: http.StatusCreated,
		},
		func(ctx context.Context, input *RegisterComponentRequest) (*ComponentResponse, error) {
			return handleRegisterComponent(registrar, input.Body)
		},
	)

	huma.Register(
		componentsAPI,
		huma.Operation{
			OperationID:   "unregisterComponent",
			Method:        http.MethodDelete,
			Path:          "/{id}",
			Summary:       "Stop monitoring a component",
			Tags:          tags,
			DefaultStatus: http.StatusNoContent,
		},
		func(ctx context.Context, input *ComponentRequest) (*struct{}, error) {
			if err := registrar.Remove(input.ID); err != nil {
				return nil, err
			}
			return nil, nil
		},
	)

	huma.Register(
		componentsAPI,
		huma.Operation{
			OperationID: "getComponentHistory",
			Method:      http.MethodGet,
			Path:        "/{id}/history",
			Summary:     "List recorded probe results of a component",
			Tags:        append(tags, "History"),
		},
		func(ctx context.Context, input *ComponentHistoryRequest) (*ComponentHistoryResponse, error) {
			return handleComponentHistory(ctx, monitor, input, time.Now())
		},
	)
}

// handleComponents returns every registered component.
func handleComponents(monitor contracts.HealthMonitor) (*ComponentsResponse, error) {
	data, err := convertAll(monitor.Components(), component)
	if err != nil {
		return nil, err
	}
	return &ComponentsResponse{Body: data}, nil
}

// handleComponent returns one registered component.
func handleComponent(monitor contracts.HealthMonitor, id string) (*ComponentResponse, error) {
	info, err := monitor.Component(id)
	if err != nil {
		return nil, err
	}
	data, err := component(info)
	if err != nil {
		return nil, err
	}
	return &ComponentResponse{Body: data}, nil
}

// handleRegisterComponent builds and registers a checker for the request body.
func handleRegisterComponent(registrar contracts.ComponentRegistrar, body RegisterComponentBody) (*ComponentResponse, error) {
	def, err := body.definition()
	if err != nil {
		return nil, err
	}

	info, err := registrar.Add(def)
	if err != nil {
		return nil, err
	}

	data, err := component(info)
	if err != nil {
		return nil, err
	}
	return &ComponentResponse{Body: data}, nil
}

// handleComponentHistory returns recorded probe results for a component.
func handleComponentHistory(
	ctx context.Context,
	monitor contracts.HealthMonitor,
	input *ComponentHistoryRequest,
	now time.Time,
) (*ComponentHistoryResponse, error) {
	from, to, err := input.window(now)
	if err != nil {
		return nil, err
	}

	records, err := monitor.History(ctx, input.ID, from, to)
	if err != nil {
		return nil, err
	}

	data, err := convertAll(records, func(r domain.CheckRecord) (CheckRecord, error) {
		return DomainCheckRecord(r).ToAPIType()
	})
	if err != nil {
		return nil, err
	}
	return &ComponentHistoryResponse{Body: data}, nil
}

func (b RegisterComponentBody) definition() (checks.Definition, error) {
	id := strings.TrimSpace(b.ID)
	if id == "" {
		return checks.Definition{}, fmt.Errorf("%w: component id cannot be empty", errors.ErrBadRequest)
	}

	overrides := make(map[string]checks.ThresholdOverride, len(b.Thresholds))
	for name, t := range b.Thresholds {
		o := checks.ThresholdOverride{Warning: t.Warning, Critical: t.Critical}
		if t.Direction != "" {
			d, err := domain.ParseDirection(t.Direction)
			if err != nil {
				return checks.Definition{}, fmt.Errorf("%w: threshold '%s': %w", errors.ErrBadRequest, name, err)
			}
			o.Direction = &d
		}
		overrides[name] = o
	}

	return checks.Definition{
		ID:         id,
		Type:       domain.ComponentType(b.Type),
		URL:        b.URL,
		Endpoints:  b.Endpoints,
		Method:     b.Method,
		Headers:    b.Headers,
		DiskPath:   b.DiskPath,
		Thresholds: overrides,
	}, nil
}
