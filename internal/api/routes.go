package api

import (
	"fmt"
	"net/url"
	"reflect"

	"github.com/danielgtaylor/huma/v2"

	"github.com/mozilla-ai/healthd/internal/contracts"
)

// APIVersion is the version used in the OpenAPI spec and URL paths.
const APIVersion = "v1"

// Services are the collaborators behind the API routes.
// Pool is optional; pool routes report ErrPoolNotConfigured without it.
type Services struct {
	Monitor    contracts.HealthMonitor
	Components contracts.ComponentRegistrar
	Alerts     contracts.AlertManager
	Recovery   contracts.RecoveryController
	Pool       contracts.PoolInspector
}

// Validate ensures all required services are provided.
func (s Services) Validate() error {
	if isNil(s.Monitor) {
		return fmt.Errorf("health monitor cannot be nil")
	}
	if isNil(s.Components) {
		return fmt.Errorf("component registrar cannot be nil")
	}
	if isNil(s.Alerts) {
		return fmt.Errorf("alert manager cannot be nil")
	}
	if isNil(s.Recovery) {
		return fmt.Errorf("recovery controller cannot be nil")
	}
	return nil
}

// RegisterRoutes registers all API routes on the provided Huma router.
// This is the single source of truth for the API route structure.
// Returns the API path prefix (e.g., "/api/v1") under which the routes are created.
func RegisterRoutes(router huma.API, services Services) (string, error) {
	if isNil(router) {
		return "", fmt.Errorf("router cannot be nil")
	}
	if err := services.Validate(); err != nil {
		return "", err
	}

	// Safe way to ensure /api/{version}.
	apiPathPrefix, err := url.JoinPath("/api", APIVersion)
	if err != nil {
		return "", fmt.Errorf("failed to construct API path prefix: %w", err)
	}

	// Group all routes under the /api/{version} prefix.
	versionedGroup := huma.NewGroup(router, apiPathPrefix)
	RegisterHealthRoutes(versionedGroup, services.Monitor, "/health")
	RegisterComponentRoutes(versionedGroup, services.Monitor, services.Components, "/components")
	RegisterEventRoutes(versionedGroup, services.Monitor, "/events")
	RegisterMonitorRoutes(versionedGroup, services.Monitor, "/monitor")
	RegisterAlertRoutes(versionedGroup, services.Alerts, "/alerts")
	RegisterRecoveryRoutes(versionedGroup, services.Recovery, "/recovery")
	RegisterPoolRoutes(versionedGroup, services.Pool, "/pool")

	return apiPathPrefix, nil
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return rv.IsNil()
	default:
		return false
	}
}
