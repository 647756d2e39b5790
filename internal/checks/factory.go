package checks

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mozilla-ai/healthd/internal/domain"
)

// ErrUnsupportedComponentType is returned by Build for a component type with no built-in checker.
var ErrUnsupportedComponentType = errors.New("unsupported component type")

// Definition describes a component to monitor, independent of where it was declared.
type Definition struct {
	ID   string
	Type domain.ComponentType

	// URL is the probe target for api_server, external_api, cache and mcp_server components.
	URL string

	// Endpoints are the paths probed on an api_server component.
	Endpoints []string

	// Method and Headers apply to external_api probes.
	Method  string
	Headers map[string]string

	// ProcRoot and DiskPath apply to system_resources probes.
	ProcRoot string
	DiskPath string

	// Thresholds replace the default thresholds of the named metrics.
	Thresholds map[string]ThresholdOverride
}

// Dependencies are the shared collaborators the built-in checkers need.
type Dependencies struct {
	// Pool is the shared connection pool used by database checkers.
	Pool Leaser

	// Dialect measures the database behind Pool.
	Dialect Dialect

	// AcquireTimeout bounds how long a database checker waits for a pooled connection.
	AcquireTimeout time.Duration

	// HTTPClient is used by HTTP based checkers. A nil client means a default client.
	HTTPClient *http.Client

	// Version is reported to MCP servers as the client version.
	Version string
}

// Build constructs the built-in checker for def.
func Build(def Definition, deps Dependencies) (Checker, error) {
	id := strings.TrimSpace(def.ID)
	if id == "" {
		return nil, fmt.Errorf("component id cannot be empty")
	}

	var (
		checker Checker
		err     error
	)
	switch def.Type {
	case domain.ComponentTypeDatabase:
		if isNil(deps.Pool) {
			return nil, fmt.Errorf("component '%s': database components require a configured connection pool", id)
		}
		checker, err = NewDatabaseChecker(id, deps.Pool, deps.Dialect, deps.AcquireTimeout, def.Thresholds)
	case domain.ComponentTypeAPIServer:
		checker, err = NewAPIServerChecker(id, def.URL, def.Endpoints, deps.HTTPClient, def.Thresholds)
	case domain.ComponentTypeSystemResources:
		checker, err = NewSystemResourcesChecker(id, NewProcSampler(def.ProcRoot, def.DiskPath), def.Thresholds)
	case domain.ComponentTypeExternalAPI:
		checker, err = NewExternalAPIChecker(id, def.URL, def.Method, def.Headers, deps.HTTPClient, def.Thresholds)
	case domain.ComponentTypeCache:
		checker, err = NewRedisChecker(id, def.URL, def.Thresholds)
	case domain.ComponentTypeMCPServer:
		checker, err = NewMCPServerChecker(id, def.URL, deps.Version, def.Thresholds)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedComponentType, def.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("component '%s': %w", id, err)
	}

	return checker, nil
}
