package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/mozilla-ai/healthd/internal/checks"
	"github.com/mozilla-ai/healthd/internal/domain"
)

var componentTypes = []domain.ComponentType{
	domain.ComponentTypeDatabase,
	domain.ComponentTypeAPIServer,
	domain.ComponentTypeSystemResources,
	domain.ComponentTypeExternalAPI,
	domain.ComponentTypeCache,
	domain.ComponentTypeMCPServer,
}

// ComponentEntry represents the configuration of a single monitored component.
type ComponentEntry struct {
	// ID is the unique name of the component, e.g. 'orders-db'.
	ID string `json:"id" toml:"id" yaml:"id"`

	// Type selects the built-in checker, e.g. 'database' or 'api_server'.
	Type string `json:"type" toml:"type" yaml:"type"`

	// URL is the probe target for api_server, external_api, cache and mcp_server components.
	URL string `json:"url,omitempty" toml:"url,omitempty" yaml:"url,omitempty"`

	// Endpoints are the paths probed on an api_server component.
	Endpoints []string `json:"endpoints,omitempty" toml:"endpoints,omitempty" yaml:"endpoints,omitempty"`

	Method  string            `json:"method,omitempty"  toml:"method,omitempty"  yaml:"method,omitempty"`
	Headers map[string]string `json:"headers,omitempty" toml:"headers,omitempty" yaml:"headers,omitempty"`

	ProcRoot string `json:"procRoot,omitempty" toml:"proc_root,omitempty" yaml:"proc_root,omitempty"`
	DiskPath string `json:"diskPath,omitempty" toml:"disk_path,omitempty" yaml:"disk_path,omitempty"`

	// Thresholds override the default thresholds of the named metrics.
	Thresholds map[string]ThresholdEntry `json:"thresholds,omitempty" toml:"thresholds,omitempty" yaml:"thresholds,omitempty"`
}

// ThresholdEntry overrides a metric threshold.
type ThresholdEntry struct {
	Warning  float64 `json:"warning"  toml:"warning"  yaml:"warning"`
	Critical float64 `json:"critical" toml:"critical" yaml:"critical"`

	// Direction is 'higher_is_worse' or 'lower_is_worse'; empty keeps the metric default.
	Direction string `json:"direction,omitempty" toml:"direction,omitempty" yaml:"direction,omitempty"`
}

// Definition converts the entry into a checker definition.
func (e ComponentEntry) Definition() (checks.Definition, error) {
	id := strings.TrimSpace(e.ID)
	if id == "" {
		return checks.Definition{}, fmt.Errorf("%w: component id is required", ErrInvalidValue)
	}

	componentType := domain.ComponentType(strings.TrimSpace(e.Type))
	if !slices.Contains(componentTypes, componentType) {
		return checks.Definition{}, NewErrInvalidValue("components."+id+".type", e.Type)
	}

	overrides := make(map[string]checks.ThresholdOverride, len(e.Thresholds))
	for name, t := range e.Thresholds {
		o := checks.ThresholdOverride{Warning: t.Warning, Critical: t.Critical}
		if t.Direction != "" {
			d, err := domain.ParseDirection(t.Direction)
			if err != nil {
				return checks.Definition{}, NewErrInvalidValue("components."+id+".thresholds."+name+".direction", t.Direction)
			}
			o.Direction = &d
		}
		overrides[name] = o
	}

	return checks.Definition{
		ID:         id,
		Type:       componentType,
		URL:        e.URL,
		Endpoints:  slices.Clone(e.Endpoints),
		Method:     e.Method,
		Headers:    e.Headers,
		ProcRoot:   e.ProcRoot,
		DiskPath:   e.DiskPath,
		Thresholds: overrides,
	}, nil
}

// Definitions converts every component entry, in configuration order.
func (c *Config) Definitions() ([]checks.Definition, error) {
	defs := make([]checks.Definition, 0, len(c.Components))
	for _, e := range c.Components {
		def, err := e.Definition()
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// validateComponents ensures every component has a unique id and a supported type.
func (c *Config) validateComponents() error {
	var errs []error
	seen := map[string]struct{}{}

	for _, e := range c.Components {
		def, err := e.Definition()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if _, ok := seen[def.ID]; ok {
			errs = append(errs, fmt.Errorf("%w: duplicate component id '%s'", ErrInvalidValue, def.ID))
		}
		seen[def.ID] = struct{}{}

		if def.Type == domain.ComponentTypeDatabase && c.Pool == nil {
			errs = append(errs, fmt.Errorf("%w: component '%s' requires a [pool] section", ErrInvalidValue, def.ID))
		}
	}

	return errors.Join(errs...)
}
