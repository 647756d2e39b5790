package domain

import (
	"maps"
	"slices"
	"time"
)

const (
	ComponentTypeDatabase        ComponentType = "database"
	ComponentTypeAPIServer       ComponentType = "api_server"
	ComponentTypeSystemResources ComponentType = "system_resources"
	ComponentTypeExternalAPI     ComponentType = "external_api"
	ComponentTypeCache           ComponentType = "cache"
	ComponentTypeMCPServer       ComponentType = "mcp_server"
)

// ComponentType identifies the kind of a monitored component.
// The set is open: checkers may introduce their own types.
type ComponentType string

// ComponentHealth is the latest known state of one monitored component.
type ComponentHealth struct {
	ID               string        `json:"id"                yaml:"id"`
	Type             ComponentType `json:"type"              yaml:"type"`
	Status           Status        `json:"status"            yaml:"status"`
	Metrics          []Metric      `json:"metrics"           yaml:"metrics"`
	LastCheck        time.Time     `json:"last_check"        yaml:"last_check"`
	UptimeSeconds    float64       `json:"uptime_seconds"    yaml:"uptime_seconds"`
	ErrorCount       int           `json:"error_count"       yaml:"error_count"`
	LastError        string        `json:"last_error"        yaml:"last_error"`
	RecoveryAttempts int           `json:"recovery_attempts" yaml:"recovery_attempts"`
}

// SystemHealth is an immutable, fully aggregated view of every component from a single monitor cycle.
type SystemHealth struct {
	OverallStatus Status                     `json:"overall_status" yaml:"overall_status"`
	Components    map[string]ComponentHealth `json:"components"     yaml:"components"`
	Timestamp     time.Time                  `json:"timestamp"      yaml:"timestamp"`
	Statistics    Statistics                 `json:"statistics"     yaml:"statistics"`
}

// Statistics are the derived counts of a SystemHealth.
type Statistics struct {
	Total         int           `json:"total"          yaml:"total"`
	Healthy       int           `json:"healthy"        yaml:"healthy"`
	Warning       int           `json:"warning"        yaml:"warning"`
	Critical      int           `json:"critical"       yaml:"critical"`
	Down          int           `json:"down"           yaml:"down"`
	UptimePercent float64       `json:"uptime_percent" yaml:"uptime_percent"`
	UptimeWindow  time.Duration `json:"uptime_window"  yaml:"uptime_window"`
}

// AggregationPolicy holds the ratios used to fold component statuses into a system status.
type AggregationPolicy struct {
	// CriticalRatio is the share of critical components above which the system is critical.
	CriticalRatio float64

	// WarningRatio is the share of warning components above which the system is in warning.
	WarningRatio float64
}

// DefaultAggregationPolicy returns the standard 0.3/0.5 policy.
func DefaultAggregationPolicy() AggregationPolicy {
	return AggregationPolicy{CriticalRatio: 0.3, WarningRatio: 0.5}
}

// MetricsStatus returns the worst status across the metrics, or StatusHealthy if there are none.
func (c ComponentHealth) MetricsStatus() Status {
	worst := StatusHealthy
	for _, m := range c.Metrics {
		worst = Worst(worst, m.Status)
	}
	return worst
}

// Metric finds a metric by name.
func (c ComponentHealth) Metric(name string) (Metric, bool) {
	for _, m := range c.Metrics {
		if m.Name == name {
			return m, true
		}
	}
	return Metric{}, false
}

// Clone returns a copy of c that shares no slices with the original.
func (c ComponentHealth) Clone() ComponentHealth {
	c.Metrics = slices.Clone(c.Metrics)
	return c
}

// Count returns the per-status counts of the supplied components.
func Count(components []ComponentHealth) Statistics {
	stats := Statistics{Total: len(components)}
	for _, c := range components {
		switch c.Status {
		case StatusHealthy:
			stats.Healthy++
		case StatusWarning:
			stats.Warning++
		case StatusCritical:
			stats.Critical++
		case StatusDown:
			stats.Down++
		}
	}
	return stats
}

// Aggregate folds component statuses into a system status.
//
//   - critical when any component is down, or more than CriticalRatio of them are critical
//   - warning when any component is critical, or more than WarningRatio of them are in warning
//   - healthy otherwise
func (p AggregationPolicy) Aggregate(stats Statistics) Status {
	total := float64(stats.Total)

	switch {
	case stats.Down > 0 || float64(stats.Critical) > p.CriticalRatio*total:
		return StatusCritical
	case stats.Critical > 0 || float64(stats.Warning) > p.WarningRatio*total:
		return StatusWarning
	default:
		return StatusHealthy
	}
}

// ComponentIDs returns the component ids in a stable (sorted) order.
func (s *SystemHealth) ComponentIDs() []string {
	return slices.Sorted(maps.Keys(s.Components))
}

// Sorted returns the components ordered by id.
func (s *SystemHealth) Sorted() []ComponentHealth {
	ids := s.ComponentIDs()
	out := make([]ComponentHealth, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.Components[id])
	}
	return out
}
