package checks

import (
	"context"
	"fmt"
	"runtime"
	"strings"

	"github.com/mozilla-ai/healthd/internal/domain"
)

const (
	MetricCPUPercent         = "cpu_percent"
	MetricMemoryPercent      = "memory_percent"
	MetricDiskUsedPercent    = "disk_used_percent"
	MetricNetworkConnections = "network_connections"
	MetricProcessCount       = "process_count"
	MetricLoadAverage1m      = "load_average_1m"
)

// ResourceSample is one reading of host resource usage.
type ResourceSample struct {
	CPUPercent         float64
	MemoryPercent      float64
	DiskUsedPercent    float64
	NetworkConnections float64
	ProcessCount       float64
	LoadAverage1m      float64
}

// Sampler reads host resource usage.
type Sampler interface {
	Sample(ctx context.Context) (ResourceSample, error)
}

// SamplerFunc adapts a function to the Sampler interface.
type SamplerFunc func(ctx context.Context) (ResourceSample, error)

// Sample implements Sampler.
func (f SamplerFunc) Sample(ctx context.Context) (ResourceSample, error) {
	return f(ctx)
}

// SystemResourcesChecker reports host CPU, memory, disk, network, process and load metrics.
type SystemResourcesChecker struct {
	id      string
	sampler Sampler
	metrics MetricSet
}

// SystemResourcesMetrics returns the default metric definitions for host resources.
// Load average bounds scale with the number of CPUs.
func SystemResourcesMetrics() MetricSet {
	cpus := float64(runtime.NumCPU())
	return MetricSet{
		MetricCPUPercent:         spec(MetricCPUPercent, "%", 80, 95, domain.HigherIsWorse),
		MetricMemoryPercent:      spec(MetricMemoryPercent, "%", 85, 95, domain.HigherIsWorse),
		MetricDiskUsedPercent:    spec(MetricDiskUsedPercent, "%", 85, 95, domain.HigherIsWorse),
		MetricNetworkConnections: spec(MetricNetworkConnections, "count", 1000, 5000, domain.HigherIsWorse),
		MetricProcessCount:       spec(MetricProcessCount, "count", 500, 1000, domain.HigherIsWorse),
		MetricLoadAverage1m:      spec(MetricLoadAverage1m, "load", cpus, 2*cpus, domain.HigherIsWorse),
	}
}

// NewSystemResourcesChecker creates a checker backed by sampler.
func NewSystemResourcesChecker(id string, sampler Sampler, overrides map[string]ThresholdOverride) (*SystemResourcesChecker, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("component id cannot be empty")
	}
	if isNil(sampler) {
		return nil, fmt.Errorf("resource sampler cannot be nil")
	}

	metrics, err := SystemResourcesMetrics().Override(overrides)
	if err != nil {
		return nil, err
	}

	return &SystemResourcesChecker{
		id:      id,
		sampler: sampler,
		metrics: metrics,
	}, nil
}

// ID implements Checker.
func (c *SystemResourcesChecker) ID() string {
	return c.id
}

// Type implements Checker.
func (c *SystemResourcesChecker) Type() domain.ComponentType {
	return domain.ComponentTypeSystemResources
}

// Check implements Checker.
func (c *SystemResourcesChecker) Check(ctx context.Context) domain.ComponentHealth {
	s, err := c.sampler.Sample(ctx)
	if err != nil {
		return Failure(c.id, c.Type(), fmt.Errorf("sampling resources: %w", err))
	}

	return Healthy(
		c.id,
		c.Type(),
		c.metrics.Measure(MetricCPUPercent, s.CPUPercent),
		c.metrics.Measure(MetricMemoryPercent, s.MemoryPercent),
		c.metrics.Measure(MetricDiskUsedPercent, s.DiskUsedPercent),
		c.metrics.Measure(MetricNetworkConnections, s.NetworkConnections),
		c.metrics.Measure(MetricProcessCount, s.ProcessCount),
		c.metrics.Measure(MetricLoadAverage1m, s.LoadAverage1m),
	)
}
