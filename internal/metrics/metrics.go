// Package metrics exports monitor activity and subsystem statistics to Prometheus.
package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mozilla-ai/healthd/internal/domain"
	"github.com/mozilla-ai/healthd/internal/recovery"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "healthd"

// Collector records probe, cycle and recovery activity.
// It satisfies the monitor's observer contract.
type Collector struct {
	namespace string
	reg       prometheus.Registerer

	componentStatus *prometheus.GaugeVec
	componentUptime *prometheus.GaugeVec
	componentErrors *prometheus.GaugeVec
	probeDuration   *prometheus.HistogramVec
	probes          *prometheus.CounterVec
	cycles          prometheus.Counter
	cycleDuration   prometheus.Histogram
	systemStatus    prometheus.Gauge
	systemUptime    prometheus.Gauge
	recoveries      *prometheus.CounterVec
}

// NewCollector creates the collectors and registers them with reg.
// An empty namespace uses DefaultNamespace.
func NewCollector(namespace string, reg prometheus.Registerer) (*Collector, error) {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if reg == nil {
		return nil, fmt.Errorf("registerer cannot be nil")
	}

	c := &Collector{
		namespace: namespace,
		reg:       reg,
		componentStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "component_status",
			Help:      "Current component status (0 healthy, 1 warning, 2 critical, 3 down).",
		}, []string{"component", "type"}),
		componentUptime: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "component_uptime_seconds",
			Help:      "Accumulated up time of a component.",
		}, []string{"component", "type"}),
		componentErrors: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "component_error_count",
			Help:      "Down probes since the component last fully recovered.",
		}, []string{"component", "type"}),
		probeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "probe_duration_seconds",
			Help:      "Latency of component health probes.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"type"}),
		probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "probes_total",
			Help:      "Completed health probes by component type and resulting status.",
		}, []string{"type", "status"}),
		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Completed health check cycles.",
		}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of a full health check cycle.",
			Buckets:   prometheus.DefBuckets,
		}),
		systemStatus: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "system_status",
			Help:      "Overall system status (0 healthy, 1 warning, 2 critical).",
		}),
		systemUptime: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "system_uptime_percent",
			Help:      "Percentage of up component samples over the uptime window.",
		}),
		recoveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recoveries_total",
			Help:      "Recovery requests by result and skip reason.",
		}, []string{"result", "reason"}),
	}

	collectors := []prometheus.Collector{
		c.componentStatus,
		c.componentUptime,
		c.componentErrors,
		c.probeDuration,
		c.probes,
		c.cycles,
		c.cycleDuration,
		c.systemStatus,
		c.systemUptime,
		c.recoveries,
	}
	for _, col := range collectors {
		if err := register(reg, col); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// Namespace returns the prefix used for metric names.
func (c *Collector) Namespace() string {
	return c.namespace
}

// ProbeCompleted records one probe result.
func (c *Collector) ProbeCompleted(health domain.ComponentHealth, duration time.Duration) {
	if c == nil {
		return
	}
	componentType := string(health.Type)
	c.probeDuration.WithLabelValues(componentType).Observe(duration.Seconds())
	c.probes.WithLabelValues(componentType, health.Status.String()).Inc()
}

// CycleCompleted publishes the per-component gauges from a snapshot.
// Components missing from the snapshot lose their series.
func (c *Collector) CycleCompleted(snapshot *domain.SystemHealth, duration time.Duration) {
	if c == nil || snapshot == nil {
		return
	}

	c.cycles.Inc()
	c.cycleDuration.Observe(duration.Seconds())
	c.systemStatus.Set(float64(snapshot.OverallStatus))
	c.systemUptime.Set(snapshot.Statistics.UptimePercent)

	c.componentStatus.Reset()
	c.componentUptime.Reset()
	c.componentErrors.Reset()
	for id, h := range snapshot.Components {
		labels := prometheus.Labels{"component": id, "type": string(h.Type)}
		c.componentStatus.With(labels).Set(float64(h.Status))
		c.componentUptime.With(labels).Set(h.UptimeSeconds)
		c.componentErrors.With(labels).Set(float64(h.ErrorCount))
	}
}

// RecoveryCompleted counts a recovery request by its result.
func (c *Collector) RecoveryCompleted(outcome recovery.Outcome) {
	if c == nil {
		return
	}
	switch {
	case outcome.Succeeded:
		c.recoveries.WithLabelValues("succeeded", "").Inc()
	case outcome.Attempted:
		c.recoveries.WithLabelValues("failed", "").Inc()
	default:
		c.recoveries.WithLabelValues("skipped", string(outcome.Skipped)).Inc()
	}
}

// Handler serves the exposition format for everything gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func register(reg prometheus.Registerer, col prometheus.Collector) error {
	if err := reg.Register(col); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			return fmt.Errorf("metric collector already registered (use a dedicated registry): %w", err)
		}
		return fmt.Errorf("register metric collector: %w", err)
	}
	return nil
}
