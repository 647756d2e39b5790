package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mozilla-ai/healthd/internal/alert"
	"github.com/mozilla-ai/healthd/internal/history"
	"github.com/mozilla-ai/healthd/internal/pool"
)

type statSource[T any] struct {
	desc  *prometheus.Desc
	kind  prometheus.ValueType
	value func(T) float64
}

// statsCollector exposes a subsystem's Stats struct, read once per scrape.
type statsCollector[T any] struct {
	namespace string
	subsystem string
	labels    prometheus.Labels
	read      func() T
	sources   []statSource[T]
}

func (s *statsCollector[T]) add(name, help string, kind prometheus.ValueType, value func(T) float64) {
	s.sources = append(s.sources, statSource[T]{
		desc:  prometheus.NewDesc(prometheus.BuildFQName(s.namespace, s.subsystem, name), help, nil, s.labels),
		kind:  kind,
		value: value,
	})
}

func (s *statsCollector[T]) Describe(ch chan<- *prometheus.Desc) {
	for _, src := range s.sources {
		ch <- src.desc
	}
}

func (s *statsCollector[T]) Collect(ch chan<- prometheus.Metric) {
	snapshot := s.read()
	for _, src := range s.sources {
		ch <- prometheus.MustNewConstMetric(src.desc, src.kind, src.value(snapshot))
	}
}

// WatchPool exports connection pool statistics, labelled with the pool name.
func (c *Collector) WatchPool(name string, stats func() pool.Stats) error {
	if stats == nil {
		return fmt.Errorf("pool stats source cannot be nil")
	}

	b := &statsCollector[pool.Stats]{
		namespace: c.namespace,
		subsystem: "pool",
		labels:    prometheus.Labels{"pool": name},
		read:      stats,
	}
	b.add("size", "Open connections.", prometheus.GaugeValue, func(s pool.Stats) float64 { return float64(s.Size) })
	b.add("in_use", "Leased connections.", prometheus.GaugeValue, func(s pool.Stats) float64 { return float64(s.InUse) })
	b.add("idle", "Idle connections.", prometheus.GaugeValue, func(s pool.Stats) float64 { return float64(s.Idle) })
	b.add("leaked", "Leases held past the maximum lease time.", prometheus.GaugeValue, func(s pool.Stats) float64 { return float64(s.Leaked) })
	b.add("waiters", "Callers waiting for a connection.", prometheus.GaugeValue, func(s pool.Stats) float64 { return float64(s.Waiters) })
	b.add("health_score", "Average connection health score.", prometheus.GaugeValue, func(s pool.Stats) float64 { return s.AverageHealthScore })
	b.add("created_total", "Connections opened.", prometheus.CounterValue, func(s pool.Stats) float64 { return float64(s.Created) })
	b.add("evicted_total", "Connections closed for a low health score or idleness.", prometheus.CounterValue, func(s pool.Stats) float64 { return float64(s.Evicted) })
	b.add("reclaimed_total", "Leaked connections forcibly reclaimed.", prometheus.CounterValue, func(s pool.Stats) float64 { return float64(s.Reclaimed) })
	b.add("exhausted_total", "Acquire calls that timed out.", prometheus.CounterValue, func(s pool.Stats) float64 { return float64(s.Exhausted) })
	b.add("connect_errors_total", "Failed connection attempts.", prometheus.CounterValue, func(s pool.Stats) float64 { return float64(s.ConnectErrors) })

	return register(c.reg, b)
}

// WatchAlerts exports alert manager counters.
func (c *Collector) WatchAlerts(stats func() alert.Stats) error {
	if stats == nil {
		return fmt.Errorf("alert stats source cannot be nil")
	}

	b := &statsCollector[alert.Stats]{namespace: c.namespace, subsystem: "alerts", read: stats}
	b.add("open", "Alerts that are neither acknowledged nor resolved.", prometheus.GaugeValue, func(s alert.Stats) float64 { return float64(s.Open) })
	b.add("acknowledged", "Acknowledged alerts awaiting resolution.", prometheus.GaugeValue, func(s alert.Stats) float64 { return float64(s.Acknowledged) })
	b.add("fired_total", "Alerts delivered for the first time.", prometheus.CounterValue, func(s alert.Stats) float64 { return float64(s.Fired) })
	b.add("repeated_total", "Alerts re-delivered after their cooldown.", prometheus.CounterValue, func(s alert.Stats) float64 { return float64(s.Repeated) })
	b.add("suppressed_total", "Notifications suppressed inside the cooldown.", prometheus.CounterValue, func(s alert.Stats) float64 { return float64(s.Suppressed) })
	b.add("escalated_total", "Alerts escalated to the escalation channels.", prometheus.CounterValue, func(s alert.Stats) float64 { return float64(s.Escalated) })
	b.add("resolved_total", "Alerts resolved.", prometheus.CounterValue, func(s alert.Stats) float64 { return float64(s.Resolved) })
	b.add("delivery_failures_total", "Channel deliveries that failed.", prometheus.CounterValue, func(s alert.Stats) float64 { return float64(s.DeliveryFailures) })

	return register(c.reg, b)
}

// WatchHistory exports history writer counters.
func (c *Collector) WatchHistory(stats func() history.WriterStats) error {
	if stats == nil {
		return fmt.Errorf("history stats source cannot be nil")
	}

	b := &statsCollector[history.WriterStats]{namespace: c.namespace, subsystem: "history", read: stats}
	b.add("queued", "Rows waiting to be written.", prometheus.GaugeValue, func(s history.WriterStats) float64 { return float64(s.Queued) })
	b.add("written_total", "Rows written to the store.", prometheus.CounterValue, func(s history.WriterStats) float64 { return float64(s.Written) })
	b.add("dropped_total", "Rows dropped because the queue was full.", prometheus.CounterValue, func(s history.WriterStats) float64 { return float64(s.Dropped) })
	b.add("failed_total", "Rows the store failed to write.", prometheus.CounterValue, func(s history.WriterStats) float64 { return float64(s.Failed) })

	return register(c.reg, b)
}
