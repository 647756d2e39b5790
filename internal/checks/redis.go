package checks

import (
	"bufio"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mozilla-ai/healthd/internal/domain"
)

const (
	MetricPingLatency      = "ping_latency_ms"
	MetricUsedMemory       = "used_memory_mb"
	MetricConnectedClients = "connected_clients"
)

// RedisChecker probes a Redis cache with PING and INFO.
type RedisChecker struct {
	id      string
	client  *redis.Client
	metrics MetricSet
}

// RedisMetrics returns the default metric definitions for cache components.
func RedisMetrics() MetricSet {
	return MetricSet{
		MetricPingLatency:      spec(MetricPingLatency, "ms", 20, 100, domain.HigherIsWorse),
		MetricUsedMemory:       spec(MetricUsedMemory, "MB", 1024, 4096, domain.HigherIsWorse),
		MetricConnectedClients: spec(MetricConnectedClients, "count", 1000, 5000, domain.HigherIsWorse),
	}
}

// NewRedisChecker creates a checker for the Redis server at url ("redis://[:password@]host:port/db").
func NewRedisChecker(id string, url string, overrides map[string]ThresholdOverride) (*RedisChecker, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("component id cannot be empty")
	}

	opts, err := redis.ParseURL(strings.TrimSpace(url))
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	// The probe timeout is enforced by the caller.
	opts.MaxRetries = -1

	metrics, err := RedisMetrics().Override(overrides)
	if err != nil {
		return nil, err
	}

	return &RedisChecker{
		id:      id,
		client:  redis.NewClient(opts),
		metrics: metrics,
	}, nil
}

// ID implements Checker.
func (c *RedisChecker) ID() string {
	return c.id
}

// Type implements Checker.
func (c *RedisChecker) Type() domain.ComponentType {
	return domain.ComponentTypeCache
}

// Check implements Checker.
func (c *RedisChecker) Check(ctx context.Context) domain.ComponentHealth {
	start := time.Now()
	if err := c.client.Ping(ctx).Err(); err != nil {
		return Failure(c.id, c.Type(), fmt.Errorf("ping: %w", err))
	}
	metrics := []domain.Metric{
		c.metrics.Measure(MetricPingLatency, milliseconds(time.Since(start))),
	}

	raw, err := c.client.Info(ctx, "memory", "clients").Result()
	if err != nil {
		return Failure(c.id, c.Type(), fmt.Errorf("info: %w", err), metrics...)
	}

	info := ParseRedisInfo(raw)
	if v, ok := info["used_memory"]; ok {
		if bytes, err := strconv.ParseFloat(v, 64); err == nil {
			metrics = append(metrics, c.metrics.Measure(MetricUsedMemory, bytes/(1024*1024)))
		}
	}
	if v, ok := info["connected_clients"]; ok {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			metrics = append(metrics, c.metrics.Measure(MetricConnectedClients, n))
		}
	}

	return Healthy(c.id, c.Type(), metrics...)
}

// Close releases the client's connections.
func (c *RedisChecker) Close() error {
	return c.client.Close()
}

// ParseRedisInfo parses the key:value lines of an INFO reply, skipping section headers.
func ParseRedisInfo(raw string) map[string]string {
	out := map[string]string{}
	scanner := bufio.NewScanner(strings.NewReader(raw))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		k, v, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		out[k] = v
	}
	return out
}
