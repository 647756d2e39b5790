package checks

import (
	"context"
	"fmt"
	"io"
	"maps"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mozilla-ai/healthd/internal/domain"
)

const (
	MetricReachable          = "reachable"
	MetricResponseLatency    = "response_latency_ms"
	MetricRateLimitRemaining = "rate_limit_remaining_fraction"
)

// rateLimitHeaders lists (remaining, limit) header pairs, in order of preference.
var rateLimitHeaders = [][2]string{
	{"X-RateLimit-Remaining", "X-RateLimit-Limit"},
	{"RateLimit-Remaining", "RateLimit-Limit"},
	{"X-Rate-Limit-Remaining", "X-Rate-Limit-Limit"},
}

// ExternalAPIChecker probes a third-party HTTP service.
type ExternalAPIChecker struct {
	id      string
	target  string
	method  string
	headers map[string]string
	client  *http.Client
	metrics MetricSet
}

// ExternalAPIMetrics returns the default metric definitions for external API components.
func ExternalAPIMetrics() MetricSet {
	return MetricSet{
		MetricReachable:          spec(MetricReachable, "bool", 0.5, 0.5, domain.LowerIsWorse),
		MetricResponseLatency:    spec(MetricResponseLatency, "ms", 1000, 5000, domain.HigherIsWorse),
		MetricRateLimitRemaining: spec(MetricRateLimitRemaining, "ratio", 0.2, 0.05, domain.LowerIsWorse),
	}
}

// NewExternalAPIChecker creates a checker for target. method defaults to GET; headers are sent with every probe.
func NewExternalAPIChecker(
	id string,
	target string,
	method string,
	headers map[string]string,
	client *http.Client,
	overrides map[string]ThresholdOverride,
) (*ExternalAPIChecker, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("component id cannot be empty")
	}

	u, err := url.Parse(strings.TrimSpace(target))
	if err != nil {
		return nil, fmt.Errorf("invalid url '%s': %w", target, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("url '%s' must be an absolute http(s) url", target)
	}

	method = strings.ToUpper(strings.TrimSpace(method))
	switch method {
	case "":
		method = http.MethodGet
	case http.MethodGet, http.MethodHead:
	default:
		return nil, fmt.Errorf("unsupported probe method: %s", method)
	}

	if client == nil {
		client = &http.Client{}
	}

	metrics, err := ExternalAPIMetrics().Override(overrides)
	if err != nil {
		return nil, err
	}

	return &ExternalAPIChecker{
		id:      id,
		target:  u.String(),
		method:  method,
		headers: maps.Clone(headers),
		client:  client,
		metrics: metrics,
	}, nil
}

// ID implements Checker.
func (c *ExternalAPIChecker) ID() string {
	return c.id
}

// Type implements Checker.
func (c *ExternalAPIChecker) Type() domain.ComponentType {
	return domain.ComponentTypeExternalAPI
}

// Check implements Checker.
// A transport failure makes the component down; a 5xx response is reachable=0 but not down.
func (c *ExternalAPIChecker) Check(ctx context.Context) domain.ComponentHealth {
	req, err := http.NewRequestWithContext(ctx, c.method, c.target, nil)
	if err != nil {
		return Failure(c.id, c.Type(), err)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return Failure(c.id, c.Type(), fmt.Errorf("request failed: %w", err), c.metrics.Measure(MetricReachable, 0))
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainedResponseBodyLen))
	_ = resp.Body.Close()
	latency := time.Since(start)

	reachable := 1.0
	var lastErr string
	if resp.StatusCode >= http.StatusInternalServerError {
		reachable = 0
		lastErr = fmt.Sprintf("unexpected status %d", resp.StatusCode)
	}

	metrics := []domain.Metric{
		c.metrics.Measure(MetricReachable, reachable),
		c.metrics.Measure(MetricResponseLatency, milliseconds(latency)),
	}
	if fraction, ok := RateLimitFraction(resp.Header); ok {
		metrics = append(metrics, c.metrics.Measure(MetricRateLimitRemaining, fraction))
	}

	health := Healthy(c.id, c.Type(), metrics...)
	health.LastError = lastErr
	return health
}

// RateLimitFraction reads the remaining/limit rate-limit headers, returning false when they are absent or unusable.
func RateLimitFraction(h http.Header) (float64, bool) {
	for _, pair := range rateLimitHeaders {
		remaining, errR := strconv.ParseFloat(strings.TrimSpace(h.Get(pair[0])), 64)
		limit, errL := strconv.ParseFloat(strings.TrimSpace(h.Get(pair[1])), 64)
		if errR != nil || errL != nil || limit <= 0 {
			continue
		}
		return max(0, min(1, remaining/limit)), true
	}
	return 0, false
}
