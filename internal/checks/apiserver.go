package checks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mozilla-ai/healthd/internal/domain"
)

const (
	MetricEndpointLatency     = "endpoint_latency_ms"
	MetricEndpointsAvailable  = "endpoints_available_percent"
	MetricPortReachable       = "port_reachable"
	endpointMetricSeparator   = ":"
	defaultEndpointPath       = "/"
	maxDrainedResponseBodyLen = 64 << 10
)

// APIServerChecker probes a set of HTTP endpoints on one server and the server's TCP port.
type APIServerChecker struct {
	id        string
	baseURL   *url.URL
	endpoints []string
	client    *http.Client
	dialer    *net.Dialer
	metrics   MetricSet
}

// APIServerMetrics returns the default metric definitions for API server components.
// The endpoint latency definition is applied to every endpoint as endpoint_latency_ms:<path>.
func APIServerMetrics() MetricSet {
	return MetricSet{
		MetricEndpointLatency:    spec(MetricEndpointLatency, "ms", 500, 2000, domain.HigherIsWorse),
		MetricEndpointsAvailable: spec(MetricEndpointsAvailable, "%", 99.99, 50, domain.LowerIsWorse),
		MetricPortReachable:      spec(MetricPortReachable, "bool", 0.5, 0.5, domain.LowerIsWorse),
	}
}

// NewAPIServerChecker creates a checker for the server at baseURL, probing each endpoint path.
// When no endpoints are supplied the root path is probed.
func NewAPIServerChecker(
	id string,
	baseURL string,
	endpoints []string,
	client *http.Client,
	overrides map[string]ThresholdOverride,
) (*APIServerChecker, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("component id cannot be empty")
	}

	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("invalid base url '%s': %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url '%s' must use http or https", baseURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("base url '%s' is missing a host", baseURL)
	}

	paths := make([]string, 0, len(endpoints))
	for _, e := range endpoints {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, "/") {
			e = "/" + e
		}
		paths = append(paths, e)
	}
	if len(paths) == 0 {
		paths = append(paths, defaultEndpointPath)
	}

	if client == nil {
		client = &http.Client{}
	}

	metrics, err := APIServerMetrics().Override(overrides)
	if err != nil {
		return nil, err
	}

	return &APIServerChecker{
		id:        id,
		baseURL:   u,
		endpoints: paths,
		client:    client,
		dialer:    &net.Dialer{},
		metrics:   metrics,
	}, nil
}

// ID implements Checker.
func (c *APIServerChecker) ID() string {
	return c.id
}

// Type implements Checker.
func (c *APIServerChecker) Type() domain.ComponentType {
	return domain.ComponentTypeAPIServer
}

type endpointResult struct {
	path      string
	latency   time.Duration
	available bool
	err       error
}

// Check implements Checker.
func (c *APIServerChecker) Check(ctx context.Context) domain.ComponentHealth {
	results := make([]endpointResult, len(c.endpoints))

	var g errgroup.Group
	for i, path := range c.endpoints {
		g.Go(func() error {
			results[i] = c.probeEndpoint(ctx, path)
			return nil
		})
	}

	var portErr error
	g.Go(func() error {
		portErr = c.probePort(ctx)
		return nil
	})
	_ = g.Wait()

	metrics := make([]domain.Metric, 0, len(results)+2)
	available := 0
	var errs []error
	for _, r := range results {
		if r.available {
			available++
			metrics = append(metrics, c.metrics.MeasureAs(
				MetricEndpointLatency,
				MetricEndpointLatency+endpointMetricSeparator+r.path,
				milliseconds(r.latency),
			))
			continue
		}
		errs = append(errs, fmt.Errorf("%s: %w", r.path, r.err))
	}

	percent := 100 * float64(available) / float64(len(results))
	metrics = append(metrics, c.metrics.Measure(MetricEndpointsAvailable, percent))

	portReachable := 1.0
	if portErr != nil {
		portReachable = 0
		errs = append(errs, fmt.Errorf("port: %w", portErr))
	}
	metrics = append(metrics, c.metrics.Measure(MetricPortReachable, portReachable))

	if available == 0 && portErr != nil {
		return Failure(c.id, c.Type(), errors.Join(errs...), metrics...)
	}

	health := Healthy(c.id, c.Type(), metrics...)
	if len(errs) > 0 {
		health.LastError = errors.Join(errs...).Error()
	}
	return health
}

// probeEndpoint issues a GET against one path; any response below 500 counts as available.
func (c *APIServerChecker) probeEndpoint(ctx context.Context, path string) endpointResult {
	result := endpointResult{path: path}

	target := c.baseURL.JoinPath(path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		result.err = err
		return result
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		result.err = err
		return result
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainedResponseBodyLen))
	_ = resp.Body.Close()
	result.latency = time.Since(start)

	if resp.StatusCode >= http.StatusInternalServerError {
		result.err = fmt.Errorf("unexpected status %d", resp.StatusCode)
		return result
	}
	result.available = true

	return result
}

func (c *APIServerChecker) probePort(ctx context.Context) error {
	conn, err := c.dialer.DialContext(ctx, "tcp", hostPort(c.baseURL))
	if err != nil {
		return err
	}
	return conn.Close()
}

func hostPort(u *url.URL) string {
	if u.Port() != "" {
		return u.Host
	}
	if u.Scheme == "https" {
		return net.JoinHostPort(u.Hostname(), "443")
	}
	return net.JoinHostPort(u.Hostname(), "80")
}
