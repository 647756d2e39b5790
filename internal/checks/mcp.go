package checks

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/mozilla-ai/healthd/internal/domain"
)

const (
	MetricInitializeLatency = "initialize_latency_ms"
	MetricToolCount         = "tool_count"

	mcpClientName = "healthd"
)

// MCPServerChecker probes an MCP server over streamable HTTP: it initializes a session, pings, and lists tools.
type MCPServerChecker struct {
	id      string
	target  string
	version string
	metrics MetricSet
}

// MCPServerMetrics returns the default metric definitions for MCP server components.
// A server exposing no tools is flagged as critical.
func MCPServerMetrics() MetricSet {
	return MetricSet{
		MetricInitializeLatency: spec(MetricInitializeLatency, "ms", 1000, 5000, domain.HigherIsWorse),
		MetricPingLatency:       spec(MetricPingLatency, "ms", 500, 2000, domain.HigherIsWorse),
		MetricToolCount:         spec(MetricToolCount, "count", 0.5, 0.5, domain.LowerIsWorse),
	}
}

// NewMCPServerChecker creates a checker for the MCP endpoint at target.
func NewMCPServerChecker(id string, target string, version string, overrides map[string]ThresholdOverride) (*MCPServerChecker, error) {
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

	metrics, err := MCPServerMetrics().Override(overrides)
	if err != nil {
		return nil, err
	}

	return &MCPServerChecker{
		id:      id,
		target:  u.String(),
		version: version,
		metrics: metrics,
	}, nil
}

// ID implements Checker.
func (c *MCPServerChecker) ID() string {
	return c.id
}

// Type implements Checker.
func (c *MCPServerChecker) Type() domain.ComponentType {
	return domain.ComponentTypeMCPServer
}

// Check implements Checker. Each probe uses a fresh session so a wedged session cannot mask recovery.
func (c *MCPServerChecker) Check(ctx context.Context) domain.ComponentHealth {
	mcpClient, err := client.NewStreamableHttpClient(c.target)
	if err != nil {
		return Failure(c.id, c.Type(), fmt.Errorf("creating client: %w", err))
	}
	defer func() { _ = mcpClient.Close() }()

	if err := mcpClient.Start(ctx); err != nil {
		return Failure(c.id, c.Type(), fmt.Errorf("starting client: %w", err))
	}

	start := time.Now()
	_, err = mcpClient.Initialize(ctx, mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
			ClientInfo:      mcp.Implementation{Name: mcpClientName, Version: c.version},
		},
	})
	if err != nil {
		return Failure(c.id, c.Type(), fmt.Errorf("initializing session: %w", err))
	}
	metrics := []domain.Metric{
		c.metrics.Measure(MetricInitializeLatency, milliseconds(time.Since(start))),
	}

	start = time.Now()
	if err := mcpClient.Ping(ctx); err != nil {
		return Failure(c.id, c.Type(), fmt.Errorf("ping: %w", err), metrics...)
	}
	metrics = append(metrics, c.metrics.Measure(MetricPingLatency, milliseconds(time.Since(start))))

	tools, err := mcpClient.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		health := Healthy(c.id, c.Type(), metrics...)
		health.LastError = fmt.Sprintf("listing tools: %v", err)
		return health
	}
	metrics = append(metrics, c.metrics.Measure(MetricToolCount, float64(len(tools.Tools))))

	return Healthy(c.id, c.Type(), metrics...)
}
