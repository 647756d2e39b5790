package recovery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"slices"
	"strings"

	"github.com/mozilla-ai/healthd/internal/domain"
)

const maxCapturedOutputLen = 4 << 10

// Resetter is implemented by resources that can be reset in place, such as the connection pool.
type Resetter interface {
	Reset(ctx context.Context) error
}

// PoolResetHandler recycles every idle pooled connection.
type PoolResetHandler struct {
	pool Resetter
}

// NewPoolResetHandler creates a handler that resets pool.
func NewPoolResetHandler(pool Resetter) (*PoolResetHandler, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool cannot be nil")
	}
	return &PoolResetHandler{pool: pool}, nil
}

// Recover implements Handler.
func (h *PoolResetHandler) Recover(ctx context.Context, _ domain.ComponentHealth) error {
	if err := h.pool.Reset(ctx); err != nil {
		return fmt.Errorf("resetting connection pool: %w", err)
	}
	return nil
}

// CommandHandler runs an external command, such as a service restart script.
// The component is described to the command through HEALTHD_COMPONENT_* environment variables.
type CommandHandler struct {
	command string
	args    []string
	env     map[string]string
	dir     string
}

// NewCommandHandler creates a handler that runs command with args.
func NewCommandHandler(command string, args []string, env map[string]string, dir string) (*CommandHandler, error) {
	if strings.TrimSpace(command) == "" {
		return nil, fmt.Errorf("recovery command cannot be empty")
	}
	return &CommandHandler{
		command: command,
		args:    slices.Clone(args),
		env:     maps.Clone(env),
		dir:     dir,
	}, nil
}

// Recover implements Handler.
func (h *CommandHandler) Recover(ctx context.Context, health domain.ComponentHealth) error {
	cmd := exec.CommandContext(ctx, h.command, h.args...)
	cmd.Dir = h.dir
	cmd.Env = append(os.Environ(), h.environ(health)...)

	out, err := cmd.CombinedOutput()
	if err != nil {
		if len(out) > maxCapturedOutputLen {
			out = out[len(out)-maxCapturedOutputLen:]
		}
		return fmt.Errorf("running %s: %w: %s", h.command, err, strings.TrimSpace(string(out)))
	}

	return nil
}

func (h *CommandHandler) environ(health domain.ComponentHealth) []string {
	env := []string{
		"HEALTHD_COMPONENT_ID=" + health.ID,
		"HEALTHD_COMPONENT_TYPE=" + string(health.Type),
		"HEALTHD_COMPONENT_STATUS=" + health.Status.String(),
		"HEALTHD_COMPONENT_LAST_ERROR=" + health.LastError,
	}
	for _, k := range slices.Sorted(maps.Keys(h.env)) {
		env = append(env, k+"="+h.env[k])
	}
	return env
}

// HTTPHandler asks a remediation endpoint (for example a cache-clear hook) to act on the component.
type HTTPHandler struct {
	target  string
	method  string
	headers map[string]string
	client  *http.Client
}

// remediationRequest is the JSON body sent by HTTPHandler.
type remediationRequest struct {
	ComponentID   string               `json:"component_id"`
	ComponentType domain.ComponentType `json:"component_type"`
	Status        domain.Status        `json:"status"`
	LastError     string               `json:"last_error,omitempty"`
}

// NewHTTPHandler creates a handler that sends the component state to target. method defaults to POST.
func NewHTTPHandler(target string, method string, headers map[string]string, client *http.Client) (*HTTPHandler, error) {
	u, err := url.Parse(strings.TrimSpace(target))
	if err != nil {
		return nil, fmt.Errorf("invalid remediation url '%s': %w", target, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("remediation url '%s' must be an absolute http(s) url", target)
	}

	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		method = http.MethodPost
	}

	if client == nil {
		client = &http.Client{}
	}

	return &HTTPHandler{
		target:  u.String(),
		method:  method,
		headers: maps.Clone(headers),
		client:  client,
	}, nil
}

// Recover implements Handler. Any 2xx response counts as success.
func (h *HTTPHandler) Recover(ctx context.Context, health domain.ComponentHealth) error {
	body, err := json.Marshal(remediationRequest{
		ComponentID:   health.ID,
		ComponentType: health.Type,
		Status:        health.Status,
		LastError:     health.LastError,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, h.method, h.target, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range h.headers {
		req.Header.Set(k, v)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("calling remediation endpoint: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxCapturedOutputLen))
		return fmt.Errorf("remediation endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	return nil
}
