package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/mozilla-ai/healthd/internal/alert"
	"github.com/mozilla-ai/healthd/internal/domain"
	"github.com/mozilla-ai/healthd/internal/files"
	"github.com/mozilla-ai/healthd/internal/history"
	"github.com/mozilla-ai/healthd/internal/monitor"
	"github.com/mozilla-ai/healthd/internal/pool"
	"github.com/mozilla-ai/healthd/internal/recovery"
)

// APISection contains API server configuration settings.
type APISection struct {
	// Address to bind the API server (e.g., "0.0.0.0:8090")
	// Maps to CLI flag --addr
	Addr *string `json:"addr,omitempty" toml:"addr,omitempty" yaml:"addr,omitempty"`

	// ShutdownTimeout bounds graceful shutdown of the API server.
	// Maps to CLI flag --timeout-api-shutdown
	ShutdownTimeout *Duration `json:"shutdownTimeout,omitempty" toml:"shutdown_timeout,omitempty" yaml:"shutdown_timeout,omitempty"`

	CORS *CORSSection `json:"cors,omitempty" toml:"cors,omitempty" yaml:"cors,omitempty"`
}

// CORSSection contains Cross-Origin Resource Sharing (CORS) configuration.
type CORSSection struct {
	// Maps to CLI flag --cors-enable
	Enable *bool `json:"enable,omitempty" toml:"enable,omitempty" yaml:"enable,omitempty"`

	// Maps to CLI flag --cors-origins
	Origins []string `json:"allowOrigins,omitempty" toml:"allow_origins,omitempty" yaml:"allow_origins,omitempty"`

	Methods       []string  `json:"allowMethods,omitempty"     toml:"allow_methods,omitempty"     yaml:"allow_methods,omitempty"`
	Headers       []string  `json:"allowHeaders,omitempty"     toml:"allow_headers,omitempty"     yaml:"allow_headers,omitempty"`
	ExposeHeaders []string  `json:"exposeHeaders,omitempty"    toml:"expose_headers,omitempty"    yaml:"expose_headers,omitempty"`
	Credentials   *bool     `json:"allowCredentials,omitempty" toml:"allow_credentials,omitempty" yaml:"allow_credentials,omitempty"`
	MaxAge        *Duration `json:"maxAge,omitempty"           toml:"max_age,omitempty"           yaml:"max_age,omitempty"`
}

// Validate checks the API section.
func (a *APISection) Validate() error {
	if a == nil {
		return nil
	}

	var errs []error
	if a.Addr != nil {
		if _, _, err := net.SplitHostPort(*a.Addr); err != nil {
			errs = append(errs, NewErrInvalidValue("api.addr", *a.Addr))
		}
	}
	if a.ShutdownTimeout != nil && *a.ShutdownTimeout <= 0 {
		errs = append(errs, NewErrInvalidValue("api.shutdown_timeout", a.ShutdownTimeout.String()))
	}
	if a.CORS != nil {
		if a.CORS.Enable != nil && *a.CORS.Enable && len(a.CORS.Origins) == 0 {
			errs = append(errs, fmt.Errorf("%w: api.cors.allow_origins is required when CORS is enabled", ErrInvalidValue))
		}
		if a.CORS.MaxAge != nil && *a.CORS.MaxAge < 0 {
			errs = append(errs, NewErrInvalidValue("api.cors.max_age", a.CORS.MaxAge.String()))
		}
	}

	return errors.Join(errs...)
}

// MonitorSection configures the health check loop.
type MonitorSection struct {
	Interval       *Duration `json:"interval,omitempty"       toml:"interval,omitempty"        yaml:"interval,omitempty"`
	ProbeTimeout   *Duration `json:"probeTimeout,omitempty"   toml:"probe_timeout,omitempty"   yaml:"probe_timeout,omitempty"`
	UptimeWindow   *Duration `json:"uptimeWindow,omitempty"   toml:"uptime_window,omitempty"   yaml:"uptime_window,omitempty"`
	AlertRetention *Duration `json:"alertRetention,omitempty" toml:"alert_retention,omitempty" yaml:"alert_retention,omitempty"`

	// Debounce is the number of consecutive probes a status must hold before alerts see it.
	Debounce *int `json:"debounce,omitempty" toml:"debounce,omitempty" yaml:"debounce,omitempty"`

	CriticalRatio *float64 `json:"criticalRatio,omitempty" toml:"critical_ratio,omitempty" yaml:"critical_ratio,omitempty"`
	WarningRatio  *float64 `json:"warningRatio,omitempty"  toml:"warning_ratio,omitempty"  yaml:"warning_ratio,omitempty"`
}

// Options converts the section into monitor options. Unset values keep the monitor defaults.
func (m *MonitorSection) Options() []monitor.Option {
	if m == nil {
		return nil
	}

	var opts []monitor.Option
	if m.Interval != nil {
		opts = append(opts, monitor.WithInterval(m.Interval.Std()))
	}
	if m.ProbeTimeout != nil {
		opts = append(opts, monitor.WithProbeTimeout(m.ProbeTimeout.Std()))
	}
	if m.UptimeWindow != nil {
		opts = append(opts, monitor.WithUptimeWindow(m.UptimeWindow.Std()))
	}
	if m.AlertRetention != nil {
		opts = append(opts, monitor.WithAlertRetention(m.AlertRetention.Std()))
	}
	if m.Debounce != nil {
		opts = append(opts, monitor.WithDebounce(*m.Debounce))
	}
	if m.CriticalRatio != nil || m.WarningRatio != nil {
		policy := domain.DefaultAggregationPolicy()
		if m.CriticalRatio != nil {
			policy.CriticalRatio = *m.CriticalRatio
		}
		if m.WarningRatio != nil {
			policy.WarningRatio = *m.WarningRatio
		}
		opts = append(opts, monitor.WithAggregation(policy.CriticalRatio, policy.WarningRatio))
	}
	return opts
}

// Validate checks that the section produces valid monitor options.
func (m *MonitorSection) Validate() error {
	if _, err := monitor.NewOptions(m.Options()...); err != nil {
		return fmt.Errorf("%w: monitor: %w", ErrInvalidValue, err)
	}
	return nil
}

// PoolSection configures the database connection pool used by database components.
type PoolSection struct {
	// Driver is "sqlite" or "postgres".
	Driver string `json:"driver" toml:"driver" yaml:"driver"`
	DSN    string `json:"dsn"    toml:"dsn"    yaml:"dsn"`

	MinSize        *int      `json:"minSize,omitempty"        toml:"min_size,omitempty"        yaml:"min_size,omitempty"`
	MaxSize        *int      `json:"maxSize,omitempty"        toml:"max_size,omitempty"        yaml:"max_size,omitempty"`
	HealthFloor    *float64  `json:"healthFloor,omitempty"    toml:"health_floor,omitempty"    yaml:"health_floor,omitempty"`
	DecayFactor    *float64  `json:"decayFactor,omitempty"    toml:"decay_factor,omitempty"    yaml:"decay_factor,omitempty"`
	LatencyBudget  *Duration `json:"latencyBudget,omitempty"  toml:"latency_budget,omitempty"  yaml:"latency_budget,omitempty"`
	MaxLease       *Duration `json:"maxLease,omitempty"       toml:"max_lease,omitempty"       yaml:"max_lease,omitempty"`
	LeakGrace      *Duration `json:"leakGrace,omitempty"      toml:"leak_grace,omitempty"      yaml:"leak_grace,omitempty"`
	IdleTimeout    *Duration `json:"idleTimeout,omitempty"    toml:"idle_timeout,omitempty"    yaml:"idle_timeout,omitempty"`
	SweepInterval  *Duration `json:"sweepInterval,omitempty"  toml:"sweep_interval,omitempty"  yaml:"sweep_interval,omitempty"`
	AcquireTimeout *Duration `json:"acquireTimeout,omitempty" toml:"acquire_timeout,omitempty" yaml:"acquire_timeout,omitempty"`
}

// DefaultAcquireTimeout is used when pool.acquire_timeout is unset.
func DefaultAcquireTimeout() time.Duration {
	return 5 * time.Second
}

// Options converts the section into pool options.
func (p *PoolSection) Options() []pool.Option {
	if p == nil {
		return nil
	}

	var opts []pool.Option
	if p.MinSize != nil || p.MaxSize != nil {
		minSize, maxSize := pool.DefaultMinSize(), pool.DefaultMaxSize()
		if p.MinSize != nil {
			minSize = *p.MinSize
		}
		if p.MaxSize != nil {
			maxSize = *p.MaxSize
		}
		opts = append(opts, pool.WithSize(minSize, maxSize))
	}
	if p.HealthFloor != nil {
		opts = append(opts, pool.WithHealthFloor(*p.HealthFloor))
	}
	if p.DecayFactor != nil {
		opts = append(opts, pool.WithDecayFactor(*p.DecayFactor))
	}
	if p.LatencyBudget != nil {
		opts = append(opts, pool.WithLatencyBudget(p.LatencyBudget.Std()))
	}
	if p.MaxLease != nil || p.LeakGrace != nil {
		opts = append(opts, pool.WithLeakDetection(
			durationOr(p.MaxLease, pool.DefaultMaxLease()),
			durationOr(p.LeakGrace, pool.DefaultLeakGrace()),
		))
	}
	if p.IdleTimeout != nil {
		opts = append(opts, pool.WithIdleTimeout(p.IdleTimeout.Std()))
	}
	if p.SweepInterval != nil {
		opts = append(opts, pool.WithSweepInterval(p.SweepInterval.Std()))
	}
	return opts
}

// Acquire returns how long a database probe waits for a pooled connection.
func (p *PoolSection) Acquire() time.Duration {
	if p == nil {
		return DefaultAcquireTimeout()
	}
	return durationOr(p.AcquireTimeout, DefaultAcquireTimeout())
}

// Validate checks the pool section.
func (p *PoolSection) Validate() error {
	if p == nil {
		return nil
	}

	var errs []error
	if _, err := pool.DriverName(p.Driver); err != nil {
		errs = append(errs, NewErrInvalidValue("pool.driver", p.Driver))
	}
	if strings.TrimSpace(p.DSN) == "" {
		errs = append(errs, fmt.Errorf("%w: pool.dsn is required", ErrInvalidValue))
	}
	if _, err := pool.NewOptions(p.Options()...); err != nil {
		errs = append(errs, fmt.Errorf("%w: pool: %w", ErrInvalidValue, err))
	}
	if p.AcquireTimeout != nil && *p.AcquireTimeout <= 0 {
		errs = append(errs, NewErrInvalidValue("pool.acquire_timeout", p.AcquireTimeout.String()))
	}

	return errors.Join(errs...)
}

// Recovery handler kinds.
const (
	HandlerPoolReset = "pool_reset"
	HandlerCommand   = "command"
	HandlerHTTP      = "http"
)

// RecoverySection configures recovery attempts and the handlers run for each component type.
type RecoverySection struct {
	Timeout        *Duration `json:"timeout,omitempty"        toml:"timeout,omitempty"         yaml:"timeout,omitempty"`
	MaxAttempts    *int      `json:"maxAttempts,omitempty"    toml:"max_attempts,omitempty"    yaml:"max_attempts,omitempty"`
	InitialBackoff *Duration `json:"initialBackoff,omitempty" toml:"initial_backoff,omitempty" yaml:"initial_backoff,omitempty"`
	MaxBackoff     *Duration `json:"maxBackoff,omitempty"     toml:"max_backoff,omitempty"     yaml:"max_backoff,omitempty"`
	Multiplier     *float64  `json:"multiplier,omitempty"     toml:"multiplier,omitempty"      yaml:"multiplier,omitempty"`
	Jitter         *float64  `json:"jitter,omitempty"         toml:"jitter,omitempty"          yaml:"jitter,omitempty"`
	Cooldown       *Duration `json:"cooldown,omitempty"       toml:"cooldown,omitempty"        yaml:"cooldown,omitempty"`

	Handlers []HandlerEntry `json:"handlers,omitempty" toml:"handlers,omitempty" yaml:"handlers,omitempty"`
}

// HandlerEntry binds a recovery handler to a component type.
type HandlerEntry struct {
	// ComponentType is the type of component the handler recovers, e.g. 'database'.
	ComponentType string `json:"componentType" toml:"component_type" yaml:"component_type"`

	// Kind is one of 'pool_reset', 'command' or 'http'.
	Kind string `json:"kind" toml:"kind" yaml:"kind"`

	// Command, Args, Env and Dir apply to 'command' handlers.
	Command string            `json:"command,omitempty" toml:"command,omitempty" yaml:"command,omitempty"`
	Args    []string          `json:"args,omitempty"    toml:"args,omitempty"    yaml:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"     toml:"env,omitempty"     yaml:"env,omitempty"`
	Dir     string            `json:"dir,omitempty"     toml:"dir,omitempty"     yaml:"dir,omitempty"`

	// URL, Method and Headers apply to 'http' handlers.
	URL     string            `json:"url,omitempty"     toml:"url,omitempty"     yaml:"url,omitempty"`
	Method  string            `json:"method,omitempty"  toml:"method,omitempty"  yaml:"method,omitempty"`
	Headers map[string]string `json:"headers,omitempty" toml:"headers,omitempty" yaml:"headers,omitempty"`
}

// Options converts the section into recovery options.
func (r *RecoverySection) Options() []recovery.Option {
	if r == nil {
		return nil
	}

	var opts []recovery.Option
	if r.Timeout != nil {
		opts = append(opts, recovery.WithTimeout(r.Timeout.Std()))
	}
	if r.MaxAttempts != nil {
		opts = append(opts, recovery.WithMaxAttempts(*r.MaxAttempts))
	}
	if r.InitialBackoff != nil || r.MaxBackoff != nil || r.Multiplier != nil {
		multiplier := recovery.DefaultMultiplier()
		if r.Multiplier != nil {
			multiplier = *r.Multiplier
		}
		opts = append(opts, recovery.WithBackoff(
			durationOr(r.InitialBackoff, recovery.DefaultInitialBackoff()),
			durationOr(r.MaxBackoff, recovery.DefaultMaxBackoff()),
			multiplier,
		))
	}
	if r.Jitter != nil {
		opts = append(opts, recovery.WithJitter(*r.Jitter))
	}
	if r.Cooldown != nil {
		opts = append(opts, recovery.WithCooldown(r.Cooldown.Std()))
	}
	return opts
}

// Validate checks the recovery section and its handlers.
func (r *RecoverySection) Validate() error {
	if r == nil {
		return nil
	}

	var errs []error
	if _, err := recovery.NewOptions(r.Options()...); err != nil {
		errs = append(errs, fmt.Errorf("%w: recovery: %w", ErrInvalidValue, err))
	}

	for i, h := range r.Handlers {
		key := fmt.Sprintf("recovery.handlers[%d]", i)
		if !slices.Contains(componentTypes, domain.ComponentType(h.ComponentType)) {
			errs = append(errs, NewErrInvalidValue(key+".component_type", h.ComponentType))
		}
		switch h.Kind {
		case HandlerPoolReset:
		case HandlerCommand:
			if strings.TrimSpace(h.Command) == "" {
				errs = append(errs, fmt.Errorf("%w: %s.command is required", ErrInvalidValue, key))
			}
		case HandlerHTTP:
			if err := validateURL(h.URL); err != nil {
				errs = append(errs, NewErrInvalidValue(key+".url", h.URL))
			}
		default:
			errs = append(errs, NewErrInvalidValue(key+".kind", h.Kind))
		}
	}

	return errors.Join(errs...)
}

// Alert channel kinds.
const (
	ChannelConsole = "console"
	ChannelLog     = "log"
	ChannelWebhook = "webhook"
	ChannelChat    = "chat"
	ChannelEmail   = "email"
)

// AlertsSection configures alert deduplication, escalation and delivery channels.
type AlertsSection struct {
	Cooldown        *Duration `json:"cooldown,omitempty"        toml:"cooldown,omitempty"         yaml:"cooldown,omitempty"`
	EscalateAfter   *int      `json:"escalateAfter,omitempty"   toml:"escalate_after,omitempty"   yaml:"escalate_after,omitempty"`
	DeliveryTimeout *Duration `json:"deliveryTimeout,omitempty" toml:"delivery_timeout,omitempty" yaml:"delivery_timeout,omitempty"`

	Channels []ChannelEntry `json:"channels,omitempty" toml:"channels,omitempty" yaml:"channels,omitempty"`
}

// ChannelEntry describes one alert delivery channel.
type ChannelEntry struct {
	Name string `json:"name" toml:"name" yaml:"name"`

	// Kind is one of 'console', 'log', 'webhook', 'chat' or 'email'.
	Kind string `json:"kind" toml:"kind" yaml:"kind"`

	// Escalation marks a channel that only receives escalated alerts.
	Escalation bool `json:"escalation,omitempty" toml:"escalation,omitempty" yaml:"escalation,omitempty"`

	// URL and Headers apply to 'webhook' and 'chat' channels.
	URL     string            `json:"url,omitempty"     toml:"url,omitempty"     yaml:"url,omitempty"`
	Headers map[string]string `json:"headers,omitempty" toml:"headers,omitempty" yaml:"headers,omitempty"`

	// SMTP settings apply to 'email' channels.
	SMTPAddr string   `json:"smtpAddr,omitempty" toml:"smtp_addr,omitempty" yaml:"smtp_addr,omitempty"`
	From     string   `json:"from,omitempty"     toml:"from,omitempty"      yaml:"from,omitempty"`
	To       []string `json:"to,omitempty"       toml:"to,omitempty"        yaml:"to,omitempty"`
	Username string   `json:"username,omitempty" toml:"username,omitempty"  yaml:"username,omitempty"`
	Password string   `json:"password,omitempty" toml:"password,omitempty"  yaml:"password,omitempty"`
}

// Options converts the section into alert manager options.
func (a *AlertsSection) Options() []alert.Option {
	if a == nil {
		return nil
	}

	var opts []alert.Option
	if a.Cooldown != nil {
		opts = append(opts, alert.WithCooldown(a.Cooldown.Std()))
	}
	if a.EscalateAfter != nil {
		opts = append(opts, alert.WithEscalateAfter(*a.EscalateAfter))
	}
	if a.DeliveryTimeout != nil {
		opts = append(opts, alert.WithDeliveryTimeout(a.DeliveryTimeout.Std()))
	}
	return opts
}

// Validate checks the alerts section and its channels.
func (a *AlertsSection) Validate() error {
	if a == nil {
		return nil
	}

	var errs []error
	if _, err := alert.NewOptions(a.Options()...); err != nil {
		errs = append(errs, fmt.Errorf("%w: alerts: %w", ErrInvalidValue, err))
	}

	seen := map[string]struct{}{}
	for i, c := range a.Channels {
		key := fmt.Sprintf("alerts.channels[%d]", i)
		name := strings.TrimSpace(c.Name)
		if name == "" {
			errs = append(errs, fmt.Errorf("%w: %s.name is required", ErrInvalidValue, key))
		} else if _, ok := seen[name]; ok {
			errs = append(errs, fmt.Errorf("%w: duplicate alert channel name '%s'", ErrInvalidValue, name))
		}
		seen[name] = struct{}{}

		switch c.Kind {
		case ChannelConsole, ChannelLog:
		case ChannelWebhook, ChannelChat:
			if err := validateURL(c.URL); err != nil {
				errs = append(errs, NewErrInvalidValue(key+".url", c.URL))
			}
		case ChannelEmail:
			if _, _, err := net.SplitHostPort(c.SMTPAddr); err != nil {
				errs = append(errs, NewErrInvalidValue(key+".smtp_addr", c.SMTPAddr))
			}
			if strings.TrimSpace(c.From) == "" || len(c.To) == 0 {
				errs = append(errs, fmt.Errorf("%w: %s requires from and to", ErrInvalidValue, key))
			}
		default:
			errs = append(errs, NewErrInvalidValue(key+".kind", c.Kind))
		}
	}

	return errors.Join(errs...)
}

// HistorySection configures where probe results and events are persisted.
type HistorySection struct {
	// Driver is "memory", "sqlite" or "postgres".
	Driver string `json:"driver,omitempty" toml:"driver,omitempty" yaml:"driver,omitempty"`
	DSN    string `json:"dsn,omitempty"    toml:"dsn,omitempty"    yaml:"dsn,omitempty"`

	QueueSize     *int      `json:"queueSize,omitempty"     toml:"queue_size,omitempty"     yaml:"queue_size,omitempty"`
	BatchSize     *int      `json:"batchSize,omitempty"     toml:"batch_size,omitempty"     yaml:"batch_size,omitempty"`
	FlushInterval *Duration `json:"flushInterval,omitempty" toml:"flush_interval,omitempty" yaml:"flush_interval,omitempty"`
	WriteTimeout  *Duration `json:"writeTimeout,omitempty"  toml:"write_timeout,omitempty"  yaml:"write_timeout,omitempty"`

	// Retention, when set, prunes rows older than this every PruneInterval.
	Retention     *Duration `json:"retention,omitempty"     toml:"retention,omitempty"      yaml:"retention,omitempty"`
	PruneInterval *Duration `json:"pruneInterval,omitempty" toml:"prune_interval,omitempty" yaml:"prune_interval,omitempty"`
}

// DefaultPruneInterval is used when history.retention is set without history.prune_interval.
func DefaultPruneInterval() time.Duration {
	return time.Hour
}

// Store returns the configured store driver and dsn, defaulting to an in-memory store.
// A sqlite store without a dsn lives in the user's data directory.
func (h *HistorySection) Store() (driver string, dsn string) {
	if h == nil || strings.TrimSpace(h.Driver) == "" {
		return history.DriverMemory, ""
	}
	driver, dsn = strings.TrimSpace(h.Driver), strings.TrimSpace(h.DSN)
	if name, err := pool.DriverName(driver); err == nil && name == pool.DriverSQLite && dsn == "" {
		dsn = files.DefaultHistoryDatabase()
	}
	return driver, dsn
}

// WriterOptions converts the section into history writer options.
func (h *HistorySection) WriterOptions() []history.WriterOption {
	if h == nil {
		return nil
	}

	var opts []history.WriterOption
	if h.QueueSize != nil {
		opts = append(opts, history.WithQueueSize(*h.QueueSize))
	}
	if h.BatchSize != nil {
		opts = append(opts, history.WithBatchSize(*h.BatchSize))
	}
	if h.FlushInterval != nil {
		opts = append(opts, history.WithFlushInterval(h.FlushInterval.Std()))
	}
	if h.WriteTimeout != nil {
		opts = append(opts, history.WithWriteTimeout(h.WriteTimeout.Std()))
	}
	return opts
}

// Pruning returns the retention and prune interval; a zero retention disables pruning.
func (h *HistorySection) Pruning() (retention time.Duration, interval time.Duration) {
	if h == nil || h.Retention == nil {
		return 0, 0
	}
	return h.Retention.Std(), durationOr(h.PruneInterval, DefaultPruneInterval())
}

// Validate checks the history section.
func (h *HistorySection) Validate() error {
	if h == nil {
		return nil
	}

	var errs []error
	driver, dsn := h.Store()
	if driver != history.DriverMemory {
		if _, err := pool.DriverName(driver); err != nil {
			errs = append(errs, NewErrInvalidValue("history.driver", driver))
		}
		if strings.TrimSpace(dsn) == "" {
			errs = append(errs, fmt.Errorf("%w: history.dsn is required for driver '%s'", ErrInvalidValue, driver))
		}
	}
	if _, err := history.NewWriterOptions(h.WriterOptions()...); err != nil {
		errs = append(errs, fmt.Errorf("%w: history: %w", ErrInvalidValue, err))
	}
	if h.Retention != nil && *h.Retention <= 0 {
		errs = append(errs, NewErrInvalidValue("history.retention", h.Retention.String()))
	}
	if h.PruneInterval != nil && *h.PruneInterval <= 0 {
		errs = append(errs, NewErrInvalidValue("history.prune_interval", h.PruneInterval.String()))
	}

	return errors.Join(errs...)
}

func validateURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return err
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("url must be absolute")
	}
	return nil
}
