package daemon

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mozilla-ai/healthd/internal/metrics"
)

// Options contains optional configuration for the daemon.
// NewOptions should be used to create instances of Options.
type Options struct {
	// APIOptions contains functional options for the API server.
	APIOptions []APIOption

	// StartupTimeout bounds opening the history store and filling the connection pool.
	StartupTimeout time.Duration

	// DrainTimeout bounds stopping the monitor and flushing queued history on shutdown.
	DrainTimeout time.Duration

	// MetricsNamespace prefixes every exported metric name.
	MetricsNamespace string

	// HTTPClient is shared by HTTP probes, webhook channels and HTTP recovery handlers.
	// A nil client means each of them uses its own default.
	HTTPClient *http.Client

	// Console receives notifications for 'console' alert channels.
	Console io.Writer

	// PoolName labels the connection pool in metrics.
	PoolName string

	// DisableRecovery stops the monitor from running recovery handlers.
	DisableRecovery bool
}

// Option defines a functional option for configuring Options.
// Options are applied in order, with later options overriding earlier ones.
type Option func(*Options) error

// NewOptions creates Options with optional configurations applied.
// Starts with default values, then applies options in order with later options overriding earlier ones.
func NewOptions(opts ...Option) (Options, error) {
	options := defaultOptions()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&options); err != nil {
			return Options{}, err
		}
	}

	return options, nil
}

// WithAPIOptions configures API server options.
// Replaces all previous API configuration including CORS settings.
func WithAPIOptions(apiOpts ...APIOption) Option {
	return func(o *Options) error {
		o.APIOptions = apiOpts
		return nil
	}
}

// WithStartupTimeout configures how long the daemon may spend opening its stores.
func WithStartupTimeout(timeout time.Duration) Option {
	return func(o *Options) error {
		if timeout <= 0 {
			return fmt.Errorf("startup timeout must be positive, got %v", timeout)
		}
		o.StartupTimeout = timeout
		return nil
	}
}

// WithDrainTimeout configures how long shutdown waits for the monitor and history writer.
func WithDrainTimeout(timeout time.Duration) Option {
	return func(o *Options) error {
		if timeout <= 0 {
			return fmt.Errorf("drain timeout must be positive, got %v", timeout)
		}
		o.DrainTimeout = timeout
		return nil
	}
}

// WithMetricsNamespace configures the prefix of exported metric names.
func WithMetricsNamespace(namespace string) Option {
	return func(o *Options) error {
		namespace = strings.TrimSpace(namespace)
		if namespace == "" {
			return fmt.Errorf("metrics namespace cannot be empty")
		}
		o.MetricsNamespace = namespace
		return nil
	}
}

// WithHTTPClient configures the HTTP client shared by probes, webhooks and recovery handlers.
func WithHTTPClient(client *http.Client) Option {
	return func(o *Options) error {
		o.HTTPClient = client
		return nil
	}
}

// WithConsole configures where 'console' alert channels write.
func WithConsole(w io.Writer) Option {
	return func(o *Options) error {
		if w == nil {
			return fmt.Errorf("console writer cannot be nil")
		}
		o.Console = w
		return nil
	}
}

// WithPoolName configures the label of the connection pool in metrics.
func WithPoolName(name string) Option {
	return func(o *Options) error {
		name = strings.TrimSpace(name)
		if name == "" {
			return fmt.Errorf("pool name cannot be empty")
		}
		o.PoolName = name
		return nil
	}
}

// WithRecoveryDisabled stops the monitor from running recovery handlers, e.g. for one-shot checks.
func WithRecoveryDisabled() Option {
	return func(o *Options) error {
		o.DisableRecovery = true
		return nil
	}
}

// DefaultStartupTimeout is the default time allowed for opening stores at startup.
func DefaultStartupTimeout() time.Duration {
	return 30 * time.Second
}

// DefaultDrainTimeout is the default time allowed for draining work at shutdown.
func DefaultDrainTimeout() time.Duration {
	return 10 * time.Second
}

// DefaultPoolName is the default metrics label of the connection pool.
func DefaultPoolName() string {
	return "primary"
}

// defaultOptions returns Options with default values.
func defaultOptions() Options {
	return Options{
		StartupTimeout:   DefaultStartupTimeout(),
		DrainTimeout:     DefaultDrainTimeout(),
		MetricsNamespace: metrics.DefaultNamespace,
		Console:          os.Stdout,
		PoolName:         DefaultPoolName(),
	}
}
