package pool

import (
	"fmt"
	"time"
)

// Options contains optional configuration for the Manager.
// NewOptions should be used to create instances of Options.
type Options struct {
	// MinSize is the number of connections the pool tries to keep open.
	MinSize int

	// MaxSize is the hard upper bound on open connections (idle and leased).
	MaxSize int

	// HealthFloor is the health score below which a connection is evicted and never handed out.
	HealthFloor float64

	// DecayFactor is the weight given to the newest observation when updating a health score.
	DecayFactor float64

	// LatencyBudget is the round-trip latency at or under which an observation counts as fully healthy.
	LatencyBudget time.Duration

	// MaxLease is how long a connection may be leased before it is flagged as leaked.
	MaxLease time.Duration

	// LeakGrace is how long a leaked connection is left alone before it is force-reclaimed.
	LeakGrace time.Duration

	// IdleTimeout is how long an idle connection above MinSize is kept before being closed.
	IdleTimeout time.Duration

	// SweepInterval controls how often leak detection and idle maintenance run.
	SweepInterval time.Duration
}

// Option defines a functional option for configuring Options.
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

	if err := options.validate(); err != nil {
		return Options{}, err
	}

	return options, nil
}

// WithSize sets the minimum and maximum pool size.
func WithSize(minSize int, maxSize int) Option {
	return func(o *Options) error {
		if err := validateBounds(minSize, maxSize); err != nil {
			return err
		}
		o.MinSize = minSize
		o.MaxSize = maxSize
		return nil
	}
}

// WithHealthFloor sets the health score under which connections are evicted.
func WithHealthFloor(floor float64) Option {
	return func(o *Options) error {
		if floor < 0 || floor >= 1 {
			return fmt.Errorf("health floor must be in [0,1), got %v", floor)
		}
		o.HealthFloor = floor
		return nil
	}
}

// WithDecayFactor sets the moving average weight of the newest observation.
func WithDecayFactor(alpha float64) Option {
	return func(o *Options) error {
		if alpha <= 0 || alpha > 1 {
			return fmt.Errorf("decay factor must be in (0,1], got %v", alpha)
		}
		o.DecayFactor = alpha
		return nil
	}
}

// WithLatencyBudget sets the latency at or under which a round trip counts as fully healthy.
func WithLatencyBudget(d time.Duration) Option {
	return func(o *Options) error {
		if d <= 0 {
			return fmt.Errorf("latency budget must be positive, got %v", d)
		}
		o.LatencyBudget = d
		return nil
	}
}

// WithLeakDetection configures the max lease duration and the grace period before reclaiming a leak.
func WithLeakDetection(maxLease time.Duration, grace time.Duration) Option {
	return func(o *Options) error {
		if maxLease <= 0 {
			return fmt.Errorf("max lease must be positive, got %v", maxLease)
		}
		if grace < 0 {
			return fmt.Errorf("leak grace period must not be negative, got %v", grace)
		}
		o.MaxLease = maxLease
		o.LeakGrace = grace
		return nil
	}
}

// WithIdleTimeout configures how long idle connections above MinSize are kept.
func WithIdleTimeout(d time.Duration) Option {
	return func(o *Options) error {
		if d <= 0 {
			return fmt.Errorf("idle timeout must be positive, got %v", d)
		}
		o.IdleTimeout = d
		return nil
	}
}

// WithSweepInterval configures how often the maintenance sweep runs.
func WithSweepInterval(d time.Duration) Option {
	return func(o *Options) error {
		if d <= 0 {
			return fmt.Errorf("sweep interval must be positive, got %v", d)
		}
		o.SweepInterval = d
		return nil
	}
}

// DefaultMinSize is the default minimum number of pooled connections.
func DefaultMinSize() int {
	return 2
}

// DefaultMaxSize is the default maximum number of pooled connections.
func DefaultMaxSize() int {
	return 10
}

// DefaultHealthFloor is the default eviction threshold for connection health scores.
func DefaultHealthFloor() float64 {
	return 0.3
}

// DefaultMaxLease is the default time a lease may be held before it is considered leaked.
func DefaultMaxLease() time.Duration {
	return 5 * time.Minute
}

// DefaultLeakGrace is the default time between flagging and reclaiming a leaked connection.
func DefaultLeakGrace() time.Duration {
	return time.Minute
}

func defaultOptions() Options {
	return Options{
		MinSize:       DefaultMinSize(),
		MaxSize:       DefaultMaxSize(),
		HealthFloor:   DefaultHealthFloor(),
		DecayFactor:   0.2,
		LatencyBudget: 100 * time.Millisecond,
		MaxLease:      DefaultMaxLease(),
		LeakGrace:     DefaultLeakGrace(),
		IdleTimeout:   10 * time.Minute,
		SweepInterval: 10 * time.Second,
	}
}

func (o Options) validate() error {
	return validateBounds(o.MinSize, o.MaxSize)
}

func validateBounds(minSize int, maxSize int) error {
	if minSize < 0 {
		return fmt.Errorf("pool min size must not be negative, got %d", minSize)
	}
	if maxSize < 1 {
		return fmt.Errorf("pool max size must be at least 1, got %d", maxSize)
	}
	if minSize > maxSize {
		return fmt.Errorf("pool min size (%d) must not exceed max size (%d)", minSize, maxSize)
	}
	return nil
}
