package recovery

import (
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Options configures a Registry.
type Options struct {
	// Timeout bounds each handler run.
	Timeout time.Duration

	// MaxAttempts is the number of consecutive failed recoveries that opens a component's breaker.
	MaxAttempts int

	// InitialBackoff is the wait after the first failed attempt before another may run.
	InitialBackoff time.Duration

	// MaxBackoff caps the wait between attempts.
	MaxBackoff time.Duration

	// Multiplier grows the backoff after each further failure.
	Multiplier float64

	// Jitter randomizes each wait by up to this fraction in either direction. Zero keeps waits exact.
	Jitter float64

	// Cooldown is how long an open breaker stays open before one trial attempt is allowed.
	Cooldown time.Duration
}

// Option defines a functional option for configuring a Registry.
type Option func(*Options) error

func DefaultTimeout() time.Duration {
	return 30 * time.Second
}

func DefaultMaxAttempts() int {
	return 3
}

func DefaultInitialBackoff() time.Duration {
	return 5 * time.Second
}

func DefaultMaxBackoff() time.Duration {
	return 5 * time.Minute
}

func DefaultMultiplier() float64 {
	return 2
}

func DefaultCooldown() time.Duration {
	return 15 * time.Minute
}

// NewOptions creates Options with defaults applied, then the given options in order.
func NewOptions(opt ...Option) (Options, error) {
	opts := defaultOptions()

	for _, o := range opt {
		if o == nil {
			continue
		}
		if err := o(&opts); err != nil {
			return Options{}, err
		}
	}

	if opts.InitialBackoff > opts.MaxBackoff {
		return Options{}, fmt.Errorf(
			"initial backoff (%v) cannot exceed max backoff (%v)",
			opts.InitialBackoff,
			opts.MaxBackoff,
		)
	}

	return opts, nil
}

// WithTimeout sets the hard timeout for each handler run.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) error {
		if d <= 0 {
			return fmt.Errorf("recovery timeout must be positive, got %v", d)
		}
		o.Timeout = d
		return nil
	}
}

// WithMaxAttempts sets how many consecutive failures open the breaker.
func WithMaxAttempts(n int) Option {
	return func(o *Options) error {
		if n < 1 {
			return fmt.Errorf("max recovery attempts must be at least 1, got %d", n)
		}
		o.MaxAttempts = n
		return nil
	}
}

// WithBackoff sets the exponential backoff between attempts.
func WithBackoff(initial time.Duration, maxBackoff time.Duration, multiplier float64) Option {
	return func(o *Options) error {
		if initial < 0 || maxBackoff < 0 {
			return fmt.Errorf("backoff durations cannot be negative")
		}
		if multiplier < 1 {
			return fmt.Errorf("backoff multiplier must be at least 1, got %v", multiplier)
		}
		o.InitialBackoff = initial
		o.MaxBackoff = maxBackoff
		o.Multiplier = multiplier
		return nil
	}
}

// WithJitter sets the randomization factor applied to each backoff wait, in [0, 1).
func WithJitter(factor float64) Option {
	return func(o *Options) error {
		if factor < 0 || factor >= 1 {
			return fmt.Errorf("backoff jitter must be in [0, 1), got %v", factor)
		}
		o.Jitter = factor
		return nil
	}
}

// WithCooldown sets how long an open breaker suspends attempts.
func WithCooldown(d time.Duration) Option {
	return func(o *Options) error {
		if d <= 0 {
			return fmt.Errorf("breaker cooldown must be positive, got %v", d)
		}
		o.Cooldown = d
		return nil
	}
}

// newBackOff returns the per-component backoff schedule: InitialBackoff after the first failure,
// growing by Multiplier up to MaxBackoff. It never gives up; the breaker bounds the attempts.
func (o Options) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = o.InitialBackoff
	b.Multiplier = o.Multiplier
	b.MaxInterval = o.MaxBackoff
	b.RandomizationFactor = o.Jitter
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

func defaultOptions() Options {
	return Options{
		Timeout:        DefaultTimeout(),
		MaxAttempts:    DefaultMaxAttempts(),
		InitialBackoff: DefaultInitialBackoff(),
		MaxBackoff:     DefaultMaxBackoff(),
		Multiplier:     DefaultMultiplier(),
		Cooldown:       DefaultCooldown(),
	}
}
