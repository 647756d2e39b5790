package monitor

import (
	"fmt"
	"time"

	"github.com/mozilla-ai/healthd/internal/domain"
)

// Option defines a functional option for configuring a Monitor.
type Option func(*Options) error

// Options contains optional configuration for a Monitor.
type Options struct {
	// Interval is the time between probe cycles.
	Interval time.Duration

	// ProbeTimeout bounds each checker. It must be shorter than Interval so cycles never overlap.
	ProbeTimeout time.Duration

	// Debounce is the number of consecutive matching probes before a status change is confirmed for alerting.
	Debounce int

	// UptimeWindow is the window over which the system uptime percentage is computed.
	UptimeWindow time.Duration

	// AlertRetention is how long resolved alerts are kept in memory.
	AlertRetention time.Duration

	// Aggregation folds component statuses into the system status.
	Aggregation domain.AggregationPolicy
}

// DefaultInterval returns the default time between probe cycles.
func DefaultInterval() time.Duration {
	return 30 * time.Second
}

// DefaultProbeTimeout returns the default per-checker timeout.
func DefaultProbeTimeout() time.Duration {
	return 10 * time.Second
}

// DefaultUptimeWindow returns the default uptime window.
func DefaultUptimeWindow() time.Duration {
	return 24 * time.Hour
}

// DefaultAlertRetention returns how long resolved alerts are kept by default.
func DefaultAlertRetention() time.Duration {
	return 24 * time.Hour
}

// NewOptions creates Options with optional configuration.
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

	if err := opts.Validate(); err != nil {
		return Options{}, err
	}

	return opts, nil
}

// Validate checks the options against each other.
func (o Options) Validate() error {
	if o.ProbeTimeout >= o.Interval {
		return fmt.Errorf("probe timeout (%s) must be shorter than the interval (%s)", o.ProbeTimeout, o.Interval)
	}
	return nil
}

// WithInterval sets the cycle interval.
func WithInterval(d time.Duration) Option {
	return func(o *Options) error {
		if d <= 0 {
			return fmt.Errorf("interval must be positive, got %s", d)
		}
		o.Interval = d
		return nil
	}
}

// WithProbeTimeout sets the per-checker timeout.
func WithProbeTimeout(d time.Duration) Option {
	return func(o *Options) error {
		if d <= 0 {
			return fmt.Errorf("probe timeout must be positive, got %s", d)
		}
		o.ProbeTimeout = d
		return nil
	}
}

// WithDebounce sets the number of consecutive probes needed to confirm a status change.
func WithDebounce(n int) Option {
	return func(o *Options) error {
		if n < 1 {
			return fmt.Errorf("debounce must be at least 1, got %d", n)
		}
		o.Debounce = n
		return nil
	}
}

// WithUptimeWindow sets the uptime percentage window.
func WithUptimeWindow(d time.Duration) Option {
	return func(o *Options) error {
		if d <= 0 {
			return fmt.Errorf("uptime window must be positive, got %s", d)
		}
		o.UptimeWindow = d
		return nil
	}
}

// WithAlertRetention sets how long resolved alerts are kept.
func WithAlertRetention(d time.Duration) Option {
	return func(o *Options) error {
		if d <= 0 {
			return fmt.Errorf("alert retention must be positive, got %s", d)
		}
		o.AlertRetention = d
		return nil
	}
}

// WithAggregation sets the critical and warning ratios used to compute the system status.
func WithAggregation(criticalRatio float64, warningRatio float64) Option {
	return func(o *Options) error {
		for name, r := range map[string]float64{"critical": criticalRatio, "warning": warningRatio} {
			if r < 0 || r > 1 {
				return fmt.Errorf("%s ratio must be within [0, 1], got %v", name, r)
			}
		}
		o.Aggregation = domain.AggregationPolicy{CriticalRatio: criticalRatio, WarningRatio: warningRatio}
		return nil
	}
}

func defaultOptions() Options {
	return Options{
		Interval:       DefaultInterval(),
		ProbeTimeout:   DefaultProbeTimeout(),
		Debounce:       1,
		UptimeWindow:   DefaultUptimeWindow(),
		AlertRetention: DefaultAlertRetention(),
		Aggregation:    domain.DefaultAggregationPolicy(),
	}
}
