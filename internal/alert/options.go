package alert

import (
	"fmt"
	"time"

	"github.com/mozilla-ai/healthd/internal/domain"
)

// Options configures a Manager.
type Options struct {
	// Cooldown is the window in which a repeated (component, severity) alert is suppressed.
	Cooldown time.Duration

	// EscalateAfter is the number of cooldown periods an unresolved critical or down alert may stay
	// open before it is escalated.
	EscalateAfter int

	// DeliveryTimeout bounds each channel send.
	DeliveryTimeout time.Duration

	// EventSink receives a SystemEvent for every alert lifecycle change. Optional.
	EventSink func(domain.SystemEvent)
}

// Option defines a functional option for configuring a Manager.
type Option func(*Options) error

func DefaultCooldown() time.Duration {
	return 15 * time.Minute
}

func DefaultEscalateAfter() int {
	return 3
}

func DefaultDeliveryTimeout() time.Duration {
	return 10 * time.Second
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

	return opts, nil
}

// WithCooldown sets the suppression window.
func WithCooldown(d time.Duration) Option {
	return func(o *Options) error {
		if d <= 0 {
			return fmt.Errorf("alert cooldown must be positive, got %v", d)
		}
		o.Cooldown = d
		return nil
	}
}

// WithEscalateAfter sets how many cooldown periods pass before escalation.
func WithEscalateAfter(periods int) Option {
	return func(o *Options) error {
		if periods < 1 {
			return fmt.Errorf("escalation threshold must be at least 1 cooldown period, got %d", periods)
		}
		o.EscalateAfter = periods
		return nil
	}
}

// WithDeliveryTimeout sets the per-channel send timeout.
func WithDeliveryTimeout(d time.Duration) Option {
	return func(o *Options) error {
		if d <= 0 {
			return fmt.Errorf("delivery timeout must be positive, got %v", d)
		}
		o.DeliveryTimeout = d
		return nil
	}
}

// WithEventSink sets a function that receives alert lifecycle events.
func WithEventSink(sink func(domain.SystemEvent)) Option {
	return func(o *Options) error {
		o.EventSink = sink
		return nil
	}
}

func defaultOptions() Options {
	return Options{
		Cooldown:        DefaultCooldown(),
		EscalateAfter:   DefaultEscalateAfter(),
		DeliveryTimeout: DefaultDeliveryTimeout(),
	}
}
