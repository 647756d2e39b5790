package history

import (
	"fmt"
	"time"
)

// WriterOption defines a functional option for configuring an AsyncWriter.
type WriterOption func(*WriterOptions) error

// WriterOptions contains optional configuration for an AsyncWriter.
type WriterOptions struct {
	// QueueSize is the number of rows buffered before new rows are dropped.
	QueueSize int

	// BatchSize is the number of rows written per store call.
	BatchSize int

	// FlushInterval is the longest a buffered row waits before it is written.
	FlushInterval time.Duration

	// WriteTimeout bounds each store call.
	WriteTimeout time.Duration
}

// DefaultQueueSize returns the default writer queue size.
func DefaultQueueSize() int {
	return 4096
}

// DefaultBatchSize returns the default writer batch size.
func DefaultBatchSize() int {
	return 256
}

// DefaultFlushInterval returns the default writer flush interval.
func DefaultFlushInterval() time.Duration {
	return time.Second
}

// DefaultWriteTimeout returns the default per-batch write timeout.
func DefaultWriteTimeout() time.Duration {
	return 5 * time.Second
}

// NewWriterOptions creates WriterOptions with optional configuration.
func NewWriterOptions(opt ...WriterOption) (WriterOptions, error) {
	opts := defaultWriterOptions()

	for _, o := range opt {
		if o == nil {
			continue
		}
		if err := o(&opts); err != nil {
			return WriterOptions{}, err
		}
	}

	return opts, nil
}

// WithQueueSize sets the writer queue size.
func WithQueueSize(n int) WriterOption {
	return func(o *WriterOptions) error {
		if n <= 0 {
			return fmt.Errorf("queue size must be positive, got %d", n)
		}
		o.QueueSize = n
		return nil
	}
}

// WithBatchSize sets the number of rows per write.
func WithBatchSize(n int) WriterOption {
	return func(o *WriterOptions) error {
		if n <= 0 {
			return fmt.Errorf("batch size must be positive, got %d", n)
		}
		o.BatchSize = n
		return nil
	}
}

// WithFlushInterval sets how often buffered rows are written.
func WithFlushInterval(d time.Duration) WriterOption {
	return func(o *WriterOptions) error {
		if d <= 0 {
			return fmt.Errorf("flush interval must be positive, got %s", d)
		}
		o.FlushInterval = d
		return nil
	}
}

// WithWriteTimeout bounds each store call.
func WithWriteTimeout(d time.Duration) WriterOption {
	return func(o *WriterOptions) error {
		if d <= 0 {
			return fmt.Errorf("write timeout must be positive, got %s", d)
		}
		o.WriteTimeout = d
		return nil
	}
}

func defaultWriterOptions() WriterOptions {
	return WriterOptions{
		QueueSize:     DefaultQueueSize(),
		BatchSize:     DefaultBatchSize(),
		FlushInterval: DefaultFlushInterval(),
		WriteTimeout:  DefaultWriteTimeout(),
	}
}
