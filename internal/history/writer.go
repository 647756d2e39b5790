package history

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/mozilla-ai/healthd/internal/domain"
)

// dropLogEvery limits how often dropped rows are logged.
const dropLogEvery = 100

// AsyncWriter buffers history rows and writes them to a Store in batches from a background goroutine.
// Writes never block the caller: when the queue is full the row is dropped and counted.
type AsyncWriter struct {
	logger hclog.Logger
	store  Store
	opts   WriterOptions

	queue   chan row
	flushes chan chan struct{}
	done    chan struct{}

	mu     sync.RWMutex
	closed bool

	written atomic.Int64
	dropped atomic.Int64
	failed  atomic.Int64
}

// WriterStats are the running counters of an AsyncWriter.
type WriterStats struct {
	Queued  int   `json:"queued"`
	Written int64 `json:"written"`
	Dropped int64 `json:"dropped"`
	Failed  int64 `json:"failed"`
}

type row struct {
	check   domain.CheckRecord
	event   domain.SystemEvent
	isEvent bool
}

type batch struct {
	checks []domain.CheckRecord
	events []domain.SystemEvent
}

// NewAsyncWriter starts a writer in front of store.
func NewAsyncWriter(logger hclog.Logger, store Store, opt ...WriterOption) (*AsyncWriter, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("history store cannot be nil")
	}
	opts, err := NewWriterOptions(opt...)
	if err != nil {
		return nil, err
	}

	w := &AsyncWriter{
		logger:  logger.Named("history"),
		store:   store,
		opts:    opts,
		queue:   make(chan row, opts.QueueSize),
		flushes: make(chan chan struct{}),
		done:    make(chan struct{}),
	}
	go w.run()

	return w, nil
}

// WriteChecks queues probe results.
func (w *AsyncWriter) WriteChecks(records ...domain.CheckRecord) {
	for _, r := range records {
		r.Metrics = slices.Clone(r.Metrics)
		w.enqueue(row{check: r})
	}
}

// WriteEvents queues system events.
func (w *AsyncWriter) WriteEvents(events ...domain.SystemEvent) {
	for _, ev := range events {
		ev.Context = maps.Clone(ev.Context)
		w.enqueue(row{event: ev, isEvent: true})
	}
}

// Flush blocks until every row queued before the call has been handed to the store.
func (w *AsyncWriter) Flush(ctx context.Context) error {
	w.mu.RLock()
	if w.closed {
		w.mu.RUnlock()
		return ErrStoreClosed
	}

	ack := make(chan struct{})
	select {
	case w.flushes <- ack:
		w.mu.RUnlock()
	case <-ctx.Done():
		w.mu.RUnlock()
		return ctx.Err()
	}

	select {
	case <-ack:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting rows and waits for the queue to drain.
// The underlying store is not closed.
func (w *AsyncWriter) Close(ctx context.Context) error {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.queue)
	}
	w.mu.Unlock()

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("draining history queue: %w", ctx.Err())
	}
}

// Stats returns the writer counters.
func (w *AsyncWriter) Stats() WriterStats {
	return WriterStats{
		Queued:  len(w.queue),
		Written: w.written.Load(),
		Dropped: w.dropped.Load(),
		Failed:  w.failed.Load(),
	}
}

func (w *AsyncWriter) enqueue(r row) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.closed {
		w.drop("writer closed")
		return
	}

	select {
	case w.queue <- r:
	default:
		w.drop("queue full")
	}
}

func (w *AsyncWriter) drop(reason string) {
	n := w.dropped.Add(1)
	if n == 1 || n%dropLogEvery == 0 {
		w.logger.Warn("Dropping history rows", "reason", reason, "dropped", n)
	}
}

func (w *AsyncWriter) run() {
	defer close(w.done)

	ticker := time.NewTicker(w.opts.FlushInterval)
	defer ticker.Stop()

	var pending batch
	add := func(r row) {
		if r.isEvent {
			pending.events = append(pending.events, r.event)
		} else {
			pending.checks = append(pending.checks, r.check)
		}
		if pending.size() >= w.opts.BatchSize {
			w.write(&pending)
		}
	}

	for {
		select {
		case r, ok := <-w.queue:
			if !ok {
				w.write(&pending)
				return
			}
			add(r)
		case <-ticker.C:
			w.write(&pending)
		case ack := <-w.flushes:
		drain:
			for {
				select {
				case r, ok := <-w.queue:
					if !ok {
						break drain
					}
					add(r)
				default:
					break drain
				}
			}
			w.write(&pending)
			close(ack)
		}
	}
}

func (w *AsyncWriter) write(b *batch) {
	if b.size() == 0 {
		return
	}
	defer b.reset()

	ctx, cancel := context.WithTimeout(context.Background(), w.opts.WriteTimeout)
	defer cancel()

	if len(b.checks) > 0 {
		if err := w.store.AppendChecks(ctx, b.checks); err != nil {
			w.failed.Add(int64(len(b.checks)))
			w.logger.Error("Failed to write check history", "rows", len(b.checks), "error", err)
		} else {
			w.written.Add(int64(len(b.checks)))
		}
	}

	if len(b.events) > 0 {
		if err := w.store.AppendEvents(ctx, b.events); err != nil {
			w.failed.Add(int64(len(b.events)))
			w.logger.Error("Failed to write event history", "rows", len(b.events), "error", err)
		} else {
			w.written.Add(int64(len(b.events)))
		}
	}
}

func (b *batch) size() int {
	return len(b.checks) + len(b.events)
}

func (b *batch) reset() {
	b.checks = nil
	b.events = nil
}
