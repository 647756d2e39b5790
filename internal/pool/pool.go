// Package pool provides a bounded, health-scored connection pool.
//
// The Manager is the only component that opens or closes connections.
// Callers receive a Lease that must be released; leases held past the configured
// max-lease are flagged and eventually reclaimed by the maintenance sweep.
// Leak detection is best-effort: it protects the pool from exhaustion, it does not make
// a leaked caller correct.
package pool

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
)

var (
	// ErrPoolExhausted is returned when no healthy connection became available within the acquire timeout.
	ErrPoolExhausted = errors.New("connection pool exhausted")

	// ErrPoolClosed is returned once the pool has begun shutting down.
	ErrPoolClosed = errors.New("connection pool closed")

	// ErrConnectFailed wraps errors from the Connector when opening a new connection.
	ErrConnectFailed = errors.New("failed to open pooled connection")
)

// Conn is a live connection owned by the pool.
type Conn interface {
	Ping(ctx context.Context) error
	Close() error
}

// Connector opens new connections for the pool.
type Connector interface {
	Connect(ctx context.Context) (Conn, error)
}

// ConnectorFunc adapts a function to the Connector interface.
type ConnectorFunc func(ctx context.Context) (Conn, error)

// Connect implements Connector.
func (f ConnectorFunc) Connect(ctx context.Context) (Conn, error) {
	return f(ctx)
}

// Stats is a point-in-time view of the pool.
type Stats struct {
	MinSize            int     `json:"min_size"`
	MaxSize            int     `json:"max_size"`
	Size               int     `json:"size"`
	InUse              int     `json:"in_use"`
	Idle               int     `json:"idle"`
	Leaked             int     `json:"leaked"`
	Waiters            int     `json:"waiters"`
	AverageHealthScore float64 `json:"average_health_score"`
	Created            uint64  `json:"created"`
	Evicted            uint64  `json:"evicted"`
	Reclaimed          uint64  `json:"reclaimed"`
	Exhausted          uint64  `json:"exhausted"`
	ConnectErrors      uint64  `json:"connect_errors"`
	Closed             bool    `json:"closed"`
}

// ConnectionInfo describes one pooled connection.
type ConnectionInfo struct {
	ID          string    `json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	LastUsedAt  time.Time `json:"last_used_at"`
	InUse       bool      `json:"in_use"`
	HealthScore float64   `json:"health_score"`
	UseCount    int64     `json:"use_count"`
	Leaked      bool      `json:"leaked"`
}

// Manager owns a bounded set of connections and leases them to callers.
// NewManager should be used to create instances of Manager.
type Manager struct {
	logger    hclog.Logger
	connector Connector
	now       func() time.Time

	mu         sync.Mutex
	opts       Options
	conns      map[string]*pooledConn
	pending    int
	waiters    int
	generation uint64
	closed     bool
	changed    chan struct{}
	counters   counters
}

type counters struct {
	created       uint64
	evicted       uint64
	reclaimed     uint64
	exhausted     uint64
	connectErrors uint64
}

type pooledConn struct {
	id          string
	conn        Conn
	createdAt   time.Time
	lastUsedAt  time.Time
	leasedAt    time.Time
	inUse       bool
	healthScore float64
	useCount    int64
	generation  uint64
	leaked      bool
	leakedAt    time.Time
	lease       *Lease
}

// NewManager creates a connection pool that uses connector to open connections.
// No connections are opened until Fill, Acquire or the maintenance sweep needs them.
func NewManager(logger hclog.Logger, connector Connector, opt ...Option) (*Manager, error) {
	if logger == nil || reflect.ValueOf(logger).IsNil() {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if connector == nil || reflect.ValueOf(connector).IsNil() {
		return nil, fmt.Errorf("connector cannot be nil")
	}

	opts, err := NewOptions(opt...)
	if err != nil {
		return nil, fmt.Errorf("invalid pool options: %w", err)
	}

	return &Manager{
		logger:    logger.Named("pool"),
		connector: connector,
		now:       time.Now,
		opts:      opts,
		conns:     make(map[string]*pooledConn, opts.MaxSize),
		changed:   make(chan struct{}),
	}, nil
}

// Acquire leases a healthy connection, waiting up to timeout for one to become available.
// Idle connections are chosen by weight, preferring a high health score and a low use count.
func (m *Manager) Acquire(ctx context.Context, timeout time.Duration) (*Lease, error) {
	if timeout <= 0 {
		return nil, fmt.Errorf("acquire timeout must be positive, got %v", timeout)
	}

	acquireCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return nil, ErrPoolClosed
		}

		evicted := m.evictUnhealthyLocked()

		if pc := m.pickLocked(); pc != nil {
			lease := m.leaseLocked(pc)
			m.mu.Unlock()
			m.closeConns(evicted, "evicted")
			return lease, nil
		}

		if m.sizeLocked() < m.opts.MaxSize {
			m.pending++
			m.mu.Unlock()
			m.closeConns(evicted, "evicted")

			pc, err := m.open(acquireCtx)

			m.mu.Lock()
			m.pending--
			if err != nil {
				m.counters.connectErrors++
				m.broadcastLocked()
				m.mu.Unlock()
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				return nil, err
			}
			if m.closed {
				m.mu.Unlock()
				m.closeConns([]*pooledConn{pc}, "pool closed")
				return nil, ErrPoolClosed
			}
			m.addLocked(pc)
			lease := m.leaseLocked(pc)
			m.mu.Unlock()
			return lease, nil
		}

		changed := m.changed
		m.waiters++
		m.mu.Unlock()
		m.closeConns(evicted, "evicted")

		select {
		case <-changed:
			m.mu.Lock()
			m.waiters--
			m.mu.Unlock()
		case <-acquireCtx.Done():
			m.mu.Lock()
			m.waiters--
			if ctx.Err() == nil {
				m.counters.exhausted++
			}
			m.mu.Unlock()
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%w: no healthy connection available within %s", ErrPoolExhausted, timeout)
		}
	}
}

// Release returns a leased connection to the pool.
// It is equivalent to calling Release on the lease and is safe to call more than once.
func (m *Manager) Release(lease *Lease) {
	if lease == nil {
		return
	}
	lease.Release()
}

// Resize changes the pool bounds.
// Leased connections are never closed; idle connections above the new maximum are closed immediately,
// and connections missing below the new minimum are opened by the next maintenance sweep.
func (m *Manager) Resize(minSize int, maxSize int) error {
	if err := validateBounds(minSize, maxSize); err != nil {
		return err
	}

	m.mu.Lock()
	m.opts.MinSize = minSize
	m.opts.MaxSize = maxSize
	excess := m.trimExcessLocked()
	m.broadcastLocked()
	m.mu.Unlock()

	m.logger.Info("Pool resized", "min", minSize, "max", maxSize, "closed", len(excess))
	m.closeConns(excess, "above max size")

	return nil
}

// Fill opens connections until the pool holds at least MinSize of them.
func (m *Manager) Fill(ctx context.Context) error {
	for {
		m.mu.Lock()
		if m.closed || m.sizeLocked() >= m.opts.MinSize {
			m.mu.Unlock()
			return nil
		}
		m.pending++
		m.mu.Unlock()

		pc, err := m.open(ctx)

		m.mu.Lock()
		m.pending--
		if err != nil {
			m.counters.connectErrors++
			m.broadcastLocked()
			m.mu.Unlock()
			return err
		}
		if m.closed {
			m.mu.Unlock()
			m.closeConns([]*pooledConn{pc}, "pool closed")
			return nil
		}
		m.addLocked(pc)
		pc.lastUsedAt = pc.createdAt
		m.broadcastLocked()
		m.mu.Unlock()
	}
}

// Reset closes every idle connection, marks leased connections to be closed on release, and refills the pool.
func (m *Manager) Reset(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrPoolClosed
	}
	m.generation++
	idle := m.removeIdleLocked(func(*pooledConn) bool { return true })
	m.broadcastLocked()
	m.mu.Unlock()

	m.logger.Warn("Resetting connection pool", "closed", len(idle))
	m.closeConns(idle, "reset")

	return m.Fill(ctx)
}

// Close shuts the pool down. Idle connections are closed immediately, leased ones when they are released.
// Acquire returns ErrPoolClosed once Close has been called.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	idle := m.removeIdleLocked(func(*pooledConn) bool { return true })
	m.broadcastLocked()
	m.mu.Unlock()

	var errs []error
	for _, pc := range idle {
		if err := pc.conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing connection %s: %w", pc.id, err))
		}
	}

	m.logger.Info("Connection pool closed", "closed", len(idle))
	return errors.Join(errs...)
}

// Stats returns a snapshot of pool counters and gauges.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Stats{
		MinSize:       m.opts.MinSize,
		MaxSize:       m.opts.MaxSize,
		Size:          len(m.conns),
		Waiters:       m.waiters,
		Created:       m.counters.created,
		Evicted:       m.counters.evicted,
		Reclaimed:     m.counters.reclaimed,
		Exhausted:     m.counters.exhausted,
		ConnectErrors: m.counters.connectErrors,
		Closed:        m.closed,
	}

	var total float64
	for _, pc := range m.conns {
		total += pc.healthScore
		if pc.inUse {
			s.InUse++
		} else {
			s.Idle++
		}
		if pc.leaked {
			s.Leaked++
		}
	}
	if len(m.conns) > 0 {
		s.AverageHealthScore = total / float64(len(m.conns))
	}

	return s
}

// Connections describes every pooled connection, oldest first.
func (m *Manager) Connections() []ConnectionInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]ConnectionInfo, 0, len(m.conns))
	for _, pc := range m.conns {
		out = append(out, ConnectionInfo{
			ID:          pc.id,
			CreatedAt:   pc.createdAt,
			LastUsedAt:  pc.lastUsedAt,
			InUse:       pc.inUse,
			HealthScore: pc.healthScore,
			UseCount:    pc.useCount,
			Leaked:      pc.leaked,
		})
	}
	slices.SortFunc(out, func(a, b ConnectionInfo) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	return out
}

func (m *Manager) open(ctx context.Context) (*pooledConn, error) {
	conn, err := m.connector.Connect(ctx)
	if err != nil {
		m.logger.Error("Failed to open connection", "error", err)
		return nil, fmt.Errorf("%w: %w", ErrConnectFailed, err)
	}

	return &pooledConn{
		id:          uuid.NewString(),
		conn:        conn,
		createdAt:   m.now(),
		healthScore: 1,
	}, nil
}

func (m *Manager) addLocked(pc *pooledConn) {
	pc.generation = m.generation
	m.conns[pc.id] = pc
	m.counters.created++
}

func (m *Manager) sizeLocked() int {
	return len(m.conns) + m.pending
}

// pickLocked returns the idle connection with the best weight, or nil when none is idle.
func (m *Manager) pickLocked() *pooledConn {
	var best *pooledConn
	var bestWeight float64

	for _, pc := range m.conns {
		if pc.inUse || pc.healthScore < m.opts.HealthFloor {
			continue
		}
		w := weight(pc)
		switch {
		case best == nil, w > bestWeight:
			best, bestWeight = pc, w
		case w == bestWeight && pc.lastUsedAt.Before(best.lastUsedAt):
			best = pc
		}
	}

	return best
}

func (m *Manager) leaseLocked(pc *pooledConn) *Lease {
	pc.inUse = true
	pc.leasedAt = m.now()
	pc.useCount++
	pc.leaked = false

	lease := &Lease{
		manager: m,
		pc:      pc,
		budget:  m.opts.LatencyBudget,
	}
	pc.lease = lease

	return lease
}

// release folds the lease's observations into the connection's health score and returns it to the idle set.
func (m *Manager) release(l *Lease, sample float64) {
	m.mu.Lock()

	pc := l.pc
	if current, ok := m.conns[pc.id]; !ok || current != pc || pc.lease != l {
		// Reclaimed as a leak or closed by a reset while leased.
		m.mu.Unlock()
		return
	}

	alpha := m.opts.DecayFactor
	pc.healthScore = clamp((1-alpha)*pc.healthScore + alpha*sample)
	pc.inUse = false
	pc.lease = nil
	pc.leaked = false
	pc.lastUsedAt = m.now()

	var toClose []*pooledConn
	reason := ""
	switch {
	case m.closed:
		reason = "pool closed"
	case pc.generation != m.generation:
		reason = "reset"
	case pc.healthScore < m.opts.HealthFloor:
		reason = "evicted"
		m.counters.evicted++
	case len(m.conns) > m.opts.MaxSize:
		reason = "above max size"
	}
	if reason != "" {
		delete(m.conns, pc.id)
		toClose = append(toClose, pc)
	}

	m.broadcastLocked()
	m.mu.Unlock()

	m.closeConns(toClose, reason)
}

func (m *Manager) evictUnhealthyLocked() []*pooledConn {
	evicted := m.removeIdleLocked(func(pc *pooledConn) bool {
		return pc.healthScore < m.opts.HealthFloor
	})
	m.counters.evicted += uint64(len(evicted))
	if len(evicted) > 0 {
		m.broadcastLocked()
	}
	return evicted
}

// trimExcessLocked removes the least healthy idle connections until the pool is within MaxSize.
func (m *Manager) trimExcessLocked() []*pooledConn {
	excess := len(m.conns) - m.opts.MaxSize
	if excess <= 0 {
		return nil
	}

	idle := make([]*pooledConn, 0, len(m.conns))
	for _, pc := range m.conns {
		if !pc.inUse {
			idle = append(idle, pc)
		}
	}
	slices.SortFunc(idle, func(a, b *pooledConn) int {
		return cmp.Compare(a.healthScore, b.healthScore)
	})

	removed := idle[:min(excess, len(idle))]
	for _, pc := range removed {
		delete(m.conns, pc.id)
	}

	return removed
}

func (m *Manager) removeIdleLocked(match func(*pooledConn) bool) []*pooledConn {
	var removed []*pooledConn
	for id, pc := range m.conns {
		if pc.inUse || !match(pc) {
			continue
		}
		delete(m.conns, id)
		removed = append(removed, pc)
	}
	return removed
}

// broadcastLocked wakes every goroutine waiting in Acquire.
func (m *Manager) broadcastLocked() {
	close(m.changed)
	m.changed = make(chan struct{})
}

func (m *Manager) closeConns(conns []*pooledConn, reason string) {
	for _, pc := range conns {
		if err := pc.conn.Close(); err != nil {
			m.logger.Warn("Error closing pooled connection", "id", pc.id, "reason", reason, "error", err)
			continue
		}
		m.logger.Debug("Closed pooled connection", "id", pc.id, "reason", reason)
	}
}

// weight ranks idle connections: healthy and lightly used connections first.
func weight(pc *pooledConn) float64 {
	return pc.healthScore / float64(1+pc.useCount)
}

func clamp(v float64) float64 {
	return max(0, min(1, v))
}
