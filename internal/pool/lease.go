package pool

import (
	"sync"
	"time"
)

// Lease is a scoped checkout of a pooled connection.
// The connection must not be used after Release.
type Lease struct {
	manager *Manager
	pc      *pooledConn
	budget  time.Duration

	mu       sync.Mutex
	sum      float64
	samples  int
	released bool
}

// ID returns the id of the leased connection.
func (l *Lease) ID() string {
	return l.pc.id
}

// Conn returns the leased connection.
func (l *Lease) Conn() Conn {
	return l.pc.conn
}

// Report records the outcome of one round trip on the leased connection.
// Observations are folded into the connection's health score when the lease is released.
func (l *Lease) Report(latency time.Duration, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.released {
		return
	}
	l.sum += observation(latency, err, l.budget)
	l.samples++
}

// Release returns the connection to the pool. Calls after the first are no-ops.
func (l *Lease) Release() {
	l.mu.Lock()
	if l.released {
		l.mu.Unlock()
		return
	}
	l.released = true
	sample := 1.0
	if l.samples > 0 {
		sample = l.sum / float64(l.samples)
	}
	l.mu.Unlock()

	l.manager.release(l, sample)
}

// observation scores one round trip in [0,1]: errors score 0, latency within budget scores 1,
// and slower round trips degrade proportionally.
func observation(latency time.Duration, err error, budget time.Duration) float64 {
	switch {
	case err != nil:
		return 0
	case latency <= budget:
		return 1
	default:
		return float64(budget) / float64(latency)
	}
}
