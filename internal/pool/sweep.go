package pool

import (
	"context"
	"time"
)

// Run performs the maintenance sweep every SweepInterval until ctx is canceled.
func (m *Manager) Run(ctx context.Context) {
	m.mu.Lock()
	interval := m.opts.SweepInterval
	m.mu.Unlock()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("Stopping connection pool maintenance")
			return
		case <-ticker.C:
			m.Sweep(ctx)
		}
	}
}

// Sweep runs one maintenance pass:
//   - leases held past MaxLease are flagged as leaked, and reclaimed once LeakGrace has also passed
//   - idle connections below the health floor are evicted
//   - idle connections above MinSize that exceeded IdleTimeout are closed
//   - idle connections above MaxSize are closed
//   - the pool is refilled up to MinSize
func (m *Manager) Sweep(ctx context.Context) {
	now := m.now()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}

	var reclaimed, evicted, expired []*pooledConn
	for id, pc := range m.conns {
		if pc.inUse {
			held := now.Sub(pc.leasedAt)
			switch {
			case !pc.leaked && held > m.opts.MaxLease:
				pc.leaked = true
				pc.leakedAt = now
				m.logger.Warn(
					"Connection lease exceeded max lease duration, flagged as leaked",
					"id", id,
					"held", held.String(),
					"max_lease", m.opts.MaxLease.String(),
				)
			case pc.leaked && now.Sub(pc.leakedAt) >= m.opts.LeakGrace:
				delete(m.conns, id)
				pc.lease = nil
				m.counters.reclaimed++
				reclaimed = append(reclaimed, pc)
				m.logger.Warn("Reclaiming leaked connection", "id", id, "held", held.String())
			}
			continue
		}

		if pc.healthScore < m.opts.HealthFloor {
			delete(m.conns, id)
			m.counters.evicted++
			evicted = append(evicted, pc)
			continue
		}

		if m.sizeLocked() > m.opts.MinSize && now.Sub(pc.lastUsedAt) > m.opts.IdleTimeout {
			delete(m.conns, id)
			expired = append(expired, pc)
		}
	}

	excess := m.trimExcessLocked()
	if len(reclaimed)+len(evicted)+len(expired)+len(excess) > 0 {
		m.broadcastLocked()
	}
	m.mu.Unlock()

	m.closeConns(reclaimed, "leaked")
	m.closeConns(evicted, "evicted")
	m.closeConns(expired, "idle timeout")
	m.closeConns(excess, "above max size")

	if err := m.Fill(ctx); err != nil {
		m.logger.Warn("Failed to refill connection pool", "error", err)
	}
}
