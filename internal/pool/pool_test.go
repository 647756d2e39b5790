package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	id     int64
	closed atomic.Bool
}

func (c *fakeConn) Ping(_ context.Context) error {
	if c.closed.Load() {
		return errors.New("closed")
	}
	return nil
}

func (c *fakeConn) Close() error {
	c.closed.Store(true)
	return nil
}

type fakeConnector struct {
	opened atomic.Int64
	fail   atomic.Bool
	mu     sync.Mutex
	conns  []*fakeConn
}

func (f *fakeConnector) Connect(_ context.Context) (Conn, error) {
	if f.fail.Load() {
		return nil, errors.New("connection refused")
	}
	c := &fakeConn{id: f.opened.Add(1)}
	f.mu.Lock()
	f.conns = append(f.conns, c)
	f.mu.Unlock()
	return c, nil
}

func (f *fakeConnector) closedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.conns {
		if c.closed.Load() {
			n++
		}
	}
	return n
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestManager(t *testing.T, connector Connector, opts ...Option) *Manager {
	t.Helper()

	m, err := NewManager(hclog.NewNullLogger(), connector, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestNewManager_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewManager(nil, &fakeConnector{})
	require.EqualError(t, err, "logger cannot be nil")

	_, err = NewManager(hclog.NewNullLogger(), nil)
	require.EqualError(t, err, "connector cannot be nil")

	_, err = NewManager(hclog.NewNullLogger(), &fakeConnector{}, WithSize(6, 5))
	require.Error(t, err)
	require.Contains(t, err.Error(), "must not exceed max size")

	_, err = NewManager(hclog.NewNullLogger(), &fakeConnector{}, WithHealthFloor(1.5))
	require.Error(t, err)
}

func TestManager_AcquireExhausted(t *testing.T) {
	t.Parallel()

	connector := &fakeConnector{}
	m := newTestManager(t, connector, WithSize(2, 5))
	require.NoError(t, m.Fill(context.Background()))
	require.Equal(t, 2, m.Stats().Size)

	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		exhausted atomic.Int32
	)
	leases := make(chan *Lease, 6)
	for range 6 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lease, err := m.Acquire(context.Background(), 100*time.Millisecond)
			if err != nil {
				if errors.Is(err, ErrPoolExhausted) {
					exhausted.Add(1)
				}
				return
			}
			successes.Add(1)
			leases <- lease
		}()
	}
	wg.Wait()
	close(leases)

	require.Equal(t, int32(5), successes.Load())
	require.Equal(t, int32(1), exhausted.Load())
	require.Equal(t, 5, m.Stats().InUse)
	require.Equal(t, uint64(1), m.Stats().Exhausted)

	for l := range leases {
		l.Release()
	}
	require.Equal(t, 0, m.Stats().InUse)
}

func TestManager_AcquireWaitsForRelease(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, &fakeConnector{}, WithSize(0, 1))

	first, err := m.Acquire(context.Background(), time.Second)
	require.NoError(t, err)

	go func() {
		time.Sleep(20 * time.Millisecond)
		first.Release()
	}()

	second, err := m.Acquire(context.Background(), 2*time.Second)
	require.NoError(t, err)
	require.Equal(t, first.ID(), second.ID())
	second.Release()
}

func TestManager_AcquireContextCanceled(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, &fakeConnector{}, WithSize(0, 1))
	held, err := m.Acquire(context.Background(), time.Second)
	require.NoError(t, err)
	defer held.Release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = m.Acquire(ctx, time.Second)
	require.ErrorIs(t, err, context.Canceled)
}

func TestManager_AcquireAfterClose(t *testing.T) {
	t.Parallel()

	connector := &fakeConnector{}
	m := newTestManager(t, connector, WithSize(2, 3))
	require.NoError(t, m.Fill(context.Background()))
	require.NoError(t, m.Close())

	_, err := m.Acquire(context.Background(), 50*time.Millisecond)
	require.ErrorIs(t, err, ErrPoolClosed)
	require.Equal(t, 2, connector.closedCount())
	require.True(t, m.Stats().Closed)
}

func TestManager_ReleaseIsIdempotent(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, &fakeConnector{}, WithSize(0, 2))

	lease, err := m.Acquire(context.Background(), time.Second)
	require.NoError(t, err)
	lease.Release()
	lease.Release()
	m.Release(lease)
	m.Release(nil)

	stats := m.Stats()
	require.Equal(t, 1, stats.Size)
	require.Equal(t, 1, stats.Idle)
	require.Equal(t, 0, stats.InUse)
}

func TestManager_EvictsBelowHealthFloor(t *testing.T) {
	t.Parallel()

	connector := &fakeConnector{}
	m := newTestManager(t, connector, WithSize(0, 2), WithHealthFloor(0.5), WithDecayFactor(1))

	lease, err := m.Acquire(context.Background(), time.Second)
	require.NoError(t, err)
	lease.Report(time.Millisecond, errors.New("broken pipe"))
	lease.Release()

	stats := m.Stats()
	require.Equal(t, 0, stats.Size)
	require.Equal(t, uint64(1), stats.Evicted)
	require.Equal(t, 1, connector.closedCount())

	next, err := m.Acquire(context.Background(), time.Second)
	require.NoError(t, err)
	require.NotEqual(t, lease.ID(), next.ID())
	next.Release()
}

func TestManager_NeverHandsOutBelowFloor(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, &fakeConnector{}, WithSize(0, 4), WithHealthFloor(0.4), WithDecayFactor(0.5))

	for i := range 50 {
		lease, err := m.Acquire(context.Background(), time.Second)
		require.NoError(t, err)
		for _, c := range m.Connections() {
			if c.ID == lease.ID() {
				require.GreaterOrEqual(t, c.HealthScore, 0.4)
			}
		}
		if i%3 == 0 {
			lease.Report(time.Millisecond, errors.New("timeout"))
		}
		lease.Release()
	}
}

func TestManager_WeightedSelectionPrefersHealthy(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, &fakeConnector{}, WithSize(0, 2), WithDecayFactor(0.2))

	a, err := m.Acquire(context.Background(), time.Second)
	require.NoError(t, err)
	b, err := m.Acquire(context.Background(), time.Second)
	require.NoError(t, err)

	a.Report(time.Millisecond, errors.New("reset by peer"))
	a.Release()
	b.Release()

	next, err := m.Acquire(context.Background(), time.Second)
	require.NoError(t, err)
	require.Equal(t, b.ID(), next.ID())
	next.Release()
}

func TestManager_SlowRoundTripsDegradeScore(t *testing.T) {
	t.Parallel()

	m := newTestManager(
		t,
		&fakeConnector{},
		WithSize(0, 1),
		WithDecayFactor(1),
		WithHealthFloor(0.1),
		WithLatencyBudget(10*time.Millisecond),
	)

	lease, err := m.Acquire(context.Background(), time.Second)
	require.NoError(t, err)
	lease.Report(40*time.Millisecond, nil)
	lease.Release()

	conns := m.Connections()
	require.Len(t, conns, 1)
	require.InDelta(t, 0.25, conns[0].HealthScore, 0.0001)
}

func TestManager_ConcurrentNeverExceedsMax(t *testing.T) {
	t.Parallel()

	const maxSize = 4
	m := newTestManager(t, &fakeConnector{}, WithSize(1, maxSize))

	var (
		inUse   atomic.Int32
		maxSeen atomic.Int32
		wg      sync.WaitGroup
	)
	for range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 20 {
				lease, err := m.Acquire(context.Background(), 2*time.Second)
				if err != nil {
					continue
				}
				n := inUse.Add(1)
				for {
					seen := maxSeen.Load()
					if n <= seen || maxSeen.CompareAndSwap(seen, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				inUse.Add(-1)
				lease.Release()
			}
		}()
	}
	wg.Wait()

	require.LessOrEqual(t, maxSeen.Load(), int32(maxSize))
	require.LessOrEqual(t, m.Stats().Size, maxSize)
}

func TestManager_Resize(t *testing.T) {
	t.Parallel()

	connector := &fakeConnector{}
	m := newTestManager(t, connector, WithSize(4, 6))
	require.NoError(t, m.Fill(context.Background()))

	held, err := m.Acquire(context.Background(), time.Second)
	require.NoError(t, err)

	require.NoError(t, m.Resize(1, 2))
	stats := m.Stats()
	require.Equal(t, 2, stats.Size)
	require.Equal(t, 1, stats.InUse)
	require.Equal(t, 2, stats.MaxSize)
	require.Equal(t, 2, connector.closedCount())

	held.Release()
	require.Equal(t, 2, m.Stats().Size)

	require.Error(t, m.Resize(3, 2))
	require.Error(t, m.Resize(-1, 2))
}

func TestManager_ResizeNeverClosesLeases(t *testing.T) {
	t.Parallel()

	connector := &fakeConnector{}
	m := newTestManager(t, connector, WithSize(0, 3))

	var leases []*Lease
	for range 3 {
		l, err := m.Acquire(context.Background(), time.Second)
		require.NoError(t, err)
		leases = append(leases, l)
	}

	require.NoError(t, m.Resize(0, 1))
	require.Equal(t, 0, connector.closedCount())
	require.Equal(t, 3, m.Stats().InUse)

	for _, l := range leases {
		l.Release()
	}
	require.Equal(t, 1, m.Stats().Size)
	require.Equal(t, 2, connector.closedCount())
}

func TestManager_LeakDetection(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	connector := &fakeConnector{}
	m := newTestManager(t, connector, WithSize(0, 2), WithLeakDetection(time.Minute, 30*time.Second))
	m.now = clock.Now

	lease, err := m.Acquire(context.Background(), time.Second)
	require.NoError(t, err)

	clock.Advance(30 * time.Second)
	m.Sweep(context.Background())
	require.Equal(t, 0, m.Stats().Leaked)

	clock.Advance(31 * time.Second)
	m.Sweep(context.Background())
	require.Equal(t, 1, m.Stats().Leaked)
	require.Equal(t, 0, connector.closedCount())

	clock.Advance(30 * time.Second)
	m.Sweep(context.Background())
	stats := m.Stats()
	require.Equal(t, uint64(1), stats.Reclaimed)
	require.Equal(t, 0, stats.Size)
	require.Equal(t, 1, connector.closedCount())

	// The leaking caller eventually releases; nothing happens to the pool.
	lease.Release()
	require.Equal(t, 0, m.Stats().Size)
}

func TestManager_SweepIdleTimeoutAndRefill(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	connector := &fakeConnector{}
	m := newTestManager(t, connector, WithSize(1, 4), WithIdleTimeout(time.Minute))
	m.now = clock.Now

	var leases []*Lease
	for range 3 {
		l, err := m.Acquire(context.Background(), time.Second)
		require.NoError(t, err)
		leases = append(leases, l)
	}
	for _, l := range leases {
		l.Release()
	}
	require.Equal(t, 3, m.Stats().Size)

	clock.Advance(2 * time.Minute)
	m.Sweep(context.Background())
	require.Equal(t, 1, m.Stats().Size)

	require.NoError(t, m.Resize(3, 4))
	m.Sweep(context.Background())
	require.Equal(t, 3, m.Stats().Size)
}

func TestManager_Reset(t *testing.T) {
	t.Parallel()

	connector := &fakeConnector{}
	m := newTestManager(t, connector, WithSize(2, 4))
	require.NoError(t, m.Fill(context.Background()))

	held, err := m.Acquire(context.Background(), time.Second)
	require.NoError(t, err)

	require.NoError(t, m.Reset(context.Background()))
	require.Equal(t, 1, connector.closedCount())

	held.Release()
	require.Equal(t, 2, connector.closedCount())
	require.Equal(t, 1, m.Stats().Size)
	require.Equal(t, int64(3), connector.opened.Load())

	m.Sweep(context.Background())
	require.Equal(t, 2, m.Stats().Size)
	require.Equal(t, int64(4), connector.opened.Load())
}

func TestManager_ConnectFailure(t *testing.T) {
	t.Parallel()

	connector := &fakeConnector{}
	connector.fail.Store(true)
	m := newTestManager(t, connector, WithSize(0, 2))

	_, err := m.Acquire(context.Background(), time.Second)
	require.ErrorIs(t, err, ErrConnectFailed)
	require.Equal(t, uint64(1), m.Stats().ConnectErrors)

	require.NoError(t, m.Fill(context.Background()))
}
