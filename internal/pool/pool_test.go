package pool

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obaidsafi51/Multi-Agent-BI-System-sub002/internal/dbclient"
	"github.com/obaidsafi51/Multi-Agent-BI-System-sub002/internal/errs"
	"github.com/obaidsafi51/Multi-Agent-BI-System-sub002/internal/logger"
)

// fakeClient is a controllable SchemaClient for pool tests.
type fakeClient struct {
	healthy atomic.Bool
	closed  atomic.Bool
}

func newFakeClient() *fakeClient {
	c := &fakeClient{}
	c.healthy.Store(true)
	return c
}

func (c *fakeClient) ListDatabases(context.Context) ([]string, error) {
	return []string{"finance"}, nil
}

func (c *fakeClient) ListTables(context.Context, string) ([]string, error) {
	return []string{"financial_overview"}, nil
}

func (c *fakeClient) GetTableSchema(_ context.Context, database, table string) (*dbclient.TableSchema, error) {
	return &dbclient.TableSchema{Database: database, Name: table}, nil
}

func (c *fakeClient) HealthCheck(context.Context) bool { return c.healthy.Load() }

func (c *fakeClient) Close(context.Context) error {
	c.closed.Store(true)
	return nil
}

// trackingFactory records every client it hands out.
type trackingFactory struct {
	mu      sync.Mutex
	clients []*fakeClient
	fail    atomic.Bool
	dials   atomic.Int64
}

func (f *trackingFactory) factory(context.Context) (dbclient.SchemaClient, error) {
	f.dials.Add(1)
	if f.fail.Load() {
		return nil, errors.New("backend unreachable")
	}
	c := newFakeClient()
	f.mu.Lock()
	f.clients = append(f.clients, c)
	f.mu.Unlock()
	return c, nil
}

func quietConfig() *Config {
	cfg := DefaultConfig()
	cfg.MinConns = 0 // no async top-up noise in tests
	cfg.CleanupInterval = time.Hour
	cfg.HealthCheckInterval = time.Hour
	return cfg
}

func newTestPool(t *testing.T, cfg *Config) (*Pool, *trackingFactory) {
	t.Helper()
	f := &trackingFactory{}
	p, err := New(cfg, f.factory, logger.Nop())
	require.NoError(t, err)
	t.Cleanup(p.Close)
	return p, f
}

func TestNew_RequiresFactory(t *testing.T) {
	_, err := New(DefaultConfig(), nil, logger.Nop())
	require.Error(t, err)
	assert.True(t, errs.IsInvalidInput(err))
}

func TestPool_AcquireRelease(t *testing.T) {
	p, f := newTestPool(t, quietConfig())
	ctx := context.Background()

	conn, err := p.Acquire(ctx)
	require.NoError(t, err)
	require.NotNil(t, conn)
	assert.EqualValues(t, 1, f.dials.Load())

	stats := p.Stats()
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, stats.Active)
	assert.Equal(t, 0, stats.Idle)

	p.Release(conn)

	stats = p.Stats()
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 0, stats.Active)
	assert.Equal(t, 1, stats.Idle)

	// The idle connection is reused, not re-dialed.
	conn2, err := p.Acquire(ctx)
	require.NoError(t, err)
	assert.Equal(t, conn.ID(), conn2.ID())
	assert.EqualValues(t, 1, f.dials.Load())
	p.Release(conn2)
}

func TestPool_DoubleReleaseIsNoop(t *testing.T) {
	p, _ := newTestPool(t, quietConfig())

	conn, err := p.Acquire(context.Background())
	require.NoError(t, err)

	p.Release(conn)
	p.Release(conn) // must not corrupt accounting

	stats := p.Stats()
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, stats.Idle)
	assert.Equal(t, 0, stats.Active)
}

func TestPool_SaturationTimesOut(t *testing.T) {
	cfg := quietConfig()
	cfg.MaxConns = 1
	cfg.AcquireTimeout = 50 * time.Millisecond
	p, _ := newTestPool(t, cfg)

	conn, err := p.Acquire(context.Background())
	require.NoError(t, err)
	defer p.Release(conn)

	start := time.Now()
	_, err = p.Acquire(context.Background())
	require.Error(t, err)
	assert.True(t, errs.IsTimeout(err))
	assert.Less(t, time.Since(start), 5*time.Second, "acquire must not hang")

	assert.EqualValues(t, 1, p.Metrics().Timeouts)
}

func TestPool_ContextCancelWhileWaiting(t *testing.T) {
	cfg := quietConfig()
	cfg.MaxConns = 1
	cfg.AcquireTimeout = time.Minute
	p, _ := newTestPool(t, cfg)

	conn, err := p.Acquire(context.Background())
	require.NoError(t, err)
	defer p.Release(conn)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = p.Acquire(ctx)
	require.Error(t, err)
	assert.True(t, errs.IsTimeout(err))
}

func TestPool_WaiterHandoff(t *testing.T) {
	cfg := quietConfig()
	cfg.MaxConns = 1
	cfg.AcquireTimeout = 5 * time.Second
	p, _ := newTestPool(t, cfg)

	conn, err := p.Acquire(context.Background())
	require.NoError(t, err)

	got := make(chan *Conn, 1)
	go func() {
		c, err := p.Acquire(context.Background())
		if err != nil {
			got <- nil
			return
		}
		got <- c
	}()

	// Wait until the second Acquire has joined the queue.
	require.Eventually(t, func() bool {
		return p.Stats().Waiters == 1
	}, 2*time.Second, 5*time.Millisecond)

	p.Release(conn)

	select {
	case c := <-got:
		require.NotNil(t, c)
		assert.Equal(t, conn.ID(), c.ID())
		p.Release(c)
	case <-time.After(2 * time.Second):
		t.Fatal("waiter never received the released connection")
	}
}

func TestPool_ExpiredReleaseWakesWaiter(t *testing.T) {
	cfg := quietConfig()
	cfg.MaxConns = 1
	cfg.MaxConnAge = 30 * time.Millisecond
	cfg.AcquireTimeout = 5 * time.Second
	p, f := newTestPool(t, cfg)

	conn, err := p.Acquire(context.Background())
	require.NoError(t, err)

	got := make(chan *Conn, 1)
	errCh := make(chan error, 1)
	go func() {
		c, err := p.Acquire(context.Background())
		if err != nil {
			errCh <- err
			return
		}
		got <- c
	}()

	require.Eventually(t, func() bool {
		return p.Stats().Waiters == 1
	}, 2*time.Second, 5*time.Millisecond)

	// Outlive MaxConnAge so the release destroys the connection instead of
	// handing it over. The freed slot must still serve the waiter.
	time.Sleep(50 * time.Millisecond)
	released := time.Now()
	p.Release(conn)

	select {
	case c := <-got:
		assert.NotEqual(t, conn.ID(), c.ID(), "waiter should get a replacement, not the expired connection")
		assert.Less(t, time.Since(released), 2*time.Second, "waiter should resume promptly, not sit out the acquire timeout")
		p.Release(c)
	case err := <-errCh:
		t.Fatalf("waiter failed: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("waiter still suspended after the slot freed")
	}
	assert.EqualValues(t, 2, f.dials.Load())
}

// gatedFactory blocks each dial until the test feeds it an outcome.
type gatedFactory struct {
	gate  chan error
	dials atomic.Int64
}

func (f *gatedFactory) factory(context.Context) (dbclient.SchemaClient, error) {
	f.dials.Add(1)
	if err := <-f.gate; err != nil {
		return nil, err
	}
	return newFakeClient(), nil
}

func TestPool_DialFailureWakesWaiter(t *testing.T) {
	cfg := quietConfig()
	cfg.MaxConns = 1
	cfg.AcquireTimeout = 5 * time.Second
	f := &gatedFactory{gate: make(chan error)}
	p, err := New(cfg, f.factory, logger.Nop())
	require.NoError(t, err)
	defer p.Close()

	firstErr := make(chan error, 1)
	go func() {
		_, err := p.Acquire(context.Background())
		firstErr <- err
	}()

	// The in-flight dial reserves the only slot.
	require.Eventually(t, func() bool {
		return f.dials.Load() == 1
	}, 2*time.Second, 5*time.Millisecond)

	got := make(chan *Conn, 1)
	waiterErr := make(chan error, 1)
	go func() {
		c, err := p.Acquire(context.Background())
		if err != nil {
			waiterErr <- err
			return
		}
		got <- c
	}()

	require.Eventually(t, func() bool {
		return p.Stats().Waiters == 1
	}, 2*time.Second, 5*time.Millisecond)

	// Fail the first dial. Its reserved slot frees with a waiter queued, so
	// the waiter must be woken to retry the create path.
	f.gate <- errors.New("backend unreachable")

	err = <-firstErr
	require.Error(t, err)
	assert.True(t, errs.IsConnectionFailed(err))

	f.gate <- nil

	select {
	case c := <-got:
		require.NotNil(t, c)
		p.Release(c)
	case err := <-waiterErr:
		t.Fatalf("waiter failed: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("waiter was not woken after the failed dial freed the slot")
	}
	assert.EqualValues(t, 2, f.dials.Load())
}

func TestPool_FactoryFailure(t *testing.T) {
	p, f := newTestPool(t, quietConfig())
	f.fail.Store(true)

	_, err := p.Acquire(context.Background())
	require.Error(t, err)
	assert.True(t, errs.IsConnectionFailed(err))

	// The reserved slot must be returned so later dials can proceed.
	f.fail.Store(false)
	conn, err := p.Acquire(context.Background())
	require.NoError(t, err)
	p.Release(conn)

	assert.EqualValues(t, 1, p.Metrics().FactoryFailures)
}

func TestPool_NeverExceedsMaxConns(t *testing.T) {
	cfg := quietConfig()
	cfg.MaxConns = 4
	cfg.AcquireTimeout = 2 * time.Second
	p, f := newTestPool(t, cfg)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				conn, err := p.Acquire(context.Background())
				if err != nil {
					continue
				}
				if total := p.Stats().Total; total > cfg.MaxConns {
					t.Errorf("pool grew to %d connections, max is %d", total, cfg.MaxConns)
				}
				time.Sleep(time.Duration(rand.Intn(500)) * time.Microsecond)
				p.Release(conn)
			}
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, p.Metrics().PeakSize, cfg.MaxConns)
	assert.LessOrEqual(t, int(f.dials.Load()), cfg.MaxConns*25*16)
}

func TestPool_WithConnReleasesOnError(t *testing.T) {
	p, _ := newTestPool(t, quietConfig())

	sentinel := errors.New("query failed")
	err := p.WithConn(context.Background(), func(ctx context.Context, client dbclient.SchemaClient) error {
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)

	stats := p.Stats()
	assert.Equal(t, 0, stats.Active)
	assert.Equal(t, 1, stats.Idle)
}

func TestPool_CloseFailsWaitersAndClients(t *testing.T) {
	cfg := quietConfig()
	cfg.MaxConns = 1
	cfg.AcquireTimeout = time.Minute
	f := &trackingFactory{}
	p, err := New(cfg, f.factory, logger.Nop())
	require.NoError(t, err)

	conn, err := p.Acquire(context.Background())
	require.NoError(t, err)
	_ = conn

	waiterErr := make(chan error, 1)
	go func() {
		_, err := p.Acquire(context.Background())
		waiterErr <- err
	}()
	require.Eventually(t, func() bool {
		return p.Stats().Waiters == 1
	}, 2*time.Second, 5*time.Millisecond)

	p.Close()
	p.Close() // idempotent

	err = <-waiterErr
	require.Error(t, err)
	assert.True(t, errs.IsUnavailable(err))

	_, err = p.Acquire(context.Background())
	assert.True(t, errs.IsUnavailable(err))

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.clients {
		assert.True(t, c.closed.Load(), "every client must be closed on pool shutdown")
	}
}

func TestPool_HealthCheckDemotesAndRestores(t *testing.T) {
	cfg := quietConfig()
	cfg.HealthCheckInterval = 10 * time.Millisecond
	cfg.HealthCheckTimeout = time.Second
	p, f := newTestPool(t, cfg)

	conn, err := p.Acquire(context.Background())
	require.NoError(t, err)
	p.Release(conn)

	f.mu.Lock()
	client := f.clients[0]
	f.mu.Unlock()

	client.healthy.Store(false)
	require.Eventually(t, func() bool {
		return p.Stats().Unhealthy == 1
	}, 2*time.Second, 5*time.Millisecond, "failing probe must demote the connection")

	client.healthy.Store(true)
	require.Eventually(t, func() bool {
		s := p.Stats()
		return s.Unhealthy == 0 && s.Idle == 1
	}, 2*time.Second, 5*time.Millisecond, "passing probe must restore the connection")
}

func TestPool_CleanupEvictsExpired(t *testing.T) {
	cfg := quietConfig()
	cfg.MaxConnAge = 20 * time.Millisecond
	cfg.CleanupInterval = 10 * time.Millisecond
	p, _ := newTestPool(t, cfg)

	conn, err := p.Acquire(context.Background())
	require.NoError(t, err)
	p.Release(conn)

	require.Eventually(t, func() bool {
		return p.Stats().Total == 0
	}, 2*time.Second, 5*time.Millisecond, "aged-out idle connection must be evicted")
	assert.Greater(t, p.Metrics().Evictions, int64(0))
}

func TestPool_TopUpToMinConns(t *testing.T) {
	cfg := quietConfig()
	cfg.MinConns = 2
	p, _ := newTestPool(t, cfg)

	require.Eventually(t, func() bool {
		return p.Stats().Idle == 2
	}, 2*time.Second, 5*time.Millisecond, "pool must warm up to MinConns")
}

func TestPool_MetricsAccumulate(t *testing.T) {
	p, _ := newTestPool(t, quietConfig())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		conn, err := p.Acquire(ctx)
		require.NoError(t, err)
		p.Release(conn)
	}

	m := p.Metrics()
	assert.EqualValues(t, 3, m.Acquisitions)
	assert.EqualValues(t, 1, m.Created)
	assert.GreaterOrEqual(t, m.AvgAcquireLatency, time.Duration(0))

	p.ResetMetrics()
	assert.EqualValues(t, 0, p.Metrics().Acquisitions)
}
