// Package pool implements a bounded pool of reusable schema-client
// connections with health checking and age-based eviction.
//
// The pool never assumes concrete protocol semantics: connections are
// created through an injected dbclient.Factory and probed through the
// client's own HealthCheck. Two background loops (cleanup, health check)
// run for the lifetime of the pool and stop when Close is called.
package pool

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/obaidsafi51/Multi-Agent-BI-System-sub002/internal/dbclient"
	"github.com/obaidsafi51/Multi-Agent-BI-System-sub002/internal/errs"
	"github.com/obaidsafi51/Multi-Agent-BI-System-sub002/internal/logger"
)

const closeTimeout = 5 * time.Second

// waiter represents one Acquire call suspended on a saturated pool.
// The channel is buffered so a releasing goroutine never blocks on handoff.
type waiter struct {
	ch chan *Conn
}

// Pool owns a bounded set of schema-client connections.
type Pool struct {
	cfg     *Config
	factory dbclient.Factory
	log     *logger.Logger

	mu       sync.Mutex
	conns    map[string]*Conn
	idle     []*Conn
	waiters  []*waiter
	reserved int // slots held by in-flight factory calls
	closed   bool
	met      metrics

	loopCtx    context.Context
	loopCancel context.CancelFunc
	wg         sync.WaitGroup
}

// New creates a pool and starts its background loops. The pool is topped up
// to MinConns asynchronously; New never blocks on the factory.
func New(cfg *Config, factory dbclient.Factory, log *logger.Logger) (*Pool, error) {
	if factory == nil {
		return nil, errs.New(errs.ErrKindInvalidInput, "pool requires a connection factory")
	}
	if log == nil {
		log = logger.Nop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		cfg:        cfg.withDefaults(),
		factory:    factory,
		log:        log.With().Str("component", "pool").Logger(),
		conns:      make(map[string]*Conn),
		loopCtx:    ctx,
		loopCancel: cancel,
	}

	p.wg.Add(2)
	go p.cleanupLoop()
	go p.healthCheckLoop()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.topUp()
	}()

	p.log.With().
		Int("max_conns", p.cfg.MaxConns).
		Int("min_conns", p.cfg.MinConns).
		Dur("acquire_timeout", p.cfg.AcquireTimeout).
		Logger().Info("connection pool started")

	return p, nil
}

// Acquire returns an idle connection, creates a new one if the pool is
// under MaxConns, or waits until a slot frees up. A suspended caller is
// resumed either by a direct handoff of a released connection or by a wake
// signal when a slot frees without one (expiry, eviction, failed dial); a
// wake retries the idle/create path under the original deadline. When
// neither happens within AcquireTimeout (or the caller's context deadline)
// Acquire fails with an ErrKindTimeout error, counted separately from
// other failures.
func (p *Pool) Acquire(ctx context.Context) (*Conn, error) {
	start := time.Now()

	timer := time.NewTimer(p.cfg.AcquireTimeout)
	defer timer.Stop()

	for {
		conn, w, err := p.acquireOrEnqueue(ctx, start)
		if err != nil {
			return nil, err
		}
		if conn != nil {
			return conn, nil
		}

		select {
		case conn := <-w.ch:
			p.mu.Lock()
			if p.closed {
				p.mu.Unlock()
				return nil, errs.New(errs.ErrKindUnavailable, "pool is closed")
			}
			if conn == nil {
				// A slot freed without a connection to hand over; retry
				// the idle/create path.
				p.mu.Unlock()
				continue
			}
			p.markAcquiredLocked(conn, start)
			p.mu.Unlock()
			return conn, nil

		case <-timer.C:
			p.abandonWaiter(w)
			p.mu.Lock()
			p.met.timeouts++
			p.mu.Unlock()
			return nil, errs.New(errs.ErrKindTimeout, "timed out waiting for a connection")

		case <-ctx.Done():
			p.abandonWaiter(w)
			p.mu.Lock()
			p.met.timeouts++
			p.mu.Unlock()
			return nil, errs.Wrap(errs.ErrKindTimeout, "cancelled while waiting for a connection", ctx.Err())
		}
	}
}

// acquireOrEnqueue performs one pass of the acquire path: idle reuse, then
// create under MaxConns, then join the waiter queue. Exactly one of conn,
// w, err is non-zero.
func (p *Pool) acquireOrEnqueue(ctx context.Context, start time.Time) (*Conn, *waiter, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, nil, errs.New(errs.ErrKindUnavailable, "pool is closed")
	}

	if conn := p.popIdleLocked(time.Now()); conn != nil {
		p.markAcquiredLocked(conn, start)
		p.mu.Unlock()
		return conn, nil, nil
	}

	if len(p.conns)+p.reserved < p.cfg.MaxConns {
		p.reserved++
		p.mu.Unlock()

		conn, err := p.dial(ctx)

		p.mu.Lock()
		p.reserved--
		if err != nil {
			p.met.factoryFailures++
			// The reserved slot is free again; a suspended waiter gets to
			// retry instead of sitting out its full timeout.
			p.wakeWaiterLocked()
			p.mu.Unlock()
			return nil, nil, errs.Wrap(errs.ErrKindConnectionFailed, "connection factory failed", err)
		}
		if p.closed {
			p.mu.Unlock()
			p.shutdownClient(conn)
			return nil, nil, errs.New(errs.ErrKindUnavailable, "pool is closed")
		}
		p.registerLocked(conn)
		p.markAcquiredLocked(conn, start)
		p.mu.Unlock()
		return conn, nil, nil
	}

	// Saturated: join the waiter queue.
	w := &waiter{ch: make(chan *Conn, 1)}
	p.waiters = append(p.waiters, w)
	p.mu.Unlock()
	return nil, w, nil
}

// Release returns an Active connection to the pool. Releasing a connection
// that is not Active (double release, already evicted) is a logged no-op,
// so sloppy callers cannot corrupt the idle/active accounting.
func (p *Pool) Release(conn *Conn) {
	if conn == nil {
		return
	}

	p.mu.Lock()
	if conn.state != StateActive {
		state := conn.state.String()
		p.mu.Unlock()
		p.log.With().Str("conn_id", conn.id).Str("state", state).Logger().
			Warn("release of a non-active connection ignored")
		return
	}

	now := time.Now()
	conn.lastUsed = now

	if p.closed || conn.expiredLocked(now) {
		p.removeLocked(conn)
		// The slot is free even though the connection is gone; wake the
		// head waiter so it can dial a replacement.
		p.wakeWaiterLocked()
		p.mu.Unlock()
		p.shutdownClient(conn)
		return
	}

	// Direct handoff to the longest-suspended waiter, if any.
	if len(p.waiters) > 0 {
		w := p.waiters[0]
		p.waiters = p.waiters[1:]
		w.ch <- conn // stays Active; buffered, never blocks
		p.mu.Unlock()
		return
	}

	conn.state = StateIdle
	p.idle = append(p.idle, conn)
	p.mu.Unlock()
}

// WithConn runs fn with an acquired client and releases the connection on
// every exit path, including panics.
func (p *Pool) WithConn(ctx context.Context, fn func(ctx context.Context, client dbclient.SchemaClient) error) error {
	conn, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer p.Release(conn)
	return fn(ctx, conn.client)
}

// Stats returns a snapshot of pool occupancy.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := Stats{
		Total:    len(p.conns),
		Waiters:  len(p.waiters),
		MaxConns: p.cfg.MaxConns,
	}
	for _, c := range p.conns {
		switch c.state {
		case StateIdle:
			s.Idle++
		case StateActive:
			s.Active++
		case StateUnhealthy:
			s.Unhealthy++
		}
	}
	if s.MaxConns > 0 {
		s.Utilization = float64(s.Active) / float64(s.MaxConns)
	}
	return s
}

// Metrics returns a snapshot of the pool counters.
func (p *Pool) Metrics() Metrics {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.met.snapshot()
}

// ResetMetrics zeroes all pool counters.
func (p *Pool) ResetMetrics() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.met = metrics{}
}

// Connections returns snapshots of every tracked connection.
func (p *Pool) Connections() []ConnInfo {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]ConnInfo, 0, len(p.conns))
	for _, c := range p.conns {
		out = append(out, c.snapshotLocked())
	}
	return out
}

// Close stops the background loops, fails all suspended waiters, and shuts
// every client down. Close is idempotent.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true

	for _, w := range p.waiters {
		w.ch <- nil
	}
	p.waiters = nil

	victims := make([]*Conn, 0, len(p.conns))
	for _, c := range p.conns {
		c.state = StateClosing
		victims = append(victims, c)
	}
	p.conns = make(map[string]*Conn)
	p.idle = nil
	p.mu.Unlock()

	p.loopCancel()
	p.wg.Wait()

	for _, c := range victims {
		p.shutdownClient(c)
	}
	p.log.Info("connection pool closed")
}

// --- internals ---

// popIdleLocked returns the most recently used healthy idle connection,
// evicting expired ones it encounters along the way.
func (p *Pool) popIdleLocked(now time.Time) *Conn {
	for len(p.idle) > 0 {
		conn := p.idle[len(p.idle)-1]
		p.idle = p.idle[:len(p.idle)-1]

		if conn.expiredLocked(now) {
			p.removeLocked(conn)
			go p.shutdownClient(conn)
			continue
		}
		return conn
	}
	return nil
}

func (p *Pool) markAcquiredLocked(conn *Conn, start time.Time) {
	conn.state = StateActive
	conn.useCount++
	conn.lastUsed = time.Now()
	p.met.acquisitions++
	p.met.totalAcquireWait += time.Since(start)
}

func (p *Pool) registerLocked(conn *Conn) {
	p.conns[conn.id] = conn
	p.met.created++
	if len(p.conns) > p.met.peakSize {
		p.met.peakSize = len(p.conns)
	}
}

// removeLocked untracks a connection. The caller is responsible for closing
// the client outside the lock.
func (p *Pool) removeLocked(conn *Conn) {
	conn.state = StateClosing
	delete(p.conns, conn.id)
	for i, c := range p.idle {
		if c == conn {
			p.idle = append(p.idle[:i], p.idle[i+1:]...)
			break
		}
	}
}

// abandonWaiter drops w from the queue after a timeout. If a release raced
// a connection into the channel, the connection is fed back to the pool.
func (p *Pool) abandonWaiter(w *waiter) {
	p.mu.Lock()
	for i, cand := range p.waiters {
		if cand == w {
			p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
			p.mu.Unlock()
			return
		}
	}
	p.mu.Unlock()

	// Not in the queue: a handoff may already be in flight.
	select {
	case conn := <-w.ch:
		if conn != nil {
			p.Release(conn)
			return
		}
		// A wake signal raced the timeout; pass it to the next waiter so
		// it is not lost.
		p.mu.Lock()
		p.wakeWaiterLocked()
		p.mu.Unlock()
	default:
	}
}

// wakeWaiterLocked pops the longest-suspended waiter, if any, and signals
// it to retry the acquire path. Used when a slot frees without a live
// connection to hand over.
func (p *Pool) wakeWaiterLocked() {
	if len(p.waiters) == 0 {
		return
	}
	w := p.waiters[0]
	p.waiters = p.waiters[1:]
	w.ch <- nil
}

// dial runs the factory under the tighter of the caller's deadline and
// ConnectTimeout.
func (p *Pool) dial(ctx context.Context) (*Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, p.cfg.ConnectTimeout)
	defer cancel()

	client, err := p.factory(dialCtx)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	return &Conn{
		id:        uuid.NewString(),
		client:    client,
		pool:      p,
		state:     StateIdle,
		createdAt: now,
		lastUsed:  now,
	}, nil
}

func (p *Pool) shutdownClient(conn *Conn) {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()

	if err := conn.client.Close(ctx); err != nil {
		p.log.With().Str("conn_id", conn.id).Err(err).Logger().
			Warn("error closing connection client")
	}

	p.mu.Lock()
	conn.state = StateClosed
	p.met.closed++
	p.mu.Unlock()
}
