package pool

import (
	"context"
	"time"
)

// cleanupLoop evicts aged and over-idle connections on a fixed interval and
// tops the pool back up to MinConns.
func (p *Pool) cleanupLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.loopCtx.Done():
			return
		case <-ticker.C:
			p.cleanup()
			p.topUp()
		}
	}
}

// cleanup selects eviction victims under the lock and closes them outside it.
// Only Idle and Unhealthy connections are considered; an Active connection
// is never evicted mid-use (expiry is handled on release instead).
func (p *Pool) cleanup() {
	now := time.Now()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}

	var victims []*Conn
	for _, c := range p.conns {
		if c.checking || c.state == StateActive || c.state == StateClosing {
			continue
		}
		switch {
		case c.expiredLocked(now):
			victims = append(victims, c)
		case c.state == StateIdle && c.idleTooLongLocked(now) && len(p.conns)-len(victims) > p.cfg.MinConns:
			victims = append(victims, c)
		}
	}
	for _, c := range victims {
		p.removeLocked(c)
		p.met.evictions++
		// Each eviction frees a slot a suspended waiter can use.
		p.wakeWaiterLocked()
	}
	p.mu.Unlock()

	for _, c := range victims {
		p.log.With().Str("conn_id", c.id).Logger().Debug("evicting connection")
		p.shutdownClient(c)
	}
}

// topUp grows the pool back to MinConns with idle connections. Factory
// failures are logged and abort the round; the next tick retries.
func (p *Pool) topUp() {
	for {
		p.mu.Lock()
		if p.closed || len(p.conns)+p.reserved >= p.cfg.MinConns {
			p.mu.Unlock()
			return
		}
		p.reserved++
		p.mu.Unlock()

		conn, err := p.dial(p.loopCtx)

		p.mu.Lock()
		p.reserved--
		if err != nil {
			p.met.factoryFailures++
			p.mu.Unlock()
			if p.loopCtx.Err() == nil {
				p.log.With().Err(err).Logger().Warn("pool top-up failed")
			}
			return
		}
		if p.closed {
			p.mu.Unlock()
			p.shutdownClient(conn)
			return
		}
		p.registerLocked(conn)
		p.idle = append(p.idle, conn)
		p.mu.Unlock()
	}
}

// healthCheckLoop probes idle connections on a fixed interval. Connections
// currently acquired are never probed.
func (p *Pool) healthCheckLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.loopCtx.Done():
			return
		case <-ticker.C:
			p.healthCheck()
		}
	}
}

// healthCheck probes Idle connections whose last check is stale, plus every
// Unhealthy connection (its path back to Idle). Candidates are withheld from
// acquisition while the probe runs so a caller can never observe I/O on a
// connection it owns.
func (p *Pool) healthCheck() {
	now := time.Now()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}

	var candidates []*Conn
	for _, c := range p.conns {
		if c.checking {
			continue
		}
		switch c.state {
		case StateIdle:
			if now.Sub(c.lastHealthCheck) >= p.cfg.HealthCheckInterval {
				candidates = append(candidates, c)
			}
		case StateUnhealthy:
			candidates = append(candidates, c)
		}
	}
	for _, c := range candidates {
		c.checking = true
		if c.state == StateIdle {
			p.dropFromIdleLocked(c)
		}
	}
	p.mu.Unlock()

	for _, c := range candidates {
		ok := p.probe(c)

		p.mu.Lock()
		c.checking = false
		c.lastHealthCheck = time.Now()
		if p.closed || c.state == StateClosing || c.state == StateClosed {
			p.mu.Unlock()
			continue
		}
		if ok {
			recovered := c.state == StateUnhealthy
			c.errorCount = 0
			p.met.healthChecksPassed++
			if len(p.waiters) > 0 {
				// Hand the connection straight to the head waiter instead
				// of parking it idle while callers are suspended.
				w := p.waiters[0]
				p.waiters = p.waiters[1:]
				c.state = StateActive
				w.ch <- c
			} else {
				c.state = StateIdle
				p.idle = append(p.idle, c)
			}
			p.mu.Unlock()
			if recovered {
				p.log.With().Str("conn_id", c.id).Logger().Info("connection recovered")
			}
			continue
		}
		c.state = StateUnhealthy
		c.errorCount++
		p.met.healthChecksFailed++
		p.mu.Unlock()
		p.log.With().Str("conn_id", c.id).Logger().Warn("connection failed health check")
	}
}

func (p *Pool) probe(c *Conn) bool {
	ctx, cancel := context.WithTimeout(p.loopCtx, p.cfg.HealthCheckTimeout)
	defer cancel()
	return c.client.HealthCheck(ctx)
}

func (p *Pool) dropFromIdleLocked(conn *Conn) {
	for i, c := range p.idle {
		if c == conn {
			p.idle = append(p.idle[:i], p.idle[i+1:]...)
			return
		}
	}
}
