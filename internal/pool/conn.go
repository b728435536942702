package pool

import (
	"time"

	"github.com/obaidsafi51/Multi-Agent-BI-System-sub002/internal/dbclient"
)

// ConnState is the lifecycle state of a pooled connection.
// A connection is in exactly one state at any instant; all transitions
// happen under the pool lock.
type ConnState int

const (
	StateIdle      ConnState = iota // in the pool, ready for acquisition
	StateActive                     // checked out by a caller
	StateUnhealthy                  // failed its last health check, excluded from reuse
	StateClosing                    // selected for removal, client shutdown pending
	StateClosed                     // client shut down, no longer tracked
)

func (s ConnState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateActive:
		return "active"
	case StateUnhealthy:
		return "unhealthy"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ConnInfo is a point-in-time snapshot of a connection's bookkeeping.
type ConnInfo struct {
	ID              string    `json:"id"`
	CreatedAt       time.Time `json:"created_at"`
	LastUsed        time.Time `json:"last_used"`
	LastHealthCheck time.Time `json:"last_health_check"`
	State           string    `json:"state"`
	UseCount        int64     `json:"use_count"`
	ErrorCount      int       `json:"error_count"`
}

// Conn is a pooled schema client. All mutable fields are owned by the pool
// and guarded by its lock; callers only read the client handle.
type Conn struct {
	id     string
	client dbclient.SchemaClient
	pool   *Pool

	// guarded by pool.mu
	state           ConnState
	createdAt       time.Time
	lastUsed        time.Time
	lastHealthCheck time.Time
	useCount        int64
	errorCount      int
	checking        bool // temporarily withheld from reuse during a health probe
}

// ID returns the connection's unique identifier.
func (c *Conn) ID() string { return c.id }

// Client returns the schema client owned by this connection. The caller may
// use it only between Acquire and Release.
func (c *Conn) Client() dbclient.SchemaClient { return c.client }

// Info returns a snapshot of the connection's bookkeeping.
func (c *Conn) Info() ConnInfo {
	c.pool.mu.Lock()
	defer c.pool.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Conn) snapshotLocked() ConnInfo {
	return ConnInfo{
		ID:              c.id,
		CreatedAt:       c.createdAt,
		LastUsed:        c.lastUsed,
		LastHealthCheck: c.lastHealthCheck,
		State:           c.state.String(),
		UseCount:        c.useCount,
		ErrorCount:      c.errorCount,
	}
}

// expiredLocked reports whether the connection has outlived MaxConnAge.
func (c *Conn) expiredLocked(now time.Time) bool {
	return c.pool.cfg.MaxConnAge > 0 && now.Sub(c.createdAt) > c.pool.cfg.MaxConnAge
}

// idleTooLongLocked reports whether the connection has sat idle past IdleTimeout.
func (c *Conn) idleTooLongLocked(now time.Time) bool {
	return c.pool.cfg.IdleTimeout > 0 && now.Sub(c.lastUsed) > c.pool.cfg.IdleTimeout
}
