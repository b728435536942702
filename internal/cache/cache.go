// Package cache provides the TTL-keyed metadata cache used to memoize
// discovered schema and term-mapping results.
//
// All layers talk to the Store interface; the in-memory implementation in
// this package is the default, and the redis subpackage provides a
// networked drop-in for multi-process deployments. Richer size-bounded or
// tag-indexed stores can be substituted without changing callers.
package cache

import (
	"context"
	"time"
)

// Store is the minimal cache contract consumed by discovery and mapping.
type Store interface {
	// Get returns the value for key, or false when the key is absent or its
	// TTL has elapsed. Expiry is checked at read time: a caller can never
	// observe a value past its deadline.
	Get(ctx context.Context, key string) (any, bool)

	// Set stores value under key for ttl. A non-positive ttl falls back to
	// the store's configured default.
	Set(ctx context.Context, key string, value any, ttl time.Duration)

	// Invalidate removes every key matching pattern (shell-style glob, e.g.
	// "mcp_schema_*") and returns how many were removed.
	Invalidate(ctx context.Context, pattern string) int

	// Stats reports current occupancy and hit/miss counters.
	Stats(ctx context.Context) Stats

	// Close releases any background resources held by the store.
	Close()
}

// Stats describes cache occupancy and effectiveness.
type Stats struct {
	Size       int           `json:"size"`
	Hits       int64         `json:"hits"`
	Misses     int64         `json:"misses"`
	DefaultTTL time.Duration `json:"default_ttl"`
}

// Config holds cache tuning knobs.
type Config struct {
	// DefaultTTL applies when Set is called with a non-positive ttl.
	DefaultTTL time.Duration `yaml:"default_ttl"`

	// SweepInterval controls the hygiene sweep that removes expired entries
	// in the background. Zero disables the sweep; correctness does not
	// depend on it because reads check expiry lazily.
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// DefaultConfig returns production-ready cache settings.
func DefaultConfig() *Config {
	return &Config{
		DefaultTTL:    30 * time.Minute,
		SweepInterval: 5 * time.Minute,
	}
}
