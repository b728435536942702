package cache

import (
	"context"
	"path"
	"strings"
	"sync"
	"time"
)

// entry is one cached value with its expiry deadline.
type entry struct {
	value     any
	createdAt time.Time
	expiresAt time.Time
}

// Memory is an in-process Store guarded by a single coarse lock, which is
// sufficient at the request rates this middleware targets.
type Memory struct {
	cfg *Config

	mu      sync.Mutex
	entries map[string]entry
	hits    int64
	misses  int64

	stop chan struct{}
	once sync.Once
}

var _ Store = (*Memory)(nil)

// NewMemory creates an in-memory store. A nil cfg uses DefaultConfig. When
// SweepInterval is positive a hygiene goroutine removes expired entries in
// the background; it is stopped by Close.
func NewMemory(cfg *Config) *Memory {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	m := &Memory{
		cfg:     cfg,
		entries: make(map[string]entry),
		stop:    make(chan struct{}),
	}
	if cfg.SweepInterval > 0 {
		go m.sweepLoop()
	}
	return m
}

// Get returns the live value for key. Expired entries are deleted on read.
func (m *Memory) Get(_ context.Context, key string) (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		m.misses++
		return nil, false
	}
	if time.Now().After(e.expiresAt) {
		delete(m.entries, key)
		m.misses++
		return nil, false
	}
	m.hits++
	return e.value, true
}

// Set stores value under key. Concurrent writers race under
// last-writer-wins, which is the documented contract.
func (m *Memory) Set(_ context.Context, key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = m.cfg.DefaultTTL
	}
	now := time.Now()

	m.mu.Lock()
	m.entries[key] = entry{value: value, createdAt: now, expiresAt: now.Add(ttl)}
	m.mu.Unlock()
}

// Invalidate removes all keys matching the glob pattern and returns the
// count. A pattern without glob metacharacters matches exactly one key.
func (m *Memory) Invalidate(_ context.Context, pattern string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key := range m.entries {
		if globMatch(pattern, key) {
			delete(m.entries, key)
			removed++
		}
	}
	return removed
}

// Stats reports live occupancy; expired-but-unswept entries are excluded.
func (m *Memory) Stats(_ context.Context) Stats {
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	size := 0
	for _, e := range m.entries {
		if now.Before(e.expiresAt) {
			size++
		}
	}
	return Stats{
		Size:       size,
		Hits:       m.hits,
		Misses:     m.misses,
		DefaultTTL: m.cfg.DefaultTTL,
	}
}

// Close stops the hygiene sweep. Idempotent.
func (m *Memory) Close() {
	m.once.Do(func() { close(m.stop) })
}

func (m *Memory) sweepLoop() {
	ticker := time.NewTicker(m.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

func (m *Memory) sweep() {
	now := time.Now()

	m.mu.Lock()
	for key, e := range m.entries {
		if now.After(e.expiresAt) {
			delete(m.entries, key)
		}
	}
	m.mu.Unlock()
}

// globMatch matches shell-style patterns. path.Match covers the supported
// metacharacters; a malformed pattern degrades to a prefix match on the
// portion before the first '*'.
func globMatch(pattern, key string) bool {
	ok, err := path.Match(pattern, key)
	if err != nil {
		prefix, _, _ := strings.Cut(pattern, "*")
		return strings.HasPrefix(key, prefix)
	}
	return ok
}
