package pool

import "time"

// Config holds all tuning knobs for the connection pool.
type Config struct {
	// Pool size
	MaxConns int `yaml:"max_conns"` // hard ceiling on live connections
	MinConns int `yaml:"min_conns"` // idle connections kept warm by the cleanup loop

	// Timeouts
	AcquireTimeout time.Duration `yaml:"acquire_timeout"` // max wait when the pool is saturated
	ConnectTimeout time.Duration `yaml:"connect_timeout"` // deadline for the factory when topping up

	// Aging
	MaxConnAge  time.Duration `yaml:"max_conn_age"` // connections older than this are evicted
	IdleTimeout time.Duration `yaml:"idle_timeout"` // idle connections beyond MinConns are evicted after this

	// Background loops
	CleanupInterval     time.Duration `yaml:"cleanup_interval"`
	HealthCheckInterval time.Duration `yaml:"health_check_interval"`
	HealthCheckTimeout  time.Duration `yaml:"health_check_timeout"`
}

// DefaultConfig returns production-ready pool settings.
func DefaultConfig() *Config {
	return &Config{
		MaxConns:            10,
		MinConns:            2,
		AcquireTimeout:      30 * time.Second,
		ConnectTimeout:      10 * time.Second,
		MaxConnAge:          time.Hour,
		IdleTimeout:         10 * time.Minute,
		CleanupInterval:     time.Minute,
		HealthCheckInterval: time.Minute,
		HealthCheckTimeout:  5 * time.Second,
	}
}

// withDefaults fills zero values in from DefaultConfig.
func (c *Config) withDefaults() *Config {
	def := DefaultConfig()
	if c == nil {
		return def
	}
	out := *c
	if out.MaxConns <= 0 {
		out.MaxConns = def.MaxConns
	}
	if out.MinConns < 0 {
		out.MinConns = 0
	}
	if out.MinConns > out.MaxConns {
		out.MinConns = out.MaxConns
	}
	if out.AcquireTimeout <= 0 {
		out.AcquireTimeout = def.AcquireTimeout
	}
	if out.ConnectTimeout <= 0 {
		out.ConnectTimeout = def.ConnectTimeout
	}
	if out.CleanupInterval <= 0 {
		out.CleanupInterval = def.CleanupInterval
	}
	if out.HealthCheckInterval <= 0 {
		out.HealthCheckInterval = def.HealthCheckInterval
	}
	if out.HealthCheckTimeout <= 0 {
		out.HealthCheckTimeout = def.HealthCheckTimeout
	}
	return &out
}
