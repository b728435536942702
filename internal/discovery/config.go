package discovery

import "time"

// Cache keys for the two discovery modes. Both live under the mcp_schema_
// prefix so a single invalidation pattern can clear them together.
const (
	cacheKeyFast     = "mcp_schema_fast"
	cacheKeyComplete = "mcp_schema_complete"
	cacheKeyPrefix   = "mcp_schema_"
)

// Config holds discovery tuning knobs.
type Config struct {
	// CacheTTL applies to complete snapshots.
	CacheTTL time.Duration `yaml:"cache_ttl"`

	// FastCacheTTL applies to fast-mode snapshots. It is deliberately
	// shorter than CacheTTL because fast snapshots are incomplete.
	FastCacheTTL time.Duration `yaml:"fast_cache_ttl"`

	// DatabaseConcurrency bounds how many databases hydrate simultaneously.
	DatabaseConcurrency int `yaml:"database_concurrency"`

	// TableConcurrency bounds per-table schema fetches within one database.
	TableConcurrency int `yaml:"table_concurrency"`

	// DiscoverTimeout is the default deadline applied to DiscoverSchema
	// when the caller's context has none. Zero disables it.
	DiscoverTimeout time.Duration `yaml:"discover_timeout"`

	// ExcludedDatabases are dropped from discovery by exact name.
	ExcludedDatabases []string `yaml:"excluded_databases"`
}

// DefaultConfig returns production-ready discovery settings.
func DefaultConfig() *Config {
	return &Config{
		CacheTTL:            30 * time.Minute,
		FastCacheTTL:        5 * time.Minute,
		DatabaseConcurrency: 3,
		TableConcurrency:    5,
		DiscoverTimeout:     2 * time.Minute,
		ExcludedDatabases: []string{
			"information_schema",
			"INFORMATION_SCHEMA",
			"performance_schema",
			"PERFORMANCE_SCHEMA",
			"mysql",
			"sys",
			"metrics_schema",
		},
	}
}

func (c *Config) withDefaults() *Config {
	def := DefaultConfig()
	if c == nil {
		return def
	}
	out := *c
	if out.CacheTTL <= 0 {
		out.CacheTTL = def.CacheTTL
	}
	if out.FastCacheTTL <= 0 {
		out.FastCacheTTL = def.FastCacheTTL
	}
	if out.DatabaseConcurrency <= 0 {
		out.DatabaseConcurrency = def.DatabaseConcurrency
	}
	if out.TableConcurrency <= 0 {
		out.TableConcurrency = def.TableConcurrency
	}
	if out.ExcludedDatabases == nil {
		out.ExcludedDatabases = def.ExcludedDatabases
	}
	return &out
}
