// Package config loads the middleware's YAML configuration and composes
// the per-subsystem Config structs.
package config

import (
	"fmt"
	"os"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/obaidsafi51/Multi-Agent-BI-System-sub002/internal/cache"
	"github.com/obaidsafi51/Multi-Agent-BI-System-sub002/internal/discovery"
	"github.com/obaidsafi51/Multi-Agent-BI-System-sub002/internal/errs"
	"github.com/obaidsafi51/Multi-Agent-BI-System-sub002/internal/mapping"
	"github.com/obaidsafi51/Multi-Agent-BI-System-sub002/internal/pool"
	"github.com/obaidsafi51/Multi-Agent-BI-System-sub002/internal/server"
)

// Backend names accepted in the client section.
const (
	BackendMCP      = "mcp"
	BackendPostgres = "postgres"
	BackendMySQL    = "mysql"
)

// Config is the root configuration for the middleware.
type Config struct {
	Log       LogConfig         `yaml:"log"`
	Client    ClientConfig      `yaml:"client"`
	Pool      *pool.Config      `yaml:"pool"`
	Cache     CacheConfig       `yaml:"cache"`
	Discovery *discovery.Config `yaml:"discovery"`
	Mapping   *mapping.Config   `yaml:"mapping"`
	Server    *server.Config    `yaml:"server"`
}

// LogConfig mirrors logger.Config minus the output writer, which is not
// expressible in YAML.
type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	TimeFormat string `yaml:"time_format"`
}

// ClientConfig selects and configures the schema backend.
type ClientConfig struct {
	// Backend is one of mcp, postgres, mysql.
	Backend string `yaml:"backend"`

	// Endpoint is the MCP server URL (mcp backend only).
	Endpoint string `yaml:"endpoint"`

	// DSN is the database connection string (postgres and mysql backends).
	DSN string `yaml:"dsn"`
}

// CacheConfig selects the metadata cache store.
type CacheConfig struct {
	// Store is either memory (default) or redis.
	Store string `yaml:"store"`

	DefaultTTL    time.Duration `yaml:"default_ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval"`

	// Redis settings, used only when Store is redis.
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	RedisPrefix   string `yaml:"redis_prefix"`
}

// Default returns a Config with production-ready defaults and the MCP
// backend selected.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:      "info",
			Format:     "json",
			TimeFormat: "rfc3339",
		},
		Client: ClientConfig{
			Backend:  BackendMCP,
			Endpoint: "http://localhost:8000/mcp",
		},
		Pool:      pool.DefaultConfig(),
		Cache:     CacheConfig{Store: "memory", DefaultTTL: 30 * time.Minute, SweepInterval: 5 * time.Minute},
		Discovery: discovery.DefaultConfig(),
		Mapping:   mapping.DefaultConfig(),
		Server:    server.DefaultConfig(),
	}
}

// Load reads a YAML file over the defaults. A missing path returns the
// defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.Wrap(errs.ErrKindNotFound,
				fmt.Sprintf("config file %s not found", path), err)
		}
		return nil, errs.Wrap(errs.ErrKindUnknown, "reading config file", err)
	}

	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "parsing config file", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations that cannot produce a working middleware.
func (c *Config) Validate() error {
	switch c.Client.Backend {
	case BackendMCP:
		if c.Client.Endpoint == "" {
			return errs.New(errs.ErrKindInvalidInput, "mcp backend requires client.endpoint")
		}
	case BackendPostgres, BackendMySQL:
		if c.Client.DSN == "" {
			return errs.New(errs.ErrKindInvalidInput,
				fmt.Sprintf("%s backend requires client.dsn", c.Client.Backend))
		}
	default:
		return errs.New(errs.ErrKindInvalidInput,
			fmt.Sprintf("unknown client backend %q", c.Client.Backend))
	}

	switch c.Cache.Store {
	case "", "memory":
	case "redis":
		if c.Cache.RedisAddr == "" {
			return errs.New(errs.ErrKindInvalidInput, "redis cache requires cache.redis_addr")
		}
	default:
		return errs.New(errs.ErrKindInvalidInput,
			fmt.Sprintf("unknown cache store %q", c.Cache.Store))
	}

	return nil
}

// CacheOptions converts the cache section into the in-memory store config.
func (c *CacheConfig) CacheOptions() *cache.Config {
	return &cache.Config{
		DefaultTTL:    c.DefaultTTL,
		SweepInterval: c.SweepInterval,
	}
}
