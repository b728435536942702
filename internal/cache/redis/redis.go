// Package redis provides a networked implementation of cache.Store backed
// by a Redis server, for deployments where several middleware processes
// should share discovered metadata.
//
// Values are stored as JSON; readers narrow them back with cache.As.
package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/obaidsafi51/Multi-Agent-BI-System-sub002/internal/cache"
	"github.com/obaidsafi51/Multi-Agent-BI-System-sub002/internal/errs"
	"github.com/obaidsafi51/Multi-Agent-BI-System-sub002/internal/logger"
)

const scanBatch = 100

// Config holds the Redis connection settings.
type Config struct {
	Addr       string        `yaml:"addr"`
	Password   string        `yaml:"password"`
	DB         int           `yaml:"db"`
	KeyPrefix  string        `yaml:"key_prefix"`
	DefaultTTL time.Duration `yaml:"default_ttl"`
}

// DefaultConfig returns settings for a local Redis.
func DefaultConfig() *Config {
	return &Config{
		Addr:       "localhost:6379",
		KeyPrefix:  "bi:meta:",
		DefaultTTL: 30 * time.Minute,
	}
}

// Store implements cache.Store on Redis.
type Store struct {
	cfg    *Config
	client *redis.Client
	log    *logger.Logger
}

var _ cache.Store = (*Store)(nil)

// New connects to Redis and validates the connection with a ping.
func New(ctx context.Context, cfg *Config, log *logger.Logger) (*Store, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if log == nil {
		log = logger.Nop()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "failed to connect to redis", err)
	}

	return &Store{
		cfg:    cfg,
		client: client,
		log:    log.With().Str("component", "redis_cache").Logger(),
	}, nil
}

// Get returns the JSON bytes stored under key. Redis enforces TTL expiry
// server-side, so an expired key is simply absent.
func (s *Store) Get(ctx context.Context, key string) (any, bool) {
	raw, err := s.client.Get(ctx, s.cfg.KeyPrefix+key).Bytes()
	if err != nil {
		if err != redis.Nil {
			s.log.With().Str("key", key).Err(err).Logger().Warn("cache get failed")
		}
		return nil, false
	}
	return json.RawMessage(raw), true
}

// Set stores value as JSON under key with the given TTL.
func (s *Store) Set(ctx context.Context, key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = s.cfg.DefaultTTL
	}

	raw, err := json.Marshal(value)
	if err != nil {
		s.log.With().Str("key", key).Err(err).Logger().Warn("cache set skipped: value not serializable")
		return
	}
	if err := s.client.Set(ctx, s.cfg.KeyPrefix+key, raw, ttl).Err(); err != nil {
		s.log.With().Str("key", key).Err(err).Logger().Warn("cache set failed")
	}
}

// Invalidate SCANs for keys matching pattern and deletes them in batches.
func (s *Store) Invalidate(ctx context.Context, pattern string) int {
	removed := 0
	iter := s.client.Scan(ctx, 0, s.cfg.KeyPrefix+pattern, scanBatch).Iterator()

	var batch []string
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) >= scanBatch {
			removed += s.del(ctx, batch)
			batch = batch[:0]
		}
	}
	if len(batch) > 0 {
		removed += s.del(ctx, batch)
	}
	if err := iter.Err(); err != nil {
		s.log.With().Str("pattern", pattern).Err(err).Logger().Warn("cache invalidation scan failed")
	}
	return removed
}

// Stats reports the number of live keys under the configured prefix.
// Hit/miss counters are not tracked server-side and read as zero.
func (s *Store) Stats(ctx context.Context) cache.Stats {
	size := 0
	iter := s.client.Scan(ctx, 0, s.cfg.KeyPrefix+"*", scanBatch).Iterator()
	for iter.Next(ctx) {
		size++
	}
	return cache.Stats{
		Size:       size,
		DefaultTTL: s.cfg.DefaultTTL,
	}
}

// Close shuts the Redis client down.
func (s *Store) Close() {
	if err := s.client.Close(); err != nil {
		s.log.With().Err(err).Logger().Warn("error closing redis client")
	}
}

func (s *Store) del(ctx context.Context, keys []string) int {
	n, err := s.client.Del(ctx, keys...).Result()
	if err != nil {
		s.log.With().Err(err).Logger().Warn("cache delete failed")
		return 0
	}
	return int(n)
}
