// Package discovery drives concurrency-bounded traversal of databases,
// tables, and columns through the connection pool, memoizing results in the
// metadata cache.
//
// Discovery is deliberately fail-open: a single table's failure never
// aborts the run, and when the backend is entirely unreachable a small
// hard-coded snapshot is served so dependents keep functioning.
package discovery

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/obaidsafi51/Multi-Agent-BI-System-sub002/internal/cache"
	"github.com/obaidsafi51/Multi-Agent-BI-System-sub002/internal/dbclient"
	"github.com/obaidsafi51/Multi-Agent-BI-System-sub002/internal/logger"
	"github.com/obaidsafi51/Multi-Agent-BI-System-sub002/internal/pool"
)

// Orchestrator coordinates schema discovery through the pool and cache.
type Orchestrator struct {
	cfg   *Config
	pool  *pool.Pool
	store cache.Store
	log   *logger.Logger
	met   metrics

	excluded map[string]struct{}
}

// New creates an orchestrator. A nil cfg uses DefaultConfig.
func New(cfg *Config, p *pool.Pool, store cache.Store, log *logger.Logger) *Orchestrator {
	if log == nil {
		log = logger.Nop()
	}
	cfg = cfg.withDefaults()

	excluded := make(map[string]struct{}, len(cfg.ExcludedDatabases))
	for _, name := range cfg.ExcludedDatabases {
		excluded[name] = struct{}{}
	}

	return &Orchestrator{
		cfg:      cfg,
		pool:     p,
		store:    store,
		log:      log.With().Str("component", "discovery").Logger(),
		excluded: excluded,
	}
}

// DiscoverSchema returns the current schema snapshot.
//
// Unless forceRefresh is set, a cached snapshot for the requested mode is
// returned when present. Fast mode lists table names only; full mode
// hydrates every table under the configured concurrency bounds. Concurrent
// calls race on the same cache key under last-writer-wins.
func (o *Orchestrator) DiscoverSchema(ctx context.Context, forceRefresh, fastMode bool) (*Snapshot, error) {
	if o.cfg.DiscoverTimeout > 0 {
		if _, ok := ctx.Deadline(); !ok {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, o.cfg.DiscoverTimeout)
			defer cancel()
		}
	}

	key, ttl := cacheKeyComplete, o.cfg.CacheTTL
	if fastMode {
		key, ttl = cacheKeyFast, o.cfg.FastCacheTTL
	}

	if !forceRefresh {
		if v, ok := o.store.Get(ctx, key); ok {
			if snap, ok := cache.As[*Snapshot](v); ok && snap != nil {
				o.met.add(func(m *Metrics) { m.CacheHits++ })
				return snap, nil
			}
		}
		o.met.add(func(m *Metrics) { m.CacheMisses++ })
	}

	o.met.add(func(m *Metrics) { m.Discoveries++ })

	databases, err := o.listDatabases(ctx)
	if err != nil {
		o.met.add(func(m *Metrics) { m.TotalFailures++; m.FallbacksServed++ })
		o.log.With().Err(err).Logger().Warn("discovery impossible, serving fallback schema")
		return fallbackSnapshot(), nil
	}

	snap := &Snapshot{
		DiscoveredAt: time.Now(),
		FastMode:     fastMode,
		Complete:     true,
	}

	if fastMode {
		o.discoverFast(ctx, databases, snap)
	} else {
		o.discoverFull(ctx, databases, snap)
	}

	// Databases were listed but none hydrated: the backend died mid-flight.
	// Serve the fallback and leave the cache alone so the empty result does
	// not starve consumers for a full TTL.
	if len(databases) > 0 && len(snap.Databases) == 0 {
		o.met.add(func(m *Metrics) { m.TotalFailures++; m.FallbacksServed++ })
		o.log.With().
			Int("databases_listed", len(databases)).
			Logger().Warn("no database hydrated, serving fallback schema")
		return fallbackSnapshot(), nil
	}

	sort.Slice(snap.Databases, func(i, j int) bool {
		return snap.Databases[i].Name < snap.Databases[j].Name
	})

	o.store.Set(ctx, key, snap, ttl)
	o.log.With().
		Int("databases", len(snap.Databases)).
		Int("tables", snap.TableCount()).
		Str("mode", modeName(fastMode)).
		Logger().Info("schema discovery finished")

	return snap, nil
}

// InvalidateSchemaCache clears cached snapshots. Scope "all" (or "") clears
// both modes; "fast" and "complete" clear one; any other scope is treated
// as a suffix under the schema key prefix.
func (o *Orchestrator) InvalidateSchemaCache(ctx context.Context, scope string) int {
	var pattern string
	switch scope {
	case "", "all":
		pattern = cacheKeyPrefix + "*"
	case "fast":
		pattern = cacheKeyFast
	case "complete":
		pattern = cacheKeyComplete
	default:
		pattern = cacheKeyPrefix + scope
	}
	return o.store.Invalidate(ctx, pattern)
}

// Metrics returns a snapshot of the discovery counters.
func (o *Orchestrator) Metrics() Metrics {
	return o.met.snapshot()
}

// ResetMetrics zeroes all discovery counters.
func (o *Orchestrator) ResetMetrics() {
	o.met.reset()
}

// --- internals ---

func (o *Orchestrator) listDatabases(ctx context.Context) ([]string, error) {
	var names []string
	err := o.pool.WithConn(ctx, func(ctx context.Context, client dbclient.SchemaClient) error {
		var err error
		names, err = client.ListDatabases(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	kept := names[:0]
	for _, name := range names {
		if _, drop := o.excluded[name]; !drop {
			kept = append(kept, name)
		}
	}
	return kept, nil
}

// discoverFast lists table names only. Databases hydrate concurrently under
// the outer bound; a failing database is logged and skipped.
func (o *Orchestrator) discoverFast(ctx context.Context, databases []string, snap *Snapshot) {
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.DatabaseConcurrency)

	for _, name := range databases {
		g.Go(func() error {
			tables, err := o.listTables(gctx, name)
			if err != nil {
				o.recordPartialFailure(name, "", err)
				mu.Lock()
				snap.Complete = false
				mu.Unlock()
				return nil
			}

			db := Database{Name: name, Tables: make([]Table, 0, len(tables))}
			for _, t := range tables {
				db.Tables = append(db.Tables, Table{Name: t, SchemaFetched: false})
			}
			sort.Slice(db.Tables, func(i, j int) bool {
				return db.Tables[i].Name < db.Tables[j].Name
			})

			mu.Lock()
			snap.Databases = append(snap.Databases, db)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait() // workers never return errors; partial failures are recorded inline
}

// discoverFull hydrates every table. The outer bound limits simultaneous
// databases, the inner bound limits per-table fetches, so one large
// database cannot starve the others.
func (o *Orchestrator) discoverFull(ctx context.Context, databases []string, snap *Snapshot) {
	var mu sync.Mutex
	outer, octx := errgroup.WithContext(ctx)
	outer.SetLimit(o.cfg.DatabaseConcurrency)

	for _, name := range databases {
		outer.Go(func() error {
			tables, err := o.listTables(octx, name)
			if err != nil {
				o.recordPartialFailure(name, "", err)
				mu.Lock()
				snap.Complete = false
				mu.Unlock()
				return nil
			}

			db := Database{Name: name}
			var dbMu sync.Mutex
			inner, ictx := errgroup.WithContext(octx)
			inner.SetLimit(o.cfg.TableConcurrency)

			for _, table := range tables {
				inner.Go(func() error {
					ts, err := o.fetchTableSchema(ictx, name, table)
					if err != nil {
						o.recordPartialFailure(name, table, err)
						mu.Lock()
						snap.Complete = false
						mu.Unlock()
						return nil
					}
					o.met.add(func(m *Metrics) { m.TablesFetched++ })
					dbMu.Lock()
					db.Tables = append(db.Tables, tableFromSchema(ts))
					dbMu.Unlock()
					return nil
				})
			}
			_ = inner.Wait()

			sort.Slice(db.Tables, func(i, j int) bool {
				return db.Tables[i].Name < db.Tables[j].Name
			})

			mu.Lock()
			snap.Databases = append(snap.Databases, db)
			mu.Unlock()
			return nil
		})
	}
	_ = outer.Wait()
}

func (o *Orchestrator) listTables(ctx context.Context, database string) ([]string, error) {
	var tables []string
	err := o.pool.WithConn(ctx, func(ctx context.Context, client dbclient.SchemaClient) error {
		var err error
		tables, err = client.ListTables(ctx, database)
		return err
	})
	return tables, err
}

func (o *Orchestrator) fetchTableSchema(ctx context.Context, database, table string) (*dbclient.TableSchema, error) {
	var ts *dbclient.TableSchema
	err := o.pool.WithConn(ctx, func(ctx context.Context, client dbclient.SchemaClient) error {
		var err error
		ts, err = client.GetTableSchema(ctx, database, table)
		return err
	})
	return ts, err
}

func (o *Orchestrator) recordPartialFailure(database, table string, err error) {
	o.met.add(func(m *Metrics) { m.PartialFailures++ })
	o.log.With().
		Str("database", database).
		Str("table", table).
		Err(err).
		Logger().Warn("partial discovery failure, element skipped")
}

func modeName(fast bool) string {
	if fast {
		return "fast"
	}
	return "complete"
}
