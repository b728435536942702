// Package mapping resolves free-form business terminology onto concrete
// schema locations with confidence scores, and assembles query contexts
// for the downstream SQL generator.
//
// Resolution asks the external mapping-intelligence service first and falls
// back to local heuristics over the discovered schema. Successful mappings
// are reported back on a bounded fire-and-forget queue so a slow service
// can never hold up the request path.
package mapping

import (
	"context"
	"sort"
	"sync"

	"github.com/obaidsafi51/Multi-Agent-BI-System-sub002/internal/cache"
	"github.com/obaidsafi51/Multi-Agent-BI-System-sub002/internal/discovery"
	"github.com/obaidsafi51/Multi-Agent-BI-System-sub002/internal/logger"
)

const mappingCachePrefix = "term_mapping_"

// Engine maps business terms to schema locations.
type Engine struct {
	cfg    *Config
	disc   *discovery.Orchestrator
	store  cache.Store
	intel  Intelligence // may be nil
	log    *logger.Logger
	learnQ chan learnEvent

	closeOnce sync.Once
	done      chan struct{}
}

type learnEvent struct {
	term     string
	database string
	table    string
	column   string
	score    float64
}

// NewEngine creates a mapping engine and starts its learning worker.
// intel may be nil; the engine then relies purely on heuristics.
func NewEngine(cfg *Config, disc *discovery.Orchestrator, store cache.Store, intel Intelligence, log *logger.Logger) *Engine {
	if log == nil {
		log = logger.Nop()
	}
	cfg = cfg.withDefaults()

	e := &Engine{
		cfg:    cfg,
		disc:   disc,
		store:  store,
		intel:  intel,
		log:    log.With().Str("component", "mapping").Logger(),
		learnQ: make(chan learnEvent, cfg.LearnQueueSize),
		done:   make(chan struct{}),
	}
	go e.learnWorker()
	return e
}

// Close stops the learning worker. Events still queued are dropped; the
// feedback path is best-effort by contract.
func (e *Engine) Close() {
	e.closeOnce.Do(func() { close(e.done) })
}

// FindTablesForMetric resolves term to schema locations, external service
// first, heuristics second. The result is sorted by descending confidence,
// truncated to MaxAlternatives, and empty (not an error) when nothing
// matches.
func (e *Engine) FindTablesForMetric(ctx context.Context, term string) ([]Mapping, error) {
	normalized := normalize(term)
	if normalized == "" {
		return nil, nil
	}

	cacheKey := mappingCachePrefix + normalized
	if v, ok := e.store.Get(ctx, cacheKey); ok {
		if cached, ok := cache.As[[]Mapping](v); ok {
			return cached, nil
		}
	}

	snap, err := e.disc.DiscoverSchema(ctx, false, false)
	if err != nil {
		return nil, err
	}

	mappings := e.fromIntelligence(ctx, term, snap)
	if len(mappings) == 0 {
		mappings = e.fromHeuristics(term, normalized, snap)
	}

	mappings = finalize(mappings, e.cfg.MaxAlternatives)
	if len(mappings) > 0 {
		e.store.Set(ctx, cacheKey, mappings, 0)
	}
	return mappings, nil
}

// LearnFromSuccessfulMapping queues feedback for the intelligence service.
// It never blocks: when the queue is full the event is dropped and logged.
func (e *Engine) LearnFromSuccessfulMapping(term, database, table, column string, score float64) {
	if e.intel == nil {
		return
	}

	ev := learnEvent{term: term, database: database, table: table, column: column, score: score}
	select {
	case e.learnQ <- ev:
	default:
		e.log.With().Str("term", term).Logger().Warn("learning queue full, feedback dropped")
	}
}

// --- external path ---

func (e *Engine) fromIntelligence(ctx context.Context, term string, snap *discovery.Snapshot) []Mapping {
	if e.intel == nil {
		return nil
	}

	results, err := e.intel.DiscoverBusinessMappings(ctx, []string{term}, e.cfg.ConfidenceThreshold)
	if err != nil {
		e.log.With().Str("term", term).Err(err).Logger().
			Warn("mapping intelligence unavailable, using heuristics")
		return nil
	}

	var mappings []Mapping
	for _, ext := range results[term] {
		db := ext.Database
		if db == "" {
			db = databaseOfTable(snap, ext.Table)
		}
		mt := TypeExternal
		if ext.Source == "learned" {
			mt = TypeLearned
		}
		mappings = append(mappings, Mapping{
			Term:       term,
			Database:   db,
			Table:      ext.Table,
			Column:     ext.Column,
			Confidence: clamp(ext.Confidence),
			Type:       mt,
		})
	}
	return mappings
}

// --- heuristic path ---

// fromHeuristics scores every discovered table/column pair against the
// term. Exact name equality wins outright; otherwise containment in the
// column name outranks containment in the table name, and keyword-category
// tokens give a weaker signal. Scores below MinConfidence are discarded.
func (e *Engine) fromHeuristics(term, normalized string, snap *discovery.Snapshot) []Mapping {
	keywords := relatedTokens(normalized)

	var mappings []Mapping
	for _, db := range snap.Databases {
		for _, table := range db.Tables {
			if m, ok := e.scoreTable(term, normalized, keywords, db.Name, table); ok {
				mappings = append(mappings, m...)
			}
		}
	}
	return mappings
}

func (e *Engine) scoreTable(term, normalized string, keywords []string, dbName string, table discovery.Table) ([]Mapping, bool) {
	var out []Mapping

	tableScore := 0.0
	tableType := TypeSemantic
	switch {
	case normalize(table.Name) == normalized:
		tableScore, tableType = 1.0, TypeExact
	case nameContains(table.Name, normalized):
		tableScore = e.cfg.TableMatchScore
	case anyTokenIn(table.Name, keywords):
		tableScore = e.cfg.KeywordMatchScore
	}

	if len(table.Columns) == 0 {
		// Name-only table from a fast snapshot: the table itself is the
		// only thing we can score.
		if tableScore >= e.cfg.MinConfidence {
			out = append(out, Mapping{
				Term: term, Database: dbName, Table: table.Name,
				Confidence: clamp(tableScore), Type: tableType,
			})
		}
		return out, len(out) > 0
	}

	for _, col := range table.Columns {
		score := tableScore
		mt := tableType
		switch {
		case normalize(col.Name) == normalized:
			score, mt = 1.0, TypeExact
		case nameContains(col.Name, normalized):
			if e.cfg.ColumnMatchScore > score {
				score, mt = e.cfg.ColumnMatchScore, TypeSemantic
			}
		case anyTokenIn(col.Name, keywords):
			if e.cfg.KeywordMatchScore > score {
				score, mt = e.cfg.KeywordMatchScore, TypeSemantic
			}
		}

		if score >= e.cfg.MinConfidence {
			out = append(out, Mapping{
				Term: term, Database: dbName, Table: table.Name, Column: col.Name,
				Confidence: clamp(score), Type: mt,
			})
		}
	}
	return out, len(out) > 0
}

func anyTokenIn(name string, tokens []string) bool {
	for _, tok := range tokens {
		if nameContains(name, tok) {
			return true
		}
	}
	return false
}

// finalize sorts by descending confidence (name as tie-break for stable
// output) and truncates to maxAlternatives.
func finalize(mappings []Mapping, maxAlternatives int) []Mapping {
	sort.SliceStable(mappings, func(i, j int) bool {
		if mappings[i].Confidence != mappings[j].Confidence {
			return mappings[i].Confidence > mappings[j].Confidence
		}
		if mappings[i].Table != mappings[j].Table {
			return mappings[i].Table < mappings[j].Table
		}
		return mappings[i].Column < mappings[j].Column
	})
	if len(mappings) > maxAlternatives {
		mappings = mappings[:maxAlternatives]
	}
	return mappings
}

func databaseOfTable(snap *discovery.Snapshot, table string) string {
	for _, db := range snap.Databases {
		for _, t := range db.Tables {
			if t.Name == table {
				return db.Name
			}
		}
	}
	if len(snap.Databases) > 0 {
		return snap.Databases[0].Name
	}
	return ""
}

// --- learning worker ---

func (e *Engine) learnWorker() {
	for {
		select {
		case <-e.done:
			return
		case ev := <-e.learnQ:
			e.report(ev)
		}
	}
}

func (e *Engine) report(ev learnEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.LearnTimeout)
	defer cancel()

	ok, err := e.intel.LearnFromSuccessfulMapping(ctx, ev.term, ev.database, ev.table, ev.column, ev.score)
	if err != nil {
		e.log.With().Str("term", ev.term).Err(err).Logger().
			Warn("learning feedback failed")
		return
	}
	if !ok {
		e.log.With().Str("term", ev.term).Logger().Debug("learning feedback rejected")
	}
}
