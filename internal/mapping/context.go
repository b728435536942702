package mapping

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/obaidsafi51/Multi-Agent-BI-System-sub002/internal/discovery"
	"github.com/obaidsafi51/Multi-Agent-BI-System-sub002/internal/errs"
)

// ContextBuilder assembles query contexts from analytical intents.
type ContextBuilder struct {
	engine *Engine
	disc   *discovery.Orchestrator
}

// NewContextBuilder creates a builder on top of a mapping engine.
func NewContextBuilder(engine *Engine, disc *discovery.Orchestrator) *ContextBuilder {
	return &ContextBuilder{engine: engine, disc: disc}
}

// Build resolves the intent's metric and filters against the schema and
// returns an immutable QueryContext. Identical intents against an
// unchanged schema yield identical contexts up to GeneratedAt.
func (b *ContextBuilder) Build(ctx context.Context, intent Intent) (*QueryContext, error) {
	if intent.Metric == "" {
		return nil, errs.New(errs.ErrKindInvalidInput, "intent has no metric")
	}

	tableMappings, err := b.engine.FindTablesForMetric(ctx, intent.Metric)
	if err != nil {
		return nil, fmt.Errorf("resolving metric %q: %w", intent.Metric, err)
	}
	if len(tableMappings) == 0 {
		return nil, errs.New(errs.ErrKindNotFound,
			fmt.Sprintf("no schema mapping found for metric %q", intent.Metric))
	}

	qc := &QueryContext{
		Intent:        intent,
		TableMappings: tableMappings,
		GeneratedAt:   time.Now().UTC(),
	}

	if len(intent.Filters) > 0 {
		qc.ColumnMappings = make(map[string][]Mapping, len(intent.Filters))
		for _, filter := range intent.Filters {
			fm, err := b.engine.FindTablesForMetric(ctx, filter)
			if err != nil {
				return nil, fmt.Errorf("resolving filter %q: %w", filter, err)
			}
			if len(fm) > 0 {
				qc.ColumnMappings[filter] = fm
			}
		}
	}

	snap, err := b.disc.DiscoverSchema(ctx, false, false)
	if err == nil {
		qc.SuggestedJoins = suggestJoins(qc, snap)
		qc.OptimizationHints = buildHints(intent, snap)
	}

	return qc, nil
}

// suggestJoins proposes joins when the resolved mappings span more than one
// table. Declared foreign keys win; failing that, identically named columns
// across the two tables are offered as a weaker suggestion.
func suggestJoins(qc *QueryContext, snap *discovery.Snapshot) []Join {
	tables := mappedTables(qc)
	if len(tables) < 2 {
		return nil
	}

	byName := make(map[string]discovery.Table)
	for _, db := range snap.Databases {
		for _, t := range db.Tables {
			byName[t.Name] = t
		}
	}

	var joins []Join
	seen := make(map[string]bool)
	for _, from := range tables {
		ft, ok := byName[from]
		if !ok {
			continue
		}

		for _, fk := range ft.ForeignKeys {
			if !containsString(tables, fk.ToTable) {
				continue
			}
			key := from + "/" + fk.FromColumn + "/" + fk.ToTable
			if seen[key] {
				continue
			}
			seen[key] = true
			joins = append(joins, Join{
				FromTable:  from,
				FromColumn: fk.FromColumn,
				ToTable:    fk.ToTable,
				ToColumn:   fk.ToColumn,
				Reason:     "foreign key " + fk.Name,
			})
		}

		for _, to := range tables {
			if to <= from {
				continue
			}
			tt, ok := byName[to]
			if !ok {
				continue
			}
			for _, col := range sharedColumns(ft, tt) {
				key := from + "/" + col + "/" + to
				if seen[key] {
					continue
				}
				seen[key] = true
				joins = append(joins, Join{
					FromTable:  from,
					FromColumn: col,
					ToTable:    to,
					ToColumn:   col,
					Reason:     "shared column name",
				})
			}
		}
	}

	sort.Slice(joins, func(i, j int) bool {
		if joins[i].FromTable != joins[j].FromTable {
			return joins[i].FromTable < joins[j].FromTable
		}
		if joins[i].ToTable != joins[j].ToTable {
			return joins[i].ToTable < joins[j].ToTable
		}
		return joins[i].FromColumn < joins[j].FromColumn
	})
	return joins
}

// buildHints derives advisory hints from the time range and snapshot mode.
func buildHints(intent Intent, snap *discovery.Snapshot) []string {
	var hints []string

	if tr := intent.TimeRange; tr != nil && !tr.Start.IsZero() && tr.End.After(tr.Start) {
		span := tr.End.Sub(tr.Start)
		switch {
		case span >= 365*24*time.Hour:
			hints = append(hints, "consider yearly aggregation for the requested range")
		case span >= 28*24*time.Hour:
			hints = append(hints, "consider monthly aggregation for the requested range")
		}
	}

	if len(intent.ComparisonPeriods) > 0 {
		hints = append(hints, "comparison periods requested, window functions may apply")
	}

	if snap.FastMode || !snap.Complete {
		hints = append(hints, "schema snapshot is partial, column details may be missing")
	}

	return hints
}

// mappedTables lists the distinct tables referenced by the context, from
// both the metric and filter mappings, sorted for deterministic output.
func mappedTables(qc *QueryContext) []string {
	set := make(map[string]bool)
	for _, m := range qc.TableMappings {
		set[m.Table] = true
	}
	for _, fm := range qc.ColumnMappings {
		for _, m := range fm {
			set[m.Table] = true
		}
	}

	tables := make([]string, 0, len(set))
	for t := range set {
		tables = append(tables, t)
	}
	sort.Strings(tables)
	return tables
}

func sharedColumns(a, b discovery.Table) []string {
	names := make(map[string]bool, len(a.Columns))
	for _, c := range a.Columns {
		names[c.Name] = true
	}

	var shared []string
	for _, c := range b.Columns {
		if !names[c.Name] {
			continue
		}
		// Joining on primary keys or *_id columns is meaningful; joining on
		// every shared measure column would be noise.
		if c.IsPrimaryKey || hasIDSuffix(c.Name) {
			shared = append(shared, c.Name)
		}
	}
	sort.Strings(shared)
	return shared
}

func hasIDSuffix(name string) bool {
	n := len(name)
	return name == "id" || (n > 3 && name[n-3:] == "_id")
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
