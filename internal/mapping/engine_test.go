package mapping

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obaidsafi51/Multi-Agent-BI-System-sub002/internal/cache"
	"github.com/obaidsafi51/Multi-Agent-BI-System-sub002/internal/dbclient"
	"github.com/obaidsafi51/Multi-Agent-BI-System-sub002/internal/discovery"
	"github.com/obaidsafi51/Multi-Agent-BI-System-sub002/internal/logger"
	"github.com/obaidsafi51/Multi-Agent-BI-System-sub002/internal/pool"
)

// financeBackend serves a small fixed finance schema.
type financeBackend struct{}

func (financeBackend) ListDatabases(context.Context) ([]string, error) {
	return []string{"finance"}, nil
}

func (financeBackend) ListTables(_ context.Context, database string) ([]string, error) {
	return []string{"cash_flow", "financial_overview", "budget_tracking"}, nil
}

func (financeBackend) GetTableSchema(_ context.Context, database, table string) (*dbclient.TableSchema, error) {
	schemas := map[string]*dbclient.TableSchema{
		"cash_flow": {
			Database: database, Name: "cash_flow",
			Columns: []dbclient.ColumnSchema{
				{Name: "id", DataType: "bigint", IsPrimaryKey: true},
				{Name: "period_id", DataType: "bigint"},
				{Name: "operating_cash_flow", DataType: "decimal"},
				{Name: "net_cash_flow", DataType: "decimal"},
			},
			PrimaryKeys: []string{"id"},
		},
		"financial_overview": {
			Database: database, Name: "financial_overview",
			Columns: []dbclient.ColumnSchema{
				{Name: "id", DataType: "bigint", IsPrimaryKey: true},
				{Name: "period_id", DataType: "bigint"},
				{Name: "revenue", DataType: "decimal"},
				{Name: "net_income", DataType: "decimal"},
			},
			PrimaryKeys: []string{"id"},
			ForeignKeys: []dbclient.ForeignKey{
				{Name: "fk_period", FromColumn: "period_id", ToTable: "budget_tracking", ToColumn: "period_id"},
			},
		},
		"budget_tracking": {
			Database: database, Name: "budget_tracking",
			Columns: []dbclient.ColumnSchema{
				{Name: "id", DataType: "bigint", IsPrimaryKey: true},
				{Name: "period_id", DataType: "bigint"},
				{Name: "budgeted_amount", DataType: "decimal"},
				{Name: "actual_amount", DataType: "decimal"},
			},
			PrimaryKeys: []string{"id"},
		},
	}
	return schemas[table], nil
}

func (financeBackend) HealthCheck(context.Context) bool { return true }
func (financeBackend) Close(context.Context) error      { return nil }

// recordingIntel is a controllable Intelligence fake.
type recordingIntel struct {
	mu       sync.Mutex
	mappings map[string][]ExternalMapping
	err      error
	learned  []string
	learnErr error
}

func (r *recordingIntel) DiscoverBusinessMappings(_ context.Context, terms []string, _ float64) (map[string][]ExternalMapping, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	return r.mappings, nil
}

func (r *recordingIntel) LearnFromSuccessfulMapping(_ context.Context, term, database, table, column string, score float64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.learnErr != nil {
		return false, r.learnErr
	}
	r.learned = append(r.learned, term)
	return true, nil
}

func (r *recordingIntel) learnedTerms() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.learned...)
}

func newTestEngine(t *testing.T, intel Intelligence) *Engine {
	t.Helper()

	poolCfg := pool.DefaultConfig()
	poolCfg.MinConns = 0
	poolCfg.CleanupInterval = time.Hour
	poolCfg.HealthCheckInterval = time.Hour

	p, err := pool.New(poolCfg, func(context.Context) (dbclient.SchemaClient, error) {
		return financeBackend{}, nil
	}, logger.Nop())
	require.NoError(t, err)
	t.Cleanup(p.Close)

	store := cache.NewMemory(&cache.Config{DefaultTTL: time.Minute})
	t.Cleanup(store.Close)

	disc := discovery.New(nil, p, store, logger.Nop())

	engine := NewEngine(nil, disc, store, intel, logger.Nop())
	t.Cleanup(engine.Close)
	return engine
}

func TestFindTablesForMetric_Heuristics(t *testing.T) {
	engine := newTestEngine(t, nil)
	ctx := context.Background()

	mappings, err := engine.FindTablesForMetric(ctx, "cash flow")
	require.NoError(t, err)
	require.NotEmpty(t, mappings)

	// Sorted by descending confidence.
	for i := 1; i < len(mappings); i++ {
		assert.GreaterOrEqual(t, mappings[i-1].Confidence, mappings[i].Confidence)
	}

	best := mappings[0]
	assert.Equal(t, "cash_flow", best.Table)
	assert.GreaterOrEqual(t, best.Confidence, 0.7)

	for _, m := range mappings {
		assert.GreaterOrEqual(t, m.Confidence, 0.5, "results below MinConfidence must be discarded")
		assert.LessOrEqual(t, m.Confidence, 1.0)
		assert.Equal(t, "finance", m.Database)
	}
	assert.LessOrEqual(t, len(mappings), DefaultConfig().MaxAlternatives)
}

func TestFindTablesForMetric_ExactMatchWins(t *testing.T) {
	engine := newTestEngine(t, nil)

	mappings, err := engine.FindTablesForMetric(context.Background(), "revenue")
	require.NoError(t, err)
	require.NotEmpty(t, mappings)

	best := mappings[0]
	assert.Equal(t, TypeExact, best.Type)
	assert.Equal(t, "revenue", best.Column)
	assert.Equal(t, 1.0, best.Confidence)
}

func TestFindTablesForMetric_NoMatch(t *testing.T) {
	engine := newTestEngine(t, nil)

	mappings, err := engine.FindTablesForMetric(context.Background(), "employee headcount")
	require.NoError(t, err)
	assert.Empty(t, mappings)
}

func TestFindTablesForMetric_EmptyTerm(t *testing.T) {
	engine := newTestEngine(t, nil)

	mappings, err := engine.FindTablesForMetric(context.Background(), "   ")
	require.NoError(t, err)
	assert.Empty(t, mappings)
}

func TestFindTablesForMetric_ExternalPreferred(t *testing.T) {
	intel := &recordingIntel{
		mappings: map[string][]ExternalMapping{
			"cash flow": {
				{Database: "finance", Table: "cash_flow", Column: "net_cash_flow", Confidence: 0.95, Source: "semantic"},
				{Table: "budget_tracking", Column: "actual_amount", Confidence: 0.8, Source: "learned"},
			},
		},
	}
	engine := newTestEngine(t, intel)

	mappings, err := engine.FindTablesForMetric(context.Background(), "cash flow")
	require.NoError(t, err)
	require.Len(t, mappings, 2)

	assert.Equal(t, TypeExternal, mappings[0].Type)
	assert.Equal(t, "net_cash_flow", mappings[0].Column)
	assert.Equal(t, TypeLearned, mappings[1].Type)
	assert.Equal(t, "finance", mappings[1].Database, "database is resolved from the snapshot when absent")
}

func TestFindTablesForMetric_IntelFailureFallsBack(t *testing.T) {
	intel := &recordingIntel{err: errors.New("service down")}
	engine := newTestEngine(t, intel)

	mappings, err := engine.FindTablesForMetric(context.Background(), "cash flow")
	require.NoError(t, err, "intelligence failure must not fail the request")
	require.NotEmpty(t, mappings)
	assert.Equal(t, "cash_flow", mappings[0].Table)
}

func TestFindTablesForMetric_CachedResult(t *testing.T) {
	intel := &recordingIntel{
		mappings: map[string][]ExternalMapping{
			"revenue": {{Database: "finance", Table: "financial_overview", Column: "revenue", Confidence: 0.9, Source: "semantic"}},
		},
	}
	engine := newTestEngine(t, intel)
	ctx := context.Background()

	first, err := engine.FindTablesForMetric(ctx, "revenue")
	require.NoError(t, err)

	// Change what the service would answer; the cached result must win.
	intel.mu.Lock()
	intel.mappings = nil
	intel.mu.Unlock()

	second, err := engine.FindTablesForMetric(ctx, "revenue")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestLearnFromSuccessfulMapping(t *testing.T) {
	intel := &recordingIntel{}
	engine := newTestEngine(t, intel)

	engine.LearnFromSuccessfulMapping("cash flow", "finance", "cash_flow", "net_cash_flow", 0.95)

	require.Eventually(t, func() bool {
		return len(intel.learnedTerms()) == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "cash flow", intel.learnedTerms()[0])
}

func TestLearnFromSuccessfulMapping_NeverBlocks(t *testing.T) {
	intel := &recordingIntel{learnErr: errors.New("service down")}
	engine := newTestEngine(t, intel)

	done := make(chan struct{})
	go func() {
		defer close(done)
		// Far beyond the queue capacity; must all return immediately.
		for i := 0; i < 500; i++ {
			engine.LearnFromSuccessfulMapping("term", "finance", "cash_flow", "", 0.9)
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("feedback submission blocked")
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Cash Flow", "cash_flow"},
		{"cash-flow", "cash_flow"},
		{"  Net.Income ", "net_income"},
		{"revenue", "revenue"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, normalize(tt.in), "normalize(%q)", tt.in)
	}
}
