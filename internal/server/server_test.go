package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obaidsafi51/Multi-Agent-BI-System-sub002/internal/cache"
	"github.com/obaidsafi51/Multi-Agent-BI-System-sub002/internal/dbclient"
	"github.com/obaidsafi51/Multi-Agent-BI-System-sub002/internal/discovery"
	"github.com/obaidsafi51/Multi-Agent-BI-System-sub002/internal/logger"
	"github.com/obaidsafi51/Multi-Agent-BI-System-sub002/internal/mapping"
	"github.com/obaidsafi51/Multi-Agent-BI-System-sub002/internal/pool"
)

type stubBackend struct{}

func (stubBackend) ListDatabases(context.Context) ([]string, error) {
	return []string{"finance"}, nil
}

func (stubBackend) ListTables(context.Context, string) ([]string, error) {
	return []string{"cash_flow"}, nil
}

func (stubBackend) GetTableSchema(_ context.Context, database, table string) (*dbclient.TableSchema, error) {
	return &dbclient.TableSchema{
		Database: database,
		Name:     table,
		Columns: []dbclient.ColumnSchema{
			{Name: "id", DataType: "bigint", IsPrimaryKey: true},
			{Name: "net_cash_flow", DataType: "decimal"},
		},
		PrimaryKeys: []string{"id"},
	}, nil
}

func (stubBackend) HealthCheck(context.Context) bool { return true }
func (stubBackend) Close(context.Context) error      { return nil }

func newTestServer(t *testing.T) *Server {
	t.Helper()

	poolCfg := pool.DefaultConfig()
	poolCfg.MinConns = 0
	poolCfg.CleanupInterval = time.Hour
	poolCfg.HealthCheckInterval = time.Hour

	p, err := pool.New(poolCfg, func(context.Context) (dbclient.SchemaClient, error) {
		return stubBackend{}, nil
	}, logger.Nop())
	require.NoError(t, err)
	t.Cleanup(p.Close)

	store := cache.NewMemory(&cache.Config{DefaultTTL: time.Minute})
	t.Cleanup(store.Close)

	disc := discovery.New(nil, p, store, logger.Nop())
	engine := mapping.NewEngine(nil, disc, store, nil, logger.Nop())
	t.Cleanup(engine.Close)
	builder := mapping.NewContextBuilder(engine, disc)

	return New(nil, p, disc, engine, builder, logger.Nop())
}

func doRequest(t *testing.T, s *Server, method, target string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.http.Handler.ServeHTTP(rec, req)
	return rec
}

func TestHandleHealth(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, []any{"ok", "degraded"}, body["status"])
}

func TestHandleSchema(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/v1/schema", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var snap discovery.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	require.Len(t, snap.Databases, 1)
	assert.Equal(t, "finance", snap.Databases[0].Name)
	assert.True(t, snap.Complete)
}

func TestHandleSchema_FastMode(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/v1/schema?fast=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var snap discovery.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.True(t, snap.FastMode)
}

func TestHandleMappings(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/v1/mappings?term=cash+flow", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Term     string            `json:"term"`
		Mappings []mapping.Mapping `json:"mappings"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "cash flow", body.Term)
	require.NotEmpty(t, body.Mappings)
	assert.Equal(t, "cash_flow", body.Mappings[0].Table)
}

func TestHandleMappings_MissingTerm(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/v1/mappings", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleQueryContext(t *testing.T) {
	s := newTestServer(t)

	payload, _ := json.Marshal(mapping.Intent{Metric: "cash flow"})
	rec := doRequest(t, s, http.MethodPost, "/v1/query-context", payload)
	require.Equal(t, http.StatusOK, rec.Code)

	var qc mapping.QueryContext
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &qc))
	assert.Equal(t, "cash flow", qc.Intent.Metric)
	require.NotEmpty(t, qc.TableMappings)
}

func TestHandleQueryContext_BadRequests(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name     string
		body     string
		wantCode int
	}{
		{name: "malformed json", body: "{not json", wantCode: http.StatusBadRequest},
		{name: "missing metric", body: "{}", wantCode: http.StatusBadRequest},
		{name: "unmappable metric", body: `{"metric":"employee headcount"}`, wantCode: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, s, http.MethodPost, "/v1/query-context", []byte(tt.body))
			assert.Equal(t, tt.wantCode, rec.Code)
		})
	}
}

func TestHandlePoolStats(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/v1/pool/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body, "pool")
	assert.Contains(t, body, "pool_totals")
	assert.Contains(t, body, "discovery")
}

func TestHandleCacheInvalidate(t *testing.T) {
	s := newTestServer(t)

	// Populate the cache, then clear it.
	rec := doRequest(t, s, http.MethodGet, "/v1/schema", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, s, http.MethodPost, "/v1/cache/invalidate", []byte(`{"scope":"all"}`))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Scope   string `json:"scope"`
		Removed int    `json:"removed"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "all", body.Scope)
	assert.Equal(t, 1, body.Removed)
}

func TestHandleCacheInvalidate_EmptyBody(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(t, s, http.MethodPost, "/v1/cache/invalidate", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
