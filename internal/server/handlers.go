package server

import (
	"encoding/json"
	"net/http"

	"github.com/obaidsafi51/Multi-Agent-BI-System-sub002/internal/errs"
	"github.com/obaidsafi51/Multi-Agent-BI-System-sub002/internal/mapping"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats := s.pool.Stats()
	status := "ok"
	code := http.StatusOK
	if stats.Total == 0 && stats.MaxConns > 0 {
		// No backend connection has been established yet. Discovery still
		// works through the fallback snapshot, so report degraded, not down.
		status = "degraded"
	}
	writeJSON(w, code, map[string]any{
		"status": status,
		"pool":   stats,
	})
}

func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	refresh := r.URL.Query().Get("refresh") == "true"
	fast := r.URL.Query().Get("fast") == "true"

	snap, err := s.disc.DiscoverSchema(r.Context(), refresh, fast)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleMappings(w http.ResponseWriter, r *http.Request) {
	term := r.URL.Query().Get("term")
	if term == "" {
		s.writeError(w, r, errs.New(errs.ErrKindInvalidInput, "term query parameter is required"))
		return
	}

	mappings, err := s.engine.FindTablesForMetric(r.Context(), term)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"term":     term,
		"mappings": mappings,
	})
}

func (s *Server) handleQueryContext(w http.ResponseWriter, r *http.Request) {
	var intent mapping.Intent
	if err := json.NewDecoder(r.Body).Decode(&intent); err != nil {
		s.writeError(w, r, errs.Wrap(errs.ErrKindInvalidInput, "decoding intent", err))
		return
	}

	qc, err := s.builder.Build(r.Context(), intent)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, qc)
}

func (s *Server) handlePoolStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"pool":        s.pool.Stats(),
		"pool_totals": s.pool.Metrics(),
		"discovery":   s.disc.Metrics(),
	})
}

func (s *Server) handleCacheInvalidate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Scope string `json:"scope"`
	}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, r, errs.Wrap(errs.ErrKindInvalidInput, "decoding invalidate request", err))
			return
		}
	}

	removed := s.disc.InvalidateSchemaCache(r.Context(), req.Scope)
	writeJSON(w, http.StatusOK, map[string]any{
		"scope":   req.Scope,
		"removed": removed,
	})
}

// writeError translates the unified error taxonomy to HTTP status codes.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := http.StatusInternalServerError
	switch {
	case errs.IsInvalidInput(err):
		code = http.StatusBadRequest
	case errs.IsNotFound(err):
		code = http.StatusNotFound
	case errs.IsTimeout(err):
		code = http.StatusGatewayTimeout
	case errs.IsPoolExhausted(err), errs.IsUnavailable(err), errs.IsConnectionFailed(err):
		code = http.StatusServiceUnavailable
	}

	if code == http.StatusInternalServerError {
		s.log.ErrorWith("request failed", err, map[string]any{
			"method": r.Method,
			"path":   r.URL.Path,
		})
	}

	writeJSON(w, code, map[string]any{
		"error": err.Error(),
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
