// Package server exposes the middleware over a small HTTP API: schema
// snapshots, term mappings, query contexts, pool statistics, and cache
// invalidation.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/obaidsafi51/Multi-Agent-BI-System-sub002/internal/discovery"
	"github.com/obaidsafi51/Multi-Agent-BI-System-sub002/internal/logger"
	"github.com/obaidsafi51/Multi-Agent-BI-System-sub002/internal/mapping"
	"github.com/obaidsafi51/Multi-Agent-BI-System-sub002/internal/pool"
)

// Config holds HTTP server settings.
type Config struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DefaultConfig returns production-ready server settings.
func DefaultConfig() *Config {
	return &Config{
		Addr:            ":8080",
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

// Server wires the middleware components behind an HTTP API.
type Server struct {
	cfg     *Config
	pool    *pool.Pool
	disc    *discovery.Orchestrator
	engine  *mapping.Engine
	builder *mapping.ContextBuilder
	log     *logger.Logger
	http    *http.Server
}

// New creates a server. It does not start listening; call Start.
func New(cfg *Config, p *pool.Pool, disc *discovery.Orchestrator, engine *mapping.Engine, builder *mapping.ContextBuilder, log *logger.Logger) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if log == nil {
		log = logger.Nop()
	}

	s := &Server{
		cfg:     cfg,
		pool:    p,
		disc:    disc,
		engine:  engine,
		builder: builder,
		log:     log.With().Str("component", "server").Logger(),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/schema", s.handleSchema)
		r.Get("/mappings", s.handleMappings)
		r.Post("/query-context", s.handleQueryContext)
		r.Get("/pool/stats", s.handlePoolStats)
		r.Post("/cache/invalidate", s.handleCacheInvalidate)
	})

	s.http = &http.Server{
		Addr:         cfg.Addr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Start listens and serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.log.With().Str("addr", s.cfg.Addr).Logger().Info("http server listening")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests within the configured timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.cfg.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
		defer cancel()
	}
	return s.http.Shutdown(ctx)
}
