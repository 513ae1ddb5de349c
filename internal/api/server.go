// Package api implements the shutterscope HTTP API.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shutterscope/shutterscope/internal/auth"
	"github.com/shutterscope/shutterscope/internal/db"
	"github.com/shutterscope/shutterscope/internal/stats"
)

// Options carries the dependencies of a Server.
type Options struct {
	Store    db.Store
	Stats    *stats.Service
	Auth     *auth.Auth
	Logger   *slog.Logger
	Registry *prometheus.Registry
	Version  string

	// RequestsPerSecond and Burst size the per-IP token bucket.
	RequestsPerSecond float64
	Burst             int
}

// Server holds all dependencies for the HTTP API.
type Server struct {
	store    db.Store
	stats    *stats.Service
	auth     *auth.Auth
	logger   *slog.Logger
	registry *prometheus.Registry
	limiter  *rateLimiter
	metrics  *httpMetrics
	version  string
	started  time.Time
	mux      *http.ServeMux
}

// NewServer creates a new API server with all routes configured.
func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Registry == nil {
		opts.Registry = prometheus.NewRegistry()
	}
	if opts.Stats == nil {
		opts.Stats = stats.NewService(opts.Store, nil, nil, opts.Logger)
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 10
	}
	if opts.Burst <= 0 {
		opts.Burst = 20
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}

	s := &Server{
		store:    opts.Store,
		stats:    opts.Stats,
		auth:     opts.Auth,
		logger:   opts.Logger,
		registry: opts.Registry,
		limiter:  newRateLimiter(opts.RequestsPerSecond, opts.Burst),
		metrics:  newHTTPMetrics(opts.Registry),
		version:  opts.Version,
		started:  time.Now(),
		mux:      http.NewServeMux(),
	}

	s.setupRoutes()
	return s
}

// Handler returns the HTTP handler with middleware applied.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = s.metricsMiddleware(h)
	h = s.loggingMiddleware(h)
	h = rateLimitMiddleware(s.limiter, s.metrics)(h)
	h = corsMiddleware(h)
	h = securityHeadersMiddleware(h)
	h = requestIDMiddleware(h)
	return h
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	// Auth endpoints (no auth required)
	s.mux.HandleFunc("POST /api/v1/auth/login", s.handleLogin)

	// Auth-required endpoints
	s.mux.Handle("GET /api/v1/auth/me", s.authMiddleware(http.HandlerFunc(s.handleMe)))
	s.mux.Handle("GET /api/v1/statistics", s.authMiddleware(http.HandlerFunc(s.handleStatistics)))

	// Results
	s.mux.Handle("GET /api/v1/results", s.authMiddleware(http.HandlerFunc(s.handleListResults)))
	s.mux.Handle("GET /api/v1/results/{id}", s.authMiddleware(http.HandlerFunc(s.handleGetResult)))
	s.mux.Handle("POST /api/v1/results", s.authMiddleware(s.adminOnly(http.HandlerFunc(s.handleCreateResult))))
	s.mux.Handle("DELETE /api/v1/results/{id}", s.authMiddleware(s.adminOnly(http.HandlerFunc(s.handleDeleteResult))))
}

// RegisterRuntimeCollectors adds the Go runtime and process collectors to
// the server registry.
func (s *Server) RegisterRuntimeCollectors() {
	s.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// Close releases background resources. Call it after the HTTP server has
// shut down.
func (s *Server) Close() {
	s.limiter.close()
}

type healthResponse struct {
	Status   string         `json:"status"`
	Version  string         `json:"version"`
	Uptime   string         `json:"uptime"`
	Database databaseHealth `json:"database"`
	Cache    string         `json:"cache"`
}

type databaseHealth struct {
	Driver string `json:"driver"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := healthResponse{
		Status:   "ok",
		Version:  s.version,
		Uptime:   time.Since(s.started).Round(time.Second).String(),
		Database: databaseHealth{Driver: s.store.Driver(), Status: "ok"},
		Cache:    s.stats.CacheName(),
	}
	status := http.StatusOK
	if err := s.store.Ping(ctx); err != nil {
		s.logger.Error("database ping failed", "error", err)
		resp.Status = "degraded"
		resp.Database.Status = "unreachable"
		resp.Database.Error = "ping failed"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
