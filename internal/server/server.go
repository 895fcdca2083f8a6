// Package server exposes a memory graph over a JSON HTTP API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/JNZader/memgraph/internal/config"
	"github.com/JNZader/memgraph/internal/embedding"
	"github.com/JNZader/memgraph/internal/graph"
	"github.com/JNZader/memgraph/internal/logger"
	"github.com/JNZader/memgraph/internal/maintenance"
	"github.com/JNZader/memgraph/internal/metrics"
)

// Deps holds what the server needs. Journal and Store are optional.
type Deps struct {
	Graph    *graph.Graph
	Embedder *embedding.Embedder
	Config   *config.Config
	Journal  maintenance.Recorder
	Store    maintenance.Saver
	Logger   *logger.Logger
	Metrics  *metrics.Collector
	Version  string
}

// Server is the memgraph HTTP API server.
type Server struct {
	graph    *graph.Graph
	embedder *embedding.Embedder
	cfg      *config.Config
	journal  maintenance.Recorder
	store    maintenance.Saver
	log      *logger.Logger
	metrics  *metrics.Collector
	version  string
	started  time.Time
	router   chi.Router
}

// New creates a Server.
func New(d Deps) *Server {
	s := &Server{
		graph:    d.Graph,
		embedder: d.Embedder,
		cfg:      d.Config,
		journal:  d.Journal,
		store:    d.Store,
		log:      d.Logger,
		metrics:  d.Metrics,
		version:  d.Version,
		started:  time.Now(),
	}
	if s.cfg == nil {
		s.cfg = config.DefaultConfig()
	}
	if s.embedder == nil {
		s.embedder = embedding.New(s.cfg.Embedding.Dimension, embedding.WithCache(s.cfg.Embedding.CacheSize))
	}
	if s.log == nil {
		s.log = logger.Nop()
	}
	s.log = s.log.WithPrefix("http")
	if s.metrics == nil {
		s.metrics = metrics.Global()
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(s.instrument)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Post("/nodes", s.handleAddNode)
		r.Get("/nodes/{id}", s.handleGetNode)
		r.Get("/nodes/{id}/neighbors", s.handleNeighbors)
		r.Post("/relations", s.handleAddRelation)
		r.Post("/search", s.handleSearch)
		r.Get("/active", s.handleActive)
		r.Get("/stats", s.handleStats)
		r.Post("/cleanup", s.handleCleanup)
	})
	r.Get("/metrics", s.handleMetrics)

	s.router = r
}

// instrument counts requests and server errors and times every request.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		s.metrics.Counter(metrics.MetricHTTPRequests).Inc()
		s.metrics.Timer(metrics.MetricHTTPDuration).Observe(time.Since(start))
		if ww.Status() >= http.StatusInternalServerError {
			s.metrics.Counter(metrics.MetricHTTPErrors).Inc()
		}
		s.log.Debug("%s %s %d %v", r.Method, r.URL.Path, ww.Status(), time.Since(start))
	})
}

// ListenAndServe serves on the configured address until ctx is cancelled,
// then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Server.Bind, strconv.Itoa(s.cfg.Server.Port))
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      s,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening on %s", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serving on %s: %w", addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	s.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
