// Package server exposes the public HTTP API: hybrid search, reindex
// triggering, health, and Prometheus metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hireloop/talentsearch/pkg/candidate"
	"github.com/hireloop/talentsearch/pkg/indexer"
	"github.com/hireloop/talentsearch/pkg/search"
)

// SearchEngine runs the hybrid pipeline for a validated filter set.
type SearchEngine interface {
	Search(ctx context.Context, filters candidate.SearchFilters) ([]search.Result, error)
}

// Rebuilder runs the zero-downtime full reindex.
type Rebuilder interface {
	FullReindex(ctx context.Context) (indexer.ReindexResult, error)
}

// Pinger answers whether the lexical store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// CollectionChecker answers whether the ANN collection exists.
type CollectionChecker interface {
	HasCollection(ctx context.Context) (bool, error)
}

// ConnectionChecker answers whether the bus connection is open.
type ConnectionChecker interface {
	Connected() bool
}

type Server struct {
	engine    SearchEngine
	rebuilder Rebuilder
	lexical   Pinger
	vector    CollectionChecker
	bus       ConnectionChecker

	httpServer *http.Server
}

func New(addr string, engine SearchEngine, rebuilder Rebuilder, lex Pinger, vec CollectionChecker, bus ConnectionChecker) *Server {
	s := &Server{
		engine:    engine,
		rebuilder: rebuilder,
		lexical:   lex,
		vector:    vec,
		bus:       bus,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1/search", func(r chi.Router) {
		r.Post("/", s.handleSearch)
		r.Post("/index/rebuild", s.handleRebuild)
	})

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// ListenAndServe blocks until the server stops.
func (s *Server) ListenAndServe() error {
	slog.Info("http server listening", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Welcome to the Search Service",
	})
}

type searchResponse struct {
	Results []search.Result `json:"results"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var filters candidate.SearchFilters
	if err := json.NewDecoder(r.Body).Decode(&filters); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	filters.Normalize()
	if err := filters.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	results, err := s.engine.Search(r.Context(), filters)
	if err != nil {
		if errors.Is(err, candidate.ErrValidation) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		slog.Error("search failed", "error", err)
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}

	if results == nil {
		results = []search.Result{}
	}
	writeJSON(w, http.StatusOK, searchResponse{Results: results})
}

func (s *Server) handleRebuild(w http.ResponseWriter, r *http.Request) {
	taskID := uuid.NewString()

	// The job outlives the request on purpose; it is detached from the
	// request context and only logs its outcome.
	go func() {
		result, err := s.rebuilder.FullReindex(context.Background())
		if err != nil {
			slog.Error("background reindex failed", "task_id", taskID, "error", err)
			return
		}
		slog.Info("background reindex finished",
			"task_id", taskID,
			"active_index", result.ActiveIndex,
			"total_indexed", result.TotalIndexed)
	}()

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Full re-indexation process has been started in the background.",
		"task_id": taskID,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	var reasons []string

	if err := s.lexical.Ping(r.Context()); err != nil {
		reasons = append(reasons, fmt.Sprintf("lexical store: %v", err))
	}

	if exists, err := s.vector.HasCollection(r.Context()); err != nil {
		reasons = append(reasons, fmt.Sprintf("vector store: %v", err))
	} else if !exists {
		reasons = append(reasons, "vector store: collection missing")
	}

	if !s.bus.Connected() {
		reasons = append(reasons, "message bus: disconnected")
	}

	if len(reasons) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"reason": strings.Join(reasons, "; "),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start))
	})
}
