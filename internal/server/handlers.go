package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/JNZader/memgraph/internal/graph"
	"github.com/JNZader/memgraph/internal/maintenance"
	"github.com/JNZader/memgraph/internal/metrics"
)

const defaultImportance = 0.5

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"version":   s.version,
		"uptime":    time.Since(s.started).Seconds(),
		"nodes":     s.graph.NodeCount(),
		"relations": s.graph.RelationCount(),
	})
}

type addNodeRequest struct {
	ID          string            `json:"id"`
	Content     string            `json:"content"`
	ContentType string            `json:"content_type"`
	Importance  *float64          `json:"importance"`
	Tags        []string          `json:"tags"`
	Metadata    map[string]string `json:"metadata"`
	Embedding   []float32         `json:"embedding"`
}

func (s *Server) handleAddNode(w http.ResponseWriter, r *http.Request) {
	var req addNodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, "content required")
		return
	}

	importance := defaultImportance
	if req.Importance != nil {
		importance = *req.Importance
	}
	vec := req.Embedding
	if len(vec) == 0 {
		vec = s.embedder.Embed(req.Content)
	}

	opts := []graph.NodeOption{
		graph.WithCreatedAt(s.graph.Now()),
		graph.WithEmbedding(vec),
		graph.WithTags(req.Tags...),
		graph.WithMetadata(req.Metadata),
	}
	if req.ID != "" {
		opts = append(opts, graph.WithID(req.ID))
	}
	node := graph.NewMemoryNode(req.Content, graph.ParseContentType(req.ContentType), importance, opts...)

	if !s.graph.AddNode(node) {
		writeError(w, http.StatusConflict, "node "+node.ID+" already exists")
		return
	}

	stored, _ := s.graph.PeekNode(node.ID)
	writeJSON(w, http.StatusCreated, stored)
}

func (s *Server) handleGetNode(w http.ResponseWriter, r *http.Request) {
	node, ok := s.graph.GetNode(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "node not found")
		return
	}
	writeJSON(w, http.StatusOK, node)
}

func (s *Server) handleNeighbors(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := s.graph.PeekNode(id); !ok {
		writeError(w, http.StatusNotFound, "node not found")
		return
	}

	maxDistance, err := intParam(r, "max_distance", s.cfg.Traversal.MaxDistance)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid max_distance")
		return
	}
	minStrength, err := floatParam(r, "min_strength", s.cfg.Traversal.MinRelationStrength)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid min_strength")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"nodes": nonNil(s.graph.GetNeighbors(id, maxDistance, minStrength)),
	})
}

type addRelationRequest struct {
	From     string            `json:"from"`
	To       string            `json:"to"`
	Type     string            `json:"type"`
	Strength float64           `json:"strength"`
	Metadata map[string]string `json:"metadata"`
}

func (s *Server) handleAddRelation(w http.ResponseWriter, r *http.Request) {
	var req addRelationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.From == "" || req.To == "" {
		writeError(w, http.StatusBadRequest, "from and to required")
		return
	}

	rel := graph.NewMemoryRelation(req.From, req.To, graph.ParseRelationType(req.Type), req.Strength)
	rel.Metadata = req.Metadata
	now := s.graph.Now()
	rel.CreatedAt, rel.LastReinforcedAt = now, now

	if !s.graph.AddRelation(rel) {
		writeError(w, http.StatusNotFound, "unknown endpoint")
		return
	}

	stored, ok := s.graph.GetRelation(rel.FromNodeID, rel.ToNodeID, rel.RelationType)
	if !ok {
		// An endpoint was evicted between the insert and the read.
		writeError(w, http.StatusNotFound, "unknown endpoint")
		return
	}
	writeJSON(w, http.StatusOK, stored)
}

type searchRequest struct {
	Text         string    `json:"text"`
	Embedding    []float32 `json:"embedding"`
	Threshold    *float64  `json:"threshold"`
	Limit        *int      `json:"limit"`
	Tags         []string  `json:"tags"`
	ContentTypes []string  `json:"content_types"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	filter, err := graph.NewSearchFilter(req.Tags, req.ContentTypes)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	query := req.Embedding
	if len(query) == 0 {
		if req.Text == "" {
			writeError(w, http.StatusBadRequest, "text or embedding required")
			return
		}
		query = s.embedder.Embed(req.Text)
	}

	threshold := s.cfg.Search.Threshold
	if req.Threshold != nil {
		threshold = *req.Threshold
	}
	limit := s.cfg.Search.Limit
	if req.Limit != nil {
		limit = *req.Limit
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"results": nonNil(s.graph.FindSimilarNodesFiltered(query, threshold, limit, filter)),
	})
}

func (s *Server) handleActive(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", s.cfg.Search.Limit)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"nodes": nonNil(s.graph.GetActiveNodes(limit)),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.graph.GetStatistics())
}

type cleanupRequest struct {
	MinImportance       *float64 `json:"min_importance"`
	MinRelationStrength *float64 `json:"min_relation_strength"`
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	var req cleanupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	opts := maintenance.Options{
		MinImportance:       s.cfg.Cleanup.MinImportance,
		MinRelationStrength: s.cfg.Cleanup.MinRelationStrength,
		Journal:             s.journal,
		Store:               s.store,
		Logger:              s.log,
		Metrics:             s.metrics,
	}
	if req.MinImportance != nil {
		opts.MinImportance = *req.MinImportance
	}
	if req.MinRelationStrength != nil {
		opts.MinRelationStrength = *req.MinRelationStrength
	}

	run, err := maintenance.NewRunner(s.graph, opts).RunOnce(r.Context())
	if err != nil {
		// The cleanup itself has happened; report it alongside the failure.
		s.log.Error("cleanup persistence failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error": err.Error(),
			"run":   run,
		})
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if stats, ok := s.embedder.CacheStats(); ok {
		s.metrics.Gauge(metrics.MetricEmbeddingCacheHits).Set(float64(stats.Hits))
		s.metrics.Gauge(metrics.MetricEmbeddingCacheMisses).Set(float64(stats.Misses))
		s.metrics.Gauge(metrics.MetricEmbeddingCacheEntries).Set(float64(stats.Entries))
	}

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	if err := s.metrics.WritePrometheus(w); err != nil {
		s.log.Warn("writing metrics: %v", err)
	}
}

func intParam(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

func floatParam(r *http.Request, name string, def float64) (float64, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	return strconv.ParseFloat(v, 64)
}

// nonNil keeps empty results encoding as [] rather than null.
func nonNil[T any](v []T) []T {
	if v == nil {
		return []T{}
	}
	return v
}
