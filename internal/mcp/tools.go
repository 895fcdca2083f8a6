package mcp

import (
	"context"
	"fmt"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/JNZader/memgraph/internal/graph"
	"github.com/JNZader/memgraph/internal/maintenance"
)

const defaultImportance = 0.5

func (s *Server) registerTools() {
	s.registerMemoryTools()
	s.registerGraphTools()
	s.registerMaintenanceTools()
}

type rememberInput struct {
	Content     string            `json:"content" jsonschema:"the text to remember"`
	ID          string            `json:"id,omitempty" jsonschema:"explicit node id; generated when empty"`
	ContentType string            `json:"content_type,omitempty" jsonschema:"TEXT, CODE, CONCEPT, FACT, PROCEDURE, RELATIONSHIP or CONTEXT"`
	Importance  *float64          `json:"importance,omitempty" jsonschema:"base importance between 0 and 1, default 0.5"`
	Tags        []string          `json:"tags,omitempty" jsonschema:"free-form labels"`
	Metadata    map[string]string `json:"metadata,omitempty" jsonschema:"string key/value pairs"`
}

type idInput struct {
	ID string `json:"id" jsonschema:"node id"`
}

type searchInput struct {
	Query        string   `json:"query" jsonschema:"text to compare memories against"`
	Threshold    *float64 `json:"threshold,omitempty" jsonschema:"minimum cosine similarity"`
	Limit        *int     `json:"limit,omitempty" jsonschema:"maximum number of results"`
	Tags         []string `json:"tags,omitempty" jsonschema:"only memories carrying at least one of these tags"`
	ContentTypes []string `json:"content_types,omitempty" jsonschema:"only memories of these content types"`
}

type limitInput struct {
	Limit *int `json:"limit,omitempty" jsonschema:"maximum number of results"`
}

// registerMemoryTools registers the tools that create and read memories.
func (s *Server) registerMemoryTools() {
	addTool(s, &sdk.Tool{
		Name:        "memory_remember",
		Description: "Store a new memory. The content is embedded for similarity search.",
	}, s.remember)

	addTool(s, &sdk.Tool{
		Name:        "memory_get",
		Description: "Read a memory by id. Reading counts as an access and slows its decay.",
	}, func(_ context.Context, in idInput) (any, error) {
		node, ok := s.graph.GetNode(in.ID)
		if !ok {
			return nil, fmt.Errorf("node %s not found", in.ID)
		}
		return node, nil
	})

	addTool(s, &sdk.Tool{
		Name:        "memory_search",
		Description: "Find memories similar to a text, most similar first. Optionally restrict to tags or content types.",
	}, func(_ context.Context, in searchInput) (any, error) {
		if in.Query == "" {
			return nil, fmt.Errorf("query required")
		}
		filter, err := graph.NewSearchFilter(in.Tags, in.ContentTypes)
		if err != nil {
			return nil, err
		}
		threshold := s.cfg.Search.Threshold
		if in.Threshold != nil {
			threshold = *in.Threshold
		}
		limit := s.cfg.Search.Limit
		if in.Limit != nil {
			limit = *in.Limit
		}
		return nonNil(s.graph.FindSimilarNodesFiltered(s.embedder.Embed(in.Query), threshold, limit, filter)), nil
	})

	addTool(s, &sdk.Tool{
		Name:        "memory_active",
		Description: "List the memories with the highest decayed importance.",
	}, func(_ context.Context, in limitInput) (any, error) {
		limit := s.cfg.Search.Limit
		if in.Limit != nil {
			limit = *in.Limit
		}
		return nonNil(s.graph.GetActiveNodes(limit)), nil
	})
}

func (s *Server) remember(_ context.Context, in rememberInput) (any, error) {
	if in.Content == "" {
		return nil, fmt.Errorf("content required")
	}
	importance := defaultImportance
	if in.Importance != nil {
		importance = *in.Importance
	}

	opts := []graph.NodeOption{
		graph.WithCreatedAt(s.graph.Now()),
		graph.WithEmbedding(s.embedder.Embed(in.Content)),
		graph.WithTags(in.Tags...),
		graph.WithMetadata(in.Metadata),
	}
	if in.ID != "" {
		opts = append(opts, graph.WithID(in.ID))
	}
	node := graph.NewMemoryNode(in.Content, graph.ParseContentType(in.ContentType), importance, opts...)

	if !s.graph.AddNode(node) {
		return nil, fmt.Errorf("node %s already exists", node.ID)
	}
	stored, _ := s.graph.PeekNode(node.ID)
	return stored, nil
}

type relateInput struct {
	From     string            `json:"from" jsonschema:"source node id"`
	To       string            `json:"to" jsonschema:"target node id"`
	Type     string            `json:"type,omitempty" jsonschema:"relation type such as SIMILAR, CAUSES or PART_OF; default CUSTOM"`
	Strength *float64          `json:"strength,omitempty" jsonschema:"initial strength between 0 and 1, default 0.5"`
	Metadata map[string]string `json:"metadata,omitempty" jsonschema:"string key/value pairs"`
}

type neighborsInput struct {
	ID          string   `json:"id" jsonschema:"node to start from"`
	MaxDistance *int     `json:"max_distance,omitempty" jsonschema:"maximum number of hops"`
	MinStrength *float64 `json:"min_strength,omitempty" jsonschema:"minimum decayed relation strength to follow"`
}

// registerGraphTools registers the tools that link and walk memories.
func (s *Server) registerGraphTools() {
	addTool(s, &sdk.Tool{
		Name:        "memory_relate",
		Description: "Add a directed relation between two memories. Relating the same pair with the same type again reinforces it.",
	}, func(_ context.Context, in relateInput) (any, error) {
		strength := 0.5
		if in.Strength != nil {
			strength = *in.Strength
		}
		rel := graph.NewMemoryRelation(in.From, in.To, graph.ParseRelationType(in.Type), strength)
		rel.Metadata = in.Metadata
		now := s.graph.Now()
		rel.CreatedAt, rel.LastReinforcedAt = now, now

		if !s.graph.AddRelation(rel) {
			return nil, fmt.Errorf("cannot relate %s -> %s: unknown node", in.From, in.To)
		}
		stored, ok := s.graph.GetRelation(rel.FromNodeID, rel.ToNodeID, rel.RelationType)
		if !ok {
			return nil, fmt.Errorf("cannot relate %s -> %s: unknown node", in.From, in.To)
		}
		return stored, nil
	})

	addTool(s, &sdk.Tool{
		Name:        "memory_neighbors",
		Description: "List memories reachable from a memory over sufficiently strong relations, nearest first.",
	}, func(_ context.Context, in neighborsInput) (any, error) {
		if _, ok := s.graph.PeekNode(in.ID); !ok {
			return nil, fmt.Errorf("node %s not found", in.ID)
		}
		maxDistance := s.cfg.Traversal.MaxDistance
		if in.MaxDistance != nil {
			maxDistance = *in.MaxDistance
		}
		minStrength := s.cfg.Traversal.MinRelationStrength
		if in.MinStrength != nil {
			minStrength = *in.MinStrength
		}
		return nonNil(s.graph.GetNeighbors(in.ID, maxDistance, minStrength)), nil
	})
}

type cleanupInput struct {
	MinImportance       *float64 `json:"min_importance,omitempty" jsonschema:"evict memories whose decayed importance is below this"`
	MinRelationStrength *float64 `json:"min_relation_strength,omitempty" jsonschema:"evict relations whose decayed strength is below this"`
}

// registerMaintenanceTools registers statistics and cleanup.
func (s *Server) registerMaintenanceTools() {
	addTool(s, &sdk.Tool{
		Name:        "memory_stats",
		Description: "Summarize the graph: counts, connectivity, type distributions and the most important memories.",
	}, func(_ context.Context, _ struct{}) (any, error) {
		return s.graph.GetStatistics(), nil
	})

	addTool(s, &sdk.Tool{
		Name:        "memory_cleanup",
		Description: "Evict decayed memories and weak relations.",
	}, func(ctx context.Context, in cleanupInput) (any, error) {
		opts := maintenance.Options{
			MinImportance:       s.cfg.Cleanup.MinImportance,
			MinRelationStrength: s.cfg.Cleanup.MinRelationStrength,
			Journal:             s.journal,
			Store:               s.store,
			Logger:              s.log,
			Metrics:             s.metrics,
		}
		if in.MinImportance != nil {
			opts.MinImportance = *in.MinImportance
		}
		if in.MinRelationStrength != nil {
			opts.MinRelationStrength = *in.MinRelationStrength
		}
		return maintenance.NewRunner(s.graph, opts).RunOnce(ctx)
	})
}

func nonNil[T any](v []T) []T {
	if v == nil {
		return []T{}
	}
	return v
}
