// Package ingest bulk-loads memories from a YAML document into a graph.
//
// A document looks like:
//
//	nodes:
//	  - id: retry-policy
//	    content: "Retries use exponential backoff capped at 30s"
//	    content_type: FACT
//	    importance: 0.8
//	    tags: [http, resilience]
//	relations:
//	  - from: retry-policy
//	    to: http-client
//	    type: PART_OF
//	    strength: 0.6
//
// Nodes without an embedding are embedded from their content. Node ids are
// optional; relations can only refer to nodes with explicit ids.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/JNZader/memgraph/internal/embedding"
	"github.com/JNZader/memgraph/internal/graph"
	"github.com/JNZader/memgraph/internal/logger"
	"github.com/JNZader/memgraph/internal/metrics"
	"github.com/JNZader/memgraph/internal/worker"
)

// defaultImportance applies to nodes that leave importance unset.
const defaultImportance = 0.5

// Document is the YAML ingest format.
type Document struct {
	Nodes     []NodeSpec     `yaml:"nodes"`
	Relations []RelationSpec `yaml:"relations"`
}

// NodeSpec describes one node to insert.
type NodeSpec struct {
	ID          string            `yaml:"id"`
	Content     string            `yaml:"content"`
	ContentType string            `yaml:"content_type"`
	Importance  *float64          `yaml:"importance"`
	Tags        []string          `yaml:"tags"`
	Metadata    map[string]string `yaml:"metadata"`
	Embedding   []float32         `yaml:"embedding"`
}

// RelationSpec describes one relation to insert or reinforce.
type RelationSpec struct {
	From     string            `yaml:"from"`
	To       string            `yaml:"to"`
	Type     string            `yaml:"type"`
	Strength float64           `yaml:"strength"`
	Metadata map[string]string `yaml:"metadata"`
}

// Result summarizes an Apply call.
type Result struct {
	NodesAdded        int `json:"nodes_added"`
	NodesSkipped      int `json:"nodes_skipped"`
	RelationsApplied  int `json:"relations_applied"`
	RelationsRejected int `json:"relations_rejected"`
}

// errDuplicate marks a node whose id already exists in the graph.
var errDuplicate = errors.New("node already exists")

// Load reads and validates a document from path.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML document.
func Parse(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing ingest document: %w", err)
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Validate checks that every node has content, a finite importance and a
// finite embedding, and that every relation names both endpoints.
func (d *Document) Validate() error {
	for i, n := range d.Nodes {
		if n.Content == "" {
			return fmt.Errorf("nodes[%d]: content is required", i)
		}
		if n.Importance != nil && !(*n.Importance >= 0 && *n.Importance <= 1) {
			return fmt.Errorf("nodes[%d]: importance must be between 0 and 1", i)
		}
		for j, v := range n.Embedding {
			if f := float64(v); math.IsNaN(f) || math.IsInf(f, 0) {
				return fmt.Errorf("nodes[%d]: embedding[%d] is not a finite number", i, j)
			}
		}
	}
	for i, r := range d.Relations {
		if r.From == "" || r.To == "" {
			return fmt.Errorf("relations[%d]: from and to are required", i)
		}
	}
	return nil
}

// Applier inserts documents into a graph.
type Applier struct {
	Graph    *graph.Graph
	Embedder *embedding.Embedder
	Workers  worker.Config
	Logger   *logger.Logger
	Metrics  *metrics.Collector
}

// Apply inserts every node of doc, fanning the work out over a worker pool,
// then applies the relations in document order once all nodes are in.
func (a *Applier) Apply(ctx context.Context, doc *Document) (*Result, error) {
	log := a.Logger
	if log == nil {
		log = logger.Nop()
	}
	log = log.WithPrefix("ingest")
	m := a.Metrics
	if m == nil {
		m = metrics.Global()
	}

	tasks := make([]worker.Task, len(doc.Nodes))
	for i := range doc.Nodes {
		spec := doc.Nodes[i]
		tasks[i] = worker.NewFuncTask(fmt.Sprintf("node-%d", i), func(context.Context) error {
			if !a.Graph.AddNode(a.buildNode(spec)) {
				return fmt.Errorf("%s: %w", spec.ID, errDuplicate)
			}
			return nil
		})
	}

	results, err := worker.Run(ctx, a.Workers, tasks)
	if err != nil {
		m.Counter(metrics.MetricIngestErrors).Inc()
		return nil, fmt.Errorf("ingesting nodes: %w", err)
	}

	res := &Result{}
	var failed int64
	for _, r := range results {
		switch {
		case r.Error == nil:
			res.NodesAdded++
		case errors.Is(r.Error, errDuplicate):
			res.NodesSkipped++
			log.Debug("skipped %v", r.Error)
		default:
			failed++
			log.Warn("task %s failed: %v", r.TaskID, r.Error)
		}
	}
	if failed > 0 {
		m.Counter(metrics.MetricIngestErrors).Add(failed)
		return res, fmt.Errorf("%d node tasks failed", failed)
	}

	for _, spec := range doc.Relations {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		rel := graph.NewMemoryRelation(spec.From, spec.To, graph.ParseRelationType(spec.Type), spec.Strength)
		rel.Metadata = spec.Metadata
		now := a.Graph.Now()
		rel.CreatedAt, rel.LastReinforcedAt = now, now
		if a.Graph.AddRelation(rel) {
			res.RelationsApplied++
		} else {
			res.RelationsRejected++
			log.Debug("relation %s -> %s rejected", spec.From, spec.To)
		}
	}

	m.Counter(metrics.MetricIngestBatches).Inc()
	log.WithFields(map[string]interface{}{
		"nodes":     res.NodesAdded,
		"skipped":   res.NodesSkipped,
		"relations": res.RelationsApplied,
		"rejected":  res.RelationsRejected,
	}).Info("ingest complete")

	return res, nil
}

func (a *Applier) buildNode(spec NodeSpec) *graph.MemoryNode {
	importance := defaultImportance
	if spec.Importance != nil {
		importance = *spec.Importance
	}

	vec := spec.Embedding
	if len(vec) == 0 && a.Embedder != nil {
		vec = a.Embedder.Embed(spec.Content)
	}

	opts := []graph.NodeOption{
		graph.WithCreatedAt(a.Graph.Now()),
		graph.WithEmbedding(vec),
		graph.WithTags(spec.Tags...),
		graph.WithMetadata(spec.Metadata),
	}
	if spec.ID != "" {
		opts = append(opts, graph.WithID(spec.ID))
	}
	return graph.NewMemoryNode(spec.Content, graph.ParseContentType(spec.ContentType), importance, opts...)
}
