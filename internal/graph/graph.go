package graph

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/JNZader/memgraph/internal/logger"
	"github.com/JNZader/memgraph/internal/metrics"
)

// Graph is the memory graph aggregate. It owns every node and relation and
// hands out copies only. All methods are safe for concurrent use.
//
// Nodes are immutable values in a sync.Map; access tracking swaps in a new
// value with CompareAndSwap. Each node id also owns a vertex carrying its
// adjacency sets and a mutex; relation inserts lock both endpoint vertices,
// which serializes writers of the same relation key without a global lock.
type Graph struct {
	nodes     sync.Map // string -> *MemoryNode
	relations sync.Map // RelationKey -> *MemoryRelation
	vertices  sync.Map // string -> *vertex

	nodeCount     atomic.Int64
	relationCount atomic.Int64

	now     func() time.Time
	log     *logger.Logger
	metrics *metrics.Collector
}

type vertex struct {
	mu      sync.Mutex
	removed bool
	out     map[RelationKey]struct{}
	in      map[RelationKey]struct{}
}

func newVertex() *vertex {
	return &vertex{
		out: make(map[RelationKey]struct{}),
		in:  make(map[RelationKey]struct{}),
	}
}

// Option configures a Graph.
type Option func(*Graph)

// WithClock replaces time.Now as the source of the current time.
func WithClock(now func() time.Time) Option {
	return func(g *Graph) { g.now = now }
}

// WithLogger sets the logger used for graph events.
func WithLogger(l *logger.Logger) Option {
	return func(g *Graph) { g.log = l.WithPrefix("graph") }
}

// WithMetrics sets the metrics collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(g *Graph) { g.metrics = c }
}

// New creates an empty graph.
func New(opts ...Option) *Graph {
	g := &Graph{
		now:     time.Now,
		log:     logger.Nop(),
		metrics: metrics.Global(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Now returns the graph's current time.
func (g *Graph) Now() time.Time {
	return g.now()
}

// AddNode inserts node if its id is not already present. It returns false,
// leaving the stored node untouched, when the id is taken or empty. Ids of
// evicted nodes stay taken for the lifetime of the graph.
func (g *Graph) AddNode(node *MemoryNode) bool {
	if node == nil || node.ID == "" {
		return false
	}
	n := node.normalized(g.now())

	// The vertex is the uniqueness arbiter: the first LoadOrStore wins and the
	// node is published while its vertex is still locked, so relation inserts
	// never see a vertex without a node.
	v := newVertex()
	v.mu.Lock()
	if _, loaded := g.vertices.LoadOrStore(n.ID, v); loaded {
		v.mu.Unlock()
		g.metrics.Counter(metrics.MetricNodesRejected).Inc()
		g.log.Debug("node %s already exists", n.ID)
		return false
	}
	g.nodes.Store(n.ID, n)
	v.mu.Unlock()

	g.metrics.Counter(metrics.MetricNodesAdded).Inc()
	g.metrics.Gauge(metrics.MetricNodeCount).Set(float64(g.nodeCount.Add(1)))
	return true
}

// GetNode returns a copy of the node with the given id and records the
// access. The access fields are advanced atomically with respect to other
// lookups of the same id.
func (g *Graph) GetNode(id string) (*MemoryNode, bool) {
	for {
		cur, ok := g.loadNode(id)
		if !ok {
			g.metrics.Counter(metrics.MetricNodeMisses).Inc()
			return nil, false
		}
		next := cur.Accessed(g.now())
		if g.nodes.CompareAndSwap(id, cur, next) {
			g.metrics.Counter(metrics.MetricNodeHits).Inc()
			return next.Clone(), true
		}
	}
}

// PeekNode returns a copy of the node without recording an access.
func (g *Graph) PeekNode(id string) (*MemoryNode, bool) {
	n, ok := g.loadNode(id)
	if !ok {
		return nil, false
	}
	return n.Clone(), true
}

// AddRelation inserts rel, or reinforces the stored relation when one with
// the same (from, to, type) key exists. It returns false when either
// endpoint is missing.
func (g *Graph) AddRelation(rel *MemoryRelation) bool {
	_, ok := g.putRelation(rel, true)
	return ok
}

// putRelation stores rel under its key. An existing relation is reinforced
// when reinforce is set and left untouched otherwise. It reports whether a
// new relation was inserted and whether the call succeeded.
func (g *Graph) putRelation(rel *MemoryRelation, reinforce bool) (inserted, ok bool) {
	if rel == nil {
		return false, false
	}
	now := g.now()
	r := rel.normalized(now)

	from, okFrom := g.loadVertex(r.FromNodeID)
	to, okTo := g.loadVertex(r.ToNodeID)
	if !okFrom || !okTo {
		g.metrics.Counter(metrics.MetricRelationsRejected).Inc()
		g.log.Debug("relation %s -> %s rejected: missing endpoint", r.FromNodeID, r.ToNodeID)
		return false, false
	}

	unlock := lockPair(r.FromNodeID, from, r.ToNodeID, to)
	defer unlock()

	if from.removed || to.removed {
		g.metrics.Counter(metrics.MetricRelationsRejected).Inc()
		return false, false
	}

	key := r.Key()
	if existing, found := g.loadRelation(key); found {
		if reinforce {
			g.relations.Store(key, existing.Reinforced(DefaultReinforcement, now))
			g.metrics.Counter(metrics.MetricRelationsReinforced).Inc()
		}
		return false, true
	}

	g.relations.Store(key, r)
	from.out[key] = struct{}{}
	to.in[key] = struct{}{}

	g.metrics.Counter(metrics.MetricRelationsAdded).Inc()
	g.metrics.Gauge(metrics.MetricRelationCount).Set(float64(g.relationCount.Add(1)))
	return true, true
}

// GetRelation returns a copy of the relation stored under the given key.
func (g *Graph) GetRelation(from, to string, relType RelationType) (*MemoryRelation, bool) {
	r, ok := g.loadRelation(RelationKey{From: from, To: to, Type: relType})
	if !ok {
		return nil, false
	}
	return r.Clone(), true
}

// Relations returns copies of the outgoing relations of a node, ordered by
// target id and type.
func (g *Graph) Relations(nodeID string) []*MemoryRelation {
	out := g.outgoing(nodeID)
	for i, r := range out {
		out[i] = r.Clone()
	}
	return out
}

// NodeCount returns the number of stored nodes.
func (g *Graph) NodeCount() int {
	return int(g.nodeCount.Load())
}

// RelationCount returns the number of stored relations.
func (g *Graph) RelationCount() int {
	return int(g.relationCount.Load())
}

// FindSimilarNodes ranks nodes by cosine similarity between query and their
// embeddings. Nodes whose embedding is empty or of a different length are
// skipped. At most limit hits with similarity >= threshold are returned,
// most similar first.
func (g *Graph) FindSimilarNodes(query []float32, threshold float64, limit int) []SimilarNode {
	return g.FindSimilarNodesFiltered(query, threshold, limit, SearchFilter{})
}

// FindSimilarNodesFiltered is FindSimilarNodes restricted to the nodes that
// match filter. Filtering happens before limit is applied.
func (g *Graph) FindSimilarNodesFiltered(query []float32, threshold float64, limit int, filter SearchFilter) []SimilarNode {
	defer g.metrics.Timer(metrics.MetricSearchDuration).Start().Stop()

	nodes := g.snapshotNodes()
	if !filter.IsZero() {
		kept := nodes[:0]
		for _, n := range nodes {
			if filter.Matches(n) {
				kept = append(kept, n)
			}
		}
		nodes = kept
	}

	hits := rankSimilar(nodes, query, threshold, limit, g.now())
	for i := range hits {
		hits[i].Node = hits[i].Node.Clone()
	}
	return hits
}

// GetNeighbors walks outgoing relations breadth-first from nodeID, following
// only relations whose decayed strength is at least minRelationStrength, for
// up to maxDistance hops. The start node is not included and every node is
// reported once, at the distance it was first reached.
func (g *Graph) GetNeighbors(nodeID string, maxDistance int, minRelationStrength float64) []*MemoryNode {
	defer g.metrics.Timer(metrics.MetricTraversalDuration).Start().Stop()

	if _, ok := g.loadNode(nodeID); !ok {
		return nil
	}

	now := g.now()
	ids := walk(nodeID, maxDistance, g.outgoing, func(r *MemoryRelation) bool {
		return DecayedStrength(r, now) >= minRelationStrength
	})

	nodes := make([]*MemoryNode, 0, len(ids))
	for _, id := range ids {
		if n, ok := g.loadNode(id); ok {
			nodes = append(nodes, n.Clone())
		}
	}
	return nodes
}

// GetActiveNodes returns up to limit nodes ordered by decayed importance,
// highest first; ties are ordered by id.
func (g *Graph) GetActiveNodes(limit int) []*MemoryNode {
	if limit <= 0 {
		return nil
	}

	scored := g.scoreNodes(g.now())
	if len(scored) > limit {
		scored = scored[:limit]
	}

	nodes := make([]*MemoryNode, len(scored))
	for i, s := range scored {
		nodes[i] = s.node.Clone()
	}
	return nodes
}

// Internal helpers

type scoredNode struct {
	node  *MemoryNode
	score float64
}

// scoreNodes returns every node with its decayed importance, sorted by
// score descending and id ascending.
func (g *Graph) scoreNodes(now time.Time) []scoredNode {
	nodes := g.snapshotNodes()
	scored := make([]scoredNode, len(nodes))
	for i, n := range nodes {
		scored[i] = scoredNode{node: n, score: DecayedImportance(n, now)}
	}
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		return scored[i].node.ID < scored[j].node.ID
	})
	return scored
}

// snapshotNodes collects the stored node values in one Range pass, sorted by
// id. The values are shared with the table and must not be modified.
func (g *Graph) snapshotNodes() []*MemoryNode {
	nodes := make([]*MemoryNode, 0, g.NodeCount())
	g.nodes.Range(func(_, value any) bool {
		nodes = append(nodes, mustNode(value))
		return true
	})
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	return nodes
}

// snapshotRelations collects the stored relation values in one Range pass,
// sorted by key.
func (g *Graph) snapshotRelations() []*MemoryRelation {
	rels := make([]*MemoryRelation, 0, g.RelationCount())
	g.relations.Range(func(_, value any) bool {
		rels = append(rels, mustRelation(value))
		return true
	})
	sort.Slice(rels, func(i, j int) bool { return keyLess(rels[i].Key(), rels[j].Key()) })
	return rels
}

// outgoing returns the stored outgoing relations of id ordered by key.
func (g *Graph) outgoing(id string) []*MemoryRelation {
	v, ok := g.loadVertex(id)
	if !ok {
		return nil
	}

	v.mu.Lock()
	keys := make([]RelationKey, 0, len(v.out))
	for k := range v.out {
		keys = append(keys, k)
	}
	v.mu.Unlock()

	sort.Slice(keys, func(i, j int) bool { return keyLess(keys[i], keys[j]) })

	rels := make([]*MemoryRelation, 0, len(keys))
	for _, k := range keys {
		if r, ok := g.loadRelation(k); ok {
			rels = append(rels, r)
		}
	}
	return rels
}

func (g *Graph) loadNode(id string) (*MemoryNode, bool) {
	v, ok := g.nodes.Load(id)
	if !ok {
		return nil, false
	}
	return mustNode(v), true
}

func (g *Graph) loadRelation(key RelationKey) (*MemoryRelation, bool) {
	v, ok := g.relations.Load(key)
	if !ok {
		return nil, false
	}
	return mustRelation(v), true
}

func (g *Graph) loadVertex(id string) (*vertex, bool) {
	v, ok := g.vertices.Load(id)
	if !ok {
		return nil, false
	}
	vx, ok := v.(*vertex)
	if !ok {
		panic(fmt.Sprintf("graph: vertex table holds %T", v))
	}
	return vx, true
}

func mustNode(v any) *MemoryNode {
	n, ok := v.(*MemoryNode)
	if !ok {
		panic(fmt.Sprintf("graph: node table holds %T", v))
	}
	return n
}

func mustRelation(v any) *MemoryRelation {
	r, ok := v.(*MemoryRelation)
	if !ok {
		panic(fmt.Sprintf("graph: relation table holds %T", v))
	}
	return r
}

// lockPair locks the vertices of two node ids in id order and returns the
// matching unlock function. A self-relation locks its vertex once.
func lockPair(idA string, a *vertex, idB string, b *vertex) func() {
	if a == b {
		a.mu.Lock()
		return a.mu.Unlock
	}
	first, second := a, b
	if idB < idA {
		first, second = b, a
	}
	first.mu.Lock()
	second.mu.Lock()
	return func() {
		second.mu.Unlock()
		first.mu.Unlock()
	}
}

func keyLess(a, b RelationKey) bool {
	if a.From != b.From {
		return a.From < b.From
	}
	if a.To != b.To {
		return a.To < b.To
	}
	return a.Type < b.Type
}
