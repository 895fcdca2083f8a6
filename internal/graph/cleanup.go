package graph

import (
	"github.com/JNZader/memgraph/internal/metrics"
)

// CleanupReport breaks down the result of a cleanup pass.
type CleanupReport struct {
	// NodesEvicted is the number of nodes whose decayed importance was below
	// the threshold.
	NodesEvicted int `json:"nodes_evicted"`

	// RelationsCascaded counts relations removed because an endpoint was
	// evicted.
	RelationsCascaded int `json:"relations_cascaded"`

	// RelationsEvicted counts surviving relations whose decayed strength was
	// below the threshold.
	RelationsEvicted int `json:"relations_evicted"`

	// EvictedIDs lists the evicted node ids in ascending order.
	EvictedIDs []string `json:"evicted_ids,omitempty"`
}

// Total returns the number of evicted nodes plus evicted relations.
func (r CleanupReport) Total() int {
	return r.NodesEvicted + r.RelationsCascaded + r.RelationsEvicted
}

// Cleanup evicts every node with decayed importance below minImportance,
// together with its incident relations, then every remaining relation with
// decayed strength below minRelationStrength. It returns the number of
// evicted nodes plus relations.
func (g *Graph) Cleanup(minImportance, minRelationStrength float64) int {
	return g.CleanupReport(minImportance, minRelationStrength).Total()
}

// CleanupReport runs Cleanup and returns the detailed breakdown.
func (g *Graph) CleanupReport(minImportance, minRelationStrength float64) CleanupReport {
	defer g.metrics.Timer(metrics.MetricCleanupDuration).Start().Stop()

	now := g.now()
	var report CleanupReport

	// Candidates come sorted by id so eviction order is deterministic.
	for _, n := range g.snapshotNodes() {
		if DecayedImportance(n, now) >= minImportance {
			continue
		}
		cascaded, ok := g.removeNode(n.ID, func(cur *MemoryNode) bool {
			return DecayedImportance(cur, now) < minImportance
		})
		if !ok {
			continue
		}
		report.NodesEvicted++
		report.RelationsCascaded += cascaded
		report.EvictedIDs = append(report.EvictedIDs, n.ID)
	}

	for _, r := range g.snapshotRelations() {
		if DecayedStrength(r, now) >= minRelationStrength {
			continue
		}
		if g.removeRelation(r.Key(), func(cur *MemoryRelation) bool {
			return DecayedStrength(cur, now) < minRelationStrength
		}) {
			report.RelationsEvicted++
		}
	}

	g.metrics.Counter(metrics.MetricEvictedNodes).Add(int64(report.NodesEvicted))
	g.metrics.Counter(metrics.MetricEvictedRelations).Add(int64(report.RelationsCascaded + report.RelationsEvicted))

	if report.Total() > 0 {
		g.log.WithFields(map[string]interface{}{
			"nodes":     report.NodesEvicted,
			"cascaded":  report.RelationsCascaded,
			"relations": report.RelationsEvicted,
		}).Info("cleanup evicted %d entries", report.Total())
	} else {
		g.log.Debug("cleanup evicted nothing")
	}

	return report
}

// removeNode deletes the node and every relation incident to it, provided
// the currently stored node still satisfies evict. It returns the number of
// relations removed and whether the node was removed.
func (g *Graph) removeNode(id string, evict func(*MemoryNode) bool) (int, bool) {
	v, ok := g.loadVertex(id)
	if !ok {
		return 0, false
	}

	v.mu.Lock()
	cur, ok := g.loadNode(id)
	if v.removed || !ok || (evict != nil && !evict(cur)) {
		v.mu.Unlock()
		return 0, false
	}
	v.removed = true
	incident := make(map[RelationKey]struct{}, len(v.out)+len(v.in))
	for k := range v.out {
		incident[k] = struct{}{}
	}
	for k := range v.in {
		incident[k] = struct{}{}
	}
	v.out, v.in = nil, nil
	g.nodes.Delete(id)
	v.mu.Unlock()

	g.metrics.Gauge(metrics.MetricNodeCount).Set(float64(g.nodeCount.Add(-1)))

	removed := 0
	for k := range incident {
		if g.detachRelation(k, id) {
			removed++
		}
	}

	// The removed vertex stays behind as a tombstone so the id is never
	// handed out again by this graph.
	return removed, true
}

// detachRelation deletes the relation under key on behalf of the removed
// node gone, updating the adjacency of the surviving endpoint.
func (g *Graph) detachRelation(key RelationKey, gone string) bool {
	other := key.To
	if other == gone {
		other = key.From
	}

	var ov *vertex
	if other != gone {
		if v, ok := g.loadVertex(other); ok {
			ov = v
			ov.mu.Lock()
			defer ov.mu.Unlock()
		}
	}

	if _, ok := g.relations.LoadAndDelete(key); !ok {
		return false
	}
	if ov != nil {
		delete(ov.out, key)
		delete(ov.in, key)
	}
	g.metrics.Gauge(metrics.MetricRelationCount).Set(float64(g.relationCount.Add(-1)))
	return true
}

// removeRelation deletes the relation under key if the stored value still
// satisfies evict.
func (g *Graph) removeRelation(key RelationKey, evict func(*MemoryRelation) bool) bool {
	from, okFrom := g.loadVertex(key.From)
	to, okTo := g.loadVertex(key.To)
	if !okFrom || !okTo {
		// An endpoint is being removed; its cascade owns this relation.
		return false
	}

	unlock := lockPair(key.From, from, key.To, to)
	defer unlock()

	cur, ok := g.loadRelation(key)
	if !ok || (evict != nil && !evict(cur)) {
		return false
	}

	g.relations.Delete(key)
	delete(from.out, key)
	delete(to.in, key)
	g.metrics.Gauge(metrics.MetricRelationCount).Set(float64(g.relationCount.Add(-1)))
	return true
}
