package graph

import "time"

// Snapshot is a point-in-time copy of every node and relation, the unit the
// persistence layer reads and writes. All fields are preserved verbatim.
type Snapshot struct {
	TakenAt   time.Time         `json:"taken_at"`
	Nodes     []*MemoryNode     `json:"nodes"`
	Relations []*MemoryRelation `json:"relations"`
}

// Snapshot copies the graph contents, nodes ordered by id and relations by
// key. It does not record accesses.
func (g *Graph) Snapshot() *Snapshot {
	nodes := g.snapshotNodes()
	rels := g.snapshotRelations()

	s := &Snapshot{
		TakenAt:   g.now(),
		Nodes:     make([]*MemoryNode, len(nodes)),
		Relations: make([]*MemoryRelation, len(rels)),
	}
	for i, n := range nodes {
		s.Nodes[i] = n.Clone()
	}
	for i, r := range rels {
		s.Relations[i] = r.Clone()
	}
	return s
}

// Restore inserts the snapshot contents: all nodes first, then relations.
// Entries whose id or key already exists and relations with a missing
// endpoint are skipped. It returns how many nodes and relations were applied.
func (g *Graph) Restore(s *Snapshot) (nodes, relations int) {
	if s == nil {
		return 0, 0
	}
	for _, n := range s.Nodes {
		if g.AddNode(n) {
			nodes++
		}
	}
	for _, r := range s.Relations {
		if inserted, _ := g.putRelation(r, false); inserted {
			relations++
		}
	}
	g.log.Debug("restored %d nodes and %d relations", nodes, relations)
	return nodes, relations
}
