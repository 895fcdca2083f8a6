package graph

// topNodeCount is the number of nodes reported in Statistics.TopNodes.
const topNodeCount = 5

// NodeScore pairs a node id with its decayed importance.
type NodeScore struct {
	ID         string  `json:"id"`
	Importance float64 `json:"importance"`
}

// Statistics summarizes the graph at a point in time.
type Statistics struct {
	NodeCount     int `json:"node_count"`
	RelationCount int `json:"relation_count"`

	// AverageConnectivity is relations per node, counting each directed
	// relation once.
	AverageConnectivity float64 `json:"average_connectivity"`

	// TopNodes holds up to five nodes with the highest decayed importance.
	TopNodes []NodeScore `json:"top_nodes"`

	ByContentType  map[ContentType]int  `json:"by_content_type"`
	ByRelationType map[RelationType]int `json:"by_relation_type"`
}

// GetStatistics returns node and relation counts, average connectivity and
// the most important nodes.
func (g *Graph) GetStatistics() Statistics {
	now := g.now()
	scored := g.scoreNodes(now)
	rels := g.snapshotRelations()

	stats := Statistics{
		NodeCount:      len(scored),
		RelationCount:  len(rels),
		TopNodes:       make([]NodeScore, 0, topNodeCount),
		ByContentType:  make(map[ContentType]int),
		ByRelationType: make(map[RelationType]int),
	}
	if stats.NodeCount > 0 {
		stats.AverageConnectivity = float64(stats.RelationCount) / float64(stats.NodeCount)
	}

	for i, s := range scored {
		if i < topNodeCount {
			stats.TopNodes = append(stats.TopNodes, NodeScore{ID: s.node.ID, Importance: s.score})
		}
		stats.ByContentType[s.node.ContentType]++
	}
	for _, r := range rels {
		stats.ByRelationType[r.RelationType]++
	}

	return stats
}
