package graph

// walk performs a breadth-first traversal from start over the relations
// returned by edges, following only those accepted by follow, for at most
// maxDistance hops. It returns the reached node ids in visit order; start is
// never included and no id is visited twice. edges must return relations in
// a stable order for the walk to be deterministic.
func walk(start string, maxDistance int, edges func(string) []*MemoryRelation, follow func(*MemoryRelation) bool) []string {
	if maxDistance <= 0 {
		return nil
	}

	visited := map[string]bool{start: true}
	frontier := []string{start}
	var reached []string

	for depth := 0; depth < maxDistance && len(frontier) > 0; depth++ {
		var next []string
		for _, id := range frontier {
			for _, r := range edges(id) {
				if visited[r.ToNodeID] || !follow(r) {
					continue
				}
				visited[r.ToNodeID] = true
				reached = append(reached, r.ToNodeID)
				next = append(next, r.ToNodeID)
			}
		}
		frontier = next
	}

	return reached
}
