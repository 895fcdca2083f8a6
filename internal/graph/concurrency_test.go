package graph

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConcurrent_AddNodeSameID(t *testing.T) {
	g, _ := newTestGraph(t)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			n := testNode("shared", 0.5)
			n.Content = fmt.Sprintf("writer %d", i)
			if g.AddNode(n) {
				wins.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, 1, g.NodeCount())
}

func TestConcurrent_Reinforcement(t *testing.T) {
	g, _ := newTestGraph(t)
	require.True(t, g.AddNode(testNode("a", 0.5)))
	require.True(t, g.AddNode(testNode("b", 0.5)))
	require.True(t, g.AddRelation(testRelation("a", "b", 0.1)))

	const writers = 64
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g.AddRelation(testRelation("a", "b", 0.1))
		}()
	}
	wg.Wait()

	r, ok := g.GetRelation("a", "b", RelCauses)
	require.True(t, ok)
	assert.Equal(t, int64(writers), r.ReinforcementCount)
	assert.Equal(t, 1.0, r.Strength)
	assert.Equal(t, 1, g.RelationCount())
}

func TestConcurrent_GetNodeAccessCount(t *testing.T) {
	g, _ := newTestGraph(t)
	require.True(t, g.AddNode(testNode("hot", 0.5)))

	const readers = 100
	var wg sync.WaitGroup
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g.GetNode("hot")
		}()
	}
	wg.Wait()

	n, _ := g.PeekNode("hot")
	assert.Equal(t, int64(readers), n.AccessCount)
}

func TestConcurrent_CleanupWithWriters(t *testing.T) {
	g, _ := newTestGraph(t)

	const nodes = 40
	for i := 0; i < nodes; i++ {
		importance := 0.9
		if i%2 == 1 {
			importance = 0.01
		}
		require.True(t, g.AddNode(testNode(fmt.Sprintf("n%02d", i), importance)))
	}

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < nodes; i++ {
				from := fmt.Sprintf("n%02d", i)
				to := fmt.Sprintf("n%02d", (i+w+1)%nodes)
				g.AddRelation(testRelation(from, to, 0.9))
				g.GetNeighbors(from, 3, 0)
				g.FindSimilarNodes([]float32{1}, 0, 5)
			}
		}(w)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 5; i++ {
			g.Cleanup(0.1, 0)
		}
	}()
	wg.Wait()

	// Writers may have linked weak nodes after the last sweep; one more
	// quiescent pass must leave no dangling relation behind.
	g.Cleanup(0.1, 0)

	snap := g.Snapshot()
	present := make(map[string]bool, len(snap.Nodes))
	for _, n := range snap.Nodes {
		present[n.ID] = true
	}
	assert.Len(t, snap.Nodes, nodes/2)
	assert.Equal(t, len(snap.Nodes), g.NodeCount())
	assert.Equal(t, len(snap.Relations), g.RelationCount())
	for _, r := range snap.Relations {
		assert.True(t, present[r.FromNodeID], "dangling from %s", r.FromNodeID)
		assert.True(t, present[r.ToNodeID], "dangling to %s", r.ToNodeID)
	}
}
