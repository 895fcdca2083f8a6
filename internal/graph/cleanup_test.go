package graph

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanup_CountsCascade(t *testing.T) {
	g, _ := newTestGraph(t)
	require.True(t, g.AddNode(testNode("a", 0.9)))
	require.True(t, g.AddNode(testNode("b", 0.9)))
	require.True(t, g.AddNode(testNode("weak", 0.05)))
	require.True(t, g.AddRelation(testRelation("a", "weak", 0.8)))
	require.True(t, g.AddRelation(testRelation("weak", "b", 0.8)))

	evicted := g.Cleanup(0.1, 0.0)

	assert.Equal(t, 3, evicted)
	assert.Equal(t, 2, g.NodeCount())
	assert.Equal(t, 0, g.RelationCount())
	_, ok := g.PeekNode("weak")
	assert.False(t, ok)
}

func TestCleanup_Report(t *testing.T) {
	g, clock := newTestGraph(t)
	for _, id := range []string{"a", "b", "c"} {
		require.True(t, g.AddNode(testNode(id, 0.9)))
	}
	require.True(t, g.AddNode(testNode("x", 0.05)))
	require.True(t, g.AddNode(testNode("y", 0.02)))
	require.True(t, g.AddRelation(testRelation("a", "x", 0.9)))
	require.True(t, g.AddRelation(testRelation("y", "x", 0.9)))
	require.True(t, g.AddRelation(testRelation("a", "b", 0.1)))
	require.True(t, g.AddRelation(testRelation("b", "c", 0.9)))

	clock.Advance(day)
	report := g.CleanupReport(0.1, 0.2)

	assert.Equal(t, 2, report.NodesEvicted)
	assert.Equal(t, 2, report.RelationsCascaded, "y->x is removed once")
	assert.Equal(t, 1, report.RelationsEvicted)
	assert.Equal(t, 5, report.Total())
	assert.Equal(t, []string{"x", "y"}, report.EvictedIDs)

	assert.Equal(t, 3, g.NodeCount())
	assert.Equal(t, 1, g.RelationCount())
	_, ok := g.GetRelation("b", "c", RelCauses)
	assert.True(t, ok)
}

func TestCleanup_NoSurvivorReachesEvicted(t *testing.T) {
	g, _ := newTestGraph(t)
	for _, id := range []string{"a", "b", "c"} {
		require.True(t, g.AddNode(testNode(id, 0.9)))
	}
	require.True(t, g.AddNode(testNode("gone", 0.01)))
	require.True(t, g.AddRelation(testRelation("a", "gone", 1)))
	require.True(t, g.AddRelation(testRelation("gone", "c", 1)))
	require.True(t, g.AddRelation(testRelation("b", "gone", 1)))
	require.True(t, g.AddRelation(testRelation("a", "b", 1)))

	g.Cleanup(0.1, 0)

	for _, id := range []string{"a", "b", "c"} {
		for _, n := range g.GetNeighbors(id, 5, 0) {
			assert.NotEqual(t, "gone", n.ID)
		}
		for _, r := range g.Relations(id) {
			assert.NotEqual(t, "gone", r.ToNodeID)
		}
	}
	assert.Equal(t, []string{"b"}, ids(g.GetNeighbors("a", 5, 0)))
}

func TestCleanup_DecayOverTime(t *testing.T) {
	g, clock := newTestGraph(t)
	require.True(t, g.AddNode(testNode("a", 0.5)))

	assert.Equal(t, 0, g.Cleanup(0.3, 0))

	// 0.5 * exp(-60*0.01) ~ 0.27
	clock.Advance(60 * day)
	assert.Equal(t, 1, g.Cleanup(0.3, 0))
	assert.Equal(t, 0, g.NodeCount())
}

func TestCleanup_AccessProtects(t *testing.T) {
	g, clock := newTestGraph(t)
	require.True(t, g.AddNode(testNode("read", 0.5)))
	require.True(t, g.AddNode(testNode("idle", 0.5)))

	clock.Advance(60 * day)
	_, ok := g.GetNode("read")
	require.True(t, ok)

	report := g.CleanupReport(0.3, 0)
	assert.Equal(t, []string{"idle"}, report.EvictedIDs)
	_, ok = g.PeekNode("read")
	assert.True(t, ok)
}

func TestCleanup_ThresholdIsStrict(t *testing.T) {
	g, _ := newTestGraph(t)
	require.True(t, g.AddNode(testNode("a", 0.5)))
	require.True(t, g.AddNode(testNode("b", 0.5)))
	require.True(t, g.AddRelation(testRelation("a", "b", 0.5)))

	assert.Equal(t, 0, g.Cleanup(0.5, 0.5))
	assert.Equal(t, 2, g.NodeCount())
	assert.Equal(t, 1, g.RelationCount())
}

func TestCleanup_EvictedIDStaysTaken(t *testing.T) {
	g, clock := newTestGraph(t)
	require.True(t, g.AddNode(testNode("a", 0.9)))
	require.True(t, g.AddNode(testNode("old", 0.01)))
	require.True(t, g.AddRelation(testRelation("a", "old", 0.9)))

	require.Equal(t, 2, g.Cleanup(0.1, 0))

	clock.Advance(time.Minute)
	assert.False(t, g.AddNode(testNode("old", 0.8)), "evicted id must not be reused")
	_, ok := g.PeekNode("old")
	assert.False(t, ok)
	assert.Equal(t, 1, g.NodeCount())

	assert.False(t, g.AddRelation(testRelation("a", "old", 0.9)))
	assert.Empty(t, g.Relations("a"))
	assert.Equal(t, 0, g.RelationCount())
	assert.Empty(t, g.GetNeighbors("a", 2, 0))

	// A second cleanup does not count the tombstone again.
	assert.Equal(t, 0, g.Cleanup(0.1, 0))
	assert.Equal(t, 1, g.NodeCount())
}

func TestCleanup_Empty(t *testing.T) {
	g, _ := newTestGraph(t)
	report := g.CleanupReport(1, 1)
	assert.Zero(t, report.Total())
	assert.Empty(t, report.EvictedIDs)
}
