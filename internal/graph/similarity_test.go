package graph

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"orthogonal", []float32{1, 0, 0}, []float32{0, 0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"scaled", []float32{1, 1}, []float32{3, 3}, 1},
		{"length mismatch", []float32{1, 0}, []float32{1, 0, 0}, 0},
		{"empty", nil, nil, 0},
		{"zero vector", []float32{0, 0, 0}, []float32{1, 0, 0}, 0},
		{"NaN component", []float32{float32(math.NaN()), 0}, []float32{1, 0}, 0},
		{"infinite component", []float32{float32(math.Inf(1)), 1}, []float32{1, 0}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CosineSimilarity(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-6 {
				t.Errorf("CosineSimilarity() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFindSimilarNodes_Ordering(t *testing.T) {
	g, _ := newTestGraph(t)
	require.True(t, g.AddNode(testNode("B", 0.5, 0, 0, 1)))
	require.True(t, g.AddNode(testNode("A", 0.5, 1, 0, 0)))
	require.True(t, g.AddNode(testNode("C", 0.5, 1, 1, 0)))

	hits := g.FindSimilarNodes([]float32{1, 0, 0}, 0, 10)
	require.Len(t, hits, 3)
	assert.Equal(t, "A", hits[0].Node.ID)
	assert.Equal(t, "C", hits[1].Node.ID)
	assert.Equal(t, "B", hits[2].Node.ID)
	assert.InDelta(t, 1.0, hits[0].Similarity, 1e-6)
	assert.InDelta(t, 0.0, hits[2].Similarity, 1e-6)

	for i := 1; i < len(hits); i++ {
		assert.GreaterOrEqual(t, hits[i-1].Similarity, hits[i].Similarity)
	}
}

func TestFindSimilarNodes_MalformedEmbedding(t *testing.T) {
	g, _ := newTestGraph(t)
	require.True(t, g.AddNode(testNode("good", 0.5, 1, 0)))
	require.True(t, g.AddNode(testNode("nan", 0.9, float32(math.NaN()), 0)))
	require.True(t, g.AddNode(testNode("inf", 0.9, float32(math.Inf(-1)), 0)))

	hits := g.FindSimilarNodes([]float32{1, 0}, 0.9, 10)
	require.Len(t, hits, 1)
	assert.Equal(t, "good", hits[0].Node.ID)

	// At threshold 0 malformed vectors count as similarity 0 and rank last.
	hits = g.FindSimilarNodes([]float32{1, 0}, 0, 10)
	require.Len(t, hits, 3)
	assert.Equal(t, "good", hits[0].Node.ID)
	for _, h := range hits {
		assert.False(t, math.IsNaN(h.Similarity), h.Node.ID)
	}
	assert.Equal(t, 0.0, hits[1].Similarity)
	assert.Equal(t, 0.0, hits[2].Similarity)
}

func TestFindSimilarNodes_ThresholdAndLimit(t *testing.T) {
	g, _ := newTestGraph(t)
	require.True(t, g.AddNode(testNode("A", 0.5, 1, 0, 0)))
	require.True(t, g.AddNode(testNode("B", 0.5, 0, 0, 1)))
	require.True(t, g.AddNode(testNode("C", 0.5, 1, 1, 0)))

	hits := g.FindSimilarNodes([]float32{1, 0, 0}, 0.5, 10)
	assert.Len(t, hits, 2)

	hits = g.FindSimilarNodes([]float32{1, 0, 0}, 0, 1)
	require.Len(t, hits, 1)
	assert.Equal(t, "A", hits[0].Node.ID)

	assert.Empty(t, g.FindSimilarNodes([]float32{1, 0, 0}, 0, 0))
	assert.Empty(t, g.FindSimilarNodes([]float32{1, 0, 0}, 0, -5))
	assert.Empty(t, g.FindSimilarNodes(nil, 0, 10))
}

func TestFindSimilarNodes_SkipsIncompatibleEmbeddings(t *testing.T) {
	g, _ := newTestGraph(t)
	require.True(t, g.AddNode(testNode("empty", 0.9)))
	require.True(t, g.AddNode(testNode("short", 0.9, 1, 0)))
	require.True(t, g.AddNode(testNode("match", 0.1, 0, 1, 0)))

	var hits []SimilarNode
	require.NotPanics(t, func() {
		hits = g.FindSimilarNodes([]float32{1, 0, 0}, 0.0, 10)
	})
	require.Len(t, hits, 1)
	assert.Equal(t, "match", hits[0].Node.ID)

	// Nodes without embeddings are still traversable.
	require.True(t, g.AddRelation(testRelation("match", "empty", 0.9)))
	assert.Equal(t, []string{"empty"}, ids(g.GetNeighbors("match", 1, 0)))
}

func TestFindSimilarNodes_TieBreak(t *testing.T) {
	g, _ := newTestGraph(t)
	require.True(t, g.AddNode(testNode("b", 0.5, 1, 0)))
	require.True(t, g.AddNode(testNode("a", 0.5, 1, 0)))
	require.True(t, g.AddNode(testNode("c", 0.9, 2, 0)))

	hits := g.FindSimilarNodes([]float32{1, 0}, 0.9, 10)
	require.Len(t, hits, 3)
	assert.Equal(t, []string{"c", "a", "b"}, []string{hits[0].Node.ID, hits[1].Node.ID, hits[2].Node.ID})
}

func TestFindSimilarNodesFiltered(t *testing.T) {
	g, _ := newTestGraph(t)
	add := func(id string, ct ContentType, tags ...string) {
		n := NewMemoryNode("content of "+id, ct, 0.5, WithID(id), WithCreatedAt(baseTime),
			WithEmbedding([]float32{1, 0}), WithTags(tags...))
		require.True(t, g.AddNode(n))
	}
	add("fact-http", ContentFact, "http")
	add("fact-db", ContentFact, "db")
	add("code-http", ContentCode, "http", "client")
	add("plain", ContentText)

	tests := []struct {
		name   string
		filter SearchFilter
		limit  int
		want   []string
	}{
		{"zero filter", SearchFilter{}, 10, []string{"code-http", "fact-db", "fact-http", "plain"}},
		{"any tag", SearchFilter{Tags: []string{"client", "db"}}, 10, []string{"code-http", "fact-db"}},
		{"content type", SearchFilter{ContentTypes: []ContentType{ContentFact}}, 10, []string{"fact-db", "fact-http"}},
		{"tag and type", SearchFilter{Tags: []string{"http"}, ContentTypes: []ContentType{ContentFact}}, 10, []string{"fact-http"}},
		{"no match", SearchFilter{Tags: []string{"missing"}}, 10, nil},
		{"filter before limit", SearchFilter{Tags: []string{"db"}}, 1, []string{"fact-db"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hits := g.FindSimilarNodesFiltered([]float32{1, 0}, 0.5, tt.limit, tt.filter)
			var got []string
			for _, h := range hits {
				got = append(got, h.Node.ID)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewSearchFilter(t *testing.T) {
	f, err := NewSearchFilter([]string{"http"}, []string{"fact", " Code "})
	require.NoError(t, err)
	assert.Equal(t, []string{"http"}, f.Tags)
	assert.Equal(t, []ContentType{ContentFact, ContentCode}, f.ContentTypes)
	assert.False(t, f.IsZero())

	f, err = NewSearchFilter(nil, nil)
	require.NoError(t, err)
	assert.True(t, f.IsZero())

	_, err = NewSearchFilter(nil, []string{"poem"})
	assert.Error(t, err)
}

func TestFindSimilarNodes_NoAccess(t *testing.T) {
	g, _ := newTestGraph(t)
	require.True(t, g.AddNode(testNode("A", 0.5, 1, 0, 0)))

	hits := g.FindSimilarNodes([]float32{1, 0, 0}, 0, 10)
	require.Len(t, hits, 1)
	hits[0].Node.Content = "mutated"

	stored, _ := g.PeekNode("A")
	assert.Equal(t, int64(0), stored.AccessCount)
	assert.Equal(t, "content of A", stored.Content)
}
