package graph

import (
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"
	"time"
)

// CosineSimilarity returns the cosine similarity of a and b. Vectors of
// different length, empty vectors, zero-norm vectors and vectors holding
// NaN or infinite components score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}

	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}
	sim := dot / denom
	if math.IsNaN(sim) || math.IsInf(sim, 0) {
		return 0
	}
	return sim
}

// SimilarNode is a similarity search hit.
type SimilarNode struct {
	Node       *MemoryNode `json:"node"`
	Similarity float64     `json:"similarity"`
	Importance float64     `json:"importance"`
}

// SearchFilter narrows a similarity search. The zero value matches every
// node.
type SearchFilter struct {
	// Tags keeps nodes carrying at least one of them.
	Tags []string `json:"tags,omitempty"`

	// ContentTypes keeps nodes of one of these types.
	ContentTypes []ContentType `json:"content_types,omitempty"`
}

// NewSearchFilter builds a filter from raw tags and content type names.
// Type names are case-insensitive; an unknown name is an error.
func NewSearchFilter(tags, contentTypes []string) (SearchFilter, error) {
	f := SearchFilter{Tags: tags}
	for _, name := range contentTypes {
		t := ContentType(strings.ToUpper(strings.TrimSpace(name)))
		if !t.Valid() {
			return SearchFilter{}, fmt.Errorf("unknown content type %q", name)
		}
		f.ContentTypes = append(f.ContentTypes, t)
	}
	return f, nil
}

// IsZero reports whether f filters nothing.
func (f SearchFilter) IsZero() bool {
	return len(f.Tags) == 0 && len(f.ContentTypes) == 0
}

// Matches reports whether n passes every criterion set on f.
func (f SearchFilter) Matches(n *MemoryNode) bool {
	if len(f.ContentTypes) > 0 && !slices.Contains(f.ContentTypes, n.ContentType) {
		return false
	}
	if len(f.Tags) > 0 && !slices.ContainsFunc(f.Tags, n.HasTag) {
		return false
	}
	return true
}

// rankSimilar scores every node against query and returns the hits with
// similarity >= threshold, best first, truncated to limit. Ties are broken
// by decayed importance and then by id.
func rankSimilar(nodes []*MemoryNode, query []float32, threshold float64, limit int, now time.Time) []SimilarNode {
	if limit <= 0 || len(query) == 0 {
		return nil
	}

	hits := make([]SimilarNode, 0)
	for _, n := range nodes {
		if len(n.Embedding) != len(query) {
			continue
		}
		sim := CosineSimilarity(query, n.Embedding)
		if !(sim >= threshold) {
			continue
		}
		hits = append(hits, SimilarNode{
			Node:       n,
			Similarity: sim,
			Importance: DecayedImportance(n, now),
		})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		if hits[i].Importance != hits[j].Importance {
			return hits[i].Importance > hits[j].Importance
		}
		return hits[i].Node.ID < hits[j].Node.ID
	})

	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}
