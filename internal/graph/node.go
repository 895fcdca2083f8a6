// Package graph provides the decaying-importance memory graph: memory nodes,
// typed weighted relations between them, similarity search, bounded traversal
// and on-demand eviction of entries whose decayed score has fallen too low.
package graph

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// ContentType classifies the content held by a node. The graph never
// interprets it.
type ContentType string

const (
	ContentText         ContentType = "TEXT"
	ContentCode         ContentType = "CODE"
	ContentConcept      ContentType = "CONCEPT"
	ContentFact         ContentType = "FACT"
	ContentProcedure    ContentType = "PROCEDURE"
	ContentRelationship ContentType = "RELATIONSHIP"
	ContentContext      ContentType = "CONTEXT"
)

var contentTypes = map[ContentType]bool{
	ContentText:         true,
	ContentCode:         true,
	ContentConcept:      true,
	ContentFact:         true,
	ContentProcedure:    true,
	ContentRelationship: true,
	ContentContext:      true,
}

// Valid reports whether t is one of the known content types.
func (t ContentType) Valid() bool {
	return contentTypes[t]
}

// ParseContentType converts s to a ContentType, falling back to TEXT for
// unknown values.
func ParseContentType(s string) ContentType {
	t := ContentType(s)
	if t.Valid() {
		return t
	}
	return ContentText
}

// MemoryNode is one unit of remembered content plus its scoring metadata.
// Stored nodes are never mutated; access tracking replaces the stored value.
type MemoryNode struct {
	// ID uniquely identifies the node for the lifetime of a graph.
	ID string `json:"id"`

	// Content is the opaque payload.
	Content string `json:"content"`

	// ContentType is informational only.
	ContentType ContentType `json:"content_type"`

	// Embedding positions the node in similarity space. May be empty.
	Embedding []float32 `json:"embedding,omitempty"`

	// Metadata holds caller-defined key/value pairs.
	Metadata map[string]string `json:"metadata,omitempty"`

	// CreatedAt is fixed at creation.
	CreatedAt time.Time `json:"created_at"`

	// LastAccessedAt is updated on every lookup by id.
	LastAccessedAt time.Time `json:"last_accessed_at"`

	// AccessCount is incremented on every lookup by id.
	AccessCount int64 `json:"access_count"`

	// Importance is the base importance in [0, 1].
	Importance float64 `json:"importance"`

	// Tags is a set of labels, kept sorted and unique.
	Tags []string `json:"tags,omitempty"`
}

// NodeOption customizes a node built by NewMemoryNode.
type NodeOption func(*MemoryNode)

// WithID sets an explicit node id instead of a generated one.
func WithID(id string) NodeOption {
	return func(n *MemoryNode) { n.ID = id }
}

// WithEmbedding sets the node embedding.
func WithEmbedding(embedding []float32) NodeOption {
	return func(n *MemoryNode) { n.Embedding = cloneFloats(embedding) }
}

// WithTags sets the node tags.
func WithTags(tags ...string) NodeOption {
	return func(n *MemoryNode) { n.Tags = normalizeTags(tags) }
}

// WithMetadata sets the node metadata.
func WithMetadata(metadata map[string]string) NodeOption {
	return func(n *MemoryNode) { n.Metadata = cloneStrings(metadata) }
}

// WithCreatedAt overrides the creation (and initial access) time.
func WithCreatedAt(t time.Time) NodeOption {
	return func(n *MemoryNode) {
		n.CreatedAt = t
		n.LastAccessedAt = t
	}
}

// NewMemoryNode creates a node with a generated id, importance clamped to
// [0, 1] and timestamps set to now.
func NewMemoryNode(content string, contentType ContentType, importance float64, opts ...NodeOption) *MemoryNode {
	now := time.Now()
	n := &MemoryNode{
		ID:             uuid.New().String(),
		Content:        content,
		ContentType:    contentType,
		CreatedAt:      now,
		LastAccessedAt: now,
		Importance:     clamp01(importance),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Accessed returns a copy of the node with its access fields advanced.
// Importance is left untouched; decay is always computed on read.
func (n *MemoryNode) Accessed(now time.Time) *MemoryNode {
	c := *n
	c.LastAccessedAt = now
	c.AccessCount++
	return &c
}

// HasTag reports whether the node carries tag.
func (n *MemoryNode) HasTag(tag string) bool {
	for _, t := range n.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the node.
func (n *MemoryNode) Clone() *MemoryNode {
	c := *n
	c.Embedding = cloneFloats(n.Embedding)
	c.Metadata = cloneStrings(n.Metadata)
	if n.Tags != nil {
		c.Tags = append([]string(nil), n.Tags...)
	}
	return &c
}

// normalized prepares a caller-supplied node for storage.
func (n *MemoryNode) normalized(now time.Time) *MemoryNode {
	c := n.Clone()
	if !c.ContentType.Valid() {
		c.ContentType = ContentText
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.LastAccessedAt.IsZero() {
		c.LastAccessedAt = c.CreatedAt
	}
	if c.AccessCount < 0 {
		c.AccessCount = 0
	}
	c.Importance = clamp01(c.Importance)
	c.Tags = normalizeTags(c.Tags)
	return c
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func cloneFloats(v []float32) []float32 {
	if v == nil {
		return nil
	}
	return append([]float32(nil), v...)
}

func cloneStrings(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	c := make(map[string]string, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}

// normalizeTags drops empty and duplicate tags and sorts the rest.
func normalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
