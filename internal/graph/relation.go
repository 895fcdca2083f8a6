package graph

import (
	"math"
	"time"
)

// RelationType is the type tag of a directed relation.
type RelationType string

// Semantic relations.
const (
	RelSimilar  RelationType = "SIMILAR"
	RelOpposite RelationType = "OPPOSITE"
	RelContains RelationType = "CONTAINS"
	RelPartOf   RelationType = "PART_OF"
)

// Logical relations.
const (
	RelCauses   RelationType = "CAUSES"
	RelImplies  RelationType = "IMPLIES"
	RelPrecedes RelationType = "PRECEDES"
	RelFollows  RelationType = "FOLLOWS"
)

// Hierarchical relations.
const (
	RelGeneralizes RelationType = "GENERALIZES"
	RelSpecializes RelationType = "SPECIALIZES"
	RelExtends     RelationType = "EXTENDS"
)

// Contextual relations.
const (
	RelContext   RelationType = "CONTEXT"
	RelExample   RelationType = "EXAMPLE"
	RelReference RelationType = "REFERENCE"
	RelCustom    RelationType = "CUSTOM"
)

var relationTypes = map[RelationType]bool{
	RelSimilar: true, RelOpposite: true, RelContains: true, RelPartOf: true,
	RelCauses: true, RelImplies: true, RelPrecedes: true, RelFollows: true,
	RelGeneralizes: true, RelSpecializes: true, RelExtends: true,
	RelContext: true, RelExample: true, RelReference: true, RelCustom: true,
}

// Valid reports whether t is one of the known relation types.
func (t RelationType) Valid() bool {
	return relationTypes[t]
}

// ParseRelationType converts s to a RelationType, falling back to CUSTOM for
// unknown values.
func ParseRelationType(s string) RelationType {
	t := RelationType(s)
	if t.Valid() {
		return t
	}
	return RelCustom
}

// DefaultReinforcement is the strength increase applied when a relation is
// inserted again under an existing key.
const DefaultReinforcement = 0.1

// RelationKey uniquely identifies a relation within a graph.
type RelationKey struct {
	From string
	To   string
	Type RelationType
}

// MemoryRelation is a directed, typed, weighted edge between two nodes.
type MemoryRelation struct {
	FromNodeID         string            `json:"from_node_id"`
	ToNodeID           string            `json:"to_node_id"`
	RelationType       RelationType      `json:"relation_type"`
	Strength           float64           `json:"strength"`
	Metadata           map[string]string `json:"metadata,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
	LastReinforcedAt   time.Time         `json:"last_reinforced_at"`
	ReinforcementCount int64             `json:"reinforcement_count"`
}

// NewMemoryRelation creates a relation with strength clamped to [0, 1] and
// timestamps set to now.
func NewMemoryRelation(from, to string, relType RelationType, strength float64) *MemoryRelation {
	now := time.Now()
	return &MemoryRelation{
		FromNodeID:       from,
		ToNodeID:         to,
		RelationType:     relType,
		Strength:         clamp01(strength),
		CreatedAt:        now,
		LastReinforcedAt: now,
	}
}

// Key returns the uniqueness key of the relation.
func (r *MemoryRelation) Key() RelationKey {
	return RelationKey{From: r.FromNodeID, To: r.ToNodeID, Type: r.RelationType}
}

// Reinforced returns a copy of the relation with strength increased by
// increase (capped at 1.0) and its reinforcement fields advanced.
func (r *MemoryRelation) Reinforced(increase float64, now time.Time) *MemoryRelation {
	c := *r
	c.Strength = math.Min(r.Strength+increase, 1.0)
	c.LastReinforcedAt = now
	c.ReinforcementCount++
	return &c
}

// Clone returns a deep copy of the relation.
func (r *MemoryRelation) Clone() *MemoryRelation {
	c := *r
	c.Metadata = cloneStrings(r.Metadata)
	return &c
}

func (r *MemoryRelation) normalized(now time.Time) *MemoryRelation {
	c := r.Clone()
	if !c.RelationType.Valid() {
		c.RelationType = RelCustom
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.LastReinforcedAt.IsZero() {
		c.LastReinforcedAt = c.CreatedAt
	}
	if c.ReinforcementCount < 0 {
		c.ReinforcementCount = 0
	}
	c.Strength = clamp01(c.Strength)
	return c
}
