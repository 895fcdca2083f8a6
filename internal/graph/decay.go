package graph

import (
	"math"
	"time"
)

const (
	secondsPerDay = 86400.0

	// Per-day exponential decay rates; relations decay at half the node rate.
	nodeDecayRate     = 0.01
	relationDecayRate = 0.005

	accessBoostStep = 0.1
	accessBoostCap  = 1.0

	reinforcementBoostStep = 0.05
	reinforcementBoostCap  = 0.5
)

// DecayedImportance returns the node importance adjusted for time since last
// access and for access frequency:
//
//	importance * exp(-days * 0.01) * (1 + min(accessCount * 0.1, 1.0))
func DecayedImportance(n *MemoryNode, now time.Time) float64 {
	days := daysBetween(n.LastAccessedAt, now)
	timeDecay := math.Exp(-days * nodeDecayRate)
	boost := math.Min(float64(n.AccessCount)*accessBoostStep, accessBoostCap)
	return n.Importance * timeDecay * (1 + boost)
}

// DecayedStrength returns the relation strength adjusted for time since last
// reinforcement and for reinforcement count:
//
//	(strength + min(reinforcementCount * 0.05, 0.5)) * exp(-days * 0.005)
func DecayedStrength(r *MemoryRelation, now time.Time) float64 {
	days := daysBetween(r.LastReinforcedAt, now)
	timeDecay := math.Exp(-days * relationDecayRate)
	boost := math.Min(float64(r.ReinforcementCount)*reinforcementBoostStep, reinforcementBoostCap)
	return (r.Strength + boost) * timeDecay
}

// daysBetween returns fractional days from then to now; negative spans count
// as zero.
func daysBetween(then, now time.Time) float64 {
	d := now.Sub(then).Seconds() / secondsPerDay
	if d < 0 {
		return 0
	}
	return d
}
