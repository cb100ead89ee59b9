// Package domain contains pure business types with ZERO infrastructure imports.
// This is the innermost ring of clean architecture — it depends on nothing.
package domain

import (
	"math"
	"time"
)

// ─── Trust Balance ──────────────────────────────────────────────────────────

// TrustBalance holds one participant's trust-point accounting.
//
// Invariant: AvailablePoints + StakedPoints ≤ TotalPoints, all three ≥ 0.
// Decay may reduce TotalPoints without touching staked points, which is why
// the invariant is ≤ rather than ==. Any mutation that would break the
// invariant fails rather than clamping silently.
type TrustBalance struct {
	ParticipantID   string    `json:"participant_id"`
	TotalPoints     uint64    `json:"total_points"`
	AvailablePoints uint64    `json:"available_points"`
	StakedPoints    uint64    `json:"staked_points"`
	DecayRate       float64   `json:"decay_rate"` // fractional monthly reduction, 0.0–1.0
	LastActivity    time.Time `json:"last_activity"`
}

// Consistent reports whether the balance invariant holds.
func (b TrustBalance) Consistent() bool {
	return b.AvailablePoints+b.StakedPoints <= b.TotalPoints
}

// ─── Reputation Weight ──────────────────────────────────────────────────────

const (
	// ReputationWeightFloor down-weights brand-new or drained accounts so a
	// swarm of zero-balance identities cannot flood consensus.
	ReputationWeightFloor = 0.1

	// ReputationWeightCeiling caps established accounts so a single large
	// holder cannot dominate a vote outright.
	ReputationWeightCeiling = 2.0

	// reputationWeightScale is the balance at which weight reaches 1.0.
	reputationWeightScale = 100.0
)

// ReputationWeight maps a participant's total point balance to a consensus
// voting weight:
//
//	weight = clamp(sqrt(total / 100), 0.1, 2.0)
//
// The square root gives diminishing returns: quadrupling a balance only
// doubles the weight. Stateless and side-effect free.
func ReputationWeight(totalPoints uint64) float64 {
	w := math.Sqrt(float64(totalPoints) / reputationWeightScale)
	return clamp(w, ReputationWeightFloor, ReputationWeightCeiling)
}

// ─── Decay ──────────────────────────────────────────────────────────────────

// DecayedTotal computes the post-decay total for a dormant balance:
//
//	new_total = total × (1 − rate)^months
//
// Compounding, floored to an integer, never below zero. Pure and idempotent —
// the caller derives months from timestamps and is responsible for not
// applying the same period twice.
func DecayedTotal(total uint64, rate float64, months int) uint64 {
	if months <= 0 || rate <= 0 {
		return total
	}
	if rate >= 1 {
		return 0
	}
	decayed := float64(total) * math.Pow(1-rate, float64(months))
	if decayed < 0 {
		return 0
	}
	return uint64(math.Floor(decayed))
}

// clamp restricts a value to [min, max].
func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
