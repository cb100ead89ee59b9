// Package score computes point-in-time trust scores from the ledger and
// the external directory. Scores are derived output: nothing here is
// staked, persisted, or fed back into consensus.
package score

import (
	"context"
	"log"
	"time"

	"github.com/vouch-network/vouch/internal/domain"
	"github.com/vouch-network/vouch/internal/infra/ledger"
)

// ─── Configuration ──────────────────────────────────────────────────────────

// Config holds the scoring weights and constants.
type Config struct {
	// RecencyDecay multiplies each older report's weight: the most recent
	// report counts 1.0, the one before it RecencyDecay, and so on.
	RecencyDecay float64

	// NeutralScore is the network score of a participant with no history.
	NeutralScore float64

	// ParticipationPerEvent and ParticipationBonusCap shape the small
	// activity bonus: bonus = min(cap, events × perEvent). The cap keeps
	// raw activity from buying a maximum score.
	ParticipationPerEvent float64
	ParticipationBonusCap float64

	// Composite weights, summing to 1.0.
	WeightDirect    float64
	WeightNetwork   float64
	WeightProximity float64
	WeightIdentity  float64
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		RecencyDecay:          0.95,
		NeutralScore:          50,
		ParticipationPerEvent: 0.1,
		ParticipationBonusCap: 10,
		WeightDirect:          0.40,
		WeightNetwork:         0.30,
		WeightProximity:       0.20,
		WeightIdentity:        0.10,
	}
}

// ─── Calculator ─────────────────────────────────────────────────────────────

// Calculator combines ledger history with directory inputs. Stateless
// apart from its wiring; safe for concurrent use.
type Calculator struct {
	config    Config
	chain     *ledger.Chain
	directory domain.Directory

	// Injectable clock for testing.
	now func() time.Time
}

// NewCalculator creates a trust score calculator.
func NewCalculator(cfg Config, chain *ledger.Chain, dir domain.Directory) *Calculator {
	return &Calculator{config: cfg, chain: chain, directory: dir, now: time.Now}
}

// SetClock overrides the calculator clock (tests only).
func (c *Calculator) SetClock(now func() time.Time) { c.now = now }

// ─── Network Score ──────────────────────────────────────────────────────────

// NetworkScore derives a 0–100 score for a participant from the finalized
// reports targeting them. The recency-weighted mean impact shifts the
// neutral baseline of 50; a capped participation bonus is added on top.
// No history means dead neutral.
func (c *Calculator) NetworkScore(ctx context.Context, participantID string) float64 {
	reports := c.chain.ReportsTargeting(participantID)

	base := c.config.NeutralScore
	if len(reports) > 0 {
		// Most recent report carries weight 1.0; each step back in
		// history multiplies by the decay constant.
		var sum float64
		w := 1.0
		for i := len(reports) - 1; i >= 0; i-- {
			sum += float64(reports[i].ImpactScore) * w
			w *= c.config.RecencyDecay
		}
		base = clamp(c.config.NeutralScore+sum/float64(len(reports)), 0, 100)
	}

	bonus := c.participationBonus(ctx, participantID)
	return clamp(base+bonus, 0, 100)
}

func (c *Calculator) participationBonus(ctx context.Context, participantID string) float64 {
	if c.directory == nil {
		return 0
	}
	p, err := c.directory.ParticipationMetrics(ctx, participantID)
	if err != nil {
		log.Printf("[score] participation metrics for %s: %v", participantID, err)
		return 0
	}
	bonus := float64(p.Messages+p.Collaborations) * c.config.ParticipationPerEvent
	if bonus > c.config.ParticipationBonusCap {
		bonus = c.config.ParticipationBonusCap
	}
	return bonus
}

// ─── Composite Score ────────────────────────────────────────────────────────

// CompositeTrust blends four signals for a (target, requester) pair:
// the requester's direct rating of the target (40%), the ledger-derived
// network score (30%), graph proximity (20%), and the target's identity
// verification level (10%). Directory outages degrade to neutral inputs
// rather than failing the whole score.
func (c *Calculator) CompositeTrust(ctx context.Context, target, requester string) domain.TrustScore {
	direct := c.config.NeutralScore
	proximity := 0.0
	identity := 0.0

	if c.directory != nil {
		if r, ok, err := c.directory.DirectRating(ctx, requester, target); err != nil {
			log.Printf("[score] direct rating %s→%s: %v", requester, target, err)
		} else if ok {
			direct = clamp(r, 0, 100)
		}

		if degrees, err := c.directory.NetworkProximity(ctx, requester, target); err != nil {
			log.Printf("[score] proximity %s↔%s: %v", requester, target, err)
		} else if degrees >= 0 {
			proximity = 100 / float64(1+degrees)
		}

		if level, err := c.directory.IdentityLevel(ctx, target); err != nil {
			log.Printf("[score] identity level for %s: %v", target, err)
		} else {
			identity = level.Bonus()
		}
	}

	network := c.NetworkScore(ctx, target)
	composite := c.config.WeightDirect*direct +
		c.config.WeightNetwork*network +
		c.config.WeightProximity*proximity +
		c.config.WeightIdentity*identity

	return domain.TrustScore{
		Target:        target,
		Requester:     requester,
		Composite:     clamp(composite, 0, 100),
		DirectRating:  direct,
		NetworkScore:  network,
		Proximity:     proximity,
		IdentityBonus: identity,
		ComputedAt:    c.now(),
	}
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
