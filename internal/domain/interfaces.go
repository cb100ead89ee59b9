package domain

import "context"

// ─── Service Interfaces ─────────────────────────────────────────────────────
// These interfaces define boundaries between layers.
// Infrastructure implements them; application layer depends on them.

// Directory abstracts the external participant directory. The ledger core
// treats participant ids as opaque keys; everything about who they are —
// mutual ratings, graph distance, identity attestation, activity counts —
// comes from behind this boundary.
type Directory interface {
	// DirectRating returns the rater's subjective 0–100 score for the
	// subject, or ok=false when no rating exists.
	DirectRating(ctx context.Context, rater, subject string) (score float64, ok bool, err error)

	// NetworkProximity returns degrees of separation between two
	// participants in the collaborator graph.
	NetworkProximity(ctx context.Context, a, b string) (degrees int, err error)

	// IdentityLevel returns the participant's verification tier.
	IdentityLevel(ctx context.Context, participant string) (IdentityLevel, error)

	// ParticipationMetrics returns activity counts from the external
	// activity log.
	ParticipationMetrics(ctx context.Context, participant string) (Participation, error)
}
