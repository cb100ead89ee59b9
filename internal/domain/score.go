package domain

import "time"

// ─── Trust Score ────────────────────────────────────────────────────────────

// TrustScore is the ephemeral, computed-on-demand composite for a
// (target, requester) pair. It is read-only output — never staked, never
// written to the ledger.
type TrustScore struct {
	Target        string    `json:"target"`
	Requester     string    `json:"requester"`
	Composite     float64   `json:"composite"` // 0–100
	DirectRating  float64   `json:"direct_rating"`
	NetworkScore  float64   `json:"network_score"`
	Proximity     float64   `json:"proximity"`
	IdentityBonus float64   `json:"identity_bonus"`
	ComputedAt    time.Time `json:"computed_at"`
}

// IdentityLevel is the externally-attested verification tier of a
// participant, supplied by the directory.
type IdentityLevel int

const (
	IdentityNone IdentityLevel = iota
	IdentityEmail
	IdentityDomain
	IdentityStrong
)

// Bonus converts the level to a 0–100 verification score.
func (l IdentityLevel) Bonus() float64 {
	switch l {
	case IdentityEmail:
		return 40
	case IdentityDomain:
		return 70
	case IdentityStrong:
		return 100
	default:
		return 0
	}
}

// Participation summarizes a participant's activity counts from the
// external activity log, used for the capped network-score bonus.
type Participation struct {
	Messages       int `json:"messages"`
	Collaborations int `json:"collaborations"`
}
