package domain

import "time"

// TrustStake is an immutable record of one participant's wager on one
// report. A stake is resolved exactly once — refunded, rewarded, or
// slashed — when its report terminates; it is never partially resolved.
type TrustStake struct {
	StakeID       string    `json:"stake_id"`
	ParticipantID string    `json:"participant_id"`
	ReportID      string    `json:"report_id"`
	Amount        uint64    `json:"amount"`
	Supporting    bool      `json:"supporting"`
	Timestamp     time.Time `json:"timestamp"`
}

// SlashAmount computes the points forfeited from a stake at the given
// slash percentage (0.0–1.0). Fractional amounts round half-down: the
// forfeited portion truncates toward zero, so the staker keeps the benefit
// of the rounding. Deterministic by design — payout code must never guess.
func (s TrustStake) SlashAmount(pct float64) uint64 {
	if pct <= 0 {
		return 0
	}
	if pct >= 1 {
		return s.Amount
	}
	return uint64(float64(s.Amount) * pct)
}
