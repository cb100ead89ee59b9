package domain

import "time"

// ─── Action Types ───────────────────────────────────────────────────────────

// ActionType is the category of behaviour a trust report asserts.
// Each type carries a sign convention: positive actions must be reported
// with a positive impact score, negative actions with a negative one.
type ActionType string

const (
	// Positive set
	ActionHelpfulResponse ActionType = "HELPFUL_RESPONSE"
	ActionKnowledgeShare  ActionType = "KNOWLEDGE_SHARING"
	ActionBugReport       ActionType = "BUG_REPORT"
	ActionMentoring       ActionType = "MENTORING"
	ActionCollaboration   ActionType = "COLLABORATION"

	// Negative set
	ActionSpam           ActionType = "SPAM"
	ActionHarassment     ActionType = "HARASSMENT"
	ActionMisinformation ActionType = "MISINFORMATION"
	ActionBadFaith       ActionType = "BAD_FAITH"
	ActionAbuse          ActionType = "ABUSE"
)

// Polarity returns +1 for positive action types, -1 for negative ones,
// and 0 for unknown types.
func (a ActionType) Polarity() int {
	switch a {
	case ActionHelpfulResponse, ActionKnowledgeShare, ActionBugReport,
		ActionMentoring, ActionCollaboration:
		return 1
	case ActionSpam, ActionHarassment, ActionMisinformation,
		ActionBadFaith, ActionAbuse:
		return -1
	default:
		return 0
	}
}

// Valid reports whether the action type is a known member of either set.
func (a ActionType) Valid() bool { return a.Polarity() != 0 }

// MaxImpactMagnitude bounds the absolute value of a report's impact score.
const MaxImpactMagnitude = 100

// ConsistentImpact reports whether an impact score's sign matches the
// action type's polarity. Zero-impact reports are rejected: a report that
// changes nothing is noise with a stake attached.
func (a ActionType) ConsistentImpact(impact int) bool {
	switch {
	case impact > 0:
		return a.Polarity() > 0
	case impact < 0:
		return a.Polarity() < 0
	default:
		return false
	}
}

// ─── Report Status ──────────────────────────────────────────────────────────

// ReportStatus is the lifecycle state of a trust report.
// Open is the only non-terminal state; a report reaches exactly one of the
// three terminal states, exactly once.
type ReportStatus int

const (
	ReportOpen ReportStatus = iota
	ReportFinalized
	ReportRejected
	ReportExpired
)

// String returns the canonical wire name of the status.
func (s ReportStatus) String() string {
	switch s {
	case ReportOpen:
		return "OPEN"
	case ReportFinalized:
		return "FINALIZED"
	case ReportRejected:
		return "REJECTED"
	case ReportExpired:
		return "EXPIRED"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether the status is one of the three end states.
func (s ReportStatus) Terminal() bool { return s != ReportOpen }

// ─── Minimum Stake ──────────────────────────────────────────────────────────

// MinimumStake derives the stake floor for a report from its impact
// magnitude: max(floor, |impact| / divisor). Higher-impact claims demand
// more skin in the game.
func MinimumStake(impact int, floor, divisor uint64) uint64 {
	mag := impact
	if mag < 0 {
		mag = -mag
	}
	if divisor == 0 {
		divisor = 1
	}
	derived := uint64(mag) / divisor
	if derived < floor {
		return floor
	}
	return derived
}

// ─── Pending Report ─────────────────────────────────────────────────────────

// PendingTrustReport is a claim awaiting consensus. It is created with the
// reporter's own stake pre-attached on the supporting side and is mutated
// only by appending further stakes until it terminates.
type PendingTrustReport struct {
	ReportID          string       `json:"report_id"`
	TargetParticipant string       `json:"target_participant"`
	Action            ActionType   `json:"action_type"`
	ImpactScore       int          `json:"impact_score"`
	Description       string       `json:"description"`
	Evidence          string       `json:"evidence,omitempty"`
	InitialReporter   string       `json:"initial_reporter"`
	CreatedAt         time.Time    `json:"created_at"`
	Expiry            time.Time    `json:"expiry"`
	StakesSupporting  []TrustStake `json:"stakes_supporting"`
	StakesDisputing   []TrustStake `json:"stakes_disputing"`
	MinimumStake      uint64       `json:"minimum_stake_required"`
	Threshold         float64      `json:"consensus_threshold"`
}

// ─── Verified Report ────────────────────────────────────────────────────────

// ReporterRecord freezes one supporting staker's contribution at the moment
// of finalization, including the reputation weight they carried then —
// weights drift with balances, so the audit trail captures the snapshot.
type ReporterRecord struct {
	ParticipantID string    `json:"participant_id"`
	StakeAmount   uint64    `json:"stake_amount"`
	Weight        float64   `json:"reputation_weight"`
	Timestamp     time.Time `json:"timestamp"`
}

// VerifiedTrustReport is the finalized, immutable form of a pending report
// as embedded in a Block.
type VerifiedTrustReport struct {
	ReportID          string           `json:"report_id"`
	TargetParticipant string           `json:"target_participant"`
	Action            ActionType       `json:"action_type"`
	ImpactScore       int              `json:"impact_score"`
	Description       string           `json:"description"`
	Evidence          string           `json:"evidence,omitempty"`
	InitialReporter   string           `json:"initial_reporter"`
	CreatedAt         time.Time        `json:"created_at"`
	Reporters         []ReporterRecord `json:"reporters"`
	ValidationScore   float64          `json:"validation_score"` // consensus ratio achieved
	FinalizedAt       time.Time        `json:"finalized_at"`
}
