package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors are pure — no infrastructure dependency.
// Call sites wrap them with fmt.Errorf("...: %w", err) to attach the
// participant id, report id, and amounts the caller needs to decide a retry.

var (
	// Balance errors
	ErrInsufficientBalance = errors.New("insufficient available balance")
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrUnknownParticipant  = errors.New("participant has no balance record")

	// Report errors
	ErrStakeBelowMinimum      = errors.New("stake below minimum required")
	ErrReportNotFound         = errors.New("report not found")
	ErrReportExpired          = errors.New("report expired")
	ErrReportAlreadyTerminal  = errors.New("report already resolved")
	ErrInconsistentImpactSign = errors.New("impact score sign does not match action type")
	ErrImpactOutOfRange       = errors.New("impact score out of range")
	ErrSelfReport             = errors.New("participant cannot report themselves")

	// Ledger errors — integrity violations are fatal for the chain:
	// appends halt rather than risk extending a corrupted chain.
	ErrChainIntegrity = errors.New("chain integrity violation")
	ErrChainHalted    = errors.New("chain halted pending integrity audit")
)
