package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// ─── Block ──────────────────────────────────────────────────────────────────

// GenesisPreviousHash is the well-known previous-hash sentinel carried by
// the single genesis block.
const GenesisPreviousHash = "0000000000000000000000000000000000000000000000000000000000000000"

// SlashEntry records one participant's forfeiture inside a slash audit.
type SlashEntry struct {
	ParticipantID string `json:"participant_id"`
	Amount        uint64 `json:"amount"`
}

// SlashAudit is the minimal ledger entry written when a report is rejected:
// the claim itself is discarded, but the act of slashing the supporting side
// stays on record.
type SlashAudit struct {
	ReportID          string       `json:"report_id"`
	TargetParticipant string       `json:"target_participant"`
	Ratio             float64      `json:"ratio"` // supporting ratio at rejection
	Slashed           []SlashEntry `json:"slashed"`
	Timestamp         time.Time    `json:"timestamp"`
}

// Block is an immutable, hash-linked unit of the ledger. Hash covers the
// index, timestamp, previous hash, and content hash, so hash[n] is a
// function of hash[n-1] and any retroactive edit is detectable.
type Block struct {
	Index            uint64                `json:"index"`
	Timestamp        time.Time             `json:"timestamp"`
	PreviousHash     string                `json:"previous_hash"`
	ContentHash      string                `json:"content_hash"`
	FinalizedReports []VerifiedTrustReport `json:"finalized_reports"`
	SlashAudits      []SlashAudit          `json:"slash_audits,omitempty"`
	Hash             string                `json:"hash"`
}

// ComputeContentHash hashes the block's payload (reports + audits) via
// canonical JSON. Struct field order is fixed, so the encoding is
// deterministic.
func (b Block) ComputeContentHash() string {
	payload := struct {
		Reports []VerifiedTrustReport `json:"reports"`
		Audits  []SlashAudit          `json:"audits"`
	}{b.FinalizedReports, b.SlashAudits}
	data, _ := json.Marshal(payload)
	return SHA256Hex(data)
}

// ComputeHash hashes the block header fields. The content hash stands in
// for the full payload, so a mutated report changes the block hash too.
func (b Block) ComputeHash() string {
	header := fmt.Sprintf("%d|%d|%s|%s",
		b.Index, b.Timestamp.UnixNano(), b.PreviousHash, b.ContentHash)
	return SHA256Hex([]byte(header))
}

// Verify recomputes both hashes and checks them against the stored values.
func (b Block) Verify() bool {
	return b.ContentHash == b.ComputeContentHash() && b.Hash == b.ComputeHash()
}

// ─── Utilities ──────────────────────────────────────────────────────────────

// SHA256Hex computes SHA-256 and returns the hex string.
func SHA256Hex(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
