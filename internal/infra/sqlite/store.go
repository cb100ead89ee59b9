package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vouch-network/vouch/internal/domain"
)

// ─── Balances ───────────────────────────────────────────────────────────────

// SaveBalance upserts one participant's balance.
func (db *DB) SaveBalance(b domain.TrustBalance) error {
	_, err := db.db.Exec(`
		INSERT INTO balances (participant_id, total_points, available_points, staked_points, decay_rate, last_activity)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(participant_id) DO UPDATE SET
			total_points = excluded.total_points,
			available_points = excluded.available_points,
			staked_points = excluded.staked_points,
			decay_rate = excluded.decay_rate,
			last_activity = excluded.last_activity`,
		b.ParticipantID, b.TotalPoints, b.AvailablePoints, b.StakedPoints,
		b.DecayRate, b.LastActivity.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("save balance %s: %w", b.ParticipantID, err)
	}
	return nil
}

// LoadBalances returns every stored balance.
func (db *DB) LoadBalances() ([]domain.TrustBalance, error) {
	rows, err := db.db.Query(`
		SELECT participant_id, total_points, available_points, staked_points, decay_rate, last_activity
		FROM balances`)
	if err != nil {
		return nil, fmt.Errorf("load balances: %w", err)
	}
	defer rows.Close()

	var out []domain.TrustBalance
	for rows.Next() {
		var b domain.TrustBalance
		var lastActivity string
		if err := rows.Scan(&b.ParticipantID, &b.TotalPoints, &b.AvailablePoints,
			&b.StakedPoints, &b.DecayRate, &lastActivity); err != nil {
			return nil, fmt.Errorf("scan balance: %w", err)
		}
		b.LastActivity, err = time.Parse(time.RFC3339Nano, lastActivity)
		if err != nil {
			return nil, fmt.Errorf("balance %s last_activity: %w", b.ParticipantID, err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// ─── Reports & Stakes ───────────────────────────────────────────────────────

// SaveReport upserts a report and its stakes in one transaction. Called on
// every lifecycle transition, so the stored status always matches memory.
func (db *DB) SaveReport(r domain.PendingTrustReport, status domain.ReportStatus) error {
	tx, err := db.db.Begin()
	if err != nil {
		return fmt.Errorf("save report %s: %w", r.ReportID, err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO reports (report_id, target, action, impact, description, evidence,
			reporter, created_at, expiry, min_stake, threshold, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(report_id) DO UPDATE SET status = excluded.status`,
		r.ReportID, r.TargetParticipant, string(r.Action), r.ImpactScore,
		r.Description, r.Evidence, r.InitialReporter,
		r.CreatedAt.UTC().Format(time.RFC3339Nano),
		r.Expiry.UTC().Format(time.RFC3339Nano),
		r.MinimumStake, r.Threshold, status.String())
	if err != nil {
		return fmt.Errorf("save report %s: %w", r.ReportID, err)
	}

	for _, side := range [][]domain.TrustStake{r.StakesSupporting, r.StakesDisputing} {
		for _, s := range side {
			_, err = tx.Exec(`
				INSERT INTO stakes (stake_id, report_id, participant_id, amount, supporting, timestamp)
				VALUES (?, ?, ?, ?, ?, ?)
				ON CONFLICT(stake_id) DO NOTHING`,
				s.StakeID, s.ReportID, s.ParticipantID, s.Amount,
				boolToInt(s.Supporting), s.Timestamp.UTC().Format(time.RFC3339Nano))
			if err != nil {
				return fmt.Errorf("save stake %s: %w", s.StakeID, err)
			}
		}
	}
	return tx.Commit()
}

// LoadOpenReports returns every non-terminal report with its stakes
// reattached, ready for Engine.Restore.
func (db *DB) LoadOpenReports() ([]domain.PendingTrustReport, error) {
	rows, err := db.db.Query(`
		SELECT report_id, target, action, impact, description, evidence,
			reporter, created_at, expiry, min_stake, threshold
		FROM reports WHERE status = 'OPEN'`)
	if err != nil {
		return nil, fmt.Errorf("load open reports: %w", err)
	}
	defer rows.Close()

	var out []domain.PendingTrustReport
	for rows.Next() {
		var r domain.PendingTrustReport
		var action, createdAt, expiry string
		if err := rows.Scan(&r.ReportID, &r.TargetParticipant, &action, &r.ImpactScore,
			&r.Description, &r.Evidence, &r.InitialReporter,
			&createdAt, &expiry, &r.MinimumStake, &r.Threshold); err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		r.Action = domain.ActionType(action)
		if r.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("report %s created_at: %w", r.ReportID, err)
		}
		if r.Expiry, err = time.Parse(time.RFC3339Nano, expiry); err != nil {
			return nil, fmt.Errorf("report %s expiry: %w", r.ReportID, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		if err := db.loadStakes(&out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (db *DB) loadStakes(r *domain.PendingTrustReport) error {
	rows, err := db.db.Query(`
		SELECT stake_id, participant_id, amount, supporting, timestamp
		FROM stakes WHERE report_id = ? ORDER BY timestamp`, r.ReportID)
	if err != nil {
		return fmt.Errorf("load stakes for %s: %w", r.ReportID, err)
	}
	defer rows.Close()

	for rows.Next() {
		s := domain.TrustStake{ReportID: r.ReportID}
		var supporting int
		var ts string
		if err := rows.Scan(&s.StakeID, &s.ParticipantID, &s.Amount, &supporting, &ts); err != nil {
			return fmt.Errorf("scan stake: %w", err)
		}
		s.Supporting = supporting != 0
		if s.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return fmt.Errorf("stake %s timestamp: %w", s.StakeID, err)
		}
		if s.Supporting {
			r.StakesSupporting = append(r.StakesSupporting, s)
		} else {
			r.StakesDisputing = append(r.StakesDisputing, s)
		}
	}
	return rows.Err()
}

// ─── Decay Log ──────────────────────────────────────────────────────────────

// RecordDecayRun appends one decay pass to the run history.
func (db *DB) RecordDecayRun(runAt time.Time, affected int) error {
	_, err := db.db.Exec(`INSERT INTO decay_log (run_at, affected) VALUES (?, ?)`,
		runAt.UTC().Format(time.RFC3339Nano), affected)
	if err != nil {
		return fmt.Errorf("record decay run: %w", err)
	}
	return nil
}

// LastDecayRun returns the time of the most recent recorded decay pass,
// or ok=false when none has run. Used at boot to keep decay idempotent
// across restarts.
func (db *DB) LastDecayRun() (time.Time, bool, error) {
	var raw string
	err := db.db.QueryRow(`SELECT run_at FROM decay_log ORDER BY id DESC LIMIT 1`).Scan(&raw)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("last decay run: %w", err)
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("last decay run: %w", err)
	}
	return t, true, nil
}

// DecayRunCount returns how many decay passes have been recorded.
func (db *DB) DecayRunCount() (int, error) {
	var n int
	if err := db.db.QueryRow(`SELECT COUNT(*) FROM decay_log`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count decay runs: %w", err)
	}
	return n, nil
}

// ─── Blocks ─────────────────────────────────────────────────────────────────

// blockPayload is the JSON shape of a block's stored payload column.
type blockPayload struct {
	Reports []domain.VerifiedTrustReport `json:"reports,omitempty"`
	Audits  []domain.SlashAudit          `json:"audits,omitempty"`
}

// SaveBlock appends one block. Blocks are immutable; a conflicting index or
// hash is an error, never an update.
func (db *DB) SaveBlock(b domain.Block) error {
	payload, err := json.Marshal(blockPayload{Reports: b.FinalizedReports, Audits: b.SlashAudits})
	if err != nil {
		return fmt.Errorf("encode block %d: %w", b.Index, err)
	}
	_, err = db.db.Exec(`
		INSERT INTO blocks (block_index, timestamp, previous_hash, content_hash, hash, payload_json)
		VALUES (?, ?, ?, ?, ?, ?)`,
		b.Index, b.Timestamp.UTC().Format(time.RFC3339Nano),
		b.PreviousHash, b.ContentHash, b.Hash, string(payload))
	if err != nil {
		return fmt.Errorf("save block %d: %w", b.Index, err)
	}
	return nil
}

// LoadBlocks returns the full chain in index order. An empty table yields
// an empty slice; the caller decides whether to mint a genesis block.
func (db *DB) LoadBlocks() ([]domain.Block, error) {
	rows, err := db.db.Query(`
		SELECT block_index, timestamp, previous_hash, content_hash, hash, payload_json
		FROM blocks ORDER BY block_index`)
	if err != nil {
		return nil, fmt.Errorf("load blocks: %w", err)
	}
	defer rows.Close()

	var out []domain.Block
	for rows.Next() {
		var b domain.Block
		var ts, payload string
		if err := rows.Scan(&b.Index, &ts, &b.PreviousHash, &b.ContentHash, &b.Hash, &payload); err != nil {
			return nil, fmt.Errorf("scan block: %w", err)
		}
		if b.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("block %d timestamp: %w", b.Index, err)
		}
		var p blockPayload
		if err := json.Unmarshal([]byte(payload), &p); err != nil {
			return nil, fmt.Errorf("block %d payload: %w", b.Index, err)
		}
		b.FinalizedReports = p.Reports
		b.SlashAudits = p.Audits
		out = append(out, b)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
