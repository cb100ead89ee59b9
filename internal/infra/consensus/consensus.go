// Package consensus owns the pending-report lifecycle: accepting the
// initial stake, accepting supporting and disputing counter-stakes,
// evaluating weighted consensus after every stake, and driving exactly one
// terminal transition per report.
//
// State machine per report:
//
//	Open(accepting stakes) → {Finalized | Rejected | Expired}
//
// Stake addition and evaluation for one report form a single atomic unit
// under the report's lock, so two concurrent evaluations can never both
// observe a sub-threshold ratio that a third concurrent stake should have
// tipped. Different reports proceed independently.
package consensus

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vouch-network/vouch/internal/domain"
	"github.com/vouch-network/vouch/internal/infra/balance"
	"github.com/vouch-network/vouch/internal/infra/ledger"
	"github.com/vouch-network/vouch/internal/infra/observability"
)

// ─── Configuration ──────────────────────────────────────────────────────────

// Config holds the consensus economy parameters.
type Config struct {
	MinStakeFloor   uint64        // floor of the impact-proportional minimum stake
	MinStakeDivisor uint64        // minimum stake = max(floor, |impact|/divisor)
	Threshold       float64       // consensus ratio required to accept (reject at 1−threshold)
	VotingWindow    time.Duration // report lifetime before expiry
	SlashPercentage float64       // fraction of a losing stake forfeited
	// ParticipationMultiple scales the minimum stake into the combined
	// weight floor required before any decision is taken.
	ParticipationMultiple float64
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		MinStakeFloor:         5,
		MinStakeDivisor:       10,
		Threshold:             0.67,
		VotingWindow:          7 * 24 * time.Hour,
		SlashPercentage:       0.10,
		ParticipationMultiple: 3,
	}
}

// ─── Persistence Boundary ───────────────────────────────────────────────────

// Persister receives report lifecycle transitions for durable storage.
type Persister interface {
	SaveReport(r domain.PendingTrustReport, status domain.ReportStatus) error
}

// ─── Engine ─────────────────────────────────────────────────────────────────

// reportState pairs a report with its own lock and terminal status.
// Terminal reports stay in the map so stale references get a precise error.
type reportState struct {
	mu     sync.Mutex
	report domain.PendingTrustReport
	status domain.ReportStatus
}

// Engine is the consensus engine. It is the sole owner of open pending
// reports; balances move only through the stake manager and terminal
// outcomes only through the ledger.
type Engine struct {
	mu      sync.RWMutex
	reports map[string]*reportState

	config   Config
	balances *balance.Store
	chain    *ledger.Chain
	persist  Persister

	// Injectable clock for testing.
	now func() time.Time
}

// NewEngine creates a consensus engine.
func NewEngine(cfg Config, balances *balance.Store, chain *ledger.Chain) *Engine {
	return &Engine{
		reports:  make(map[string]*reportState),
		config:   cfg,
		balances: balances,
		chain:    chain,
		now:      time.Now,
	}
}

// SetPersister attaches a durable report sink.
func (e *Engine) SetPersister(p Persister) { e.persist = p }

// SetClock overrides the engine clock (tests only).
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

// ─── Submission ─────────────────────────────────────────────────────────────

// SubmitReport validates a new claim, locks the reporter's initial stake,
// and opens the pending report with that stake pre-attached on the
// supporting side. Returns the new report id.
func (e *Engine) SubmitReport(reporter, target string, action domain.ActionType,
	impact int, description, evidence string, initialStake uint64) (string, error) {

	if reporter == target {
		return "", fmt.Errorf("reporter %s: %w", reporter, domain.ErrSelfReport)
	}
	if !action.Valid() {
		return "", fmt.Errorf("action %q: %w", action, domain.ErrInconsistentImpactSign)
	}
	if impact > domain.MaxImpactMagnitude || impact < -domain.MaxImpactMagnitude {
		return "", fmt.Errorf("impact %d: %w", impact, domain.ErrImpactOutOfRange)
	}
	if !action.ConsistentImpact(impact) {
		return "", fmt.Errorf("action %q with impact %d: %w",
			action, impact, domain.ErrInconsistentImpactSign)
	}

	minStake := domain.MinimumStake(impact, e.config.MinStakeFloor, e.config.MinStakeDivisor)
	if initialStake < minStake {
		return "", fmt.Errorf("stake %d below minimum %d: %w",
			initialStake, minStake, domain.ErrStakeBelowMinimum)
	}

	if err := e.balances.Lock(reporter, initialStake); err != nil {
		return "", err
	}

	now := e.now()
	reportID := uuid.NewString()
	r := domain.PendingTrustReport{
		ReportID:          reportID,
		TargetParticipant: target,
		Action:            action,
		ImpactScore:       impact,
		Description:       description,
		Evidence:          evidence,
		InitialReporter:   reporter,
		CreatedAt:         now,
		Expiry:            now.Add(e.config.VotingWindow),
		MinimumStake:      minStake,
		Threshold:         e.config.Threshold,
		StakesSupporting: []domain.TrustStake{{
			StakeID:       uuid.NewString(),
			ParticipantID: reporter,
			ReportID:      reportID,
			Amount:        initialStake,
			Supporting:    true,
			Timestamp:     now,
		}},
	}

	st := &reportState{report: r, status: domain.ReportOpen}
	e.mu.Lock()
	e.reports[reportID] = st
	e.mu.Unlock()

	e.persistReport(r, domain.ReportOpen)
	observability.ReportsSubmitted.Inc()
	observability.OpenReports.Inc()
	log.Printf("[consensus] report %s opened: %s → %s impact=%d stake=%d",
		reportID, reporter, target, impact, initialStake)
	return reportID, nil
}

// ─── Staking ────────────────────────────────────────────────────────────────

// StakeOnReport locks amount from the staker, appends the stake to the
// chosen side, and immediately re-evaluates consensus. A stake that lands
// on an already-due report triggers expiry resolution instead and fails
// with ErrReportExpired.
func (e *Engine) StakeOnReport(staker, reportID string, amount uint64, supporting bool) error {
	st, err := e.lookup(reportID)
	if err != nil {
		return err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.status.Terminal() {
		return fmt.Errorf("report %s is %s: %w",
			reportID, st.status, domain.ErrReportAlreadyTerminal)
	}
	now := e.now()
	if now.After(st.report.Expiry) {
		// Lazy expiry: resolve before doing anything else.
		e.expireLocked(st)
		return fmt.Errorf("report %s: %w", reportID, domain.ErrReportExpired)
	}

	if err := e.balances.Lock(staker, amount); err != nil {
		return err
	}

	stake := domain.TrustStake{
		StakeID:       uuid.NewString(),
		ParticipantID: staker,
		ReportID:      reportID,
		Amount:        amount,
		Supporting:    supporting,
		Timestamp:     now,
	}
	if supporting {
		st.report.StakesSupporting = append(st.report.StakesSupporting, stake)
	} else {
		st.report.StakesDisputing = append(st.report.StakesDisputing, stake)
	}
	observability.StakesPlaced.Inc()

	e.evaluateLocked(st)
	if st.status == domain.ReportOpen {
		e.persistReport(st.report, st.status)
	}
	return nil
}

// ─── Evaluation ─────────────────────────────────────────────────────────────

// weigh sums stake amounts scaled by each staker's reputation weight.
func (e *Engine) weigh(stakes []domain.TrustStake) float64 {
	var total float64
	for _, s := range stakes {
		w := domain.ReputationWeight(e.balances.TotalPoints(s.ParticipantID))
		total += float64(s.Amount) * w
	}
	return total
}

// evaluateLocked re-runs weighted consensus. Caller holds st.mu.
func (e *Engine) evaluateLocked(st *reportState) {
	supporting := e.weigh(st.report.StakesSupporting)
	disputing := e.weigh(st.report.StakesDisputing)
	combined := supporting + disputing

	// Minimum-participation floor: no decision on thin evidence.
	floor := float64(st.report.MinimumStake) * e.config.ParticipationMultiple
	if combined < floor {
		return
	}

	ratio := supporting / combined
	switch {
	case ratio >= st.report.Threshold:
		e.finalizeLocked(st, ratio)
	case ratio <= 1-st.report.Threshold:
		e.rejectLocked(st, ratio)
	}
}

// ─── Terminal Transitions ───────────────────────────────────────────────────

// finalizeLocked accepts the report: supporting stakes refund plus a
// proportional bonus drawn from the disputing side's slashed funds,
// disputing stakes are slashed at the configured percentage with the
// remainder refunded, and a VerifiedTrustReport is chained into the next
// block. Caller holds st.mu.
func (e *Engine) finalizeLocked(st *reportState, ratio float64) {
	now := e.now()
	pool, _ := e.settleLosers(st.report.StakesDisputing)
	reporters := e.payWinners(st.report.StakesSupporting, pool, now)

	verified := domain.VerifiedTrustReport{
		ReportID:          st.report.ReportID,
		TargetParticipant: st.report.TargetParticipant,
		Action:            st.report.Action,
		ImpactScore:       st.report.ImpactScore,
		Description:       st.report.Description,
		Evidence:          st.report.Evidence,
		InitialReporter:   st.report.InitialReporter,
		CreatedAt:         st.report.CreatedAt,
		Reporters:         reporters,
		ValidationScore:   ratio,
		FinalizedAt:       now,
	}
	if _, err := e.chain.Append([]domain.VerifiedTrustReport{verified}, nil); err != nil {
		log.Printf("[consensus] report %s: ledger append failed: %v", st.report.ReportID, err)
	}

	st.status = domain.ReportFinalized
	e.persistReport(st.report, st.status)
	observability.OpenReports.Dec()
	observability.ReportsResolved.WithLabelValues("finalized").Inc()
	log.Printf("[consensus] report %s finalized: ratio=%.3f", st.report.ReportID, ratio)
}

// rejectLocked is the symmetric outcome: the disputing side wins. The
// claim is discarded, but the slashing itself goes on the ledger as a
// minimal audit entry. Caller holds st.mu.
func (e *Engine) rejectLocked(st *reportState, ratio float64) {
	now := e.now()
	pool, slashed := e.settleLosers(st.report.StakesSupporting)
	e.payWinners(st.report.StakesDisputing, pool, now)

	audit := domain.SlashAudit{
		ReportID:          st.report.ReportID,
		TargetParticipant: st.report.TargetParticipant,
		Ratio:             ratio,
		Slashed:           slashed,
		Timestamp:         now,
	}
	if _, err := e.chain.Append(nil, []domain.SlashAudit{audit}); err != nil {
		log.Printf("[consensus] report %s: audit append failed: %v", st.report.ReportID, err)
	}

	st.status = domain.ReportRejected
	e.persistReport(st.report, st.status)
	observability.OpenReports.Dec()
	observability.ReportsResolved.WithLabelValues("rejected").Inc()
	log.Printf("[consensus] report %s rejected: ratio=%.3f", st.report.ReportID, ratio)
}

// expireLocked refunds every stake on both sides in full: no reward, no
// slash, no ledger entry. Caller holds st.mu.
func (e *Engine) expireLocked(st *reportState) {
	for _, side := range [][]domain.TrustStake{st.report.StakesSupporting, st.report.StakesDisputing} {
		for _, s := range side {
			if err := e.balances.Release(s.ParticipantID, s.Amount); err != nil {
				log.Printf("[consensus] refund %s: %v", s.ParticipantID, err)
			}
		}
	}
	st.status = domain.ReportExpired
	e.persistReport(st.report, st.status)
	observability.OpenReports.Dec()
	observability.ReportsResolved.WithLabelValues("expired").Inc()
	log.Printf("[consensus] report %s expired, stakes refunded", st.report.ReportID)
}

// settleLosers slashes each losing stake at the configured percentage and
// refunds the remainder. Returns the total slashed — which funds the
// winners' bonus pool — and the per-participant forfeitures for auditing.
func (e *Engine) settleLosers(losers []domain.TrustStake) (uint64, []domain.SlashEntry) {
	pool := uint64(0)
	var entries []domain.SlashEntry
	for _, s := range losers {
		cut := s.SlashAmount(e.config.SlashPercentage)
		if err := e.balances.Slash(s.ParticipantID, cut); err != nil {
			log.Printf("[consensus] slash %s: %v", s.ParticipantID, err)
			continue
		}
		if err := e.balances.Release(s.ParticipantID, s.Amount-cut); err != nil {
			log.Printf("[consensus] release %s: %v", s.ParticipantID, err)
		}
		pool += cut
		if cut > 0 {
			entries = append(entries, domain.SlashEntry{ParticipantID: s.ParticipantID, Amount: cut})
			observability.PointsSlashed.Add(float64(cut))
		}
	}
	return pool, entries
}

// payWinners refunds each winning stake and distributes the bonus pool
// proportionally to stake size, truncating fractions (dust is burned, not
// invented). Returns frozen reporter records carrying each winner's
// reputation weight at this moment.
func (e *Engine) payWinners(winners []domain.TrustStake, pool uint64, now time.Time) []domain.ReporterRecord {
	var totalStaked uint64
	for _, s := range winners {
		totalStaked += s.Amount
	}

	records := make([]domain.ReporterRecord, 0, len(winners))
	for _, s := range winners {
		if err := e.balances.Release(s.ParticipantID, s.Amount); err != nil {
			log.Printf("[consensus] refund %s: %v", s.ParticipantID, err)
		}
		var bonus uint64
		if totalStaked > 0 && pool > 0 {
			bonus = pool * s.Amount / totalStaked
		}
		if bonus > 0 {
			if err := e.balances.Reward(s.ParticipantID, bonus); err != nil {
				log.Printf("[consensus] reward %s: %v", s.ParticipantID, err)
			}
			observability.PointsRewarded.Add(float64(bonus))
		}
		records = append(records, domain.ReporterRecord{
			ParticipantID: s.ParticipantID,
			StakeAmount:   s.Amount,
			Weight:        domain.ReputationWeight(e.balances.TotalPoints(s.ParticipantID)),
			Timestamp:     now,
		})
	}
	return records
}

// ─── Queries & Maintenance ──────────────────────────────────────────────────

// Status returns the lifecycle state of a report. Expiry is checked
// lazily: a due report observed here is resolved first.
func (e *Engine) Status(reportID string) (domain.ReportStatus, error) {
	st, err := e.lookup(reportID)
	if err != nil {
		return 0, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.status == domain.ReportOpen && e.now().After(st.report.Expiry) {
		e.expireLocked(st)
	}
	return st.status, nil
}

// Report returns a copy of the report and its status.
func (e *Engine) Report(reportID string) (domain.PendingTrustReport, domain.ReportStatus, error) {
	st, err := e.lookup(reportID)
	if err != nil {
		return domain.PendingTrustReport{}, 0, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.report, st.status, nil
}

// SweepExpired resolves every open report past its expiry. Called
// periodically by the daemon; lazy per-call checks cover the gaps.
func (e *Engine) SweepExpired() int {
	e.mu.RLock()
	states := make([]*reportState, 0, len(e.reports))
	for _, st := range e.reports {
		states = append(states, st)
	}
	e.mu.RUnlock()

	now := e.now()
	expired := 0
	for _, st := range states {
		st.mu.Lock()
		if st.status == domain.ReportOpen && now.After(st.report.Expiry) {
			e.expireLocked(st)
			expired++
		}
		st.mu.Unlock()
	}
	return expired
}

// Restore re-installs an open report loaded from storage (stakes were
// already locked before shutdown, so balances are not touched).
func (e *Engine) Restore(r domain.PendingTrustReport) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reports[r.ReportID] = &reportState{report: r, status: domain.ReportOpen}
	observability.OpenReports.Inc()
}

// OpenCount returns the number of reports still accepting stakes.
func (e *Engine) OpenCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	n := 0
	for _, st := range e.reports {
		st.mu.Lock()
		if st.status == domain.ReportOpen {
			n++
		}
		st.mu.Unlock()
	}
	return n
}

func (e *Engine) lookup(reportID string) (*reportState, error) {
	e.mu.RLock()
	st, ok := e.reports[reportID]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("report %s: %w", reportID, domain.ErrReportNotFound)
	}
	return st, nil
}

func (e *Engine) persistReport(r domain.PendingTrustReport, status domain.ReportStatus) {
	if e.persist == nil {
		return
	}
	_ = e.persist.SaveReport(r, status)
}
