package consensus

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vouch-network/vouch/internal/domain"
	"github.com/vouch-network/vouch/internal/infra/balance"
	"github.com/vouch-network/vouch/internal/infra/ledger"
)

// ─── Helpers ────────────────────────────────────────────────────────────────

type testEnv struct {
	balances *balance.Store
	chain    *ledger.Chain
	engine   *Engine
}

// newTestEnv wires an engine over a fresh balance store and chain. Every
// named participant starts at the default 100-point grant, which maps to
// reputation weight 1.0.
func newTestEnv(t *testing.T, participants ...string) *testEnv {
	t.Helper()
	balances := balance.NewStore(balance.DefaultConfig())
	chain := ledger.New()
	engine := NewEngine(DefaultConfig(), balances, chain)
	for _, p := range participants {
		balances.GetOrCreate(p)
	}
	return &testEnv{balances: balances, chain: chain, engine: engine}
}

// fixedTime returns a clock function pinned to a specific time.
func fixedTime(year int, month time.Month, day int) func() time.Time {
	ts := time.Date(year, month, day, 12, 0, 0, 0, time.UTC)
	return func() time.Time { return ts }
}

func mustSubmit(t *testing.T, env *testEnv, reporter, target string,
	action domain.ActionType, impact int, stake uint64) string {
	t.Helper()
	id, err := env.engine.SubmitReport(reporter, target, action, impact, "test report", "", stake)
	if err != nil {
		t.Fatalf("SubmitReport failed: %v", err)
	}
	return id
}

func mustStatus(t *testing.T, env *testEnv, reportID string) domain.ReportStatus {
	t.Helper()
	status, err := env.engine.Status(reportID)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	return status
}

func balanceOf(t *testing.T, env *testEnv, id string) domain.TrustBalance {
	t.Helper()
	b, ok := env.balances.Get(id)
	if !ok {
		t.Fatalf("no balance for %s", id)
	}
	return b
}

// ─── Submission ─────────────────────────────────────────────────────────────

func TestSubmitReportLocksInitialStake(t *testing.T) {
	env := newTestEnv(t, "reporter", "target")

	// impact +50 → minimum stake max(5, 50/10) = 5; stake 10 accepted.
	id := mustSubmit(t, env, "reporter", "target", domain.ActionHelpfulResponse, 50, 10)

	if mustStatus(t, env, id) != domain.ReportOpen {
		t.Error("fresh report should be OPEN")
	}
	b := balanceOf(t, env, "reporter")
	if b.AvailablePoints != 90 || b.TotalPoints != 100 || b.StakedPoints != 10 {
		t.Errorf("reporter balance = %d/%d/%d, want 90/100/10",
			b.AvailablePoints, b.TotalPoints, b.StakedPoints)
	}

	r, _, err := env.engine.Report(id)
	if err != nil {
		t.Fatalf("Report failed: %v", err)
	}
	if r.MinimumStake != 5 {
		t.Errorf("minimum stake = %d, want 5", r.MinimumStake)
	}
	if len(r.StakesSupporting) != 1 || r.StakesSupporting[0].ParticipantID != "reporter" {
		t.Error("reporter's stake must be pre-attached on the supporting side")
	}
	if r.Threshold != 0.67 {
		t.Errorf("threshold = %v, want 0.67", r.Threshold)
	}
}

func TestSubmitReportStakeBelowMinimum(t *testing.T) {
	env := newTestEnv(t, "reporter")
	_, err := env.engine.SubmitReport("reporter", "target", domain.ActionHelpfulResponse, 100, "d", "", 9)
	if !errors.Is(err, domain.ErrStakeBelowMinimum) {
		t.Fatalf("err = %v, want ErrStakeBelowMinimum", err)
	}
	// Nothing may be locked on a failed submission.
	if b := balanceOf(t, env, "reporter"); b.StakedPoints != 0 {
		t.Errorf("staked = %d after failed submit, want 0", b.StakedPoints)
	}
}

func TestSubmitReportInsufficientBalance(t *testing.T) {
	env := newTestEnv(t, "reporter")
	_, err := env.engine.SubmitReport("reporter", "target", domain.ActionHelpfulResponse, 50, "d", "", 500)
	if !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Fatalf("err = %v, want ErrInsufficientBalance", err)
	}
}

func TestSubmitReportInconsistentImpactSign(t *testing.T) {
	env := newTestEnv(t, "reporter")

	_, err := env.engine.SubmitReport("reporter", "target", domain.ActionSpam, 50, "d", "", 10)
	if !errors.Is(err, domain.ErrInconsistentImpactSign) {
		t.Fatalf("positive impact on SPAM: err = %v, want ErrInconsistentImpactSign", err)
	}
	_, err = env.engine.SubmitReport("reporter", "target", domain.ActionMentoring, -20, "d", "", 10)
	if !errors.Is(err, domain.ErrInconsistentImpactSign) {
		t.Fatalf("negative impact on MENTORING: err = %v, want ErrInconsistentImpactSign", err)
	}
	_, err = env.engine.SubmitReport("reporter", "target", domain.ActionType("BOGUS"), 20, "d", "", 10)
	if !errors.Is(err, domain.ErrInconsistentImpactSign) {
		t.Fatalf("unknown action: err = %v, want ErrInconsistentImpactSign", err)
	}
}

func TestSubmitReportValidation(t *testing.T) {
	env := newTestEnv(t, "reporter")

	if _, err := env.engine.SubmitReport("reporter", "reporter", domain.ActionSpam, -10, "d", "", 10); !errors.Is(err, domain.ErrSelfReport) {
		t.Errorf("self report: err = %v, want ErrSelfReport", err)
	}
	if _, err := env.engine.SubmitReport("reporter", "target", domain.ActionAbuse, -150, "d", "", 20); !errors.Is(err, domain.ErrImpactOutOfRange) {
		t.Errorf("impact -150: err = %v, want ErrImpactOutOfRange", err)
	}
}

// ─── Consensus: Accept ──────────────────────────────────────────────────────

func TestConsensusFinalizesWithMixedStakes(t *testing.T) {
	env := newTestEnv(t, "alice", "bob", "carol", "dave", "target")

	// impact +100 → minimum stake 10 → participation floor 30 weight.
	id := mustSubmit(t, env, "alice", "target", domain.ActionCollaboration, 100, 10)

	// 10 + 10 = 20 < 30: no decision yet.
	if err := env.engine.StakeOnReport("bob", id, 10, true); err != nil {
		t.Fatalf("bob stake failed: %v", err)
	}
	if mustStatus(t, env, id) != domain.ReportOpen {
		t.Fatal("report should still be open below the participation floor")
	}

	// 25 < 30: dispute lands before the floor.
	if err := env.engine.StakeOnReport("dave", id, 5, false); err != nil {
		t.Fatalf("dave stake failed: %v", err)
	}
	if mustStatus(t, env, id) != domain.ReportOpen {
		t.Fatal("report should still be open at combined weight 25")
	}

	// 35 ≥ 30, ratio 30/35 ≈ 0.857 ≥ 0.67 → finalize.
	if err := env.engine.StakeOnReport("carol", id, 10, true); err != nil {
		t.Fatalf("carol stake failed: %v", err)
	}
	if mustStatus(t, env, id) != domain.ReportFinalized {
		t.Fatal("report should finalize at ratio 30/35")
	}

	// Disputer: 10% of 5 is 0.5, truncated to 0 — full refund.
	dave := balanceOf(t, env, "dave")
	if dave.TotalPoints != 100 || dave.AvailablePoints != 100 || dave.StakedPoints != 0 {
		t.Errorf("dave balance = %d/%d/%d, want full refund 100/100/0",
			dave.AvailablePoints, dave.TotalPoints, dave.StakedPoints)
	}

	// Supporters: stakes refunded, no bonus (slash pool was zero).
	for _, p := range []string{"alice", "bob", "carol"} {
		b := balanceOf(t, env, p)
		if b.AvailablePoints != 100 || b.StakedPoints != 0 {
			t.Errorf("%s balance = %d/%d/%d, want 100/100/0",
				p, b.AvailablePoints, b.TotalPoints, b.StakedPoints)
		}
	}

	// Finalized report is on the chain with frozen reporter weights.
	reports := env.chain.ReportsTargeting("target")
	if len(reports) != 1 {
		t.Fatalf("chain reports for target = %d, want 1", len(reports))
	}
	vr := reports[0]
	if vr.ValidationScore < 0.85 || vr.ValidationScore > 0.86 {
		t.Errorf("validation score = %v, want ≈0.857", vr.ValidationScore)
	}
	if len(vr.Reporters) != 3 {
		t.Fatalf("reporter records = %d, want 3", len(vr.Reporters))
	}
	for _, rec := range vr.Reporters {
		if rec.Weight != 1.0 {
			t.Errorf("reporter %s weight = %v, want 1.0", rec.ParticipantID, rec.Weight)
		}
	}
	if err := env.chain.VerifyChain(); err != nil {
		t.Errorf("chain should verify: %v", err)
	}
}

// ─── Consensus: Reject ──────────────────────────────────────────────────────

func TestConsensusRejectsAndSlashesSupporters(t *testing.T) {
	env := newTestEnv(t, "reporter", "defender", "target")

	// impact -50 → minimum stake 5 → floor 15.
	id := mustSubmit(t, env, "reporter", "target", domain.ActionSpam, -50, 10)

	// Disputing weight 30: combined 40 ≥ 15, ratio 10/40 = 0.25 ≤ 0.33 → reject.
	if err := env.engine.StakeOnReport("defender", id, 30, false); err != nil {
		t.Fatalf("defender stake failed: %v", err)
	}
	if mustStatus(t, env, id) != domain.ReportRejected {
		t.Fatal("report should be rejected at ratio 0.25")
	}

	// Reporter slashed 10% of 10 = 1, remainder refunded.
	rep := balanceOf(t, env, "reporter")
	if rep.TotalPoints != 99 || rep.AvailablePoints != 99 || rep.StakedPoints != 0 {
		t.Errorf("reporter balance = %d/%d/%d, want 99/99/0",
			rep.AvailablePoints, rep.TotalPoints, rep.StakedPoints)
	}

	// Defender refunded plus the full 1-point slash pool.
	def := balanceOf(t, env, "defender")
	if def.TotalPoints != 101 || def.AvailablePoints != 101 {
		t.Errorf("defender balance = %d/%d, want 101/101",
			def.AvailablePoints, def.TotalPoints)
	}

	// No verified report, but the slashing is on the ledger as an audit.
	if n := len(env.chain.ReportsTargeting("target")); n != 0 {
		t.Errorf("rejected claim produced %d verified reports, want 0", n)
	}
	blocks := env.chain.Blocks(1)
	audits := blocks[0].SlashAudits
	if len(audits) != 1 {
		t.Fatalf("slash audits = %d, want 1", len(audits))
	}
	if audits[0].ReportID != id || len(audits[0].Slashed) != 1 ||
		audits[0].Slashed[0].ParticipantID != "reporter" || audits[0].Slashed[0].Amount != 1 {
		t.Errorf("audit = %+v, want reporter slashed 1", audits[0])
	}
}

// ─── Expiry ─────────────────────────────────────────────────────────────────

func TestExpiryRefundsAllStakes(t *testing.T) {
	env := newTestEnv(t, "reporter", "backer", "target")
	env.engine.SetClock(fixedTime(2025, 1, 1))

	// Minimum stake 5 → floor 15; only 6 weighted stake ever arrives.
	id := mustSubmit(t, env, "reporter", "target", domain.ActionBugReport, 50, 5)
	if err := env.engine.StakeOnReport("backer", id, 1, true); err != nil {
		t.Fatalf("backer stake failed: %v", err)
	}
	if mustStatus(t, env, id) != domain.ReportOpen {
		t.Fatal("report should be open below the participation floor")
	}

	// 8 days later: past the 7-day window.
	env.engine.SetClock(fixedTime(2025, 1, 9))
	if n := env.engine.SweepExpired(); n != 1 {
		t.Fatalf("swept %d reports, want 1", n)
	}
	if mustStatus(t, env, id) != domain.ReportExpired {
		t.Fatal("report should be EXPIRED after sweep")
	}

	// Exact round trip: balances return to the pre-stake split.
	for _, p := range []string{"reporter", "backer"} {
		b := balanceOf(t, env, p)
		if b.TotalPoints != 100 || b.AvailablePoints != 100 || b.StakedPoints != 0 {
			t.Errorf("%s balance = %d/%d/%d, want 100/100/0",
				p, b.AvailablePoints, b.TotalPoints, b.StakedPoints)
		}
	}

	// No ledger entry for an expiry.
	if env.chain.Height() != 0 {
		t.Errorf("chain height = %d, want 0 (expiry writes nothing)", env.chain.Height())
	}
}

func TestLazyExpiryOnStakeAttempt(t *testing.T) {
	env := newTestEnv(t, "reporter", "late", "target")
	env.engine.SetClock(fixedTime(2025, 1, 1))
	id := mustSubmit(t, env, "reporter", "target", domain.ActionMentoring, 30, 5)

	env.engine.SetClock(fixedTime(2025, 1, 9))
	err := env.engine.StakeOnReport("late", id, 10, true)
	if !errors.Is(err, domain.ErrReportExpired) {
		t.Fatalf("err = %v, want ErrReportExpired", err)
	}

	// The expired stake attempt itself resolved the report.
	if mustStatus(t, env, id) != domain.ReportExpired {
		t.Error("stale stake attempt should have triggered expiry resolution")
	}
	// Late staker's points were never locked.
	if b := balanceOf(t, env, "late"); b.StakedPoints != 0 {
		t.Errorf("late staker staked = %d, want 0", b.StakedPoints)
	}

	// A second attempt now sees the terminal state.
	err = env.engine.StakeOnReport("late", id, 10, true)
	if !errors.Is(err, domain.ErrReportAlreadyTerminal) {
		t.Fatalf("err = %v, want ErrReportAlreadyTerminal", err)
	}
}

// ─── Terminal-State Discipline ──────────────────────────────────────────────

func TestStakeAfterFinalizationFails(t *testing.T) {
	env := newTestEnv(t, "alice", "bob", "late", "target")
	id := mustSubmit(t, env, "alice", "target", domain.ActionHelpfulResponse, 50, 10)

	// 20 ≥ floor 15, ratio 1.0 → finalize.
	if err := env.engine.StakeOnReport("bob", id, 10, true); err != nil {
		t.Fatalf("bob stake failed: %v", err)
	}
	if mustStatus(t, env, id) != domain.ReportFinalized {
		t.Fatal("report should be finalized")
	}

	err := env.engine.StakeOnReport("late", id, 10, false)
	if !errors.Is(err, domain.ErrReportAlreadyTerminal) {
		t.Fatalf("err = %v, want ErrReportAlreadyTerminal", err)
	}
}

func TestStakeOnUnknownReport(t *testing.T) {
	env := newTestEnv(t, "alice")
	err := env.engine.StakeOnReport("alice", "no-such-report", 10, true)
	if !errors.Is(err, domain.ErrReportNotFound) {
		t.Fatalf("err = %v, want ErrReportNotFound", err)
	}
}

// ─── Reputation Weighting ───────────────────────────────────────────────────

func TestLowBalanceStakersAreDownWeighted(t *testing.T) {
	env := newTestEnv(t, "alice", "bob", "target")
	// A Sybil swarm: fresh identities seeded with 1 point each → weight 0.1.
	for _, id := range []string{"s1", "s2", "s3"} {
		env.balances.Seed(domain.TrustBalance{
			ParticipantID: id, TotalPoints: 1, AvailablePoints: 1,
			DecayRate: 0.02, LastActivity: time.Now(),
		})
	}

	id := mustSubmit(t, env, "alice", "target", domain.ActionHelpfulResponse, 50, 10)
	if err := env.engine.StakeOnReport("bob", id, 4, true); err != nil {
		t.Fatalf("bob stake failed: %v", err)
	}
	// Combined weight 14 < 15: still open.
	if mustStatus(t, env, id) != domain.ReportOpen {
		t.Fatal("report should be open at weight 14")
	}

	// Three 1-point Sybils dispute with everything they have: 3 × 1 × 0.1
	// = 0.3 weight. Combined 14.3 — still under the floor. Their flood
	// achieves nothing.
	for _, s := range []string{"s1", "s2", "s3"} {
		if err := env.engine.StakeOnReport(s, id, 1, false); err != nil {
			t.Fatalf("%s stake failed: %v", s, err)
		}
	}
	if mustStatus(t, env, id) != domain.ReportOpen {
		t.Fatal("sybil stakes should not reach the participation floor")
	}
}

// ─── Concurrency ────────────────────────────────────────────────────────────

func TestConcurrentStakesSingleTerminalTransition(t *testing.T) {
	env := newTestEnv(t, "alice", "target")
	// Plenty of stakers, each pushing the report toward the threshold.
	stakers := make([]string, 16)
	for i := range stakers {
		stakers[i] = string(rune('a'+i)) + "-staker"
		env.balances.GetOrCreate(stakers[i])
	}

	id := mustSubmit(t, env, "alice", "target", domain.ActionCollaboration, 100, 10)

	var wg sync.WaitGroup
	for _, s := range stakers {
		wg.Add(1)
		go func(s string) {
			defer wg.Done()
			// Terminal-state errors are expected once the report tips.
			_ = env.engine.StakeOnReport(s, id, 10, true)
		}(s)
	}
	wg.Wait()

	if mustStatus(t, env, id) != domain.ReportFinalized {
		t.Fatal("report should have finalized")
	}
	// Exactly one ledger entry despite 16 racing evaluators.
	if env.chain.Height() != 1 {
		t.Errorf("chain height = %d, want exactly 1", env.chain.Height())
	}
	// Every staker's balance is whole again: refunded in full or never locked.
	for _, s := range stakers {
		b := balanceOf(t, env, s)
		if b.StakedPoints != 0 {
			t.Errorf("%s still has %d staked after resolution", s, b.StakedPoints)
		}
		if !b.Consistent() {
			t.Errorf("%s balance invariant violated: %+v", s, b)
		}
	}
}

// ─── Restore ────────────────────────────────────────────────────────────────

func TestRestoreReopensReport(t *testing.T) {
	env := newTestEnv(t, "alice", "bob", "target")
	env.engine.SetClock(fixedTime(2025, 1, 1))

	// The stake was locked before shutdown; only the report record is restored.
	if err := env.balances.Lock("alice", 10); err != nil {
		t.Fatalf("Lock failed: %v", err)
	}
	r := domain.PendingTrustReport{
		ReportID:          "restored-1",
		TargetParticipant: "target",
		Action:            domain.ActionHelpfulResponse,
		ImpactScore:       50,
		InitialReporter:   "alice",
		CreatedAt:         time.Date(2024, 12, 30, 0, 0, 0, 0, time.UTC),
		Expiry:            time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC),
		MinimumStake:      5,
		Threshold:         0.67,
		StakesSupporting: []domain.TrustStake{{
			StakeID: "s1", ParticipantID: "alice", ReportID: "restored-1",
			Amount: 10, Supporting: true,
		}},
	}
	env.engine.Restore(r)

	if mustStatus(t, env, "restored-1") != domain.ReportOpen {
		t.Fatal("restored report should be OPEN")
	}
	if err := env.engine.StakeOnReport("bob", "restored-1", 10, true); err != nil {
		t.Fatalf("stake on restored report failed: %v", err)
	}
	if mustStatus(t, env, "restored-1") != domain.ReportFinalized {
		t.Error("restored report should finalize once threshold is met")
	}
}
