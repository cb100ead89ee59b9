package decay

import (
	"context"
	"testing"
	"time"

	"github.com/vouch-network/vouch/internal/domain"
	"github.com/vouch-network/vouch/internal/infra/balance"
)

func seededStore(t *testing.T, lastActivity time.Time) *balance.Store {
	t.Helper()
	s := balance.NewStore(balance.DefaultConfig())
	s.Seed(domain.TrustBalance{
		ParticipantID:   "dormant",
		TotalPoints:     200,
		AvailablePoints: 200,
		DecayRate:       0.02,
		LastActivity:    lastActivity,
	})
	return s
}

func TestRunOnceAppliesDecay(t *testing.T) {
	start := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	s := seededStore(t, start)
	s.SetClock(func() time.Time { return start.Add(130 * 24 * time.Hour) })

	p := NewProcessor(DefaultConfig(), s)
	if n := p.RunOnce(); n != 1 {
		t.Fatalf("decayed %d, want 1", n)
	}
	b, _ := s.Get("dormant")
	if b.TotalPoints != 188 {
		t.Errorf("total = %d, want 188", b.TotalPoints)
	}
}

func TestRunOnceIdempotentWithinPeriod(t *testing.T) {
	start := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	s := seededStore(t, start)
	s.SetClock(func() time.Time { return start.Add(130 * 24 * time.Hour) })

	p := NewProcessor(DefaultConfig(), s)
	p.RunOnce()
	if n := p.RunOnce(); n != 0 {
		t.Errorf("second pass decayed %d balances, want 0", n)
	}
}

type fakeRecorder struct {
	runs []int
}

func (r *fakeRecorder) RecordDecayRun(runAt time.Time, affected int) error {
	r.runs = append(r.runs, affected)
	return nil
}

func TestRunOnceRecordsHistory(t *testing.T) {
	start := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	s := seededStore(t, start)
	s.SetClock(func() time.Time { return start.Add(130 * 24 * time.Hour) })

	rec := &fakeRecorder{}
	p := NewProcessor(DefaultConfig(), s)
	p.SetRecorder(rec)
	p.RunOnce()
	p.RunOnce()

	if len(rec.runs) != 2 || rec.runs[0] != 1 || rec.runs[1] != 0 {
		t.Errorf("recorded runs = %v, want [1 0]", rec.runs)
	}
}

func TestMarkDecayedSkipsCoveredMonths(t *testing.T) {
	start := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	s := seededStore(t, start)
	now := start.Add(130 * 24 * time.Hour)
	s.SetClock(func() time.Time { return now })

	// A previous process already decayed through now; a rerun after
	// restart must be a no-op.
	s.MarkDecayed(now)
	p := NewProcessor(DefaultConfig(), s)
	if n := p.RunOnce(); n != 0 {
		t.Errorf("decayed %d balances after MarkDecayed, want 0", n)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	s := seededStore(t, time.Now())
	p := NewProcessor(Config{Interval: time.Millisecond}, s)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
