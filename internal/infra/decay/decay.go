// Package decay runs the dormancy decay schedule against the balance
// store. The decay transform itself lives in the store and is a pure,
// idempotent function of timestamps — this package only decides when to
// invoke it, so running the processor twice in the same period cannot
// double-decay anyone.
package decay

import (
	"context"
	"log"
	"time"

	"github.com/vouch-network/vouch/internal/infra/balance"
	"github.com/vouch-network/vouch/internal/infra/observability"
)

// ─── Configuration ──────────────────────────────────────────────────────────

// Config controls the processor schedule.
type Config struct {
	Interval time.Duration // how often to run (default: daily)
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{Interval: 24 * time.Hour}
}

// ─── Persistence Boundary ───────────────────────────────────────────────────

// Recorder receives the outcome of each decay pass for the run history.
type Recorder interface {
	RecordDecayRun(runAt time.Time, affected int) error
}

// ─── Processor ──────────────────────────────────────────────────────────────

// Processor periodically applies balance decay.
type Processor struct {
	config   Config
	balances *balance.Store
	record   Recorder
}

// NewProcessor creates a decay processor.
func NewProcessor(cfg Config, balances *balance.Store) *Processor {
	return &Processor{config: cfg, balances: balances}
}

// SetRecorder attaches a durable run-history sink.
func (p *Processor) SetRecorder(r Recorder) { p.record = r }

// RunOnce applies one decay pass and returns how many balances shrank.
func (p *Processor) RunOnce() int {
	decayed := p.balances.RunDecay()
	if decayed > 0 {
		observability.PointsDecayed.Add(float64(decayed))
		log.Printf("[decay] reduced %d dormant balances", decayed)
	}
	if p.record != nil {
		if err := p.record.RecordDecayRun(time.Now(), decayed); err != nil {
			log.Printf("[decay] record run: %v", err)
		}
	}
	return decayed
}

// Run loops on the configured interval until the context is cancelled.
// An immediate first pass catches decay accrued while the process was down.
func (p *Processor) Run(ctx context.Context) {
	p.RunOnce()

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.RunOnce()
		}
	}
}
