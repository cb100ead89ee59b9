package daemon

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/vouch-network/vouch/internal/api"
	"github.com/vouch-network/vouch/internal/domain"
	"github.com/vouch-network/vouch/internal/infra/balance"
	"github.com/vouch-network/vouch/internal/infra/consensus"
	"github.com/vouch-network/vouch/internal/infra/decay"
	"github.com/vouch-network/vouch/internal/infra/ledger"
	"github.com/vouch-network/vouch/internal/infra/score"
	"github.com/vouch-network/vouch/internal/infra/sqlite"
)

// Daemon is the assembled service.
type Daemon struct {
	config Config

	db       *sqlite.DB
	balances *balance.Store
	chain    *ledger.Chain
	engine   *consensus.Engine
	scores   *score.Calculator
	decay    *decay.Processor
	server   *http.Server
}

// New builds a daemon from config: opens storage, restores persisted
// state, and wires every component. The returned daemon is ready to Run.
// The directory may be nil; trust scores then degrade to ledger-only inputs.
func New(cfg Config, directory domain.Directory) (*Daemon, error) {
	if err := os.MkdirAll(DataDir(), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	db, err := sqlite.Open(cfg.DatabasePath())
	if err != nil {
		return nil, err
	}

	// Balances
	balances := balance.NewStore(balance.Config{
		InitialGrant:     cfg.Economy.InitialGrant,
		DefaultDecayRate: cfg.Economy.DecayRate,
		DormancyGrace:    30 * 24 * time.Hour,
	})
	stored, err := db.LoadBalances()
	if err != nil {
		db.Close()
		return nil, err
	}
	for _, b := range stored {
		balances.Seed(b)
	}
	if last, ok, err := db.LastDecayRun(); err != nil {
		db.Close()
		return nil, err
	} else if ok {
		balances.MarkDecayed(last)
	}
	balances.SetPersister(db)

	// Ledger
	chain := ledger.New()
	blocks, err := db.LoadBlocks()
	if err != nil {
		db.Close()
		return nil, err
	}
	if len(blocks) > 0 {
		if err := chain.Seed(blocks); err != nil {
			db.Close()
			return nil, fmt.Errorf("restore chain: %w", err)
		}
	} else {
		// Fresh database: persist the deterministic genesis block.
		if g, ok := chain.Block(0); ok {
			if err := db.SaveBlock(g); err != nil {
				db.Close()
				return nil, err
			}
		}
	}
	chain.SetPersister(db)

	// Consensus
	ccfg := consensus.DefaultConfig()
	ccfg.Threshold = cfg.Consensus.Threshold
	ccfg.SlashPercentage = cfg.Consensus.SlashPercentage
	ccfg.MinStakeFloor = cfg.Consensus.MinStakeFloor
	ccfg.VotingWindow = parseDuration(cfg.Consensus.VotingWindow, 7*24*time.Hour)
	engine := consensus.NewEngine(ccfg, balances, chain)
	engine.SetPersister(db)

	open, err := db.LoadOpenReports()
	if err != nil {
		db.Close()
		return nil, err
	}
	for _, r := range open {
		engine.Restore(r)
	}

	scores := score.NewCalculator(score.DefaultConfig(), chain, directory)

	srv := api.NewServer(engine, balances, chain, scores)
	if cfg.Metrics.Enabled {
		srv.EnableMetrics()
	}

	processor := decay.NewProcessor(decay.Config{Interval: parseDuration(cfg.Decay.Interval, 24*time.Hour)}, balances)
	processor.SetRecorder(db)

	d := &Daemon{
		config:   cfg,
		db:       db,
		balances: balances,
		chain:    chain,
		engine:   engine,
		scores:   scores,
		decay:    processor,
		server: &http.Server{
			Addr:    cfg.API.Addr(),
			Handler: srv.Handler(),
		},
	}

	log.Printf("[daemon] restored %d balances, %d open reports, chain height %d",
		len(stored), len(open), chain.Height())
	return d, nil
}

// Run starts the HTTP server and the background loops, blocking until the
// context is cancelled. Shutdown is graceful: in-flight requests drain
// before storage closes.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.chain.VerifyChain(); err != nil {
		return fmt.Errorf("chain verification at boot: %w", err)
	}

	go d.decay.Run(ctx)
	go d.sweepLoop(ctx)

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[daemon] listening on %s", d.server.Addr)
		if err := d.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		d.db.Close()
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := d.server.Shutdown(shutdownCtx); err != nil {
		log.Printf("[daemon] shutdown: %v", err)
	}
	return d.db.Close()
}

// sweepLoop periodically resolves reports past their voting window.
// Lazy per-request expiry covers the gaps between sweeps.
func (d *Daemon) sweepLoop(ctx context.Context) {
	interval := parseDuration(d.config.Consensus.SweepInterval, time.Hour)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := d.engine.SweepExpired(); n > 0 {
				log.Printf("[daemon] expired %d reports", n)
			}
		}
	}
}
