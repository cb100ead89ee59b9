package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/vouch-network/vouch/internal/daemon"
	"github.com/vouch-network/vouch/internal/infra/balance"
	"github.com/vouch-network/vouch/internal/infra/decay"
	"github.com/vouch-network/vouch/internal/infra/sqlite"
)

func init() {
	rootCmd.AddCommand(decayCmd)
}

var decayCmd = &cobra.Command{
	Use:   "decay",
	Short: "Apply one dormancy decay pass offline",
	Long: `Load all balances from the database, apply the dormancy decay
schedule once, and write the results back. Safe to run repeatedly: months
already covered by a previous pass are never decayed twice. Do not run
against the database of a live daemon.`,
	RunE: runDecay,
}

func runDecay(cmd *cobra.Command, args []string) error {
	cfg, err := daemon.LoadConfig(loadedConfigPath(cmd))
	if err != nil {
		return err
	}

	db, err := sqlite.Open(cfg.DatabasePath())
	if err != nil {
		return err
	}
	defer db.Close()

	store := balance.NewStore(balance.Config{
		InitialGrant:     cfg.Economy.InitialGrant,
		DefaultDecayRate: cfg.Economy.DecayRate,
		DormancyGrace:    30 * 24 * time.Hour,
	})
	stored, err := db.LoadBalances()
	if err != nil {
		return err
	}
	for _, b := range stored {
		store.Seed(b)
	}
	if last, ok, err := db.LastDecayRun(); err != nil {
		return err
	} else if ok {
		store.MarkDecayed(last)
	}
	store.SetPersister(db)

	p := decay.NewProcessor(decay.DefaultConfig(), store)
	p.SetRecorder(db)
	n := p.RunOnce()
	fmt.Printf("decay pass complete: %d of %d balances reduced\n", n, len(stored))
	return nil
}
