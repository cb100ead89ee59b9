package cli

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vouch-network/vouch/internal/daemon"
	"github.com/vouch-network/vouch/internal/infra/sqlite"
)

func init() {
	rootCmd.AddCommand(balanceCmd)
}

var balanceCmd = &cobra.Command{
	Use:   "balance [PARTICIPANT]",
	Short: "Show trust-point balances",
	Long: `Read balances straight from the database. With no argument, lists
every participant; with one, shows that participant's balance.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runBalance,
}

func runBalance(cmd *cobra.Command, args []string) error {
	cfg, err := daemon.LoadConfig(loadedConfigPath(cmd))
	if err != nil {
		return err
	}

	db, err := sqlite.Open(cfg.DatabasePath())
	if err != nil {
		return err
	}
	defer db.Close()

	balances, err := db.LoadBalances()
	if err != nil {
		return err
	}

	if len(args) == 1 {
		for _, b := range balances {
			if b.ParticipantID == args[0] {
				fmt.Printf("participant: %s\n", b.ParticipantID)
				fmt.Printf("total:       %d\n", b.TotalPoints)
				fmt.Printf("available:   %d\n", b.AvailablePoints)
				fmt.Printf("staked:      %d\n", b.StakedPoints)
				fmt.Printf("last active: %s\n", b.LastActivity.Format("2006-01-02 15:04:05 MST"))
				return nil
			}
		}
		return fmt.Errorf("participant %q not found", args[0])
	}

	sort.Slice(balances, func(i, j int) bool {
		return balances[i].ParticipantID < balances[j].ParticipantID
	})
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PARTICIPANT\tTOTAL\tAVAILABLE\tSTAKED")
	for _, b := range balances {
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\n",
			b.ParticipantID, b.TotalPoints, b.AvailablePoints, b.StakedPoints)
	}
	return w.Flush()
}
