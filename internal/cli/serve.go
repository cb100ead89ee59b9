package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vouch-network/vouch/internal/daemon"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the vouch daemon",
	Long: `Start the vouch daemon: the HTTP API, the dormancy decay loop, and
the expired-report sweeper. State is restored from the sqlite database
and the chain is verified before the listener comes up.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := daemon.LoadConfig(loadedConfigPath(cmd))
	if err != nil {
		return err
	}

	d, err := daemon.New(cfg, nil)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return d.Run(ctx)
}
