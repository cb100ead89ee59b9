// Package cli implements the vouch command-line interface.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time via -ldflags.
var Version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:   "vouch",
	Short: "Stake-weighted reputation ledger",
	Long: `Vouch is a stake-weighted reputation ledger. Participants put trust
points at risk to report on each other's behaviour; weighted consensus
decides the outcome, and finalized reports are chained into a
tamper-evident block ledger.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to config file (default ~/.vouch/config.toml)")
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the vouch version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("vouch %s\n", Version)
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadedConfigPath(cmd *cobra.Command) string {
	path, _ := cmd.Flags().GetString("config")
	return path
}
