// Package cli implements the ducktap command-line interface.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ducktap-game/ducktap/internal/api"
)

var rootCmd = &cobra.Command{
	Use:   "ducktap",
	Short: "Local game-economy daemon for the DuckTap tap-to-earn game",
	Long: `ducktap runs the DuckTap game-economy engine as a local daemon:
it tracks tap energy, boosts, mining runs, levels and daily rewards,
persists everything across restarts, and reconciles the optimistic local
balance with the remote ledger in the background.

The game UI talks to the daemon over a local HTTP API.`,
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the ducktap version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(os.Stdout, "ducktap %s\n", api.Version)
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
