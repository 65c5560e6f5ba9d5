package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ducktap-game/ducktap/internal/daemon"
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("config", "", "Path to config file (default $DUCKTAP_HOME/config.toml)")
	serveCmd.Flags().String("player", "", "Player ID (overrides config)")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the game-economy daemon",
	Long: `Start the ducktap daemon: load the local state snapshot, fast-forward
every timer by the time the process spent closed, and serve the game API
until interrupted. The reconciliation loop flushes buffered taps to the
remote ledger in the background.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = daemon.ConfigPath()
	}
	cfg, err := daemon.Load(path)
	if err != nil {
		return err
	}
	if player, _ := cmd.Flags().GetString("player"); player != "" {
		cfg.Player.ID = player
	}

	d, err := daemon.New(cfg)
	if err != nil {
		return fmt.Errorf("initialize daemon: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return d.Run(ctx)
}
