package cli

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/ducktap-game/ducktap/internal/daemon"
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)

	configInitCmd.Flags().String("player", "", "Player ID to write into the new config")
	configInitCmd.Flags().String("ledger", "", "Ledger base URL to write into the new config")
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the daemon configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file",
	Long:  `Write the default configuration to $DUCKTAP_HOME/config.toml. Refuses to overwrite an existing file.`,
	RunE:  runConfigInit,
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := daemon.ConfigPath()
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config already exists at %s", path)
	}

	cfg := daemon.DefaultConfig()
	if player, _ := cmd.Flags().GetString("player"); player != "" {
		cfg.Player.ID = player
	}
	if url, _ := cmd.Flags().GetString("ledger"); url != "" {
		cfg.Ledger.BaseURL = url
	}

	if err := daemon.Save(cfg, path); err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "Config written to %s\n", path)
	if cfg.Player.ID == "" {
		fmt.Fprintln(os.Stdout, "Set player.id before running 'ducktap serve'.")
	}
	return nil
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := daemon.Load(daemon.ConfigPath())
		if err != nil {
			return err
		}
		return toml.NewEncoder(os.Stdout).Encode(cfg)
	},
}
