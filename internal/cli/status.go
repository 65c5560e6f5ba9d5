package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ducktap-game/ducktap/internal/daemon"
)

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().String("config", "", "Path to config file (default $DUCKTAP_HOME/config.toml)")
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the running player session",
	Long:  `Query the local daemon and print the current balance, energy, level, mining run, and streak.`,
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = daemon.ConfigPath()
	}
	cfg, err := daemon.Load(path)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("http://%s:%d/api/player", cfg.API.Host, cfg.API.Port)
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("daemon not reachable at %s (is 'ducktap serve' running?): %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("daemon returned %s", resp.Status)
	}

	var player struct {
		PlayerID       string  `json:"player_id"`
		DisplayName    string  `json:"display_name"`
		Balance        int64   `json:"balance"`
		BalanceDisplay string  `json:"balance_display"`
		PendingDelta   int64   `json:"pending_delta"`
		Energy         float64 `json:"energy"`
		EnergyCapacity float64 `json:"energy_capacity"`
		Level          int     `json:"level"`
		LevelProgress  float64 `json:"level_progress"`
		BoostReadyIn   float64 `json:"boost_ready_in"`
		Mining         struct {
			Phase     string  `json:"phase"`
			Progress  float64 `json:"progress"`
			Remaining float64 `json:"remaining"`
		} `json:"mining"`
		NextClaimIn float64 `json:"next_claim_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&player); err != nil {
		return fmt.Errorf("decode status: %w", err)
	}

	fmt.Fprintf(os.Stdout, "Player:   %s (%s)\n", player.DisplayName, player.PlayerID)
	fmt.Fprintf(os.Stdout, "Balance:  %s", player.BalanceDisplay)
	if player.PendingDelta != 0 {
		fmt.Fprintf(os.Stdout, " (%d unconfirmed)", player.PendingDelta)
	}
	fmt.Fprintln(os.Stdout)
	fmt.Fprintf(os.Stdout, "Energy:   %.0f/%.0f\n", player.Energy, player.EnergyCapacity)
	fmt.Fprintf(os.Stdout, "Level:    %d (%.0f%% through band)\n", player.Level, player.LevelProgress*100)
	if player.BoostReadyIn > 0 {
		fmt.Fprintf(os.Stdout, "Boost:    ready in %.0fs\n", player.BoostReadyIn)
	} else {
		fmt.Fprintln(os.Stdout, "Boost:    ready")
	}
	switch player.Mining.Phase {
	case "IN_PROGRESS":
		fmt.Fprintf(os.Stdout, "Mining:   %.0f%% (%.0fs left)\n", player.Mining.Progress*100, player.Mining.Remaining)
	case "AWAITING_PAYOUT":
		fmt.Fprintln(os.Stdout, "Mining:   done, payout pending")
	default:
		fmt.Fprintln(os.Stdout, "Mining:   idle")
	}
	if player.NextClaimIn > 0 {
		fmt.Fprintf(os.Stdout, "Daily:    next claim in %s\n", (time.Duration(player.NextClaimIn) * time.Second).Truncate(time.Second))
	} else {
		fmt.Fprintln(os.Stdout, "Daily:    claim available")
	}
	return nil
}
