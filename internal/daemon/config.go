// Package daemon wires the economy engine, reconciliation loop, local
// store, and HTTP API into one long-running process.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the full daemon configuration, loaded from
// $DUCKTAP_HOME/config.toml.
type Config struct {
	API     APIConfig     `toml:"api"`
	Player  PlayerConfig  `toml:"player"`
	Game    GameConfig    `toml:"game"`
	Mining  MiningConfig  `toml:"mining"`
	Rewards RewardsConfig `toml:"rewards"`
	Sync    SyncConfig    `toml:"sync"`
	Ledger  LedgerConfig  `toml:"ledger"`
	Storage StorageConfig `toml:"storage"`
	Trace   TraceConfig   `toml:"trace"`
}

// APIConfig controls the local HTTP listener.
type APIConfig struct {
	Host    string `toml:"host"`
	Port    int    `toml:"port"`
	Metrics bool   `toml:"metrics"`
}

// PlayerConfig identifies the active player session.
type PlayerConfig struct {
	ID      string `toml:"id"`
	BotName string `toml:"bot_name"`
}

// GameConfig holds the tap-economy constants.
type GameConfig struct {
	TapValue       int64   `toml:"tap_value"`
	EnergyCapacity float64 `toml:"energy_capacity"`
	RefillWindow   string  `toml:"refill_window"`
	BoostCooldown  string  `toml:"boost_cooldown"`
}

// MiningConfig controls the mining timer.
type MiningConfig struct {
	Duration string `toml:"duration"`
}

// RewardsConfig controls the daily streak.
type RewardsConfig struct {
	Days int `toml:"days"`
}

// SyncConfig controls the reconciliation flush loop.
type SyncConfig struct {
	Interval    string `toml:"interval"`
	HardCapTaps int64  `toml:"hard_cap_taps"`
	BaseBackoff string `toml:"base_backoff"`
	MaxBackoff  string `toml:"max_backoff"`
	Timeout     string `toml:"timeout"`
}

// LedgerConfig points at the remote ledger service.
type LedgerConfig struct {
	BaseURL string `toml:"base_url"`
	Timeout string `toml:"timeout"`
}

// StorageConfig controls the local state database.
type StorageConfig struct {
	Dir string `toml:"dir"`
}

// TraceConfig controls the in-memory span tracer.
type TraceConfig struct {
	Enabled  bool `toml:"enabled"`
	MaxSpans int  `toml:"max_spans"`
}

// DefaultConfig returns the standard configuration.
func DefaultConfig() Config {
	return Config{
		API: APIConfig{
			Host:    "127.0.0.1",
			Port:    8420,
			Metrics: true,
		},
		Player: PlayerConfig{
			BotName: "ducktap_bot",
		},
		Game: GameConfig{
			TapValue:       1,
			EnergyCapacity: 100,
			RefillWindow:   "60s",
			BoostCooldown:  "60s",
		},
		Mining: MiningConfig{
			Duration: "60s",
		},
		Rewards: RewardsConfig{
			Days: 7,
		},
		Sync: SyncConfig{
			Interval:    "300ms",
			HardCapTaps: 50,
			BaseBackoff: "1s",
			MaxBackoff:  "30s",
			Timeout:     "10s",
		},
		Ledger: LedgerConfig{
			BaseURL: "https://api.ducktap.example",
			Timeout: "10s",
		},
		Trace: TraceConfig{
			Enabled:  true,
			MaxSpans: 1000,
		},
	}
}

// Home returns the ducktap home directory ($DUCKTAP_HOME or ~/.ducktap).
func Home() string {
	if env := os.Getenv("DUCKTAP_HOME"); env != "" {
		return env
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".ducktap"
	}
	return filepath.Join(home, ".ducktap")
}

// ConfigPath returns the config file location inside Home.
func ConfigPath() string {
	return filepath.Join(Home(), "config.toml")
}

// Load reads the config file at path, filling unset fields with defaults.
// A missing file yields the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Save writes the config as TOML, creating the directory if needed.
func Save(cfg Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create config: %w", err)
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}

// Validate rejects configurations the engine cannot run with.
func (c Config) Validate() error {
	if c.API.Port <= 0 || c.API.Port > 65535 {
		return fmt.Errorf("api.port %d out of range", c.API.Port)
	}
	if c.Game.EnergyCapacity <= 0 {
		return fmt.Errorf("game.energy_capacity must be positive")
	}
	if c.Game.TapValue <= 0 {
		return fmt.Errorf("game.tap_value must be positive")
	}
	if parseDuration(c.Game.RefillWindow, 0) <= 0 {
		return fmt.Errorf("game.refill_window %q is not a positive duration", c.Game.RefillWindow)
	}
	if parseDuration(c.Mining.Duration, 0) <= 0 {
		return fmt.Errorf("mining.duration %q is not a positive duration", c.Mining.Duration)
	}
	if c.Rewards.Days <= 0 {
		return fmt.Errorf("rewards.days must be positive")
	}
	if c.Ledger.BaseURL == "" {
		return fmt.Errorf("ledger.base_url is required")
	}
	return nil
}

// StorageDir returns the state database directory, defaulting under Home.
func (c Config) StorageDir() string {
	if c.Storage.Dir != "" {
		return c.Storage.Dir
	}
	return filepath.Join(Home(), "state")
}

// parseDuration parses a duration string, falling back on empty or
// malformed input.
func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
