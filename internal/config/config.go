// Package config loads user preferences from ~/.agentmux/config.toml.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// FileName is the TOML config file for user preferences.
const FileName = "config.toml"

// UserConfig represents user-facing configuration in TOML format.
// Zero values fall back to defaults via the Get* accessors, so a partial
// file never disables a subsystem by accident.
type UserConfig struct {
	Tmux          TmuxSettings         `toml:"tmux"`
	Polling       PollingSettings      `toml:"polling"`
	Log           LogSettings          `toml:"log"`
	Notifications NotificationSettings `toml:"notifications"`
}

// TmuxSettings configures the multiplexer control layer.
type TmuxSettings struct {
	// Binary is the tmux executable path ("tmux" resolves via PATH)
	Binary string `toml:"binary"`

	// ScrollbackLines is how much history to capture on reattach
	ScrollbackLines int `toml:"scrollback_lines"`
}

func (t *TmuxSettings) GetBinary() string {
	if t.Binary == "" {
		return "tmux"
	}
	return t.Binary
}

func (t *TmuxSettings) GetScrollbackLines() int {
	if t.ScrollbackLines <= 0 {
		return 2000
	}
	return t.ScrollbackLines
}

// PollingSettings configures title polling.
type PollingSettings struct {
	// TitleIntervalMS is the title poll interval in milliseconds
	TitleIntervalMS int `toml:"title_interval_ms"`

	// SpawnRatePerSec caps multiplexer subprocess spawns from pollers
	SpawnRatePerSec float64 `toml:"spawn_rate_per_sec"`
}

func (p *PollingSettings) GetTitleIntervalMS() int {
	if p.TitleIntervalMS <= 0 {
		return 1000
	}
	return p.TitleIntervalMS
}

func (p *PollingSettings) GetSpawnRatePerSec() float64 {
	if p.SpawnRatePerSec <= 0 {
		return 10
	}
	return p.SpawnRatePerSec
}

// LogSettings configures the rotating debug log.
type LogSettings struct {
	Level      string `toml:"level"`
	Format     string `toml:"format"`
	Debug      bool   `toml:"debug"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
}

// NotificationSettings toggles user notifications. Pointers distinguish
// "unset" from explicit false.
type NotificationSettings struct {
	Enabled     *bool `toml:"enabled"`
	OnComplete  *bool `toml:"on_complete"`
	OnAttention *bool `toml:"on_attention"`
}

func (n *NotificationSettings) GetEnabled() bool {
	if n.Enabled == nil {
		return true
	}
	return *n.Enabled
}

func (n *NotificationSettings) GetOnComplete() bool {
	if n.OnComplete == nil {
		return true
	}
	return *n.OnComplete
}

func (n *NotificationSettings) GetOnAttention() bool {
	if n.OnAttention == nil {
		return true
	}
	return *n.OnAttention
}

// Dir returns the agentmux data directory (~/.agentmux).
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".agentmux"), nil
}

// Load reads the config file at path. A missing file yields defaults; a
// malformed file is an error so silent misconfiguration cannot happen.
func Load(path string) (*UserConfig, error) {
	cfg := &UserConfig{}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cfg, nil
}

// LoadDefault reads the config from the standard location.
func LoadDefault() (*UserConfig, error) {
	dir, err := Dir()
	if err != nil {
		return &UserConfig{}, nil
	}
	return Load(filepath.Join(dir, FileName))
}
