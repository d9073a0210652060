// Package appconfig manages application configuration and data file paths.
package appconfig

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/treykane/ssh-doctor/internal/util"
	"gopkg.in/yaml.v3"
)

// ProbeConfig controls connection test behavior.
type ProbeConfig struct {
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// UIConfig contains wizard display settings.
type UIConfig struct {
	RefreshSeconds int  `yaml:"refresh_seconds"`
	RedactPaths    bool `yaml:"redact_paths"`
}

// Config holds application-level configuration.
type Config struct {
	Probe ProbeConfig `yaml:"probe"`
	UI    UIConfig    `yaml:"ui"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		Probe: ProbeConfig{TimeoutSeconds: int(util.ProbeTimeout.Seconds())},
		UI:    UIConfig{RefreshSeconds: util.DefaultRefreshSeconds, RedactPaths: true},
	}
}

// ConfigDir returns the application config directory path.
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config/ssh-doctor.
func ConfigDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "ssh-doctor"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home: %w", err)
	}
	return filepath.Join(home, ".config", "ssh-doctor"), nil
}

// JournalFilePath returns the full path to journal.jsonl.
func JournalFilePath() (string, error) {
	d, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(d, "journal.jsonl"), nil
}

// GroupsFilePath returns the full path to groups.yaml.
func GroupsFilePath() (string, error) {
	d, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(d, "groups.yaml"), nil
}

// Load reads config.yaml from the config directory.
// If the file doesn't exist, creates it with defaults.
func Load() (Config, error) {
	d, err := ConfigDir()
	if err != nil {
		return Config{}, err
	}
	if err := os.MkdirAll(d, 0o700); err != nil {
		return Config{}, err
	}
	path := filepath.Join(d, "config.yaml")
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := Default()
			if err := Save(cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return Config{}, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if cfg.Probe.TimeoutSeconds <= 0 {
		cfg.Probe.TimeoutSeconds = int(util.ProbeTimeout.Seconds())
	}
	if cfg.UI.RefreshSeconds <= 0 {
		cfg.UI.RefreshSeconds = util.DefaultRefreshSeconds
	}
	return cfg, nil
}

// Save writes config to config.yaml.
func Save(cfg Config) error {
	d, err := ConfigDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(d, 0o700); err != nil {
		return err
	}
	path := filepath.Join(d, "config.yaml")
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}
