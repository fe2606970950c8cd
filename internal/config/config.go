// Package config provides application configuration from database.
package config

import (
	"os"
	"path/filepath"

	"github.com/hookboard/hookboard/internal/db"
)

// Config holds application configuration loaded from database.
type Config struct {
	db           *db.DB
	WorktreesDir string
	DefaultSound string
}

// Setting keys
const (
	SettingWorktreesDir = "worktrees_dir"
	SettingDefaultSound = "default_sound"
)

// New creates a config from database.
func New(database *db.DB) *Config {
	cfg := &Config{db: database}
	cfg.load()
	return cfg
}

func (c *Config) load() {
	// Load worktrees_dir or use default
	if dir, err := c.db.GetSetting(SettingWorktreesDir); err == nil && dir != "" {
		c.WorktreesDir = expandPath(dir)
	} else {
		home, _ := os.UserHomeDir()
		c.WorktreesDir = filepath.Join(home, ".local", "share", "hookboard", "worktrees")
	}

	if sound, err := c.db.GetSetting(SettingDefaultSound); err == nil && sound != "" {
		c.DefaultSound = sound
	} else {
		c.DefaultSound = "chime"
	}
}

// SetWorktreesDir sets the directory task worktrees are created under.
func (c *Config) SetWorktreesDir(dir string) error {
	if err := c.db.SetSetting(SettingWorktreesDir, dir); err != nil {
		return err
	}
	c.WorktreesDir = expandPath(dir)
	return nil
}

// SetDefaultSound sets the sound system.play_sound uses when a binding
// does not pick one.
func (c *Config) SetDefaultSound(sound string) error {
	if err := c.db.SetSetting(SettingDefaultSound, sound); err != nil {
		return err
	}
	c.DefaultSound = sound
	return nil
}

func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}
