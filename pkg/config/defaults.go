package config

import (
	"os"
	"path/filepath"
)

// defaultDBPath returns the default checkpoint database path.
//
// Returns: ~/.config/fswatch/checkpoints.db.
func defaultDBPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./checkpoints.db"
	}

	return filepath.Join(homeDir, ".config", "fswatch", "checkpoints.db")
}

// DefaultPath returns the default configuration file path.
//
// Returns: ~/.config/fswatch/config.yaml.
func DefaultPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./fswatch.yaml"
	}

	return filepath.Join(homeDir, ".config", "fswatch", "config.yaml")
}
