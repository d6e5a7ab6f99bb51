// Package config provides configuration management for perftune.
package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// Paths holds the local directories perftune keeps its own files in.
type Paths struct {
	// ConfigDir is the directory for configuration files.
	// macOS: ~/Library/Application Support/perftune
	// Linux: ~/.config/perftune (or XDG_CONFIG_HOME)
	ConfigDir string

	// DataDir holds the SSH key pair shared with guests.
	// All platforms: ~/.perftune
	DataDir string

	// ConfigFile is the path to the main config file.
	ConfigFile string
}

// GetPaths returns platform-aware paths for perftune.
func GetPaths() (*Paths, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	p := &Paths{DataDir: filepath.Join(home, ".perftune")}

	switch runtime.GOOS {
	case "darwin":
		p.ConfigDir = filepath.Join(home, "Library", "Application Support", "perftune")
	default:
		if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
			p.ConfigDir = filepath.Join(xdgConfig, "perftune")
		} else {
			p.ConfigDir = filepath.Join(home, ".config", "perftune")
		}
	}

	p.ConfigFile = filepath.Join(p.ConfigDir, "config.yaml")
	return p, nil
}

// EnsureDirectories creates the config and data directories if they don't exist.
func (p *Paths) EnsureDirectories() error {
	if err := os.MkdirAll(p.ConfigDir, 0755); err != nil {
		return err
	}
	// The data dir holds a private key.
	return os.MkdirAll(p.DataDir, 0700)
}
