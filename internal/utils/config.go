package utils

import (
	"os"
	"path/filepath"
)

// GetProjectRoot walks up from the working directory to the nearest go.mod.
func GetProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return "."
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "."
		}
		dir = parent
	}
}

// DefaultStateDir is where the client keeps its local state when nothing else
// is configured: $XDG_STATE_HOME/multisigcheck or ~/.local/state/multisigcheck.
func DefaultStateDir() string {
	if xdg := os.Getenv("XDG_STATE_HOME"); xdg != "" {
		return filepath.Join(xdg, "multisigcheck")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "multisigcheck")
	}
	return filepath.Join(home, ".local", "state", "multisigcheck")
}

// DefaultDataDir is the backend's storage root when none is configured.
func DefaultDataDir() string {
	return filepath.Join(GetProjectRoot(), "data")
}
