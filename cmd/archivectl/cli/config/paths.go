// Package config resolves the archivectl config directory.
package config

import (
	"os"
	"path/filepath"
)

// Dir returns the archivectl config directory: XDG_CONFIG_HOME/archivectl,
// defaulting to ~/.config/archivectl.
func Dir() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "archivectl"), nil
}
