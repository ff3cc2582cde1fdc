// Package filex contains small filesystem helpers shared by the
// binaries.
package filex

import (
	"fmt"
	"os"
	"path/filepath"
)

// StateDir returns the per-user state directory for app, creating it if
// needed. It honors $XDG_STATE_HOME and falls back to ~/.local/state.
func StateDir(app string) (string, error) {
	base := os.Getenv("XDG_STATE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home: %w", err)
		}
		base = filepath.Join(home, ".local", "state")
	}

	dir := filepath.Join(base, app)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return dir, nil
}
