package paths

import (
	"fmt"
	"os"
	"path/filepath"
)

// EnvHome overrides the managed directory.
const EnvHome = "PYTC_HOME"

// GetHomeDir returns the base directory for all pytc state.
// Defaults to `~/.local/share/pytc`.
func GetHomeDir() (string, error) {
	if override := os.Getenv(EnvHome); override != "" {
		abs, err := filepath.Abs(override)
		if err != nil {
			return "", fmt.Errorf("resolve %s: %w", EnvHome, err)
		}
		return abs, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "share", "pytc"), nil
}

// Layout is the on-disk layout below a home directory.
type Layout struct {
	Root string
}

// NewLayout returns the layout rooted at root.
func NewLayout(root string) Layout {
	return Layout{Root: root}
}

// DefaultLayout returns the layout rooted at GetHomeDir.
func DefaultLayout() (Layout, error) {
	root, err := GetHomeDir()
	if err != nil {
		return Layout{}, err
	}
	return NewLayout(root), nil
}

// StoreDir is where fetched toolchains are extracted.
func (l Layout) StoreDir() string { return filepath.Join(l.Root, "toolchains") }

// RegistryFile is the TOML registry backend.
func (l Layout) RegistryFile() string { return filepath.Join(l.Root, "toolchains.toml") }

// RegistryDB is the SQLite registry backend.
func (l Layout) RegistryDB() string { return filepath.Join(l.Root, "registry.db") }

// LockFile guards registry mutations across processes.
func (l Layout) LockFile() string { return filepath.Join(l.Root, "registry.lock") }

// ConfigFile is the user configuration.
func (l Layout) ConfigFile() string { return filepath.Join(l.Root, "config.toml") }
