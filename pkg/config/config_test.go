package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load(filepath.Join(t.TempDir(), "config.toml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Fetch.Workers != DefaultWorkers {
		t.Errorf("workers = %d, want %d", cfg.Fetch.Workers, DefaultWorkers)
	}
	if cfg.Registry.Backend != BackendTOML {
		t.Errorf("backend = %q, want %q", cfg.Registry.Backend, BackendTOML)
	}
	if cfg.Registry.LockTimeout.Duration != DefaultLockTimeout {
		t.Errorf("lock timeout = %s, want %s", cfg.Registry.LockTimeout, DefaultLockTimeout)
	}
	if len(cfg.Sources) != 2 || cfg.Sources[0].Kind != "cpython" || cfg.Sources[1].Kind != "pypy" {
		t.Errorf("unexpected default sources: %+v", cfg.Sources)
	}
}

func TestLoadFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[toolchains]
default = "cpython@3.12"

[fetch]
workers = 2
progress = true

[registry]
backend = "sqlite"
lock_timeout = "5s"

[[sources]]
kind = "manifest"
name = "mirror"
url = "https://example.invalid/toolchains.json"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Toolchains.Default != "cpython@3.12" {
		t.Errorf("default = %q", cfg.Toolchains.Default)
	}
	if cfg.Fetch.Workers != 2 || !cfg.Fetch.Progress {
		t.Errorf("fetch = %+v", cfg.Fetch)
	}
	if cfg.Fetch.Retries != DefaultRetries {
		t.Errorf("retries = %d, want default %d", cfg.Fetch.Retries, DefaultRetries)
	}
	if cfg.Registry.Backend != BackendSQLite {
		t.Errorf("backend = %q", cfg.Registry.Backend)
	}
	if cfg.Registry.LockTimeout.Duration != 5*time.Second {
		t.Errorf("lock timeout = %s", cfg.Registry.LockTimeout)
	}
	if len(cfg.Sources) != 1 || cfg.Sources[0].Name != "mirror" || cfg.Sources[0].Kind != "manifest" {
		t.Errorf("sources = %+v", cfg.Sources)
	}
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[registry]\nbackend = \"etcd\"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestLoadRejectsDuplicateSources(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.toml")
	content := "[[sources]]\nkind = \"cpython\"\n\n[[sources]]\nkind = \"cpython\"\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected duplicate source error")
	}
}

func TestLoadKeepsExplicitZeroRetries(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[fetch]\nretries = 0\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Fetch.Retries != 0 {
		t.Errorf("retries = %d, want 0", cfg.Fetch.Retries)
	}
	if cfg.Fetch.Workers != DefaultWorkers {
		t.Errorf("workers = %d, want default %d", cfg.Fetch.Workers, DefaultWorkers)
	}
}

func TestLoadRejectsNegativeRetries(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[fetch]\nretries = -1\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for negative retries")
	}
}

func TestLoadMirrors(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.toml")
	content := "[fetch]\nmirrors = [\"https://cache.example.invalid\"]\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Fetch.Mirrors) != 1 || cfg.Fetch.Mirrors[0] != "https://cache.example.invalid" {
		t.Errorf("mirrors = %v", cfg.Fetch.Mirrors)
	}
}
