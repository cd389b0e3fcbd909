package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	DefaultWorkers     = 4
	DefaultRetries     = 3
	DefaultLockTimeout = 30 * time.Second

	BackendTOML   = "toml"
	BackendSQLite = "sqlite"
)

// Config is the user configuration stored in config.toml.
type Config struct {
	Toolchains ToolchainsConfig `toml:"toolchains"`
	Fetch      FetchConfig      `toml:"fetch"`
	Registry   RegistryConfig   `toml:"registry"`
	Sources    []SourceConfig   `toml:"sources"`
}

type ToolchainsConfig struct {
	// Default is the request used when a project has no pin.
	Default string `toml:"default"`
}

type FetchConfig struct {
	Workers int `toml:"workers"`
	// Retries is the number of extra attempts after a network failure; an
	// explicit 0 disables retrying.
	Retries  int  `toml:"retries"`
	Progress bool `toml:"progress"`
	// Mirrors are fetchurl servers tried before the source url of an archive
	// with a known checksum.
	Mirrors []string `toml:"mirrors"`
}

type RegistryConfig struct {
	Backend     string   `toml:"backend"`
	LockTimeout Duration `toml:"lock_timeout"`
}

// SourceConfig configures one remote catalog.
type SourceConfig struct {
	// Kind selects the catalog implementation: "cpython", "pypy" or "manifest".
	Kind string `toml:"kind"`
	// Name identifies the source in warnings; defaults to Kind.
	Name string `toml:"name"`
	URL  string `toml:"url"`
	// Platform overrides host platform detection (kind specific).
	Platform string `toml:"platform"`
}

// Duration is a time.Duration that decodes from strings like "30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Default returns the configuration used when no config file exists.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults(toml.MetaData{})
	return cfg
}

// Load reads path, falling back to defaults when the file does not exist.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg.applyDefaults(toml.MetaData{})
		return cfg, nil
	}
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	cfg.applyDefaults(md)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// applyDefaults fills unset values. md tells keys the file left out apart
// from keys it set to their zero value.
func (c *Config) applyDefaults(md toml.MetaData) {
	if c.Fetch.Workers <= 0 {
		c.Fetch.Workers = DefaultWorkers
	}
	if !md.IsDefined("fetch", "retries") {
		c.Fetch.Retries = DefaultRetries
	}
	if strings.TrimSpace(c.Registry.Backend) == "" {
		c.Registry.Backend = BackendTOML
	}
	if c.Registry.LockTimeout.Duration <= 0 {
		c.Registry.LockTimeout.Duration = DefaultLockTimeout
	}
	if c.Sources == nil {
		c.Sources = []SourceConfig{{Kind: "cpython"}, {Kind: "pypy"}}
	}
	for i := range c.Sources {
		if strings.TrimSpace(c.Sources[i].Name) == "" {
			c.Sources[i].Name = c.Sources[i].Kind
		}
	}
}

// Validate checks values that have no sensible default.
func (c *Config) Validate() error {
	if c.Fetch.Retries < 0 {
		return fmt.Errorf("fetch.retries must not be negative, got %d", c.Fetch.Retries)
	}
	switch c.Registry.Backend {
	case BackendTOML, BackendSQLite:
	default:
		return fmt.Errorf("unknown registry backend %q (expected %q or %q)", c.Registry.Backend, BackendTOML, BackendSQLite)
	}
	seen := map[string]bool{}
	for _, src := range c.Sources {
		if strings.TrimSpace(src.Kind) == "" {
			return fmt.Errorf("source %q has no kind", src.Name)
		}
		if seen[src.Name] {
			return fmt.Errorf("duplicate source name %q", src.Name)
		}
		seen[src.Name] = true
	}
	return nil
}
