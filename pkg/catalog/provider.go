package catalog

import (
	"context"
	"time"

	"pytc/pkg/toolchain"
)

// Kind separates network catalogs from locally installed toolchains.
type Kind int

const (
	// Remote providers list downloadable builds and may need the network.
	Remote Kind = iota
	// Local providers list toolchains that are already installed.
	Local
)

// Provider enumerates toolchains known to one source.
type Provider interface {
	ID() string
	Name() string
	Kind() Kind
	Enumerate(ctx context.Context) ([]Entry, error)
}

// Entry is one toolchain known to a source.
type Entry struct {
	ID toolchain.ID
	// DownloadURL is empty for installed-only entries.
	DownloadURL string
	// Checksum is the hex SHA-256 of the archive, when the source publishes one.
	Checksum string
	// Source is the ID of the provider that produced the entry.
	Source string

	// Set by local providers only.
	InstallPath string
	Executable  string
	InstalledAt time.Time
}

// Downloadable reports whether the entry can be fetched.
func (e Entry) Downloadable() bool {
	return e.DownloadURL != ""
}
