// Package local surfaces installed toolchains as a catalog source.
package local

import (
	"context"

	"pytc/pkg/catalog"
	"pytc/pkg/toolchain"
)

// Lister is the part of the registry the provider reads.
type Lister interface {
	List(ctx context.Context) ([]toolchain.Entry, error)
}

type Provider struct {
	registry Lister
}

func New(registry Lister) *Provider {
	return &Provider{registry: registry}
}

func (p *Provider) ID() string         { return "local" }
func (p *Provider) Name() string       { return "installed toolchains" }
func (p *Provider) Kind() catalog.Kind { return catalog.Local }

func (p *Provider) Enumerate(ctx context.Context) ([]catalog.Entry, error) {
	entries, err := p.registry.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]catalog.Entry, 0, len(entries))
	for _, e := range entries {
		out = append(out, catalog.Entry{
			ID:          e.ID,
			Source:      p.ID(),
			InstallPath: e.InstallPath,
			Executable:  e.Executable,
			InstalledAt: e.InstalledAt,
		})
	}
	return out, nil
}
