package catalog

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"pytc/pkg/logging"
	"pytc/pkg/semver"
	"pytc/pkg/toolchain"
)

// Status tells whether a listed toolchain is installed.
type Status string

const (
	StatusInstalled    Status = "installed"
	StatusDownloadable Status = "downloadable"
)

// Listing is one row of the merged catalog.
type Listing struct {
	ID     toolchain.ID
	Status Status
	Entry  Entry
}

// Warning records a provider that could not be listed.
type Warning struct {
	Source string
	Err    error
}

func (w Warning) String() string {
	return fmt.Sprintf("source %s unavailable: %v", w.Source, w.Err)
}

const defaultConcurrency = 4

// Index merges several providers into one listing.
type Index struct {
	providers   []Provider
	concurrency int
}

// NewIndex creates an index over providers. Remote providers listed first
// win when two of them offer the same id.
func NewIndex(providers ...Provider) *Index {
	return &Index{providers: providers, concurrency: defaultConcurrency}
}

// SetConcurrency bounds how many remote providers are queried at once.
func (ix *Index) SetConcurrency(n int) {
	if n < 1 {
		n = 1
	}
	ix.concurrency = n
}

// Providers returns the providers backing the index.
func (ix *Index) Providers() []Provider {
	return append([]Provider(nil), ix.providers...)
}

// List returns installed toolchains and, when includeDownloadable is set,
// downloadable-only ones. Ordered by implementation ascending, then version
// descending, then variant ascending.
//
// A remote provider that fails is skipped and reported as a Warning. A local
// provider failure is returned as an error.
func (ix *Index) List(ctx context.Context, includeDownloadable bool) ([]Listing, []Warning, error) {
	var locals, remotes []Provider
	for _, p := range ix.providers {
		if p.Kind() == Local {
			locals = append(locals, p)
		} else {
			remotes = append(remotes, p)
		}
	}

	installed := map[toolchain.ID]bool{}
	var listings []Listing
	for _, p := range locals {
		entries, err := p.Enumerate(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("list installed toolchains from %s: %w", p.ID(), err)
		}
		for _, e := range entries {
			if installed[e.ID] {
				continue
			}
			installed[e.ID] = true
			listings = append(listings, Listing{ID: e.ID, Status: StatusInstalled, Entry: e})
		}
	}

	var warnings []Warning
	if includeDownloadable && len(remotes) > 0 {
		results := make([][]Entry, len(remotes))
		errs := make([]error, len(remotes))

		var g errgroup.Group
		g.SetLimit(ix.concurrency)
		for i, p := range remotes {
			g.Go(func() error {
				results[i], errs[i] = p.Enumerate(ctx)
				return nil
			})
		}
		_ = g.Wait()

		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		logger := logging.GetLogger(ctx)
		offered := map[toolchain.ID]bool{}
		for i, p := range remotes {
			if errs[i] != nil {
				logger.Warn("catalog source unavailable", "source", p.ID(), "err", errs[i])
				warnings = append(warnings, Warning{Source: p.ID(), Err: errs[i]})
				continue
			}
			logger.Debug("catalog source listed", "source", p.ID(), "entries", len(results[i]))
			for _, e := range results[i] {
				if !e.Downloadable() || installed[e.ID] || offered[e.ID] {
					continue
				}
				offered[e.ID] = true
				listings = append(listings, Listing{ID: e.ID, Status: StatusDownloadable, Entry: e})
			}
		}
	}

	SortListings(listings)
	return listings, warnings, nil
}

// SortListings orders listings by implementation, newest version first, then variant.
func SortListings(listings []Listing) {
	sort.SliceStable(listings, func(i, j int) bool {
		a, b := listings[i].ID, listings[j].ID
		if a.Implementation != b.Implementation {
			return a.Implementation < b.Implementation
		}
		if c := a.Version.Compare(b.Version); c != 0 {
			return c > 0
		}
		return strings.Compare(a.Variant, b.Variant) < 0
	})
}

// Filter keeps listings whose version satisfies c. A nil constraint keeps everything.
func Filter(listings []Listing, c *semver.Constraint) []Listing {
	if c == nil {
		return listings
	}
	var out []Listing
	for _, l := range listings {
		if c.Check(l.ID.Version) {
			out = append(out, l)
		}
	}
	return out
}
