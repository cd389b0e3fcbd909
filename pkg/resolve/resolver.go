// Package resolve turns a partial toolchain request into one concrete toolchain.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"pytc/pkg/catalog"
	"pytc/pkg/logging"
	"pytc/pkg/toolchain"
)

var (
	ErrNoMatch                 = errors.New("no matching toolchain")
	ErrAmbiguousImplementation = errors.New("ambiguous implementation")
)

// Error describes a request that could not be resolved.
type Error struct {
	Request string
	Err     error
	// Candidates holds the conflicting ids for ErrAmbiguousImplementation.
	Candidates []toolchain.ID
}

func (e *Error) Error() string {
	if errors.Is(e.Err, ErrAmbiguousImplementation) {
		names := make([]string, len(e.Candidates))
		for i, c := range e.Candidates {
			names[i] = c.String()
		}
		return fmt.Sprintf("toolchain request %q is ambiguous: matches %s; name the implementation, e.g. %q",
			e.Request, strings.Join(names, ", "), names[0])
	}
	return fmt.Sprintf("toolchain request %q: %v", e.Request, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Resolution is the outcome of a successful resolve.
type Resolution struct {
	ID    toolchain.ID
	Entry catalog.Entry
	// NeedsFetch is set when the toolchain is only downloadable.
	NeedsFetch bool
	// Warnings lists catalog sources that could not be consulted.
	Warnings []catalog.Warning
}

// Lister is implemented by *catalog.Index.
type Lister interface {
	List(ctx context.Context, includeDownloadable bool) ([]catalog.Listing, []catalog.Warning, error)
}

type Resolver struct {
	index Lister
}

func New(index Lister) *Resolver {
	return &Resolver{index: index}
}

// Resolve selects the best toolchain for req. Installed toolchains are
// consulted first without touching the network; remote catalogs are only
// listed when nothing installed matches and includeDownloadable is set.
func (r *Resolver) Resolve(ctx context.Context, req toolchain.Request, includeDownloadable bool) (Resolution, error) {
	logger := logging.GetLogger(ctx)

	installed, _, err := r.index.List(ctx, false)
	if err != nil {
		return Resolution{}, err
	}
	res, err := Select(req, installed)
	if err == nil || errors.Is(err, ErrAmbiguousImplementation) || !includeDownloadable {
		if err == nil {
			logger.Debug("resolved installed toolchain", "request", req.String(), "id", res.ID.String())
		}
		return res, err
	}

	all, warnings, err := r.index.List(ctx, true)
	if err != nil {
		return Resolution{}, err
	}
	res, err = Select(req, all)
	res.Warnings = warnings
	if err != nil {
		return res, err
	}
	logger.Debug("resolved toolchain", "request", req.String(), "id", res.ID.String(), "needs_fetch", res.NeedsFetch)
	return res, nil
}

// ResolveInstalled resolves req against installed toolchains only.
func (r *Resolver) ResolveInstalled(ctx context.Context, req toolchain.Request) (Resolution, error) {
	return r.Resolve(ctx, req, false)
}

// Select applies the resolution rules to an already merged listing:
// installed beats downloadable, then highest version, then most recently
// installed, then the lexicographically largest variant.
//
// When the request does not name an implementation and the winning version
// exists for several implementations in the winning tier, it fails with
// ErrAmbiguousImplementation.
func Select(req toolchain.Request, listings []catalog.Listing) (Resolution, error) {
	var installed, downloadable []catalog.Listing
	for _, l := range listings {
		if !req.Matches(l.ID) {
			continue
		}
		if l.Status == catalog.StatusInstalled {
			installed = append(installed, l)
		} else {
			downloadable = append(downloadable, l)
		}
	}

	tier := installed
	if len(tier) == 0 {
		tier = downloadable
	}
	if len(tier) == 0 {
		return Resolution{}, &Error{Request: req.String(), Err: ErrNoMatch}
	}

	sort.SliceStable(tier, func(i, j int) bool {
		a, b := tier[i], tier[j]
		if c := a.ID.Version.Compare(b.ID.Version); c != 0 {
			return c > 0
		}
		if !a.Entry.InstalledAt.Equal(b.Entry.InstalledAt) {
			return a.Entry.InstalledAt.After(b.Entry.InstalledAt)
		}
		if a.ID.Variant != b.ID.Variant {
			return a.ID.Variant > b.ID.Variant
		}
		return a.ID.Implementation < b.ID.Implementation
	})
	best := tier[0]

	if !req.ImplementationExplicit() {
		var conflicting []toolchain.ID
		seen := map[toolchain.Implementation]bool{}
		for _, l := range tier {
			if l.ID.Version != best.ID.Version || seen[l.ID.Implementation] {
				continue
			}
			seen[l.ID.Implementation] = true
			conflicting = append(conflicting, l.ID)
		}
		if len(conflicting) > 1 {
			sort.Slice(conflicting, func(i, j int) bool { return toolchain.Compare(conflicting[i], conflicting[j]) < 0 })
			return Resolution{}, &Error{Request: req.String(), Err: ErrAmbiguousImplementation, Candidates: conflicting}
		}
	}

	return Resolution{
		ID:         best.ID,
		Entry:      best.Entry,
		NeedsFetch: best.Status != catalog.StatusInstalled,
	}, nil
}
