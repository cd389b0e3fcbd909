// Package manager ties the catalog, resolver, fetcher, registry and pins
// together behind the operations the CLI exposes.
package manager

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"pytc/pkg/catalog"
	"pytc/pkg/catalog/local"
	"pytc/pkg/config"
	"pytc/pkg/fetch"
	"pytc/pkg/httpclient"
	"pytc/pkg/interpreter"
	"pytc/pkg/logging"
	"pytc/pkg/paths"
	"pytc/pkg/pin"
	"pytc/pkg/registry"
	"pytc/pkg/resolve"
	"pytc/pkg/semver"
	"pytc/pkg/toolchain"
)

// ErrNoPin is returned when neither a project pin nor a configured default exists.
var ErrNoPin = errors.New("no pinned toolchain")

const stagingMaxAge = 24 * time.Hour

type Options struct {
	Layout paths.Layout
	// Config defaults to config.Default().
	Config     *config.Config
	HTTPClient *http.Client
	// Progress receives download progress bars; nil disables them.
	Progress io.Writer
	// Providers replaces the remote catalogs built from Config.Sources.
	Providers []catalog.Provider
	// Fetcher replaces the fetcher built from Config.Fetch.
	Fetcher *fetch.Fetcher
}

type Manager struct {
	layout   paths.Layout
	cfg      *config.Config
	registry *registry.Registry
	index    *catalog.Index
	resolver *resolve.Resolver
	fetcher  *fetch.Fetcher
}

// New opens the registry and builds the catalog. The caller must Close the manager.
func New(ctx context.Context, opts Options) (*Manager, error) {
	logger := logging.GetLogger(ctx)
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	layout := opts.Layout
	if layout.Root == "" {
		var err error
		layout, err = paths.DefaultLayout()
		if err != nil {
			return nil, err
		}
	}
	client := opts.HTTPClient
	if client == nil {
		client = httpclient.Default()
	}

	registryPath := layout.RegistryFile()
	if cfg.Registry.Backend == config.BackendSQLite {
		registryPath = layout.RegistryDB()
	}
	reg, err := registry.Open(ctx, registry.Options{
		Backend:     cfg.Registry.Backend,
		Path:        registryPath,
		LockPath:    layout.LockFile(),
		LockTimeout: cfg.Registry.LockTimeout.Duration,
		StoreDir:    layout.StoreDir(),
	})
	if err != nil {
		return nil, err
	}

	remotes := opts.Providers
	if remotes == nil {
		remotes, err = catalog.NewFromConfig(cfg.Sources, catalog.Deps{HTTPClient: client})
		if err != nil {
			_ = reg.Close()
			return nil, err
		}
	}
	index := catalog.NewIndex(append([]catalog.Provider{local.New(reg)}, remotes...)...)
	index.SetConcurrency(cfg.Fetch.Workers)

	fetcher := opts.Fetcher
	if fetcher == nil {
		fetcher = fetch.New(fetch.Options{
			StoreDir:   layout.StoreDir(),
			HTTPClient: client,
			Retries:    cfg.Fetch.Retries,
			Mirrors:    cfg.Fetch.Mirrors,
			Progress:   opts.Progress,
		})
	}
	if n, err := fetcher.Prune(ctx, stagingMaxAge); err != nil {
		logger.Debug("failed to prune staging dirs", "err", err)
	} else if n > 0 {
		logger.Info("removed leftovers of interrupted fetches", "count", n)
	}

	return &Manager{
		layout:   layout,
		cfg:      cfg,
		registry: reg,
		index:    index,
		resolver: resolve.New(index),
		fetcher:  fetcher,
	}, nil
}

func (m *Manager) Close() error {
	return m.registry.Close()
}

func (m *Manager) Config() *config.Config { return m.cfg }
func (m *Manager) Layout() paths.Layout   { return m.layout }

// List returns installed toolchains and, optionally, downloadable ones.
// filter is a semver constraint such as ">=3.10, <3.13"; empty keeps everything.
func (m *Manager) List(ctx context.Context, includeDownloadable bool, filter string) ([]catalog.Listing, []catalog.Warning, error) {
	var constraint *semver.Constraint
	if filter != "" {
		var err error
		constraint, err = semver.NewConstraint(filter)
		if err != nil {
			return nil, nil, err
		}
	}
	listings, warnings, err := m.index.List(ctx, includeDownloadable)
	if err != nil {
		return nil, nil, err
	}
	return catalog.Filter(listings, constraint), warnings, nil
}

// Find resolves request without fetching anything.
func (m *Manager) Find(ctx context.Context, request string, includeDownloadable bool) (resolve.Resolution, error) {
	req, err := toolchain.ParseRequest(request)
	if err != nil {
		return resolve.Resolution{}, err
	}
	return m.resolver.Resolve(ctx, req, includeDownloadable)
}

// FetchResult reports what Fetch did.
type FetchResult struct {
	Request string
	Entry   toolchain.Entry
	// Fetched is false when the toolchain was already installed.
	Fetched  bool
	Warnings []catalog.Warning
}

// Fetch resolves request and downloads the toolchain unless it is already
// installed. An installed match is returned without any network access.
func (m *Manager) Fetch(ctx context.Context, request string) (FetchResult, error) {
	logger := logging.GetLogger(ctx)
	req, err := toolchain.ParseRequest(request)
	if err != nil {
		return FetchResult{}, err
	}
	res, err := m.resolver.Resolve(ctx, req, true)
	if err != nil {
		return FetchResult{Request: request, Warnings: res.Warnings}, err
	}

	if !res.NeedsFetch {
		entry, ok := m.registry.Get(ctx, res.ID)
		if !ok {
			return FetchResult{}, &registry.Error{Op: "get", ID: res.ID.String(), Err: registry.ErrNotFound}
		}
		logger.Debug("toolchain already installed", "id", res.ID.String())
		return FetchResult{Request: request, Entry: entry, Warnings: res.Warnings}, nil
	}

	result, err := m.fetcher.Fetch(ctx, res.Entry)
	if err != nil {
		return FetchResult{Request: request, Warnings: res.Warnings}, err
	}

	entry := toolchain.Entry{
		ID:          res.ID,
		InstallPath: result.Dir,
		Executable:  result.Executable,
		Origin:      toolchain.Fetched,
		InstalledAt: time.Now().UTC(),
	}
	if err := m.registry.Add(ctx, entry); err != nil {
		if discardErr := m.fetcher.Discard(result.Dir); discardErr != nil {
			logger.Warn("failed to discard fetched toolchain", "dir", result.Dir, "err", discardErr)
		}
		if errors.Is(err, registry.ErrAlreadyExists) {
			// Another process installed the same id while we were downloading.
			if existing, ok := m.registry.Get(ctx, res.ID); ok {
				return FetchResult{Request: request, Entry: existing, Warnings: res.Warnings}, nil
			}
		}
		return FetchResult{Request: request, Warnings: res.Warnings}, err
	}
	return FetchResult{Request: request, Entry: entry, Fetched: true, Warnings: res.Warnings}, nil
}

// FetchMany fetches several requests concurrently, bounded by fetch.workers.
// Results are returned in request order; failed requests are joined into the error.
func (m *Manager) FetchMany(ctx context.Context, requests []string) ([]FetchResult, error) {
	results := make([]FetchResult, len(requests))
	errs := make([]error, len(requests))

	var g errgroup.Group
	g.SetLimit(m.cfg.Fetch.Workers)
	for i, request := range requests {
		g.Go(func() error {
			results[i], errs[i] = m.Fetch(ctx, request)
			if errs[i] != nil {
				errs[i] = fmt.Errorf("%s: %w", request, errs[i])
			}
			return nil
		})
	}
	_ = g.Wait()
	return results, errors.Join(errs...)
}

type RegisterOptions struct {
	// Name overrides the implementation the interpreter reports.
	Name    string
	Variant string
}

// Register validates the interpreter at path (a binary or an installation
// directory) and records it as an externally managed toolchain.
func (m *Manager) Register(ctx context.Context, path string, opts RegisterOptions) (toolchain.Entry, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return toolchain.Entry{}, err
	}

	var override toolchain.Implementation
	if opts.Name != "" {
		override, err = toolchain.ParseImplementation(opts.Name)
		if err != nil {
			return toolchain.Entry{}, err
		}
	}
	if err := toolchain.ValidateVariant(opts.Variant); err != nil {
		return toolchain.Entry{}, err
	}

	exe, err := interpreter.Locate(abs, override)
	if err != nil {
		return toolchain.Entry{}, err
	}
	info, err := interpreter.Probe(ctx, exe)
	if err != nil {
		return toolchain.Entry{}, err
	}

	impl := info.Implementation
	if override != "" {
		impl = override
	}
	entry := toolchain.Entry{
		ID:          toolchain.ID{Implementation: impl, Version: info.Version, Variant: opts.Variant},
		InstallPath: abs,
		Executable:  exe,
		Origin:      toolchain.Registered,
		InstalledAt: time.Now().UTC(),
	}
	if err := m.registry.Add(ctx, entry); err != nil {
		return toolchain.Entry{}, err
	}
	logging.GetLogger(ctx).Info("toolchain registered", "id", entry.ID.String(), "path", abs)
	return entry, nil
}

// Remove deletes the toolchain with the exact id. Pins are not consulted;
// a pin naming the removed toolchain fails the next time it is resolved.
func (m *Manager) Remove(ctx context.Context, id string) (toolchain.Entry, error) {
	tid, err := toolchain.Parse(id)
	if err != nil {
		return toolchain.Entry{}, err
	}
	return m.registry.Remove(ctx, tid)
}

// Pin validates request (it must parse and resolve, installed or
// downloadable) and writes it verbatim as the pin of projectPath.
func (m *Manager) Pin(ctx context.Context, projectPath, request string) (pin.Record, resolve.Resolution, error) {
	req, err := toolchain.ParseRequest(request)
	if err != nil {
		return pin.Record{}, resolve.Resolution{}, err
	}
	res, err := m.resolver.Resolve(ctx, req, true)
	if err != nil {
		return pin.Record{}, res, err
	}
	if err := pin.Write(projectPath, req.Raw); err != nil {
		return pin.Record{}, res, err
	}
	return pin.Record{ProjectPath: projectPath, Request: req.Raw}, res, nil
}

// PinRequest returns the request governing start: the nearest pin, or the
// configured default toolchain.
func (m *Manager) PinRequest(start string) (*pin.Record, error) {
	rec, err := pin.Find(start)
	if err != nil {
		return nil, err
	}
	if rec != nil {
		return rec, nil
	}
	if m.cfg.Toolchains.Default != "" {
		return &pin.Record{Request: m.cfg.Toolchains.Default}, nil
	}
	return nil, ErrNoPin
}

// ResolvePin resolves the pin governing start against installed toolchains.
func (m *Manager) ResolvePin(ctx context.Context, start string) (*pin.Record, resolve.Resolution, error) {
	rec, err := m.PinRequest(start)
	if err != nil {
		return nil, resolve.Resolution{}, err
	}
	req, err := toolchain.ParseRequest(rec.Request)
	if err != nil {
		return rec, resolve.Resolution{}, err
	}
	res, err := m.resolver.ResolveInstalled(ctx, req)
	return rec, res, err
}

// Which returns the installed toolchain the pin governing start resolves to,
// fetching it first when fetchMissing is set.
func (m *Manager) Which(ctx context.Context, start string, fetchMissing bool) (toolchain.Entry, error) {
	if fetchMissing {
		rec, err := m.PinRequest(start)
		if err != nil {
			return toolchain.Entry{}, err
		}
		res, err := m.Fetch(ctx, rec.Request)
		return res.Entry, err
	}
	_, res, err := m.ResolvePin(ctx, start)
	if err != nil {
		return toolchain.Entry{}, err
	}
	entry, ok := m.registry.Get(ctx, res.ID)
	if !ok {
		return toolchain.Entry{}, &registry.Error{Op: "get", ID: res.ID.String(), Err: registry.ErrNotFound}
	}
	return entry, nil
}
