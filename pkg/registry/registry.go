// Package registry persists the installed toolchains.
//
// The Registry is the only owner of toolchain entries. Mutations are
// serialized in-process by a mutex and across processes by an advisory file
// lock; the store is reloaded under the lock before every mutation so a
// concurrent process's changes are never overwritten.
package registry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"pytc/pkg/interpreter"
	"pytc/pkg/logging"
	"pytc/pkg/toolchain"
)

const DefaultLockTimeout = 30 * time.Second

type Options struct {
	// Backend is BackendTOML (default) or BackendSQLite.
	Backend string
	// Path is the registry file (toml) or database (sqlite).
	Path     string
	LockPath string
	// LockTimeout bounds how long a mutation waits for another process.
	LockTimeout time.Duration
	// StoreDir is the managed store root. Directories of fetched toolchains
	// are only deleted on removal when they live directly under it.
	StoreDir string
}

type Registry struct {
	mu       sync.Mutex
	store    Store
	lock     *fileLock
	storeDir string
	entries  map[toolchain.ID]toolchain.Entry
	closed   bool
}

// Open loads the registry. The caller must Close it.
func Open(ctx context.Context, opts Options) (*Registry, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("registry path is required")
	}
	lockPath := opts.LockPath
	if lockPath == "" {
		lockPath = opts.Path + ".lock"
	}
	timeout := opts.LockTimeout
	if timeout <= 0 {
		timeout = DefaultLockTimeout
	}

	store, err := OpenStore(ctx, opts.Backend, opts.Path)
	if err != nil {
		return nil, ioError("open", "", err)
	}
	r := &Registry{
		store:    store,
		lock:     newFileLock(lockPath, timeout),
		storeDir: opts.StoreDir,
	}
	if err := r.reload(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	logging.GetLogger(ctx).Debug("registry loaded", "backend", opts.Backend, "path", opts.Path, "entries", len(r.entries))
	return r, nil
}

func (r *Registry) reload(ctx context.Context) error {
	loaded, err := r.store.Load(ctx)
	if err != nil {
		return ioError("load", "", err)
	}
	entries := make(map[toolchain.ID]toolchain.Entry, len(loaded))
	for _, e := range loaded {
		entries[e.ID] = e
	}
	r.entries = entries
	return nil
}

// List returns all entries ordered by id.
func (r *Registry) List(ctx context.Context) ([]toolchain.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]toolchain.Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return toolchain.Compare(out[i].ID, out[j].ID) < 0 })
	return out, nil
}

// Get returns the entry for id.
func (r *Registry) Get(ctx context.Context, id toolchain.ID) (toolchain.Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	return e, ok
}

// Add records entry. The entry's executable must exist and be executable.
// Adding an id that is already present fails with ErrAlreadyExists.
func (r *Registry) Add(ctx context.Context, entry toolchain.Entry) error {
	id := entry.ID.String()
	if err := validate(entry); err != nil {
		return err
	}
	if entry.InstalledAt.IsZero() {
		entry.InstalledAt = time.Now().UTC()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	unlock, err := r.lock.acquire(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	if err := r.reload(ctx); err != nil {
		return err
	}
	if existing, ok := r.entries[entry.ID]; ok {
		return &Error{Op: "add", ID: id, Err: ErrAlreadyExists, Cause: fmt.Errorf("installed at %s", existing.InstallPath)}
	}
	if err := r.store.Put(ctx, entry); err != nil {
		return ioError("add", id, err)
	}
	r.entries[entry.ID] = entry
	logging.GetLogger(ctx).Debug("registry entry added", "id", id, "origin", entry.Origin, "path", entry.InstallPath)
	return nil
}

// Remove deletes the entry for id and returns it. A fetched toolchain's store
// directory is deleted after the record; a registered toolchain's files are
// never touched.
func (r *Registry) Remove(ctx context.Context, id toolchain.ID) (toolchain.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	unlock, err := r.lock.acquire(ctx)
	if err != nil {
		return toolchain.Entry{}, err
	}
	defer unlock()

	if err := r.reload(ctx); err != nil {
		return toolchain.Entry{}, err
	}
	entry, ok := r.entries[id]
	if !ok {
		return toolchain.Entry{}, &Error{Op: "remove", ID: id.String(), Err: ErrNotFound}
	}
	if err := r.store.Delete(ctx, id); err != nil {
		return toolchain.Entry{}, ioError("remove", id.String(), err)
	}
	delete(r.entries, id)

	logger := logging.GetLogger(ctx)
	if entry.Origin == toolchain.Fetched {
		if !r.ownsDir(entry.InstallPath) {
			logger.Warn("fetched toolchain outside the store, leaving files in place", "id", id.String(), "path", entry.InstallPath)
			return entry, nil
		}
		if err := os.RemoveAll(entry.InstallPath); err != nil {
			return entry, ioError("remove", id.String(), fmt.Errorf("record removed but deleting %s failed: %w", entry.InstallPath, err))
		}
		logger.Debug("store directory deleted", "id", id.String(), "path", entry.InstallPath)
	}
	return entry, nil
}

func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	return r.store.Close()
}

func (r *Registry) ownsDir(path string) bool {
	if r.storeDir == "" || path == "" {
		return false
	}
	rel, err := filepath.Rel(filepath.Clean(r.storeDir), filepath.Clean(path))
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return false
	}
	return !strings.Contains(rel, string(filepath.Separator))
}

func validate(entry toolchain.Entry) error {
	id := entry.ID.String()
	switch entry.Origin {
	case toolchain.Fetched, toolchain.Registered:
	default:
		return &Error{Op: "add", ID: id, Err: ErrIO, Cause: fmt.Errorf("unknown origin %q", entry.Origin)}
	}
	if entry.InstallPath == "" {
		return &interpreter.RegistrationError{Path: entry.InstallPath, Err: interpreter.ErrInvalidInterpreter, Reason: "empty install path"}
	}
	if !interpreter.IsExecutable(entry.Executable) {
		return &interpreter.RegistrationError{Path: entry.Executable, Err: interpreter.ErrInvalidInterpreter, Reason: "interpreter binary missing or not executable"}
	}
	return nil
}
