package manager

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"pytc/pkg/catalog"
	"pytc/pkg/config"
	"pytc/pkg/paths"
	"pytc/pkg/pin"
	"pytc/pkg/registry"
	"pytc/pkg/resolve"
	"pytc/pkg/toolchain"
)

const fakePython = "#!/bin/sh\necho cpython 3.12.1\n"

type fakeSource struct {
	entries []catalog.Entry
	calls   atomic.Int32
	before  func(ctx context.Context)
}

func (f *fakeSource) ID() string         { return "fake" }
func (f *fakeSource) Name() string       { return "fake" }
func (f *fakeSource) Kind() catalog.Kind { return catalog.Remote }
func (f *fakeSource) Enumerate(ctx context.Context) ([]catalog.Entry, error) {
	f.calls.Add(1)
	if f.before != nil {
		f.before(ctx)
	}
	return f.entries, nil
}

// writeArchive writes a python-build-standalone shaped tar.gz and returns
// its file:// url and sha256.
func writeArchive(t *testing.T, dir string) (string, string) {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for _, h := range []*tar.Header{
		{Name: "python/", Typeflag: tar.TypeDir, Mode: 0755},
		{Name: "python/bin/", Typeflag: tar.TypeDir, Mode: 0755},
		{Name: "python/bin/python3", Typeflag: tar.TypeReg, Mode: 0755, Size: int64(len(fakePython))},
	} {
		if err := tw.WriteHeader(h); err != nil {
			t.Fatal(err)
		}
		if h.Typeflag == tar.TypeReg {
			if _, err := tw.Write([]byte(fakePython)); err != nil {
				t.Fatal(err)
			}
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "cpython-3.12.1-install_only.tar.gz")
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}
	sum := sha256.Sum256(buf.Bytes())
	return "file://" + path, hex.EncodeToString(sum[:])
}

func newSource(t *testing.T) *fakeSource {
	t.Helper()
	url, sum := writeArchive(t, t.TempDir())
	return &fakeSource{entries: []catalog.Entry{
		{ID: toolchain.MustParse("cpython@3.12.1"), DownloadURL: url, Checksum: sum, Source: "fake"},
	}}
}

func newManager(t *testing.T, home string, sources ...catalog.Provider) *Manager {
	t.Helper()
	m, err := New(context.Background(), Options{
		Layout:    paths.NewLayout(home),
		Config:    config.Default(),
		Providers: append([]catalog.Provider{}, sources...),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m
}

func storeDirs(t *testing.T, home string) []string {
	t.Helper()
	entries, err := os.ReadDir(paths.NewLayout(home).StoreDir())
	if err != nil && !os.IsNotExist(err) {
		t.Fatal(err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestFetchIsIdempotent(t *testing.T) {
	t.Parallel()
	home := t.TempDir()
	src := newSource(t)
	m := newManager(t, home, src)
	ctx := context.Background()

	first, err := m.Fetch(ctx, "3.12")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !first.Fetched || first.Entry.ID.String() != "cpython@3.12.1" || first.Entry.Origin != toolchain.Fetched {
		t.Fatalf("first fetch = %+v", first)
	}
	calls := src.calls.Load()

	second, err := m.Fetch(ctx, "cpython@3.12.1")
	if err != nil {
		t.Fatalf("second Fetch: %v", err)
	}
	if second.Fetched || second.Entry.InstallPath != first.Entry.InstallPath {
		t.Errorf("second fetch = %+v", second)
	}
	if src.calls.Load() != calls {
		t.Error("installed toolchain fetch consulted the remote catalog")
	}
	if dirs := storeDirs(t, home); len(dirs) != 1 {
		t.Errorf("store = %v, want one toolchain", dirs)
	}
}

func TestRemoveAfterPinBreaksResolution(t *testing.T) {
	t.Parallel()
	home := t.TempDir()
	project := t.TempDir()
	m := newManager(t, home, newSource(t))
	ctx := context.Background()

	fetched, err := m.Fetch(ctx, "cpython@3.12.1")
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := m.Pin(ctx, project, "3.12"); err != nil {
		t.Fatalf("Pin: %v", err)
	}
	rec, res, err := m.ResolvePin(ctx, project)
	if err != nil || res.ID.String() != "cpython@3.12.1" || rec.Request != "3.12" {
		t.Fatalf("ResolvePin = %+v, %+v, %v", rec, res, err)
	}

	if _, err := m.Remove(ctx, "cpython@3.12.1"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := os.Stat(fetched.Entry.InstallPath); !os.IsNotExist(err) {
		t.Errorf("store directory still present: %v", err)
	}

	got, err := pin.Read(project)
	if err != nil || got == nil || got.Request != "3.12" {
		t.Errorf("pin changed by remove: %+v, %v", got, err)
	}
	if _, _, err := m.ResolvePin(ctx, project); !errors.Is(err, resolve.ErrNoMatch) {
		t.Errorf("ResolvePin after remove err = %v, want ErrNoMatch", err)
	}
	if _, err := m.Remove(ctx, "cpython@3.12.1"); !errors.Is(err, registry.ErrNotFound) {
		t.Errorf("second Remove err = %v, want ErrNotFound", err)
	}
}

func TestPinBeforeFetch(t *testing.T) {
	t.Parallel()
	project := t.TempDir()
	m := newManager(t, t.TempDir(), newSource(t))
	ctx := context.Background()

	if _, res, err := m.Pin(ctx, project, "cpython@3.12.1"); err != nil || !res.NeedsFetch {
		t.Fatalf("Pin = %+v, %v; want a downloadable resolution", res, err)
	}
	if _, _, err := m.ResolvePin(ctx, project); !errors.Is(err, resolve.ErrNoMatch) {
		t.Errorf("ResolvePin before fetch err = %v, want ErrNoMatch", err)
	}
	installed, _, err := m.List(ctx, false, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(installed) != 0 {
		t.Errorf("installed = %+v, want none", installed)
	}

	if _, err := m.Fetch(ctx, "cpython@3.12.1"); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	_, res, err := m.ResolvePin(ctx, project)
	if err != nil || res.ID.String() != "cpython@3.12.1" || res.NeedsFetch {
		t.Errorf("ResolvePin after fetch = %+v, %v", res, err)
	}
}

func TestPinRejectsUnresolvable(t *testing.T) {
	t.Parallel()
	project := t.TempDir()
	m := newManager(t, t.TempDir(), newSource(t))

	if _, _, err := m.Pin(context.Background(), project, "pypy@3.9"); !errors.Is(err, resolve.ErrNoMatch) {
		t.Fatalf("err = %v, want ErrNoMatch", err)
	}
	if rec, _ := pin.Read(project); rec != nil {
		t.Errorf("pin written for unresolvable request: %+v", rec)
	}
	if _, _, err := m.Pin(context.Background(), project, "jython@3"); !errors.Is(err, toolchain.ErrUnknownImplementation) {
		t.Errorf("err = %v, want ErrUnknownImplementation", err)
	}
}

func TestResolvePinFallsBackToDefault(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	m, err := New(context.Background(), Options{Layout: paths.NewLayout(t.TempDir()), Config: cfg, Providers: []catalog.Provider{}})
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()

	if _, err := m.PinRequest(t.TempDir()); !errors.Is(err, ErrNoPin) {
		t.Fatalf("err = %v, want ErrNoPin", err)
	}
	cfg.Toolchains.Default = "3.11"
	rec, err := m.PinRequest(t.TempDir())
	if err != nil || rec.Request != "3.11" || rec.ProjectPath != "" {
		t.Errorf("PinRequest = %+v, %v", rec, err)
	}
}

func TestFetchLostRaceReturnsExisting(t *testing.T) {
	t.Parallel()
	home := t.TempDir()
	ctx := context.Background()

	winner := newManager(t, home, newSource(t))
	var winnerEntry toolchain.Entry
	racer := newSource(t)
	racer.before = func(ctx context.Context) {
		res, err := winner.Fetch(ctx, "cpython@3.12.1")
		if err != nil {
			t.Errorf("winner Fetch: %v", err)
		}
		winnerEntry = res.Entry
	}
	loser := newManager(t, home, racer)

	res, err := loser.Fetch(ctx, "cpython@3.12.1")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if res.Fetched || res.Entry.InstallPath != winnerEntry.InstallPath {
		t.Errorf("result = %+v, want the winner's entry %+v", res, winnerEntry)
	}
	if dirs := storeDirs(t, home); len(dirs) != 1 {
		t.Errorf("store = %v, want only the winner's directory", dirs)
	}
}

func TestFetchManyJoinsErrors(t *testing.T) {
	t.Parallel()
	m := newManager(t, t.TempDir(), newSource(t))

	results, err := m.FetchMany(context.Background(), []string{"3.12", "pypy@3.10"})
	if err == nil || !strings.Contains(err.Error(), "pypy@3.10") {
		t.Fatalf("err = %v", err)
	}
	if !errors.Is(err, resolve.ErrNoMatch) {
		t.Errorf("err = %v, want it to wrap ErrNoMatch", err)
	}
	if len(results) != 2 || results[0].Entry.ID.String() != "cpython@3.12.1" {
		t.Errorf("results = %+v", results)
	}
}

// Registration runs the interpreter, so these tests write and exec scripts
// and must not run in parallel.

func TestRegisterAndRemoveKeepsFiles(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, t.TempDir())

	install := filepath.Join(t.TempDir(), "py")
	exe := filepath.Join(install, "bin", "python3")
	if err := os.MkdirAll(filepath.Dir(exe), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(exe, []byte(fakePython), 0755); err != nil {
		t.Fatal(err)
	}

	entry, err := m.Register(ctx, install, RegisterOptions{Variant: "debug"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if entry.ID.String() != "cpython@3.12.1+debug" || entry.Origin != toolchain.Registered || entry.Executable != exe {
		t.Errorf("entry = %+v", entry)
	}
	if _, err := m.Register(ctx, exe, RegisterOptions{Variant: "debug"}); !errors.Is(err, registry.ErrAlreadyExists) {
		t.Errorf("duplicate Register err = %v, want ErrAlreadyExists", err)
	}

	listings, _, err := m.List(ctx, false, ">=3.12")
	if err != nil || len(listings) != 1 || listings[0].Status != catalog.StatusInstalled {
		t.Fatalf("List = %+v, %v", listings, err)
	}

	if _, err := m.Remove(ctx, entry.ID.String()); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(exe); err != nil {
		t.Errorf("registered interpreter deleted: %v", err)
	}
}

func TestRegisterRejectsInvalid(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, t.TempDir())

	dir := t.TempDir()
	broken := filepath.Join(dir, "python3")
	if err := os.WriteFile(broken, []byte("#!/bin/sh\nexit 1\n"), 0755); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Register(ctx, broken, RegisterOptions{}); err == nil {
		t.Error("registered an interpreter whose probe fails")
	}
	if _, err := m.Register(ctx, t.TempDir(), RegisterOptions{}); err == nil {
		t.Error("registered an empty directory")
	}
	if _, err := m.Register(ctx, broken, RegisterOptions{Name: "jython"}); !errors.Is(err, toolchain.ErrUnknownImplementation) {
		t.Errorf("err = %v, want ErrUnknownImplementation", err)
	}
	if listings, _, _ := m.List(ctx, false, ""); len(listings) != 0 {
		t.Errorf("invalid interpreters registered: %+v", listings)
	}
}
