package catalog

import (
	"context"
	"errors"
	"testing"

	"pytc/pkg/semver"
	"pytc/pkg/toolchain"
)

type fakeProvider struct {
	id      string
	kind    Kind
	entries []Entry
	err     error
	calls   int
}

func (f *fakeProvider) ID() string   { return f.id }
func (f *fakeProvider) Name() string { return f.id }
func (f *fakeProvider) Kind() Kind   { return f.kind }
func (f *fakeProvider) Enumerate(ctx context.Context) ([]Entry, error) {
	f.calls++
	return f.entries, f.err
}

func remote(id string, ids ...string) *fakeProvider {
	p := &fakeProvider{id: id, kind: Remote}
	for _, s := range ids {
		p.entries = append(p.entries, Entry{ID: toolchain.MustParse(s), DownloadURL: "https://example.invalid/" + s, Source: id})
	}
	return p
}

func local(ids ...string) *fakeProvider {
	p := &fakeProvider{id: "local", kind: Local}
	for _, s := range ids {
		p.entries = append(p.entries, Entry{ID: toolchain.MustParse(s), InstallPath: "/opt/" + s, Source: "local"})
	}
	return p
}

func ids(listings []Listing) []string {
	out := make([]string, len(listings))
	for i, l := range listings {
		out[i] = l.ID.String()
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestListInstalledOnlySkipsRemotes(t *testing.T) {
	t.Parallel()

	r := remote("cpython", "cpython@3.12.1")
	ix := NewIndex(local("cpython@3.11.4"), r)

	listings, warnings, err := ix.List(context.Background(), false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("unexpected warnings: %v", warnings)
	}
	if r.calls != 0 {
		t.Errorf("remote provider queried %d times", r.calls)
	}
	if got := ids(listings); !equalStrings(got, []string{"cpython@3.11.4"}) {
		t.Errorf("listings = %v", got)
	}
	if listings[0].Status != StatusInstalled {
		t.Errorf("status = %s", listings[0].Status)
	}
}

func TestListMergesAndOrders(t *testing.T) {
	t.Parallel()

	ix := NewIndex(
		local("cpython@3.11.1", "pypy@3.9.18"),
		remote("cpython", "cpython@3.11.1", "cpython@3.11.9", "cpython@3.12.0", "cpython@3.12.0+freethreaded"),
		remote("pypy", "pypy@3.10.14", "pypy@3.9.18"),
	)

	listings, _, err := ix.List(context.Background(), true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{
		"cpython@3.12.0",
		"cpython@3.12.0+freethreaded",
		"cpython@3.11.9",
		"cpython@3.11.1",
		"pypy@3.10.14",
		"pypy@3.9.18",
	}
	if got := ids(listings); !equalStrings(got, want) {
		t.Fatalf("listings = %v, want %v", got, want)
	}

	status := map[string]Status{}
	for _, l := range listings {
		status[l.ID.String()] = l.Status
	}
	if status["cpython@3.11.1"] != StatusInstalled {
		t.Errorf("installed entry must not be reported as downloadable")
	}
	if status["cpython@3.11.9"] != StatusDownloadable {
		t.Errorf("cpython@3.11.9 status = %s", status["cpython@3.11.9"])
	}
}

func TestListFirstRemoteWins(t *testing.T) {
	t.Parallel()

	first := remote("mirror", "cpython@3.12.1")
	second := remote("cpython", "cpython@3.12.1")
	ix := NewIndex(first, second)

	listings, _, err := ix.List(context.Background(), true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(listings) != 1 || listings[0].Entry.Source != "mirror" {
		t.Fatalf("listings = %+v", listings)
	}
}

func TestListProviderFailureIsWarning(t *testing.T) {
	t.Parallel()

	broken := &fakeProvider{id: "pypy", kind: Remote, err: errors.New("connection refused")}
	ix := NewIndex(local(), remote("cpython", "cpython@3.12.1"), broken)

	listings, warnings, err := ix.List(context.Background(), true)
	if err != nil {
		t.Fatalf("provider failure must not be fatal: %v", err)
	}
	if len(listings) != 1 {
		t.Errorf("listings = %v", ids(listings))
	}
	if len(warnings) != 1 || warnings[0].Source != "pypy" {
		t.Fatalf("warnings = %v", warnings)
	}
}

func TestListLocalFailureIsFatal(t *testing.T) {
	t.Parallel()

	broken := &fakeProvider{id: "local", kind: Local, err: errors.New("registry locked")}
	if _, _, err := NewIndex(broken).List(context.Background(), false); err == nil {
		t.Fatal("expected error from local provider")
	}
}

func TestListSkipsNonDownloadableRemoteEntries(t *testing.T) {
	t.Parallel()

	p := &fakeProvider{id: "odd", kind: Remote, entries: []Entry{{ID: toolchain.MustParse("cpython@3.8.0")}}}
	listings, _, err := NewIndex(p).List(context.Background(), true)
	if err != nil {
		t.Fatal(err)
	}
	if len(listings) != 0 {
		t.Errorf("listings = %v", ids(listings))
	}
}

func TestFilter(t *testing.T) {
	t.Parallel()

	listings, _, err := NewIndex(remote("cpython", "cpython@3.9.0", "cpython@3.11.4", "cpython@3.13.0")).List(context.Background(), true)
	if err != nil {
		t.Fatal(err)
	}
	c, err := semver.NewConstraint(">=3.10, <3.13")
	if err != nil {
		t.Fatal(err)
	}
	if got := ids(Filter(listings, c)); !equalStrings(got, []string{"cpython@3.11.4"}) {
		t.Errorf("Filter = %v", got)
	}
	if got := Filter(listings, nil); len(got) != 3 {
		t.Errorf("nil constraint dropped entries: %v", ids(got))
	}
}
