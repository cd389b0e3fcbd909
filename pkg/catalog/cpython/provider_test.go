package cpython

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"pytc/pkg/toolchain"
)

const triple = "x86_64-unknown-linux-gnu"

func TestParseAssetName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		wantID  string
		wantOK  bool
		wantBld string
	}{
		{"cpython-3.12.1+20240107-x86_64-unknown-linux-gnu-install_only.tar.gz", "cpython@3.12.1", true, "20240107"},
		{"cpython-3.13.0+20241016-x86_64-unknown-linux-gnu-freethreaded-install_only.tar.gz", "cpython@3.13.0+freethreaded", true, "20241016"},
		{"cpython-3.12.1+20240107-aarch64-apple-darwin-install_only.tar.gz", "", false, ""},
		{"cpython-3.12.1+20240107-x86_64-unknown-linux-gnu-pgo+lto-full.tar.zst", "", false, ""},
		{"SHA256SUMS", "", false, ""},
		{"cpython-3.12+20240107-x86_64-unknown-linux-gnu-install_only.tar.gz", "", false, ""},
	}
	for _, tt := range tests {
		id, build, ok := ParseAssetName(tt.name, triple)
		if ok != tt.wantOK {
			t.Errorf("ParseAssetName(%q) ok = %v, want %v", tt.name, ok, tt.wantOK)
			continue
		}
		if !ok {
			continue
		}
		if id.String() != tt.wantID || build != tt.wantBld {
			t.Errorf("ParseAssetName(%q) = %s, %s", tt.name, id, build)
		}
	}
}

func TestHostTriple(t *testing.T) {
	t.Parallel()

	if got, ok := HostTriple("linux", "amd64"); !ok || got != triple {
		t.Errorf("HostTriple(linux, amd64) = %q, %v", got, ok)
	}
	if _, ok := HostTriple("plan9", "amd64"); ok {
		t.Error("expected no triple for plan9")
	}
}

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	var srv *httptest.Server
	mux.HandleFunc("/releases", func(w http.ResponseWriter, r *http.Request) {
		asset := func(name, digest string) map[string]string {
			return map[string]string{
				"name":                 name,
				"browser_download_url": srv.URL + "/download/" + name,
				"digest":               digest,
			}
		}
		releases := []map[string]any{
			{
				"tag_name": "20240107",
				"assets": []map[string]string{
					asset("cpython-3.12.1+20240107-x86_64-unknown-linux-gnu-install_only.tar.gz", ""),
					asset("cpython-3.11.7+20240107-x86_64-unknown-linux-gnu-install_only.tar.gz", ""),
					asset("cpython-3.12.1+20240107-aarch64-apple-darwin-install_only.tar.gz", ""),
					asset("SHA256SUMS", ""),
				},
			},
			{
				"tag_name": "20231002",
				"assets": []map[string]string{
					asset("cpython-3.11.7+20231002-x86_64-unknown-linux-gnu-install_only.tar.gz", "sha256:OLD"),
				},
			},
			{
				"tag_name": "20241016",
				"assets": []map[string]string{
					asset("cpython-3.13.0+20241016-x86_64-unknown-linux-gnu-install_only.tar.gz", "sha256:ABCDEF"),
				},
			},
		}
		if err := json.NewEncoder(w).Encode(releases); err != nil {
			t.Error(err)
		}
	})
	mux.HandleFunc("/download/SHA256SUMS", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "1111  cpython-3.12.1+20240107-x86_64-unknown-linux-gnu-install_only.tar.gz")
		fmt.Fprintln(w, "2222  cpython-3.11.7+20240107-x86_64-unknown-linux-gnu-install_only.tar.gz")
	})
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestEnumerate(t *testing.T) {
	t.Parallel()

	srv := newServer(t)
	p := New("cpython", srv.URL, triple, srv.Client())

	entries, err := p.Enumerate(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := map[string]string{}
	urls := map[string]string{}
	for _, e := range entries {
		if e.Source != "cpython" {
			t.Errorf("source = %q", e.Source)
		}
		got[e.ID.String()] = e.Checksum
		urls[e.ID.String()] = e.DownloadURL
	}
	want := map[string]string{
		"cpython@3.12.1": "1111",
		"cpython@3.11.7": "2222",
		"cpython@3.13.0": "abcdef",
	}
	if len(got) != len(want) {
		t.Fatalf("entries = %v, want %v", got, want)
	}
	for id, sum := range want {
		if got[id] != sum {
			t.Errorf("%s checksum = %q, want %q", id, got[id], sum)
		}
	}
	if u := urls[toolchain.MustParse("cpython@3.11.7").String()]; u != srv.URL+"/download/cpython-3.11.7+20240107-x86_64-unknown-linux-gnu-install_only.tar.gz" {
		t.Errorf("newest build must win, got %s", u)
	}
}

func TestEnumerateServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusForbidden)
	}))
	defer srv.Close()

	if _, err := New("", srv.URL, triple, srv.Client()).Enumerate(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}
