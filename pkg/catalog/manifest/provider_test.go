package manifest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sum = "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08"

func TestEnumerateFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "manifest.json")
	doc := `{"toolchains": [
		{"id": "cpython@3.12.1", "url": "archives/cpython-3.12.1.tar.gz", "sha256": "` + strings.ToUpper(sum) + `"},
		{"id": "pypy@3.10.13", "url": "https://example.invalid/pypy.tar.bz2"}
	]}`
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatal(err)
	}

	entries, err := New("mirror", path, nil).Enumerate(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %+v", entries)
	}

	first := entries[0]
	if first.ID.String() != "cpython@3.12.1" || first.Checksum != sum || first.Source != "mirror" {
		t.Errorf("first entry = %+v", first)
	}
	wantURL := "file://" + filepath.ToSlash(filepath.Join(dir, "archives", "cpython-3.12.1.tar.gz"))
	if first.DownloadURL != wantURL {
		t.Errorf("url = %q, want %q", first.DownloadURL, wantURL)
	}
	if entries[1].DownloadURL != "https://example.invalid/pypy.tar.bz2" || entries[1].Checksum != "" {
		t.Errorf("second entry = %+v", entries[1])
	}
}

func TestEnumerateHTTPResolvesRelative(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"toolchains": [{"id": "3.11.4", "url": "cpython-3.11.4.tar.gz"}]}`))
	}))
	defer srv.Close()

	entries, err := New("", srv.URL+"/mirror/manifest.json", srv.Client()).Enumerate(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %+v", entries)
	}
	if entries[0].ID.String() != "cpython@3.11.4" {
		t.Errorf("id = %s", entries[0].ID)
	}
	if entries[0].DownloadURL != srv.URL+"/mirror/cpython-3.11.4.tar.gz" {
		t.Errorf("url = %s", entries[0].DownloadURL)
	}
}

func TestValidateRejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		doc  string
	}{
		{"missing toolchains", `{}`},
		{"missing url", `{"toolchains": [{"id": "cpython@3.12.1"}]}`},
		{"bad checksum", `{"toolchains": [{"id": "cpython@3.12.1", "url": "x", "sha256": "abc"}]}`},
		{"unknown field", `{"toolchains": [{"id": "cpython@3.12.1", "url": "x", "md5": "abc"}]}`},
	}
	for _, tt := range tests {
		if err := Validate([]byte(tt.doc)); err == nil {
			t.Errorf("%s: expected validation error", tt.name)
		}
	}

	if err := Validate([]byte(`{"toolchains": []}`)); err != nil {
		t.Errorf("empty manifest should validate: %v", err)
	}
}

func TestEnumerateRejectsBadID(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "manifest.json")
	if err := os.WriteFile(path, []byte(`{"toolchains": [{"id": "jython@2.7", "url": "x"}]}`), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := New("", path, nil).Enumerate(context.Background()); err == nil {
		t.Fatal("expected error for unknown implementation")
	}
}
