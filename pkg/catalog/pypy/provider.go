// Package pypy lists PyPy releases from the downloads.python.org version index.
package pypy

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"strings"

	"pytc/pkg/catalog"
	"pytc/pkg/config"
	"pytc/pkg/httpclient"
	"pytc/pkg/logging"
	"pytc/pkg/semver"
	"pytc/pkg/toolchain"
)

const DefaultURL = "https://downloads.python.org/pypy/versions.json"

func init() {
	catalog.RegisterKind("pypy", func(src config.SourceConfig, deps catalog.Deps) (catalog.Provider, error) {
		platform := src.Platform
		if platform == "" {
			var ok bool
			platform, ok = HostPlatform(runtime.GOOS, runtime.GOARCH)
			if !ok {
				return nil, fmt.Errorf("no PyPy builds for %s/%s; set platform explicitly", runtime.GOOS, runtime.GOARCH)
			}
		}
		return New(src.Name, src.URL, platform, deps.HTTPClient), nil
	})
}

// HostPlatform maps GOOS/GOARCH to the "<platform>/<arch>" pair used in versions.json.
func HostPlatform(goos, goarch string) (string, bool) {
	platforms := map[string]string{
		"linux/amd64":   "linux/x64",
		"linux/arm64":   "linux/aarch64",
		"linux/386":     "linux/i686",
		"linux/s390x":   "linux/s390x",
		"darwin/amd64":  "darwin/x64",
		"darwin/arm64":  "darwin/arm64",
		"windows/amd64": "win64/x64",
	}
	p, ok := platforms[goos+"/"+goarch]
	return p, ok
}

type Provider struct {
	name     string
	url      string
	platform string
	arch     string
	client   *http.Client
}

// New creates a provider; platform is "<platform>/<arch>" as in versions.json.
func New(name, url, platform string, client *http.Client) *Provider {
	if name == "" {
		name = "pypy"
	}
	if url == "" {
		url = DefaultURL
	}
	plat, arch, _ := strings.Cut(platform, "/")
	return &Provider{name: name, url: url, platform: plat, arch: arch, client: client}
}

func (p *Provider) ID() string         { return p.name }
func (p *Provider) Name() string       { return "PyPy downloads" }
func (p *Provider) Kind() catalog.Kind { return catalog.Remote }

type release struct {
	PyPyVersion   string `json:"pypy_version"`
	PythonVersion string `json:"python_version"`
	Stable        bool   `json:"stable"`
	Files         []file `json:"files"`
}

type file struct {
	Filename    string `json:"filename"`
	Arch        string `json:"arch"`
	Platform    string `json:"platform"`
	DownloadURL string `json:"download_url"`
}

func (p *Provider) Enumerate(ctx context.Context) ([]catalog.Entry, error) {
	logger := logging.GetLogger(ctx)
	logger.Debug("fetching pypy versions", "url", p.url)

	var releases []release
	if err := httpclient.GetJSON(ctx, p.client, p.url, nil, &releases); err != nil {
		return nil, fmt.Errorf("list pypy releases: %w", err)
	}

	type candidate struct {
		pypy  semver.Version
		entry catalog.Entry
	}
	best := map[toolchain.ID]candidate{}
	for _, r := range releases {
		if !r.Stable {
			continue
		}
		pyVersion, err := semver.Parse(r.PythonVersion)
		if err != nil {
			logger.Debug("skipping release with unparsable python version", "pypy", r.PyPyVersion, "python", r.PythonVersion)
			continue
		}
		pypyVersion, err := semver.Parse(r.PyPyVersion)
		if err != nil {
			continue
		}
		f, ok := p.pick(r.Files)
		if !ok {
			continue
		}
		id := toolchain.ID{Implementation: toolchain.PyPy, Version: pyVersion}
		if prev, found := best[id]; found && !pypyVersion.Greater(prev.pypy) {
			continue
		}
		best[id] = candidate{pypy: pypyVersion, entry: catalog.Entry{
			ID:          id,
			DownloadURL: f.DownloadURL,
			Source:      p.name,
		}}
	}

	out := make([]catalog.Entry, 0, len(best))
	for _, c := range best {
		out = append(out, c.entry)
	}
	logger.Debug("found pypy builds", "platform", p.platform, "arch", p.arch, "count", len(out))
	return out, nil
}

func (p *Provider) pick(files []file) (file, bool) {
	for _, f := range files {
		if f.Platform == p.platform && f.Arch == p.arch && f.DownloadURL != "" {
			return f, true
		}
	}
	return file{}, false
}
