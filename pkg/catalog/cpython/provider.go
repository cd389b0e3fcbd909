// Package cpython lists CPython builds published as python-build-standalone
// GitHub releases.
package cpython

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"strings"

	"pytc/pkg/catalog"
	"pytc/pkg/config"
	"pytc/pkg/httpclient"
	"pytc/pkg/logging"
	"pytc/pkg/semver"
	"pytc/pkg/toolchain"
)

const (
	DefaultURL = "https://api.github.com/repos/astral-sh/python-build-standalone"
	// releasesPerPage bounds how far back the catalog looks; older releases
	// only repeat versions with older build dates.
	releasesPerPage = 10
	sumsAsset       = "SHA256SUMS"
	archiveSuffix   = "-install_only.tar.gz"
)

func init() {
	catalog.RegisterKind("cpython", func(src config.SourceConfig, deps catalog.Deps) (catalog.Provider, error) {
		platform := src.Platform
		if platform == "" {
			var ok bool
			platform, ok = HostTriple(runtime.GOOS, runtime.GOARCH)
			if !ok {
				return nil, fmt.Errorf("no python-build-standalone target for %s/%s; set platform explicitly", runtime.GOOS, runtime.GOARCH)
			}
		}
		return New(src.Name, src.URL, platform, deps.HTTPClient), nil
	})
}

// HostTriple maps GOOS/GOARCH to the target triple used in asset names.
func HostTriple(goos, goarch string) (string, bool) {
	triples := map[string]string{
		"linux/amd64":   "x86_64-unknown-linux-gnu",
		"linux/arm64":   "aarch64-unknown-linux-gnu",
		"linux/386":     "i686-unknown-linux-gnu",
		"linux/ppc64le": "ppc64le-unknown-linux-gnu",
		"linux/s390x":   "s390x-unknown-linux-gnu",
		"darwin/amd64":  "x86_64-apple-darwin",
		"darwin/arm64":  "aarch64-apple-darwin",
		"windows/amd64": "x86_64-pc-windows-msvc",
		"windows/386":   "i686-pc-windows-msvc",
		"windows/arm64": "aarch64-pc-windows-msvc",
	}
	t, ok := triples[goos+"/"+goarch]
	return t, ok
}

type Provider struct {
	name     string
	baseURL  string
	platform string
	client   *http.Client
}

func New(name, baseURL, platform string, client *http.Client) *Provider {
	if name == "" {
		name = "cpython"
	}
	if baseURL == "" {
		baseURL = DefaultURL
	}
	return &Provider{
		name:     name,
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		platform: platform,
		client:   client,
	}
}

func (p *Provider) ID() string         { return p.name }
func (p *Provider) Name() string       { return "python-build-standalone" }
func (p *Provider) Kind() catalog.Kind { return catalog.Remote }
func (p *Provider) Platform() string   { return p.platform }

type release struct {
	TagName string  `json:"tag_name"`
	Draft   bool    `json:"draft"`
	Assets  []asset `json:"assets"`
}

type asset struct {
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
	// Digest is "sha256:<hex>" on releases uploaded after GitHub started
	// computing asset digests.
	Digest string `json:"digest"`
}

func (p *Provider) headers() map[string]string {
	h := map[string]string{"Accept": "application/vnd.github+json"}
	if token := os.Getenv("GITHUB_TOKEN"); token != "" {
		h["Authorization"] = "Bearer " + token
	}
	return h
}

type candidate struct {
	build string
	entry catalog.Entry
}

func (p *Provider) Enumerate(ctx context.Context) ([]catalog.Entry, error) {
	logger := logging.GetLogger(ctx)
	url := fmt.Sprintf("%s/releases?per_page=%d", p.baseURL, releasesPerPage)
	logger.Debug("fetching releases", "url", url)

	var releases []release
	if err := httpclient.GetJSON(ctx, p.client, url, p.headers(), &releases); err != nil {
		return nil, fmt.Errorf("list python-build-standalone releases: %w", err)
	}

	best := map[toolchain.ID]candidate{}
	for _, r := range releases {
		if r.Draft {
			continue
		}
		var sums map[string]string
		for _, a := range r.Assets {
			id, build, ok := ParseAssetName(a.Name, p.platform)
			if !ok {
				continue
			}
			checksum := strings.TrimPrefix(a.Digest, "sha256:")
			if a.Digest == "" || checksum == a.Digest {
				if sums == nil {
					sums = p.checksums(ctx, r)
				}
				checksum = sums[a.Name]
			}
			if prev, found := best[id]; found && prev.build >= build {
				continue
			}
			best[id] = candidate{build: build, entry: catalog.Entry{
				ID:          id,
				DownloadURL: a.BrowserDownloadURL,
				Checksum:    strings.ToLower(checksum),
				Source:      p.name,
			}}
		}
	}

	out := make([]catalog.Entry, 0, len(best))
	for _, c := range best {
		out = append(out, c.entry)
	}
	logger.Debug("found builds", "platform", p.platform, "count", len(out))
	return out, nil
}

// checksums downloads the release SHA256SUMS asset. A missing or unreadable
// file yields an empty map; those entries are then fetched without a
// published checksum.
func (p *Provider) checksums(ctx context.Context, r release) map[string]string {
	sums := map[string]string{}
	for _, a := range r.Assets {
		if a.Name != sumsAsset {
			continue
		}
		data, err := httpclient.GetBytes(ctx, p.client, a.BrowserDownloadURL, nil, 8<<20)
		if err != nil {
			logging.GetLogger(ctx).Debug("checksum file unavailable", "release", r.TagName, "err", err)
			return sums
		}
		return ParseSums(data)
	}
	return sums
}

// ParseSums parses "<hex>  <filename>" lines.
func ParseSums(data []byte) map[string]string {
	sums := map[string]string{}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) != 2 {
			continue
		}
		sums[strings.TrimPrefix(fields[1], "*")] = strings.ToLower(fields[0])
	}
	return sums
}

// ParseAssetName extracts the toolchain id and build date from an asset name
// like "cpython-3.12.1+20240107-x86_64-unknown-linux-gnu-install_only.tar.gz".
// Assets for another platform, or that are not install_only archives, are rejected.
func ParseAssetName(name, platform string) (toolchain.ID, string, bool) {
	if !strings.HasPrefix(name, "cpython-") || !strings.HasSuffix(name, archiveSuffix) {
		return toolchain.ID{}, "", false
	}
	middle := strings.TrimSuffix(strings.TrimPrefix(name, "cpython-"), archiveSuffix)

	versionBuild, triple, ok := strings.Cut(middle, "-")
	if !ok {
		return toolchain.ID{}, "", false
	}
	versionStr, build, ok := strings.Cut(versionBuild, "+")
	if !ok {
		return toolchain.ID{}, "", false
	}

	var variant string
	if rest, found := strings.CutSuffix(triple, "-freethreaded"); found {
		triple, variant = rest, "freethreaded"
	}
	if triple != platform {
		return toolchain.ID{}, "", false
	}

	v, err := semver.Parse(versionStr)
	if err != nil {
		return toolchain.ID{}, "", false
	}
	return toolchain.ID{Implementation: toolchain.CPython, Version: v, Variant: variant}, build, true
}
