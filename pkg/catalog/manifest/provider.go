// Package manifest lists toolchains from a JSON manifest, for mirrors and
// offline setups.
//
//	{"toolchains": [{"id": "cpython@3.12.1", "url": "...", "sha256": "..."}]}
//
// Relative urls are resolved against the manifest location. A manifest read
// from disk turns them into file:// urls.
package manifest

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"pytc/pkg/catalog"
	"pytc/pkg/config"
	"pytc/pkg/httpclient"
	"pytc/pkg/logging"
	"pytc/pkg/toolchain"
)

//go:embed schema.json
var schema []byte

const maxManifestSize = 16 << 20

func init() {
	catalog.RegisterKind("manifest", func(src config.SourceConfig, deps catalog.Deps) (catalog.Provider, error) {
		if src.URL == "" {
			return nil, fmt.Errorf("manifest source needs a url")
		}
		return New(src.Name, src.URL, deps.HTTPClient), nil
	})
}

type Provider struct {
	name     string
	location string
	client   *http.Client
}

// New creates a provider reading the manifest at location (a path or an http(s) url).
func New(name, location string, client *http.Client) *Provider {
	if name == "" {
		name = "manifest"
	}
	return &Provider{name: name, location: location, client: client}
}

func (p *Provider) ID() string         { return p.name }
func (p *Provider) Name() string       { return "manifest " + p.location }
func (p *Provider) Kind() catalog.Kind { return catalog.Remote }

type document struct {
	Toolchains []struct {
		ID     string `json:"id"`
		URL    string `json:"url"`
		SHA256 string `json:"sha256"`
	} `json:"toolchains"`
}

func (p *Provider) Enumerate(ctx context.Context) ([]catalog.Entry, error) {
	data, base, err := p.read(ctx)
	if err != nil {
		return nil, err
	}
	if err := Validate(data); err != nil {
		return nil, fmt.Errorf("manifest %s: %w", p.location, err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("manifest %s: %w", p.location, err)
	}

	seen := map[toolchain.ID]bool{}
	var out []catalog.Entry
	for i, tc := range doc.Toolchains {
		id, err := toolchain.Parse(tc.ID)
		if err != nil {
			return nil, fmt.Errorf("manifest %s: toolchains[%d]: %w", p.location, i, err)
		}
		if seen[id] {
			logging.GetLogger(ctx).Warn("duplicate manifest entry ignored", "manifest", p.location, "id", id.String())
			continue
		}
		seen[id] = true
		ref, err := url.Parse(tc.URL)
		if err != nil {
			return nil, fmt.Errorf("manifest %s: toolchains[%d]: invalid url: %w", p.location, i, err)
		}
		out = append(out, catalog.Entry{
			ID:          id,
			DownloadURL: base.ResolveReference(ref).String(),
			Checksum:    strings.ToLower(tc.SHA256),
			Source:      p.name,
		})
	}
	return out, nil
}

func (p *Provider) read(ctx context.Context) ([]byte, *url.URL, error) {
	if strings.HasPrefix(p.location, "http://") || strings.HasPrefix(p.location, "https://") {
		base, err := url.Parse(p.location)
		if err != nil {
			return nil, nil, err
		}
		data, err := httpclient.GetBytes(ctx, p.client, p.location, nil, maxManifestSize)
		if err != nil {
			return nil, nil, fmt.Errorf("fetch manifest: %w", err)
		}
		return data, base, nil
	}

	path := strings.TrimPrefix(p.location, "file://")
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, nil, fmt.Errorf("read manifest: %w", err)
	}
	return data, &url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}, nil
}

// Validate checks a manifest document against the embedded JSON schema.
func Validate(data []byte) error {
	result, err := gojsonschema.Validate(gojsonschema.NewBytesLoader(schema), gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("failed to validate manifest: %w", err)
	}
	if !result.Valid() {
		var errs strings.Builder
		for _, desc := range result.Errors() {
			fmt.Fprintf(&errs, "\n- %s", desc)
		}
		return fmt.Errorf("schema validation failed:%s", errs.String())
	}
	return nil
}
