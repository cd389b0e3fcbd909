// Package common holds helpers shared by the pytc subcommands.
package common

import (
	"context"
	"fmt"
	"io"
	"os"

	"pytc/pkg/catalog"
	"pytc/pkg/config"
	"pytc/pkg/httpclient"
	"pytc/pkg/manager"
	"pytc/pkg/paths"
)

// OpenManager loads config.toml from the managed directory and opens a Manager.
// The caller must Close it.
func OpenManager(ctx context.Context) (*manager.Manager, error) {
	layout, err := paths.DefaultLayout()
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(layout.ConfigFile())
	if err != nil {
		return nil, err
	}
	opts := manager.Options{
		Layout:     layout,
		Config:     cfg,
		HTTPClient: httpclient.Default(),
	}
	if cfg.Fetch.Progress {
		opts.Progress = os.Stderr
	}
	return manager.New(ctx, opts)
}

// PrintWarnings reports catalogs that could not be reached.
func PrintWarnings(w io.Writer, warnings []catalog.Warning) {
	for _, warning := range warnings {
		fmt.Fprintf(w, "warning: %s\n", warning.String())
	}
}
