package toolchain

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"pytc/cmd/pytc/common"
	"pytc/pkg/catalog"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

type listingView struct {
	ID          string     `json:"id" yaml:"id"`
	Status      string     `json:"status" yaml:"status"`
	InstallPath string     `json:"install_path,omitempty" yaml:"install_path,omitempty"`
	Executable  string     `json:"executable,omitempty" yaml:"executable,omitempty"`
	Source      string     `json:"source" yaml:"source"`
	URL         string     `json:"url,omitempty" yaml:"url,omitempty"`
	InstalledAt *time.Time `json:"installed_at,omitempty" yaml:"installed_at,omitempty"`
}

func viewOf(l catalog.Listing) listingView {
	v := listingView{
		ID:          l.ID.String(),
		Status:      string(l.Status),
		InstallPath: l.Entry.InstallPath,
		Executable:  l.Entry.Executable,
		Source:      l.Entry.Source,
		URL:         l.Entry.DownloadURL,
	}
	if !l.Entry.InstalledAt.IsZero() {
		at := l.Entry.InstalledAt
		v.InstalledAt = &at
	}
	return v
}

func init() {
	Registry.FromGetter(func() *cobra.Command {
		var includeDownloadable bool
		var format string
		var filter string
		cmd := &cobra.Command{
			Use:     "list",
			Aliases: []string{"ls"},
			Short:   "List installed toolchains",
			Example: `  pytc toolchain list
  pytc toolchain list --include-downloadable --filter ">=3.11, <3.14" --format table`,
			Args: cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				m, err := common.OpenManager(cmd.Context())
				if err != nil {
					return err
				}
				defer m.Close()

				listings, warnings, err := m.List(cmd.Context(), includeDownloadable, filter)
				if err != nil {
					return err
				}
				common.PrintWarnings(cmd.ErrOrStderr(), warnings)
				return render(cmd.OutOrStdout(), format, listings)
			},
		}
		cmd.Flags().BoolVar(&includeDownloadable, "include-downloadable", false, "Also list toolchains available for download")
		cmd.Flags().StringVarP(&format, "format", "o", "text", "Output format: text, table, json or yaml")
		cmd.Flags().StringVar(&filter, "filter", "", "Only list versions matching a constraint such as \">=3.10\"")
		return cmd
	})
}

func render(w io.Writer, format string, listings []catalog.Listing) error {
	switch format {
	case "text":
		for _, l := range listings {
			fmt.Fprintf(w, "%s (%s)\n", l.ID, l.Entry.InstallPath)
		}
		return nil
	case "table":
		t := table.NewWriter()
		t.SetOutputMirror(w)
		t.AppendHeader(table.Row{"Toolchain", "Status", "Source", "Path"})
		for _, l := range listings {
			t.AppendRow(table.Row{l.ID.String(), string(l.Status), l.Entry.Source, l.Entry.InstallPath})
		}
		style := table.StyleLight
		style.Options.DrawBorder = false
		t.SetStyle(style)
		t.Render()
		return nil
	case "json", "yaml":
		views := make([]listingView, len(listings))
		for i, l := range listings {
			views[i] = viewOf(l)
		}
		if format == "json" {
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			return enc.Encode(views)
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(views); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown format %q (want text, table, json or yaml)", format)
	}
}
