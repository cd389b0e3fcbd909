package toolchain

import (
	"fmt"

	"pytc/cmd/pytc/common"

	"github.com/spf13/cobra"
)

func init() {
	Registry.FromGetter(NewFetchCommand)
}

// NewFetchCommand is also mounted on the root command as `pytc fetch`.
func NewFetchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "fetch <toolchain-request>...",
		Short: "Download toolchains unless already installed",
		Example: `  pytc toolchain fetch 3.12
  pytc fetch cpython@3.13+freethreaded pypy@3.10`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := common.OpenManager(cmd.Context())
			if err != nil {
				return err
			}
			defer m.Close()

			results, err := m.FetchMany(cmd.Context(), args)
			for _, res := range results {
				common.PrintWarnings(cmd.ErrOrStderr(), res.Warnings)
				if res.Entry.Executable == "" {
					continue
				}
				if res.Fetched {
					fmt.Fprintf(cmd.OutOrStdout(), "fetched %s (%s)\n", res.Entry.ID, res.Entry.InstallPath)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "%s already installed (%s)\n", res.Entry.ID, res.Entry.InstallPath)
				}
			}
			return err
		},
	}
}
