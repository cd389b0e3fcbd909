package toolchain

import (
	"fmt"

	"pytc/cmd/pytc/common"

	"github.com/spf13/cobra"
)

func init() {
	Registry.FromGetter(func() *cobra.Command {
		var includeDownloadable bool
		cmd := &cobra.Command{
			Use:   "find <toolchain-request>",
			Short: "Show which toolchain a request resolves to",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				m, err := common.OpenManager(cmd.Context())
				if err != nil {
					return err
				}
				defer m.Close()

				res, err := m.Find(cmd.Context(), args[0], includeDownloadable)
				common.PrintWarnings(cmd.ErrOrStderr(), res.Warnings)
				if err != nil {
					return err
				}
				if res.NeedsFetch {
					fmt.Fprintf(cmd.OutOrStdout(), "%s (downloadable from %s)\n", res.ID, res.Entry.Source)
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", res.ID, res.Entry.InstallPath)
				return nil
			},
		}
		cmd.Flags().BoolVar(&includeDownloadable, "include-downloadable", false, "Also consider toolchains that are not installed")
		return cmd
	})
}
