package toolchain

import (
	"fmt"
	"os"

	"pytc/cmd/pytc/common"

	"github.com/spf13/cobra"
)

func init() {
	Registry.FromGetter(func() *cobra.Command {
		var fetchMissing bool
		cmd := &cobra.Command{
			Use:   "which",
			Short: "Print the interpreter the current project resolves to",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				cwd, err := os.Getwd()
				if err != nil {
					return err
				}
				m, err := common.OpenManager(cmd.Context())
				if err != nil {
					return err
				}
				defer m.Close()

				entry, err := m.Which(cmd.Context(), cwd, fetchMissing)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), entry.Executable)
				return nil
			},
		}
		cmd.Flags().BoolVar(&fetchMissing, "fetch", false, "Download the pinned toolchain if it is not installed")
		return cmd
	})
}
