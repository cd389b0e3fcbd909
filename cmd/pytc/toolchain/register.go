package toolchain

import (
	"fmt"

	"pytc/cmd/pytc/common"
	"pytc/pkg/manager"

	"github.com/spf13/cobra"
)

func init() {
	Registry.FromGetter(func() *cobra.Command {
		var opts manager.RegisterOptions
		cmd := &cobra.Command{
			Use:   "register <path>",
			Short: "Register an existing interpreter",
			Long: `Register an interpreter installed outside pytc. The path may be the
interpreter binary or its installation directory. The interpreter is run once
to read its implementation and version. Removing a registered toolchain never
deletes its files.`,
			Example: `  pytc toolchain register /usr/bin/python3.11
  pytc toolchain register --variant debug ~/src/cpython`,
			Args: cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				m, err := common.OpenManager(cmd.Context())
				if err != nil {
					return err
				}
				defer m.Close()

				entry, err := m.Register(cmd.Context(), args[0], opts)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "registered %s (%s)\n", entry.ID, entry.Executable)
				return nil
			},
		}
		cmd.Flags().StringVar(&opts.Name, "name", "", "Implementation label to use instead of the reported one")
		cmd.Flags().StringVar(&opts.Variant, "variant", "", "Build variant, e.g. debug")
		return cmd
	})
}
