package toolchain

import (
	"fmt"
	"log/slog"
	"os"

	"pytc/cmd/pytc/common"
	tc "pytc/pkg/toolchain"

	"github.com/spf13/cobra"
)

func init() {
	Registry.FromGetter(func() *cobra.Command {
		return &cobra.Command{
			Use:     "remove <toolchain-id>",
			Aliases: []string{"rm", "uninstall"},
			Short:   "Remove an installed toolchain",
			Long: `Remove a toolchain by its exact id. Fetched toolchains are deleted from the
store; registered ones are only forgotten.`,
			Args: cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				m, err := common.OpenManager(cmd.Context())
				if err != nil {
					return err
				}
				defer m.Close()

				entry, err := m.Remove(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", entry.ID)

				// Removal never looks at pins, but tell the user when this one breaks theirs.
				cwd, err := os.Getwd()
				if err != nil {
					return nil
				}
				rec, err := m.PinRequest(cwd)
				if err != nil {
					return nil
				}
				req, err := tc.ParseRequest(rec.Request)
				if err != nil {
					slog.Debug("ignoring unparsable pin", "request", rec.Request, "err", err)
					return nil
				}
				if req.Matches(entry.ID) {
					if _, _, err := m.ResolvePin(cmd.Context(), cwd); err != nil {
						fmt.Fprintf(cmd.ErrOrStderr(), "warning: pinned request %q no longer matches an installed toolchain\n", rec.Request)
					}
				}
				return nil
			},
		}
	})
}
