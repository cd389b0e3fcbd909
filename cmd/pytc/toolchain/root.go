package toolchain

import (
	"pytc/pkg/cmdregistry"

	"github.com/spf13/cobra"
)

var Registry cmdregistry.CommandRegistry

func GetCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "toolchain",
		Aliases: []string{"tc"},
		Short:   "Manage Python toolchains",
	}
	Registry.FillCommands(cmd)
	return cmd
}
