package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"pytc/cmd/pytc/pin"
	"pytc/cmd/pytc/toolchain"
	"pytc/pkg/cmdregistry"
	"pytc/pkg/fetch"
	"pytc/pkg/interpreter"
	"pytc/pkg/manager"
	"pytc/pkg/paths"
	pinstore "pytc/pkg/pin"
	"pytc/pkg/registry"
	"pytc/pkg/resolve"
	tc "pytc/pkg/toolchain"
	"pytc/pkg/version"

	_ "pytc/pkg/catalog/prelude"

	"github.com/spf13/cobra"
)

var Registry cmdregistry.CommandRegistry

func init() {
	Registry.FromGetter(toolchain.GetCommand)
	Registry.FromGetter(pin.GetCommand)
	// Top level shortcut for `toolchain fetch`.
	Registry.FromGetter(toolchain.NewFetchCommand)
}

func main() {
	var verbose bool
	var home string

	cmd := &cobra.Command{
		Use:           "pytc",
		Short:         "pytc - Python toolchain manager",
		Version:       version.GetBuildID(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(c *cobra.Command, args []string) error {
			if verbose {
				slog.SetLogLoggerLevel(slog.LevelDebug)
			}
			if home != "" {
				return os.Setenv(paths.EnvHome, home)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	cmd.PersistentFlags().StringVar(&home, "home", "", "Managed directory (or set "+paths.EnvHome+")")
	Registry.FillCommands(cmd)

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	switch {
	case errors.Is(err, tc.ErrInvalidFormat),
		errors.Is(err, tc.ErrUnknownImplementation),
		errors.Is(err, pinstore.ErrEmptyRequest):
		return 2
	case errors.Is(err, resolve.ErrNoMatch),
		errors.Is(err, resolve.ErrAmbiguousImplementation),
		errors.Is(err, manager.ErrNoPin):
		return 3
	case errors.Is(err, fetch.ErrNetwork),
		errors.Is(err, fetch.ErrChecksumMismatch),
		errors.Is(err, fetch.ErrExtract),
		errors.Is(err, fetch.ErrSanity),
		errors.Is(err, fetch.ErrNotDownloadable):
		return 4
	case errors.Is(err, registry.ErrNotFound),
		errors.Is(err, registry.ErrLocked),
		errors.Is(err, registry.ErrAlreadyExists),
		errors.Is(err, registry.ErrIO):
		return 5
	case errors.Is(err, interpreter.ErrInvalidInterpreter):
		return 6
	default:
		return 1
	}
}
