package pin

import (
	"errors"
	"fmt"
	"os"

	"pytc/cmd/pytc/common"
	"pytc/pkg/catalog"
	"pytc/pkg/manager"
	pinstore "pytc/pkg/pin"

	"github.com/ktr0731/go-fuzzyfinder"
	"github.com/spf13/cobra"
)

func GetCommand() *cobra.Command {
	var pick bool
	var projectPath string
	cmd := &cobra.Command{
		Use:   "pin [toolchain-request]",
		Short: "Pin the project to a toolchain",
		Long: `Write the toolchain request to .python-version at the project root. The
request is stored as written and resolved again every time it is used. Without
arguments the current pin is printed.`,
		Example: `  pytc pin 3.12
  pytc pin cpython@3.13+freethreaded
  pytc pin --pick`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if projectPath == "" {
				cwd, err := os.Getwd()
				if err != nil {
					return err
				}
				root, err := pinstore.FindProjectRoot(cwd)
				if err != nil {
					return err
				}
				projectPath = root
			}

			m, err := common.OpenManager(cmd.Context())
			if err != nil {
				return err
			}
			defer m.Close()

			var request string
			switch {
			case len(args) == 1:
				request = args[0]
			case pick:
				listings, warnings, err := m.List(cmd.Context(), true, "")
				if err != nil {
					return err
				}
				common.PrintWarnings(cmd.ErrOrStderr(), warnings)
				request, err = choose(listings)
				if err != nil {
					return err
				}
				if request == "" {
					return nil
				}
			default:
				rec, err := m.PinRequest(projectPath)
				if errors.Is(err, manager.ErrNoPin) {
					return fmt.Errorf("%s has no pin; pass a toolchain request: %w", projectPath, err)
				}
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), rec.Request)
				return nil
			}

			rec, res, err := m.Pin(cmd.Context(), projectPath, request)
			common.PrintWarnings(cmd.ErrOrStderr(), res.Warnings)
			if err != nil {
				return err
			}
			suffix := ""
			if res.NeedsFetch {
				suffix = ", not installed yet"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pinned %s to %s (%s%s)\n", rec.ProjectPath, rec.Request, res.ID, suffix)
			return nil
		},
	}
	cmd.Flags().BoolVar(&pick, "pick", false, "Choose the toolchain interactively")
	cmd.Flags().StringVar(&projectPath, "path", "", "Project directory (defaults to the nearest project root)")
	return cmd
}

// choose returns the id picked from listings, or "" when the user aborts.
func choose(listings []catalog.Listing) (string, error) {
	if len(listings) == 0 {
		return "", fmt.Errorf("no toolchains available")
	}
	idx, err := fuzzyfinder.Find(
		listings,
		func(i int) string {
			return fmt.Sprintf("%s [%s]", listings[i].ID, listings[i].Status)
		},
		fuzzyfinder.WithPreviewWindow(func(i, width, height int) string {
			if i == -1 {
				return ""
			}
			e := listings[i].Entry
			if e.InstallPath != "" {
				return fmt.Sprintf("Source: %s\nPath:   %s\nBinary: %s", e.Source, e.InstallPath, e.Executable)
			}
			return fmt.Sprintf("Source: %s\nURL:    %s", e.Source, e.DownloadURL)
		}),
	)
	if err != nil {
		if errors.Is(err, fuzzyfinder.ErrAbort) {
			return "", nil
		}
		return "", fmt.Errorf("fuzzy finder failed: %w", err)
	}
	return listings[idx].ID.String(), nil
}
