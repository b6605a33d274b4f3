package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRemoveCmd() *cobra.Command {
	var version string
	var keepLibraryIfEmpty bool

	var all bool

	cmd := &cobra.Command{
		Use:   "remove [library]",
		Short: "Remove an indexed version (and the library, if it was the last one)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(configPath, nil)
			if err != nil {
				return err
			}
			defer warnClose("app", app.Close())

			ctx := cmd.Context()
			if all {
				count, err := app.store.RemoveAllDocuments(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed %d documents across all libraries\n", count)
				return nil
			}
			if len(args) == 0 {
				return fmt.Errorf("a library argument is required unless --all is set")
			}

			libraryID, versionID, err := app.store.ResolveIds(ctx, args[0], version)
			if err != nil {
				return err
			}

			summary, err := app.store.RemoveVersion(ctx, libraryID, versionID, !keepLibraryIfEmpty)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "removed %d documents; version deleted=%v; library deleted=%v\n",
				summary.DocumentsDeleted, summary.VersionDeleted, summary.LibraryDeleted)
			return nil
		},
	}

	cmd.Flags().StringVar(&version, "version", "", "version to remove (empty = unversioned)")
	cmd.Flags().BoolVar(&keepLibraryIfEmpty, "keep-empty-library", false, "keep the library row even if no versions remain")
	cmd.Flags().BoolVar(&all, "all", false, "remove every document, version, and library")

	return cmd
}
