package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every indexed library and its versions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(configPath, nil)
			if err != nil {
				return err
			}
			defer warnClose("app", app.Close())

			libraries, err := app.catalog.ListLibraries(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(libraries) == 0 {
				fmt.Fprintln(out, "no libraries indexed")
				return nil
			}
			for _, lib := range libraries {
				fmt.Fprintf(out, "%s\n", lib.Name)
				for _, v := range lib.Versions {
					name := v.Version
					if name == "" {
						name = "(unversioned)"
					}
					fmt.Fprintf(out, "  %-20s %-10s %d docs, %d urls\n", name, v.Status, v.DocumentCount, v.UniqueURLCount)
				}
			}
			return nil
		},
	}
}
