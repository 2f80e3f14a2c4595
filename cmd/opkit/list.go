package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// ListCmd prints the names of all loadable pipelines.
func ListCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List available pipelines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := newApp(flags, true)
			if err != nil {
				return err
			}
			return app.RunTask(cmd.Context(), func(context.Context) error {
				for _, name := range app.Registry.List() {
					if _, err := fmt.Fprintln(cmd.OutOrStdout(), name); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}
