package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kbukum/opkit/version"
)

// VersionCmd prints build information.
func VersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the opkit version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), appName, version.Get())
			return err
		},
	}
}
