package main

import (
	"runtime"

	"github.com/spf13/cobra"

	"github.com/banshee-data/gamma.mca/internal/version"
)

// versionCmd shows the verbose version for diagnostic purposes.
func (a *app) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of gammamca.",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("gammamca\n")
			cmd.Printf("  Version: %s\n", version.Version)
			cmd.Printf("  Commit:  %s\n", version.GitSHA)
			cmd.Printf("  Built:   %s\n", version.BuildTime)
			cmd.Printf("  Runtime: %s\n", runtime.Version())
		},
	}
}
