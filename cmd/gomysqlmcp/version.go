package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/rickchristie/mysql-mcp/internal/meta"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Display version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), versionString())
		},
	}
}

func versionString() string {
	return fmt.Sprintf("%s %s (%s, %s/%s)", meta.Name, meta.Version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
