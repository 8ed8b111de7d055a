package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// cliOptions holds flags shared by every subcommand.
type cliOptions struct {
	envFile string
}

func newRootCmd() *cobra.Command {
	opts := &cliOptions{}
	cmd := &cobra.Command{
		Use:   "gomysqlmcp",
		Short: "gomysqlmcp: MySQL MCP Server",
		Long: `gomysqlmcp serves MySQL to AI agents over the Model Context Protocol.

Every statement is classified by risk and checked against the configured
policy before it runs. Configuration is read from the environment and an
optional .env file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file to read before the environment (missing file is ignored)")

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newDoctorCmd(opts))
	cmd.AddCommand(newVersionCmd())
	return cmd
}
