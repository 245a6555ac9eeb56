package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/shopmind-ai/shopmind/internal/cli"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "shopmindd",
		Short: "shopmind assistant server",
		Long:  "shopmindd runs the shopmind shopping assistant API server",
	}

	cli.AddHelpJSONFlag(rootCmd)

	rootCmd.AddCommand(cli.ServeCmd())
	rootCmd.AddCommand(cli.TokenCmd())

	// Default to serve when invoked without a subcommand.
	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	cli.CheckHelpJSON(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
