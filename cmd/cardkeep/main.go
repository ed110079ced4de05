package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string

	rootCmd = &cobra.Command{
		Use:   "cardkeep",
		Short: "cardkeep - entity gateway for the gift card tracker",
		Long: `cardkeep serves the generic entity API of the gift card tracker and
records an activity trail for every card mutation.

Usage:
  cardkeep <command> [flags]

Available Commands:
  serve      Run the HTTP gateway
  migrate    Create the entity tables
  token      Mint a development bearer token
`,
		SilenceUsage: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a TOML config file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(tokenCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
